package ioreactor

// EventHandler receives the events of one target.
type EventHandler interface {
	// ReadEvent handles readiness for reading
	ReadEvent(d Descriptor) error
	// WriteEvent handles readiness for writing
	WriteEvent(d Descriptor) error
	// ErrorEvent handles an error reported for d
	ErrorEvent(d Descriptor, cause error) error
	// CloseEvent handles a disconnect of d
	CloseEvent(d Descriptor) error
}
