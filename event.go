package ioreactor

// EventKind tags a canonical reactor event.
type EventKind uint8

const (
	EventRead EventKind = iota + 1
	EventWrite
	EventError
	EventDisconnect
)

// Subchannels events are fired on.
const (
	ReadChannel       = "_read"
	WriteChannel      = "_write"
	ErrorChannel      = "_error"
	DisconnectChannel = "_disconnect"
)

func (k EventKind) String() string {
	switch k {
	case EventRead:
		return "read"
	case EventWrite:
		return "write"
	case EventError:
		return "error"
	case EventDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// Channel returns the subchannel an event of this kind is delivered to.
func (k EventKind) Channel() string {
	switch k {
	case EventRead:
		return ReadChannel
	case EventWrite:
		return WriteChannel
	case EventError:
		return ErrorChannel
	case EventDisconnect:
		return DisconnectChannel
	}
	return ""
}

// Event is what a backend emits for a descriptor. Err is only set for
// EventError.
type Event struct {
	Kind       EventKind
	Descriptor Descriptor
	Err        error
}

func readEvent(d Descriptor) Event       { return Event{Kind: EventRead, Descriptor: d} }
func writeEvent(d Descriptor) Event      { return Event{Kind: EventWrite, Descriptor: d} }
func disconnectEvent(d Descriptor) Event { return Event{Kind: EventDisconnect, Descriptor: d} }

func errorEvent(d Descriptor, cause error) Event {
	return Event{Kind: EventError, Descriptor: d, Err: cause}
}

// Sink delivers events to the host dispatch framework. Returning an error or
// panicking is a handler fault: the reactor reports it on the descriptor's
// error channel and drops the descriptor.
type Sink interface {
	Fire(event Event, target Target, channel string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event Event, target Target, channel string) error

func (f SinkFunc) Fire(event Event, target Target, channel string) error {
	return f(event, target, channel)
}

// fire calls the sink and turns a panic into an error.
func fire(sink Sink, event Event, target Target) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanicError{Value: r}
		}
	}()
	return sink.Fire(event, target, event.Kind.Channel())
}
