package ioreactor

import (
	"errors"
	"fmt"
)

var (
	ErrBackendUnsupported = errors.New("ioreactor: backend is not supported on this platform")
	ErrUnknownBackend     = errors.New("ioreactor: unknown backend")
	ErrPollerClosed       = errors.New("ioreactor: poller closed")
	// ErrKernelEvent is the cause attached to an Error event when the kernel
	// flagged a descriptor without reporting an errno.
	ErrKernelEvent = errors.New("ioreactor: kernel reported an error condition")
)

// HandlerPanicError wraps a value recovered from a panicking Sink.
type HandlerPanicError struct {
	Value interface{}
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("ioreactor: handler panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *HandlerPanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}
