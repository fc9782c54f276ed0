package ioreactor

import (
	"crypto/tls"
	"errors"
	"net"
	"syscall"
)

// Descriptor is a handle to a socket or file resource. Implementations must be
// comparable, they are used as map keys.
type Descriptor interface {
	Fd() uintptr
}

// FD is a raw descriptor number.
type FD int

func (fd FD) Fd() uintptr {
	return uintptr(fd)
}

// handleOf returns the kernel handle of d. Values that do not fit an int come
// back negative.
func handleOf(d Descriptor) int {
	return int(d.Fd())
}

var errNoSyscallConn = errors.New("ioreactor: connection does not expose a raw descriptor")

// ConnDescriptor extracts the descriptor of conn without duplicating it.
// The connection keeps ownership: it must stay open while the descriptor is
// registered.
func ConnDescriptor(conn net.Conn) (FD, error) {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		conn = tlsConn.NetConn()
	}
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, errNoSyscallConn
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := FD(-1)
	err = raw.Control(func(handle uintptr) {
		fd = FD(handle)
	})
	if err != nil {
		return -1, err
	}
	return fd, nil
}
