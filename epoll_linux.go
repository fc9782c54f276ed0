//go:build linux

package ioreactor

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const (
	epollReadEvents   = unix.EPOLLIN
	epollWriteEvents  = unix.EPOLLOUT
	epollHangupEvents = unix.EPOLLHUP | unix.EPOLLERR
)

type epollKernel struct {
	fd     int // epoll fd
	events []unix.EpollEvent
}

func newEpollKernel(maxEvents int) (maskKernel, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &epollKernel{
		fd:     fd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

func (k *epollKernel) register(fd int, read, write bool) error {
	var mask uint32
	if read {
		mask |= epollReadEvents
	}
	if write {
		mask |= epollWriteEvents
	}
	err := unix.EpollCtl(k.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: mask})
	if err != nil {
		return os.NewSyscallError("epoll_ctl add", err)
	}
	return nil
}

func (k *epollKernel) unregister(fd int) error {
	err := unix.EpollCtl(k.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return os.NewSyscallError("epoll_ctl del", err)
	}
	return nil
}

func (k *epollKernel) wait(timeout time.Duration, out []readiness) (int, error) {
	events := k.events
	if len(out) < len(events) {
		events = events[:len(out)]
	}
	n, err := unix.EpollWait(k.fd, events, timeoutMillis(timeout))
	if err != nil {
		return 0, os.NewSyscallError("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		ev := events[i].Events
		out[i] = readiness{
			fd:       int(events[i].Fd),
			readable: ev&epollReadEvents != 0,
			writable: ev&epollWriteEvents != 0,
			hangup:   ev&epollHangupEvents != 0,
		}
	}
	return n, nil
}

func (k *epollKernel) close() error {
	return unix.Close(k.fd)
}
