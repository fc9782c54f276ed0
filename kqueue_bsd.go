//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package ioreactor

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

type kqueueKernel struct {
	kq     int
	events []unix.Kevent_t
}

func newKqueueKernel(maxEvents int) (filterKernel, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, os.NewSyscallError("kqueue", err)
	}
	unix.CloseOnExec(kq)
	return &kqueueKernel{
		kq:     kq,
		events: make([]unix.Kevent_t, maxEvents),
	}, nil
}

func kqueueFilter(f filter) int {
	if f == filterWrite {
		return unix.EVFILT_WRITE
	}
	return unix.EVFILT_READ
}

func (k *kqueueKernel) change(fd int, f filter, flags int) error {
	var change [1]unix.Kevent_t
	unix.SetKevent(&change[0], fd, kqueueFilter(f), flags)
	_, err := unix.Kevent(k.kq, change[:], nil, nil)
	return err
}

func (k *kqueueKernel) add(fd int, f filter) error {
	if err := k.change(fd, f, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		return os.NewSyscallError("kevent add", err)
	}
	return nil
}

func (k *kqueueKernel) del(fd int, f filter) error {
	if err := k.change(fd, f, unix.EV_DELETE); err != nil {
		return os.NewSyscallError("kevent delete", err)
	}
	return nil
}

func (k *kqueueKernel) wait(timeout time.Duration, out []kevent) (int, error) {
	events := k.events
	if len(out) < len(events) {
		events = events[:len(out)]
	}
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	n, err := unix.Kevent(k.kq, nil, events, &ts)
	if err != nil {
		return 0, os.NewSyscallError("kevent", err)
	}
	for i := 0; i < n; i++ {
		ev := &events[i]
		f := filterRead
		if int(ev.Filter) == unix.EVFILT_WRITE {
			f = filterWrite
		}
		out[i] = kevent{
			fd:     int(ev.Ident),
			filter: f,
			failed: ev.Flags&unix.EV_ERROR != 0,
			eof:    ev.Flags&unix.EV_EOF != 0,
		}
		if out[i].failed {
			out[i].errno = unix.Errno(ev.Data)
		}
	}
	return n, nil
}

func (k *kqueueKernel) close() error {
	return unix.Close(k.kq)
}
