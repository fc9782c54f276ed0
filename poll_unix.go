//go:build unix

package ioreactor

import (
	"os"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

const (
	pollReadEvents   = unix.POLLIN
	pollWriteEvents  = unix.POLLOUT
	pollHangupEvents = unix.POLLHUP | unix.POLLERR | unix.POLLNVAL
)

// pollKernel keeps the interest masks in user space and hands the whole set
// to poll(2) on every wait.
type pollKernel struct {
	masks map[int]int16
	fds   []unix.PollFd
	dirty bool
	poll  func(fds []unix.PollFd, timeout int) (int, error)
}

func newPollKernel() (maskKernel, error) {
	return &pollKernel{
		masks: make(map[int]int16),
		poll:  unix.Poll,
	}, nil
}

func (k *pollKernel) register(fd int, read, write bool) error {
	if fd < 0 {
		return os.NewSyscallError("poll register", unix.EBADF)
	}
	var mask int16
	if read {
		mask |= pollReadEvents
	}
	if write {
		mask |= pollWriteEvents
	}
	k.masks[fd] = mask
	k.dirty = true
	return nil
}

func (k *pollKernel) unregister(fd int) error {
	if _, ok := k.masks[fd]; ok {
		delete(k.masks, fd)
		k.dirty = true
	}
	return nil
}

func (k *pollKernel) pollFds() []unix.PollFd {
	if !k.dirty {
		return k.fds
	}
	k.fds = k.fds[:0]
	for fd, mask := range k.masks {
		k.fds = append(k.fds, unix.PollFd{Fd: int32(fd), Events: mask})
	}
	sort.Slice(k.fds, func(i, j int) bool { return k.fds[i].Fd < k.fds[j].Fd })
	k.dirty = false
	return k.fds
}

func (k *pollKernel) wait(timeout time.Duration, out []readiness) (int, error) {
	fds := k.pollFds()
	for i := range fds {
		fds[i].Revents = 0
	}
	ready, err := k.poll(fds, timeoutMillis(timeout))
	if err != nil {
		return 0, os.NewSyscallError("poll", err)
	}
	n := 0
	for i := 0; i < len(fds) && n < len(out) && ready > 0; i++ {
		revents := fds[i].Revents
		if revents == 0 {
			continue
		}
		ready--
		out[n] = readiness{
			fd:       int(fds[i].Fd),
			readable: revents&pollReadEvents != 0,
			writable: revents&pollWriteEvents != 0,
			hangup:   revents&pollHangupEvents != 0,
		}
		n++
	}
	return n, nil
}

func (k *pollKernel) close() error {
	k.masks = nil
	k.fds = nil
	return nil
}
