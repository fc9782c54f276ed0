//go:build unix

package ioreactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPollKernelTranslatesRevents(t *testing.T) {
	kernel, err := newPollKernel()
	require.NoError(t, err)
	k := kernel.(*pollKernel)

	var seen []unix.PollFd
	var timeout int
	k.poll = func(fds []unix.PollFd, ms int) (int, error) {
		seen = append([]unix.PollFd(nil), fds...)
		timeout = ms
		for i := range fds {
			switch fds[i].Fd {
			case 3:
				fds[i].Revents = unix.POLLIN | unix.POLLHUP
			case 5:
				fds[i].Revents = unix.POLLNVAL
			case 7:
				fds[i].Revents = unix.POLLOUT
			}
		}
		return 3, nil
	}

	require.NoError(t, k.register(7, false, true))
	require.NoError(t, k.register(3, true, false))
	require.NoError(t, k.register(5, true, true))
	require.NoError(t, k.register(4, true, false))
	require.NoError(t, k.unregister(4))
	require.NoError(t, k.unregister(42))

	out := make([]readiness, 8)
	n, err := k.wait(1500*time.Microsecond, out)
	require.NoError(t, err)
	assert.Equal(t, 2, timeout, "sub-millisecond remainders round up")
	assert.Equal(t, []unix.PollFd{
		{Fd: 3, Events: unix.POLLIN},
		{Fd: 5, Events: unix.POLLIN | unix.POLLOUT},
		{Fd: 7, Events: unix.POLLOUT},
	}, seen)
	require.Equal(t, 3, n)
	assert.Equal(t, readiness{fd: 3, readable: true, hangup: true}, out[0])
	assert.Equal(t, readiness{fd: 5, hangup: true}, out[1])
	assert.Equal(t, readiness{fd: 7, writable: true}, out[2])
}

func TestPollKernelBoundsDrainedEvents(t *testing.T) {
	kernel, err := newPollKernel()
	require.NoError(t, err)
	k := kernel.(*pollKernel)
	k.poll = func(fds []unix.PollFd, _ int) (int, error) {
		for i := range fds {
			fds[i].Revents = unix.POLLIN
		}
		return len(fds), nil
	}
	for fd := 3; fd < 8; fd++ {
		require.NoError(t, k.register(fd, true, false))
	}

	out := make([]readiness, 2)
	n, err := k.wait(time.Millisecond, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, out[0].fd)
	assert.Equal(t, 4, out[1].fd)
}

func TestPollKernelWaitError(t *testing.T) {
	kernel, err := newPollKernel()
	require.NoError(t, err)
	k := kernel.(*pollKernel)
	k.poll = func([]unix.PollFd, int) (int, error) { return -1, unix.EINTR }

	_, err = k.wait(time.Millisecond, make([]readiness, 1))
	assert.ErrorIs(t, err, unix.EINTR)
	assert.Error(t, k.register(-1, true, false))
}
