//go:build unix

package ioreactor

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestConnDescriptor(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	conn, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	fd, err := ConnDescriptor(conn)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, int(fd), 0)
	assert.Equal(t, uintptr(fd), fd.Fd())

	sotype, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_TYPE)
	require.NoError(t, err)
	assert.Equal(t, unix.SOCK_STREAM, sotype)
}

func TestConnDescriptorWithoutRawConn(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	fd, err := ConnDescriptor(a)
	assert.Error(t, err)
	assert.Equal(t, FD(-1), fd)
}

func TestApplySocketOptions(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	require.NoError(t, ApplySocketOptions(fd, SocketConfig{RecvBuffer: 16384, SendBuffer: 16384}))
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)

	assert.Error(t, ApplySocketOptions(-1, SocketConfig{}))
}
