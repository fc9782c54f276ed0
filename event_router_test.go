package ioreactor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	calls []string
	err   error
}

func (h *recordingHandler) ReadEvent(Descriptor) error {
	h.calls = append(h.calls, "read")
	return h.err
}

func (h *recordingHandler) WriteEvent(Descriptor) error {
	h.calls = append(h.calls, "write")
	return h.err
}

func (h *recordingHandler) ErrorEvent(_ Descriptor, cause error) error {
	h.calls = append(h.calls, "error:"+cause.Error())
	return nil
}

func (h *recordingHandler) CloseEvent(Descriptor) error {
	h.calls = append(h.calls, "close")
	return nil
}

func TestEventRouterDispatchesByTarget(t *testing.T) {
	router := NewEventRouter()
	conn, listener := &recordingHandler{}, &recordingHandler{}
	router.Handle("conn", conn)
	router.Handle("listener", listener)

	require.NoError(t, router.Fire(readEvent(FD(3)), "conn", ReadChannel))
	require.NoError(t, router.Fire(writeEvent(FD(3)), "conn", WriteChannel))
	require.NoError(t, router.Fire(errorEvent(FD(3), errors.New("reset")), "conn", ErrorChannel))
	require.NoError(t, router.Fire(disconnectEvent(FD(3)), "conn", DisconnectChannel))
	require.NoError(t, router.Fire(readEvent(FD(4)), "listener", ReadChannel))
	require.NoError(t, router.Fire(readEvent(FD(5)), "nobody", ReadChannel))

	assert.Equal(t, []string{"read", "write", "error:reset", "close"}, conn.calls)
	assert.Equal(t, []string{"read"}, listener.calls)

	router.Handle("listener", nil)
	require.NoError(t, router.Fire(readEvent(FD(4)), "listener", ReadChannel))
	assert.Len(t, listener.calls, 1)
}

func TestEventRouterFaultsReachThePoller(t *testing.T) {
	router := NewEventRouter()
	boom := errors.New("boom")
	conn := &recordingHandler{err: boom}
	router.Handle("conn", conn)

	p, kernel := newTestMaskPoller(BackendEPoll, router)
	require.NoError(t, p.AddReader(testSource("conn"), FD(3)))
	kernel.pending = []readiness{{fd: 3, readable: true}}

	require.NoError(t, p.Tick())
	assert.Equal(t, []string{"read", "error:boom", "close"}, conn.calls)
	assert.False(t, p.IsReading(FD(3)))
}
