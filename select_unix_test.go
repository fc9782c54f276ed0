//go:build unix

package ioreactor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeSelect answers select calls from its own readiness tables. Calls with a
// zero timeout are probes.
type fakeSelect struct {
	readable map[int]bool
	writable map[int]bool
	errs     []error
	probeErr map[int]error
	calls    int
	probes   []int
}

func newFakeSelect() *fakeSelect {
	return &fakeSelect{
		readable: make(map[int]bool),
		writable: make(map[int]bool),
		probeErr: make(map[int]error),
	}
}

func (f *fakeSelect) call(nfd int, r, w *unix.FdSet, tv *unix.Timeval) (int, error) {
	if tv.Sec == 0 && tv.Usec == 0 {
		fd := nfd - 1
		f.probes = append(f.probes, fd)
		return 0, f.probeErr[fd]
	}
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return 0, err
	}
	n := 0
	for fd := 0; fd < nfd; fd++ {
		if r.IsSet(fd) {
			if f.readable[fd] {
				n++
			} else {
				r.Clear(fd)
			}
		}
		if w.IsSet(fd) {
			if f.writable[fd] {
				n++
			} else {
				w.Clear(fd)
			}
		}
	}
	return n, nil
}

func newTestSelect(sink Sink) (*SelectPoller, *fakeSelect) {
	sel := newFakeSelect()
	opts := Options{Backend: BackendSelect, Timeout: 5 * time.Millisecond}.withDefaults()
	return newSelectPoller(sel.call, sink, opts), sel
}

func TestSelectEmptySetsIsNoop(t *testing.T) {
	sink := &recordingSink{}
	p, sel := newTestSelect(sink)

	require.NoError(t, p.Tick())
	assert.Equal(t, 0, sel.calls)
	assert.Empty(t, sink.fired)
}

func TestSelectReadAndWriteEvents(t *testing.T) {
	sink := &recordingSink{}
	p, sel := newTestSelect(sink)
	require.NoError(t, p.AddReader(testSource("conn"), FD(3)))
	sel.readable[3] = true

	require.NoError(t, p.Tick())
	require.Len(t, sink.fired, 1)
	assert.Equal(t, fired{event: readEvent(FD(3)), target: "conn", channel: ReadChannel}, sink.fired[0])

	sink.reset()
	sel.readable[3] = false
	require.NoError(t, p.AddWriter(testSource("conn"), FD(3)))
	sel.writable[3] = true
	require.NoError(t, p.Tick())
	require.Len(t, sink.fired, 1)
	assert.Equal(t, fired{event: writeEvent(FD(3)), target: "conn", channel: WriteChannel}, sink.fired[0])
}

func TestSelectWritesBeforeReads(t *testing.T) {
	sink := &recordingSink{}
	p, sel := newTestSelect(sink)
	require.NoError(t, p.AddReader(testSource("a"), FD(3)))
	require.NoError(t, p.AddWriter(testSource("a"), FD(3)))
	require.NoError(t, p.AddReader(testSource("b"), FD(4)))
	sel.readable[3], sel.writable[3], sel.readable[4] = true, true, true

	require.NoError(t, p.Tick())
	assert.Equal(t, []EventKind{EventWrite, EventRead, EventRead}, sink.kinds())
}

func TestSelectOnlyReadyDescriptorsFire(t *testing.T) {
	sink := &recordingSink{}
	p, sel := newTestSelect(sink)
	for _, fd := range []FD{3, 4, 5} {
		require.NoError(t, p.AddReader(testSource("conn"), fd))
	}
	sel.readable[3], sel.readable[5] = true, true

	require.NoError(t, p.Tick())
	require.Equal(t, []EventKind{EventRead, EventRead}, sink.kinds())
	assert.Equal(t, FD(3), sink.fired[0].event.Descriptor)
	assert.Equal(t, FD(5), sink.fired[1].event.Descriptor)
	assert.True(t, p.IsReading(FD(4)))
	assert.Equal(t, Target("conn"), p.Target(FD(4)))
}

func TestSelectSkipsInterestRemovedDuringTick(t *testing.T) {
	sink := &recordingSink{}
	p, sel := newTestSelect(sink)
	require.NoError(t, p.AddWriter(testSource("conn"), FD(3)))
	require.NoError(t, p.AddReader(testSource("conn"), FD(3)))
	sel.readable[3], sel.writable[3] = true, true
	sink.fail = func(f fired) error {
		if f.event.Kind == EventWrite {
			p.Discard(f.event.Descriptor)
		}
		return nil
	}

	require.NoError(t, p.Tick())
	assert.Equal(t, []EventKind{EventWrite}, sink.kinds())
}

func TestSelectBoundsDispatchByMaxEvents(t *testing.T) {
	sink := &recordingSink{}
	p, sel := newTestSelect(sink)
	p.maxEvents = 2
	require.NoError(t, p.AddWriter(testSource("conn"), FD(3)))
	for _, fd := range []FD{4, 5} {
		require.NoError(t, p.AddReader(testSource("conn"), fd))
	}
	sel.writable[3] = true
	sel.readable[4] = true
	sel.readable[5] = true

	require.NoError(t, p.Tick())
	require.Len(t, sink.fired, 2)
	assert.Equal(t, writeEvent(FD(3)), sink.fired[0].event)
	assert.Equal(t, readEvent(FD(4)), sink.fired[1].event)
	assert.True(t, p.IsReading(FD(5)))
}

func TestSelectInterruptIsBenign(t *testing.T) {
	sink := &recordingSink{}
	p, sel := newTestSelect(sink)
	require.NoError(t, p.AddReader(nil, FD(3)))
	sel.readable[3] = true
	sel.errs = []error{unix.EINTR}

	require.NoError(t, p.Tick())
	assert.Empty(t, sink.fired)
	assert.Equal(t, uint64(1), p.Stats().Interrupted.Load())

	require.NoError(t, p.Tick())
	assert.Len(t, sink.fired, 1)
}

func TestSelectPreensBadDescriptors(t *testing.T) {
	sink := &recordingSink{}
	p, sel := newTestSelect(sink)
	require.NoError(t, p.AddReader(nil, FD(3)))
	require.NoError(t, p.AddWriter(nil, FD(4)))
	require.NoError(t, p.AddReader(nil, FD(5)))
	sel.errs = []error{unix.EBADF}
	sel.probeErr[4] = unix.EBADF

	require.NoError(t, p.Tick())
	assert.Empty(t, sink.fired)
	assert.Equal(t, []int{3, 4, 5}, sel.probes)
	assert.True(t, p.IsReading(FD(3)))
	assert.False(t, p.IsWriting(FD(4)))
	assert.True(t, p.IsReading(FD(5)))
	assert.Equal(t, uint64(1), p.Stats().Preens.Load())
}

func TestSelectPreensInvalidHandles(t *testing.T) {
	sink := &recordingSink{}
	p, sel := newTestSelect(sink)
	require.NoError(t, p.AddReader(nil, FD(3)))
	require.NoError(t, p.AddReader(nil, FD(-1)))
	require.NoError(t, p.AddWriter(nil, FD(fdSetSize)))

	require.NoError(t, p.Tick())
	assert.Equal(t, 0, sel.calls, "the batch wait is never issued with an invalid handle")
	assert.False(t, p.IsReading(FD(-1)))
	assert.False(t, p.IsWriting(FD(fdSetSize)))
	assert.True(t, p.IsReading(FD(3)))

	sel.readable[3] = true
	require.NoError(t, p.Tick())
	assert.Equal(t, []EventKind{EventRead}, sink.kinds())
}

func TestSelectFatalErrorPropagates(t *testing.T) {
	p, sel := newTestSelect(&recordingSink{})
	require.NoError(t, p.AddReader(nil, FD(3)))
	sel.errs = []error{unix.ENOMEM}

	err := p.Tick()
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ENOMEM)
}

func TestSelectEmptySetErrorWithRegistrationsIsFatal(t *testing.T) {
	p, sel := newTestSelect(&recordingSink{})
	require.NoError(t, p.AddReader(nil, FD(3)))
	sel.errs = []error{unix.ENOENT}

	assert.ErrorIs(t, p.Tick(), unix.ENOENT)
}

func TestSelectHandlerFaultIsContained(t *testing.T) {
	sink := &recordingSink{}
	p, sel := newTestSelect(sink)
	require.NoError(t, p.AddReader(testSource("conn"), FD(3)))
	require.NoError(t, p.AddReader(testSource("conn"), FD(4)))
	sel.readable[3], sel.readable[4] = true, true
	boom := errors.New("boom")
	sink.fail = func(f fired) error {
		if f.event.Kind == EventRead && f.event.Descriptor == FD(3) {
			return boom
		}
		return nil
	}

	require.NoError(t, p.Tick())
	assert.Equal(t, []EventKind{EventRead, EventError, EventDisconnect, EventRead}, sink.kinds())
	assert.Equal(t, boom, sink.fired[1].event.Err)
	assert.Equal(t, ErrorChannel, sink.fired[1].channel)
	assert.Equal(t, Target("conn"), sink.fired[2].target)
	assert.False(t, p.IsReading(FD(3)))
	assert.True(t, p.IsReading(FD(4)))
}

func TestSelectClosed(t *testing.T) {
	p, _ := newTestSelect(&recordingSink{})
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Tick(), ErrPollerClosed)
}
