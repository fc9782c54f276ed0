package ioreactor

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

type filter uint8

const (
	filterRead filter = iota + 1
	filterWrite
)

func (f filter) String() string {
	if f == filterWrite {
		return "write"
	}
	return "read"
}

// kevent is one kqueue record with the OS bits already translated.
type kevent struct {
	fd     int
	filter filter
	failed bool
	eof    bool
	// errno reported alongside failed, zero if none
	errno syscall.Errno
}

// filterKernel keeps an independent registration per handle and direction.
type filterKernel interface {
	add(fd int, f filter) error
	del(fd int, f filter) error
	wait(timeout time.Duration, out []kevent) (int, error)
	close() error
}

// KQueuePoller is the kqueue(2) backend. Read and write interest are separate
// kernel filters.
type KQueuePoller struct {
	basePoller
	kernel  filterKernel
	handles map[int]Descriptor
	events  []kevent
}

func newKQueuePoller(kernel filterKernel, sink Sink, opts Options) *KQueuePoller {
	return &KQueuePoller{
		basePoller: newBasePoller(sink, opts),
		kernel:     kernel,
		handles:    make(map[int]Descriptor),
		events:     make([]kevent, opts.MaxEvents),
	}
}

func (p *KQueuePoller) AddReader(source interface{}, d Descriptor) error {
	return p.add(source, d, filterRead)
}

func (p *KQueuePoller) AddWriter(source interface{}, d Descriptor) error {
	return p.add(source, d, filterWrite)
}

func (p *KQueuePoller) add(source interface{}, d Descriptor, f filter) error {
	fd := handleOf(d)
	if owner, ok := p.handles[fd]; ok && owner != d {
		p.takeOver(fd, owner, d, f)
	}
	wasSet := p.isSet(d, f)
	if f == filterRead {
		p.reg.AddReader(source, d)
	} else {
		p.reg.AddWriter(source, d)
	}
	p.handles[fd] = d
	if err := p.kernel.add(fd, f); err != nil {
		if !wasSet {
			p.unset(d, f)
		}
		if !p.reg.Tracked(d) {
			delete(p.handles, fd)
		}
		return err
	}
	log.Debug().Msgf("[%d] kqueue %s filter added", fd, f)
	return nil
}

// takeOver hands fd from a descriptor that was never discarded to d. Filters
// d does not want are deleted.
func (p *KQueuePoller) takeOver(fd int, owner, d Descriptor, f filter) {
	log.Debug().Msgf("[%d] kqueue handle reused, dropping previous descriptor", fd)
	for _, other := range []filter{filterRead, filterWrite} {
		if other != f && p.isSet(owner, other) && !p.isSet(d, other) {
			p.deleteFilter(fd, other)
		}
	}
	p.reg.Discard(owner)
	delete(p.handles, fd)
}

func (p *KQueuePoller) RemoveReader(d Descriptor) error {
	p.remove(d, filterRead)
	return nil
}

func (p *KQueuePoller) RemoveWriter(d Descriptor) error {
	p.remove(d, filterWrite)
	return nil
}

func (p *KQueuePoller) isSet(d Descriptor, f filter) bool {
	if f == filterRead {
		return p.reg.IsReading(d)
	}
	return p.reg.IsWriting(d)
}

func (p *KQueuePoller) unset(d Descriptor, f filter) {
	if f == filterRead {
		p.reg.RemoveReader(d)
	} else {
		p.reg.RemoveWriter(d)
	}
}

func (p *KQueuePoller) remove(d Descriptor, f filter) {
	fd := handleOf(d)
	if p.isSet(d, f) {
		p.unset(d, f)
		if owner, ok := p.handles[fd]; !ok || owner == d {
			p.deleteFilter(fd, f)
		}
	}
	if !p.reg.Tracked(d) && p.handles[fd] == d {
		delete(p.handles, fd)
	}
}

func (p *KQueuePoller) deleteFilter(fd int, f filter) {
	if err := p.kernel.del(fd, f); err != nil {
		log.Debug().Msgf("[%d] kqueue %s filter delete: %v", fd, f, err)
	}
}

func (p *KQueuePoller) Discard(d Descriptor) {
	p.remove(d, filterRead)
	p.remove(d, filterWrite)
	p.reg.Discard(d)
	if fd := handleOf(d); p.handles[fd] == d {
		delete(p.handles, fd)
	}
}

func (p *KQueuePoller) Tick() error {
	if p.closed {
		return ErrPollerClosed
	}
	p.stats.Ticks.Inc()
	n, err := p.kernel.wait(p.timeout, p.events)
	if err != nil {
		if errors.Is(err, syscall.EINTR) {
			p.stats.Interrupted.Inc()
			return nil
		}
		log.Error().Msgf("error occurs in kqueue: %v", err)
		return err
	}
	for i := 0; i < n; i++ {
		p.process(p.events[i])
	}
	return nil
}

func (p *KQueuePoller) process(ev kevent) {
	d, ok := p.handles[ev.fd]
	if !ok {
		// nobody wants this filter any more
		log.Debug().Msgf("[%d] dropping stray kqueue %s filter", ev.fd, ev.filter)
		p.deleteFilter(ev.fd, ev.filter)
		return
	}

	var event Event
	switch {
	case ev.failed:
		var cause error = ErrKernelEvent
		if ev.errno != 0 {
			cause = os.NewSyscallError("kevent", ev.errno)
		}
		event = errorEvent(d, cause)
	case ev.eof:
		event = disconnectEvent(d)
	case ev.filter == filterWrite:
		event = writeEvent(d)
	default:
		event = readEvent(d)
	}
	if err := p.emit(event); err != nil {
		p.contain(d, err, func() { p.Discard(d) })
	}
}

func (p *KQueuePoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return os.NewSyscallError("close", p.kernel.close())
}
