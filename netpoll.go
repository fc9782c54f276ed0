package ioreactor

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// readiness is one kernel record with the OS bits already translated.
type readiness struct {
	fd       int
	readable bool
	writable bool
	// hangup covers hang-up, error and invalid-descriptor conditions.
	hangup bool
}

// maskKernel is an OS primitive that keeps one combined interest mask per
// integer handle: poll(2) and epoll(7).
type maskKernel interface {
	register(fd int, read, write bool) error
	// unregister must return nil for handles that were never registered.
	unregister(fd int) error
	wait(timeout time.Duration, out []readiness) (int, error)
	close() error
}

// MaskPoller drives a maskKernel. The kernel addresses registrations by
// integer handle, so a reverse map resolves handles back to descriptors.
type MaskPoller struct {
	basePoller
	kernel  maskKernel
	handles map[int]Descriptor
	events  []readiness
}

func newMaskPoller(kernel maskKernel, sink Sink, opts Options) *MaskPoller {
	return &MaskPoller{
		basePoller: newBasePoller(sink, opts),
		kernel:     kernel,
		handles:    make(map[int]Descriptor),
		events:     make([]readiness, opts.MaxEvents),
	}
}

func (p *MaskPoller) AddReader(source interface{}, d Descriptor) error {
	p.reg.AddReader(source, d)
	return p.updateRegistration(d)
}

func (p *MaskPoller) AddWriter(source interface{}, d Descriptor) error {
	p.reg.AddWriter(source, d)
	return p.updateRegistration(d)
}

func (p *MaskPoller) RemoveReader(d Descriptor) error {
	p.reg.RemoveReader(d)
	return p.updateRegistration(d)
}

func (p *MaskPoller) RemoveWriter(d Descriptor) error {
	p.reg.RemoveWriter(d)
	return p.updateRegistration(d)
}

func (p *MaskPoller) Discard(d Descriptor) {
	p.reg.Discard(d)
	// a zero mask never re-registers, so this can't fail
	_ = p.updateRegistration(d)
}

// updateRegistration makes the kernel mask of d match the registry: the
// handle is dropped and, if any interest is left, registered again.
func (p *MaskPoller) updateRegistration(d Descriptor) error {
	fd := handleOf(d)
	read, write := p.reg.IsReading(d), p.reg.IsWriting(d)
	if owner, ok := p.handles[fd]; ok && owner != d {
		if !read && !write {
			// the handle now belongs to another descriptor
			p.reg.Discard(d)
			return nil
		}
		log.Debug().Msgf("[%d] %s handle reused, dropping previous descriptor", fd, p.backend)
		p.reg.Discard(owner)
	}
	if err := p.kernel.unregister(fd); err != nil {
		if errors.Is(err, syscall.EBADF) {
			p.purge(d)
		} else {
			log.Debug().Msgf("[%d] %s unregister: %v", fd, p.backend, err)
		}
	}

	if !read && !write {
		p.reg.Discard(d)
		if p.handles[fd] == d {
			delete(p.handles, fd)
		}
		return nil
	}
	if err := p.kernel.register(fd, read, write); err != nil {
		p.reg.Discard(d)
		delete(p.handles, fd)
		return err
	}
	log.Debug().Msgf("[%d] %s registered, read: %t, write: %t", fd, p.backend, read, write)
	p.handles[fd] = d
	return nil
}

// purge forgets every handle that still points at d.
func (p *MaskPoller) purge(d Descriptor) {
	for fd, known := range p.handles {
		if known == d {
			delete(p.handles, fd)
		}
	}
}

// evict drops d. The kernel is left alone when a handler already handed fd
// to another descriptor.
func (p *MaskPoller) evict(fd int, d Descriptor) {
	if owner, ok := p.handles[fd]; !ok || owner == d {
		if err := p.kernel.unregister(fd); err != nil {
			log.Debug().Msgf("[%d] %s unregister on evict: %v", fd, p.backend, err)
		}
	}
	p.reg.Discard(d)
	if p.handles[fd] == d {
		delete(p.handles, fd)
	}
}

func (p *MaskPoller) Tick() error {
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
		log.Error().Msgf("error occurs in %s: %v", p.backend, err)
		return err
	}
	for i := 0; i < n; i++ {
		p.process(p.events[i])
	}
	return nil
}

func (p *MaskPoller) process(ev readiness) {
	d, ok := p.handles[ev.fd]
	if !ok {
		return
	}

	// Readability wins over hang-up so buffered input can still be drained.
	if ev.hangup && !ev.readable {
		if err := p.emit(disconnectEvent(d)); err != nil {
			log.Error().Msgf("[%d] disconnect handler failed: %v", ev.fd, err)
		}
		p.evict(ev.fd, d)
		p.stats.Evictions.Inc()
		return
	}

	if ev.readable {
		if err := p.emit(readEvent(d)); err != nil {
			p.contain(d, err, func() { p.evict(ev.fd, d) })
			return
		}
	}
	if ev.writable && p.handles[ev.fd] == d {
		if err := p.emit(writeEvent(d)); err != nil {
			p.contain(d, err, func() { p.evict(ev.fd, d) })
		}
	}
}

func (p *MaskPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return os.NewSyscallError("close", p.kernel.close())
}
