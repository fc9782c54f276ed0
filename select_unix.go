//go:build unix

package ioreactor

import (
	"errors"
	"os"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// fdSetSize is the number of descriptors an FdSet can hold.
const fdSetSize = int(unsafe.Sizeof(unix.FdSet{})) * 8

type selectFunc func(nfd int, r, w *unix.FdSet, timeout *unix.Timeval) (int, error)

func sysSelect(nfd int, r, w *unix.FdSet, timeout *unix.Timeval) (int, error) {
	return unix.Select(nfd, r, w, nil, timeout)
}

// SelectPoller is the select(2) backend. It rebuilds both sets on every tick,
// so it is O(n) in the number of registered descriptors.
type SelectPoller struct {
	basePoller
	sel selectFunc
}

// NewSelect returns a select(2) backed Poller.
func NewSelect(sink Sink, opts Options) (Poller, error) {
	opts.Backend = BackendSelect
	return newSelectPoller(sysSelect, sink, opts.withDefaults()), nil
}

func newSelectPoller(sel selectFunc, sink Sink, opts Options) *SelectPoller {
	return &SelectPoller{
		basePoller: newBasePoller(sink, opts),
		sel:        sel,
	}
}

func (p *SelectPoller) AddReader(source interface{}, d Descriptor) error {
	p.reg.AddReader(source, d)
	return nil
}

func (p *SelectPoller) AddWriter(source interface{}, d Descriptor) error {
	p.reg.AddWriter(source, d)
	return nil
}

func (p *SelectPoller) RemoveReader(d Descriptor) error {
	p.reg.RemoveReader(d)
	return nil
}

func (p *SelectPoller) RemoveWriter(d Descriptor) error {
	p.reg.RemoveWriter(d)
	return nil
}

func (p *SelectPoller) Discard(d Descriptor) {
	p.reg.Discard(d)
}

func (p *SelectPoller) Close() error {
	p.closed = true
	return nil
}

func validSelectHandle(fd int) bool {
	return fd >= 0 && fd < fdSetSize
}

func (p *SelectPoller) Tick() error {
	if p.closed {
		return ErrPollerClosed
	}
	readers, writers := p.reg.readers(), p.reg.writers()
	// Some platforms block forever on empty sets.
	if len(readers) == 0 && len(writers) == 0 {
		return nil
	}
	p.stats.Ticks.Inc()

	var rset, wset unix.FdSet
	nfd := 0
	for _, group := range []struct {
		descriptors []Descriptor
		set         *unix.FdSet
	}{{readers, &rset}, {writers, &wset}} {
		for _, d := range group.descriptors {
			fd := handleOf(d)
			if !validSelectHandle(fd) {
				log.Debug().Msgf("[%d] descriptor can't be selected, preening", fd)
				p.preen()
				return nil
			}
			group.set.Set(fd)
			if fd >= nfd {
				nfd = fd + 1
			}
		}
	}

	tv := unix.NsecToTimeval(p.timeout.Nanoseconds())
	_, err := p.sel(nfd, &rset, &wset, &tv)
	if err != nil {
		var errno unix.Errno
		errors.As(err, &errno)
		switch {
		case errno == unix.EINTR:
			p.stats.Interrupted.Inc()
			return nil
		case errno == unix.EBADF:
			p.preen()
			return nil
		case errno == 0 || errno == unix.ENOENT:
			// an empty set reported as a failure
			if p.reg.Len() == 0 {
				return nil
			}
		}
		log.Error().Msgf("error occurs in select: %v", err)
		return os.NewSyscallError("select", err)
	}

	// Readiness beyond maxEvents is level triggered and reported again on
	// the next tick.
	budget := p.maxEvents
	for _, d := range writers {
		if budget == 0 {
			return nil
		}
		if wset.IsSet(handleOf(d)) && p.reg.IsWriting(d) {
			budget--
			if err := p.emit(writeEvent(d)); err != nil {
				p.contain(d, err, func() { p.reg.Discard(d) })
			}
		}
	}
	for _, d := range readers {
		if budget == 0 {
			return nil
		}
		if rset.IsSet(handleOf(d)) && p.reg.IsReading(d) {
			budget--
			if err := p.emit(readEvent(d)); err != nil {
				p.contain(d, err, func() { p.reg.Discard(d) })
			}
		}
	}
	return nil
}

// preen probes every registered descriptor on its own and discards the ones
// the kernel rejects.
func (p *SelectPoller) preen() {
	p.stats.Preens.Inc()
	for _, d := range p.reg.descriptors() {
		fd := handleOf(d)
		if validSelectHandle(fd) {
			var rset, wset unix.FdSet
			rset.Set(fd)
			wset.Set(fd)
			var tv unix.Timeval
			_, err := p.sel(fd+1, &rset, &wset, &tv)
			if err == nil || errors.Is(err, unix.EINTR) {
				continue
			}
			log.Warn().Msgf("[%d] discarding descriptor rejected by select: %v", fd, err)
		} else {
			log.Warn().Msgf("[%d] discarding descriptor out of select range", fd)
		}
		p.reg.Discard(d)
		p.stats.Evictions.Inc()
	}
}
