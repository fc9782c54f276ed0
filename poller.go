package ioreactor

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Backend names an OS multiplexing primitive.
type Backend string

const (
	BackendSelect Backend = "select"
	BackendPoll   Backend = "poll"
	BackendEPoll  Backend = "epoll"
	BackendKQueue Backend = "kqueue"
)

// DefaultBackend is used when no backend is requested. select is available on
// every unix.
const DefaultBackend = BackendSelect

const (
	DefaultTimeout       = 10 * time.Millisecond
	DefaultKQueueTimeout = 10 * time.Microsecond
	DefaultMaxEvents     = 1000
)

func ParseBackend(name string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(name))); b {
	case "":
		return DefaultBackend, nil
	case BackendSelect, BackendPoll, BackendEPoll, BackendKQueue:
		return b, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
}

// Poller multiplexes readiness of registered descriptors. A Poller is driven
// by calling Tick repeatedly; registration and Tick must happen on the same
// goroutine. Sinks may call back into the Poller while an event is delivered.
type Poller interface {
	AddReader(source interface{}, d Descriptor) error
	AddWriter(source interface{}, d Descriptor) error
	RemoveReader(d Descriptor) error
	RemoveWriter(d Descriptor) error
	// Discard drops every registration of d. Unknown descriptors are ignored.
	Discard(d Descriptor)
	IsReading(d Descriptor) bool
	IsWriting(d Descriptor) bool
	Target(d Descriptor) Target
	// Tick waits at most the configured timeout and delivers the resulting
	// events before returning. Only unrecoverable backend failures are
	// returned.
	Tick() error
	Backend() Backend
	// Timeout is the longest a single Tick waits.
	Timeout() time.Duration
	Stats() *Stats
	Close() error
}

type Options struct {
	Backend Backend
	// Timeout bounds the wait of a single Tick. Zero selects the backend
	// default.
	Timeout time.Duration
	// MaxEvents bounds the number of kernel records drained per Tick. select
	// has no records and bounds the readiness it dispatches instead.
	MaxEvents     int
	DefaultTarget Target
	ChannelOf     ChannelOfFunc
	Stats         *Stats
}

func (o Options) withDefaults() Options {
	if o.Backend == "" {
		o.Backend = DefaultBackend
	}
	if o.Timeout <= 0 {
		if o.Backend == BackendKQueue {
			o.Timeout = DefaultKQueueTimeout
		} else {
			o.Timeout = DefaultTimeout
		}
	}
	if o.MaxEvents <= 0 {
		o.MaxEvents = DefaultMaxEvents
	}
	if o.Stats == nil {
		o.Stats = &Stats{}
	}
	return o
}

// New opens the backend named in opts and delivers its events to sink.
func New(sink Sink, opts Options) (Poller, error) {
	opts = opts.withDefaults()
	log.Debug().Msgf("open %s poller, timeout: %s, max events: %d", opts.Backend, opts.Timeout, opts.MaxEvents)
	switch opts.Backend {
	case BackendSelect:
		return NewSelect(sink, opts)
	case BackendPoll:
		return NewPoll(sink, opts)
	case BackendEPoll:
		return NewEPoll(sink, opts)
	case BackendKQueue:
		return NewKQueue(sink, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
}

// NewPoll returns a poll(2) backed Poller.
func NewPoll(sink Sink, opts Options) (Poller, error) {
	opts.Backend = BackendPoll
	opts = opts.withDefaults()
	kernel, err := newPollKernel()
	if err != nil {
		return nil, err
	}
	return newMaskPoller(kernel, sink, opts), nil
}

// NewEPoll returns an epoll(7) backed Poller.
func NewEPoll(sink Sink, opts Options) (Poller, error) {
	opts.Backend = BackendEPoll
	opts = opts.withDefaults()
	kernel, err := newEpollKernel(opts.MaxEvents)
	if err != nil {
		return nil, err
	}
	return newMaskPoller(kernel, sink, opts), nil
}

// NewKQueue returns a kqueue(2) backed Poller.
func NewKQueue(sink Sink, opts Options) (Poller, error) {
	opts.Backend = BackendKQueue
	opts = opts.withDefaults()
	kernel, err := newKqueueKernel(opts.MaxEvents)
	if err != nil {
		return nil, err
	}
	return newKQueuePoller(kernel, sink, opts), nil
}

// timeoutMillis rounds a positive timeout up to whole milliseconds so that
// sub-millisecond timeouts do not turn into busy polling.
func timeoutMillis(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// basePoller holds what every backend shares: the registration table, the
// sink and the per-tick bounds.
type basePoller struct {
	reg     *Registry
	sink    Sink
	backend   Backend
	timeout   time.Duration
	maxEvents int
	stats     *Stats
	closed    bool
}

func newBasePoller(sink Sink, opts Options) basePoller {
	return basePoller{
		reg:     NewRegistry(opts.DefaultTarget, opts.ChannelOf),
		sink:    sink,
		backend:   opts.Backend,
		timeout:   opts.Timeout,
		maxEvents: opts.MaxEvents,
		stats:     opts.Stats,
	}
}

func (p *basePoller) IsReading(d Descriptor) bool { return p.reg.IsReading(d) }
func (p *basePoller) IsWriting(d Descriptor) bool { return p.reg.IsWriting(d) }
func (p *basePoller) Target(d Descriptor) Target  { return p.reg.Target(d) }
func (p *basePoller) Backend() Backend            { return p.backend }
func (p *basePoller) Timeout() time.Duration      { return p.timeout }
func (p *basePoller) Stats() *Stats               { return p.stats }

func (p *basePoller) emit(event Event) error {
	p.stats.Events.Inc()
	err := fire(p.sink, event, p.reg.Target(event.Descriptor))
	if err != nil {
		p.stats.Faults.Inc()
	}
	return err
}

// contain reports a handler fault on d as Error then Disconnect and lets
// evict drop the descriptor. Faults raised by these two deliveries are logged
// and swallowed.
func (p *basePoller) contain(d Descriptor, cause error, evict func()) {
	log.Warn().Msgf("[%d] %s handler fault, dropping descriptor: %v", handleOf(d), p.backend, cause)
	if err := p.emit(errorEvent(d, cause)); err != nil {
		log.Error().Msgf("[%d] error handler failed: %v", handleOf(d), err)
	}
	if err := p.emit(disconnectEvent(d)); err != nil {
		log.Error().Msgf("[%d] disconnect handler failed: %v", handleOf(d), err)
	}
	evict()
	p.stats.Evictions.Inc()
}
