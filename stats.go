package ioreactor

import "go.uber.org/atomic"

// Stats counts what a poller did. Counters may be read from any goroutine.
type Stats struct {
	Ticks       atomic.Uint64
	Interrupted atomic.Uint64
	Events      atomic.Uint64
	Faults      atomic.Uint64
	Evictions   atomic.Uint64
	Preens      atomic.Uint64
}

type StatsSnapshot struct {
	Ticks       uint64
	Interrupted uint64
	Events      uint64
	Faults      uint64
	Evictions   uint64
	Preens      uint64
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Ticks:       s.Ticks.Load(),
		Interrupted: s.Interrupted.Load(),
		Events:      s.Events.Load(),
		Faults:      s.Faults.Load(),
		Evictions:   s.Evictions.Load(),
		Preens:      s.Preens.Load(),
	}
}
