package ioreactor

type testSource Target

func (s testSource) Channel() Target {
	return Target(s)
}

// namedFD is a descriptor compared by identity, so two of them can share a
// handle the way a closed and a reopened file do.
type namedFD struct {
	fd   uintptr
	name string
}

func (n *namedFD) Fd() uintptr {
	return n.fd
}

type fired struct {
	event   Event
	target  Target
	channel string
}

// recordingSink keeps every delivery. fail, when set, decides the outcome of
// each one.
type recordingSink struct {
	fired []fired
	fail  func(f fired) error
}

func (s *recordingSink) Fire(event Event, target Target, channel string) error {
	f := fired{event: event, target: target, channel: channel}
	s.fired = append(s.fired, f)
	if s.fail != nil {
		return s.fail(f)
	}
	return nil
}

func (s *recordingSink) kinds() []EventKind {
	kinds := make([]EventKind, 0, len(s.fired))
	for _, f := range s.fired {
		kinds = append(kinds, f.event.Kind)
	}
	return kinds
}

func (s *recordingSink) reset() {
	s.fired = nil
}
