package ioreactor

import "sort"

// Target identifies the component that receives a descriptor's events.
type Target string

// DefaultTarget is used when a source exposes no channel and no other
// fallback was configured.
const DefaultTarget Target = "*"

// Channeler is implemented by sources that own a channel.
type Channeler interface {
	Channel() Target
}

// ChannelOfFunc resolves the channel of a registering source. ok is false when
// the source has none.
type ChannelOfFunc func(source interface{}) (target Target, ok bool)

func channelOf(source interface{}) (Target, bool) {
	if c, ok := source.(Channeler); ok {
		if t := c.Channel(); t != "" {
			return t, true
		}
	}
	return "", false
}

// Registration is the interest recorded for one descriptor.
type Registration struct {
	Descriptor Descriptor
	Read       bool
	Write      bool
	Target     Target
}

// Registry keeps descriptor interest and targets. It makes no OS calls and does
// no locking: all calls must come from the goroutine that drives the poller.
type Registry struct {
	// Fallback is returned for unknown descriptors and recorded for sources
	// without a channel.
	Fallback  Target
	ChannelOf ChannelOfFunc

	read    map[Descriptor]struct{}
	write   map[Descriptor]struct{}
	targets map[Descriptor]Target
}

func NewRegistry(fallback Target, channelOfFn ChannelOfFunc) *Registry {
	if fallback == "" {
		fallback = DefaultTarget
	}
	if channelOfFn == nil {
		channelOfFn = channelOf
	}
	return &Registry{
		Fallback:  fallback,
		ChannelOf: channelOfFn,
		read:      make(map[Descriptor]struct{}),
		write:     make(map[Descriptor]struct{}),
		targets:   make(map[Descriptor]Target),
	}
}

func (r *Registry) targetFor(source interface{}) Target {
	if t, ok := r.ChannelOf(source); ok && t != "" {
		return t
	}
	return r.Fallback
}

func (r *Registry) AddReader(source interface{}, d Descriptor) {
	r.read[d] = struct{}{}
	r.targets[d] = r.targetFor(source)
}

func (r *Registry) AddWriter(source interface{}, d Descriptor) {
	r.write[d] = struct{}{}
	r.targets[d] = r.targetFor(source)
}

func (r *Registry) RemoveReader(d Descriptor) {
	delete(r.read, d)
	r.dropTargetIfIdle(d)
}

func (r *Registry) RemoveWriter(d Descriptor) {
	delete(r.write, d)
	r.dropTargetIfIdle(d)
}

func (r *Registry) dropTargetIfIdle(d Descriptor) {
	if !r.Tracked(d) {
		delete(r.targets, d)
	}
}

func (r *Registry) IsReading(d Descriptor) bool {
	_, ok := r.read[d]
	return ok
}

func (r *Registry) IsWriting(d Descriptor) bool {
	_, ok := r.write[d]
	return ok
}

// Tracked reports whether d has any interest left.
func (r *Registry) Tracked(d Descriptor) bool {
	return r.IsReading(d) || r.IsWriting(d)
}

// Discard forgets d entirely. Unknown descriptors are ignored.
func (r *Registry) Discard(d Descriptor) {
	delete(r.read, d)
	delete(r.write, d)
	delete(r.targets, d)
}

// Target returns the recorded target of d, or the fallback.
func (r *Registry) Target(d Descriptor) Target {
	if t, ok := r.targets[d]; ok {
		return t
	}
	return r.Fallback
}

func (r *Registry) Lookup(d Descriptor) (Registration, bool) {
	if !r.Tracked(d) {
		return Registration{}, false
	}
	return Registration{
		Descriptor: d,
		Read:       r.IsReading(d),
		Write:      r.IsWriting(d),
		Target:     r.targets[d],
	}, true
}

// Len is the number of descriptors with any interest.
func (r *Registry) Len() int {
	return len(r.targets)
}

func (r *Registry) readers() []Descriptor {
	return sortedDescriptors(r.read)
}

func (r *Registry) writers() []Descriptor {
	return sortedDescriptors(r.write)
}

// descriptors returns every tracked descriptor ordered by handle.
func (r *Registry) descriptors() []Descriptor {
	all := make(map[Descriptor]struct{}, len(r.targets))
	for d := range r.targets {
		all[d] = struct{}{}
	}
	return sortedDescriptors(all)
}

func sortedDescriptors(set map[Descriptor]struct{}) []Descriptor {
	out := make([]Descriptor, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return handleOf(out[i]) < handleOf(out[j])
	})
	return out
}
