package ioreactor

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// EventRouter is a Sink that hands each event to the EventHandler registered
// for its target. Events for targets without a handler are dropped.
type EventRouter struct {
	mu       sync.RWMutex
	handlers map[Target]EventHandler
}

func NewEventRouter() *EventRouter {
	return &EventRouter{handlers: make(map[Target]EventHandler)}
}

// Handle sets the handler of target, replacing any previous one. A nil
// handler removes it.
func (r *EventRouter) Handle(target Target, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handler == nil {
		delete(r.handlers, target)
		return
	}
	r.handlers[target] = handler
}

func (r *EventRouter) handler(target Target) (EventHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[target]
	return h, ok
}

func (r *EventRouter) Fire(event Event, target Target, channel string) error {
	h, ok := r.handler(target)
	if !ok {
		log.Debug().Msgf("[%d] no handler for %s%s, dropping %s event", handleOf(event.Descriptor), target, channel, event.Kind)
		return nil
	}
	switch event.Kind {
	case EventRead:
		return h.ReadEvent(event.Descriptor)
	case EventWrite:
		return h.WriteEvent(event.Descriptor)
	case EventError:
		return h.ErrorEvent(event.Descriptor, event.Err)
	case EventDisconnect:
		return h.CloseEvent(event.Descriptor)
	}
	return nil
}
