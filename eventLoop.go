package ioreactor

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

type LoopConfig struct {
	Name         string
	LockOsThread bool
}

// Loop is a minimal scheduler that ticks one Poller on the goroutine calling
// Run. Hosts with their own cooperative loop call Poller.Tick directly.
type Loop struct {
	Name         string
	lockOsThread bool
	isRunning    *atomic.Bool
	stopping     *atomic.Bool
	poller       Poller
}

func NewLoop(config LoopConfig, poller Poller) *Loop {
	if log.Debug().Enabled() {
		log.Debug().Msgf("init event loop:%+v", config)
	} else {
		log.Info().Msgf("init event loop:%s", config.Name)
	}
	return &Loop{
		Name:         config.Name,
		lockOsThread: config.LockOsThread,
		isRunning:    atomic.NewBool(false),
		stopping:     atomic.NewBool(false),
		poller:       poller,
	}
}

// Run ticks until Stop is called, ctx is done, or the poller fails. Only a
// poller failure is returned. A Stop issued before Run makes it return at
// once.
func (el *Loop) Run(ctx context.Context) error {
	if el.lockOsThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	el.isRunning.Store(true)
	defer el.isRunning.Store(false)
	defer el.stopping.Store(false)
	stats := el.poller.Stats()
	for !el.stopping.Load() {
		select {
		case <-ctx.Done():
			log.Info().Msgf("event loop %s: %v", el.Name, ctx.Err())
			return nil
		default:
		}
		waits := stats.Ticks.Load()
		if err := el.poller.Tick(); err != nil {
			log.Error().Msgf("event loop %s stopped on poller failure: %+v", el.Name, err)
			return err
		}
		if stats.Ticks.Load() == waits {
			el.idle(ctx)
		}
	}
	return nil
}

// idle sleeps for one poller timeout after a tick that did not wait, so an
// empty select poller does not spin.
func (el *Loop) idle(ctx context.Context) {
	timer := time.NewTimer(el.poller.Timeout())
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Stop makes Run return after the current tick. It is safe to call from any
// goroutine.
func (el *Loop) Stop() {
	el.stopping.Store(true)
}

func (el *Loop) Running() bool {
	return el.isRunning.Load()
}

func (el *Loop) Poller() Poller {
	return el.poller
}
