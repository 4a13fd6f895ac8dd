// Package lifecycle maps host focus / visibility signals onto the recording coordinator.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/petrzlen/memo-golang/pkg/guard"
	"github.com/petrzlen/memo-golang/pkg/models"
)

type Intent int

const (
	GainedFocus Intent = iota
	LostFocus
)

func (i Intent) String() string {
	if i == LostFocus {
		return "LostFocus"
	}
	return "GainedFocus"
}

// Signal is a host level event name, several of them collapse onto one Intent.
type Signal string

const (
	SignalGainedFocus Signal = "gained-focus"
	SignalShown       Signal = "shown"
	SignalLostFocus   Signal = "lost-focus"
	SignalHidden      Signal = "hidden"
)

func IntentFor(signal Signal) (Intent, bool) {
	switch signal {
	case SignalGainedFocus, SignalShown:
		return GainedFocus, true
	case SignalLostFocus, SignalHidden:
		return LostFocus, true
	default:
		return 0, false
	}
}

// Recorder is the part of recording.Coordinator the monitor drives.
type Recorder interface {
	Start(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	State() models.RecordingState
}

// Monitor runs each intent behind its own reentrancy guard, so a burst of signals
// (e.g. focus and pageshow together) handles the intent once.
type Monitor struct {
	recorder Recorder
	gained   *guard.Guard
	lost     *guard.Guard

	dropped atomic.Int64
}

func NewMonitor(recorder Recorder) *Monitor {
	m := &Monitor{recorder: recorder}
	m.gained = guard.New("lifecycle.gainedFocus", m.gainedFocus)
	m.lost = guard.New("lifecycle.lostFocus", m.lostFocus)
	return m
}

// Dispatch handles one intent; ran is false when the same intent was already in flight.
func (m *Monitor) Dispatch(ctx context.Context, intent Intent) (ran bool, err error) {
	g := m.gained
	if intent == LostFocus {
		g = m.lost
	}
	ran, err = g.Do(ctx)
	if !ran {
		m.dropped.Add(1)
	}
	return ran, err
}

// Dropped counts intents skipped because they were already in flight.
func (m *Monitor) Dropped() int64 {
	return m.dropped.Load()
}

// Run dispatches every signal on its own goroutine until signals is closed or ctx is done,
// then waits for the in-flight handlers.
func (m *Monitor) Run(ctx context.Context, signals <-chan Signal) {
	log.Info().Msg("lifecycle monitor started")
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		log.Info().Msg("lifecycle monitor stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case signal, ok := <-signals:
			if !ok {
				return
			}
			intent, known := IntentFor(signal)
			if !known {
				log.Warn().Str("signal", string(signal)).Msg("unknown lifecycle signal")
				continue
			}
			log.Debug().Str("signal", string(signal)).Str("intent", intent.String()).Msg("lifecycle signal received")

			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := m.Dispatch(ctx, intent); err != nil {
					log.Error().Err(err).Str("intent", intent.String()).Msg("lifecycle intent failed")
				}
			}()
		}
	}
}

// gainedFocus pre-arms the capture device in a paused state, so the next real recording
// starts without acquisition latency.
func (m *Monitor) gainedFocus(ctx context.Context) error {
	if err := m.recorder.Start(ctx); err != nil {
		return err
	}
	return m.recorder.Pause(ctx)
}

// lostFocus releases the device so no capture indicator stays on while invisible.
func (m *Monitor) lostFocus(ctx context.Context) error {
	if m.recorder.State() == models.Stopped {
		log.Debug().Msg("lifecycle: already stopped")
		return nil
	}
	return m.recorder.Stop(ctx)
}
