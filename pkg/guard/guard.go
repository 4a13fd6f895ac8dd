// Package guard provides a reentrancy guard for a single asynchronous operation.
//
// A Guard is NOT a mutex: a call that arrives while the guarded operation is still
// in flight is dropped on the floor. It neither waits for the running call nor
// queues itself for later. Dropping is not an error.
package guard

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

type Operation func(ctx context.Context) error

type Guard struct {
	name string
	op   Operation
	busy atomic.Bool
}

// New wraps op; name identifies the operation in logs.
func New(name string, op Operation) *Guard {
	return &Guard{name: name, op: op}
}

func (g *Guard) Name() string {
	return g.name
}

// InFlight reports whether the guarded operation is currently running.
func (g *Guard) InFlight() bool {
	return g.busy.Load()
}

// Do runs the operation unless it is already in flight.
// ran is false when the call was dropped, in which case err is always nil.
func (g *Guard) Do(ctx context.Context) (ran bool, err error) {
	if !g.busy.CompareAndSwap(false, true) {
		log.Debug().Str("operation", g.name).Msg("guard: already in flight, dropping call")
		return false, nil
	}
	defer g.busy.Store(false)

	log.Trace().Str("operation", g.name).Msg("guard: running")
	return true, g.op(ctx)
}
