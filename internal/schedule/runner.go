// Package schedule drives a repeating tick callback from tick 1 up to a
// stop tick.
package schedule

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Periodic is a hook that runs after every Every-th tick.
type Periodic struct {
	Every uint64
	Fn    func(ctx context.Context, tick uint64) error
}

// Runner calls OnTick once per tick until StopAt, then OnStop.
type Runner struct {
	StopAt   uint64
	Interval time.Duration // Minimum wall time per tick; 0 runs ticks back to back

	OnTick   func(ctx context.Context, tick uint64) error
	Periodic []Periodic
	OnStop   func(ctx context.Context, lastTick uint64) error

	tick uint64
}

// Tick returns the last completed tick.
func (r *Runner) Tick() uint64 {
	return r.tick
}

// Run executes ticks 1..StopAt. It returns on the first callback error or
// when ctx is cancelled; the tick in progress is then discarded and OnStop
// is not called.
func (r *Runner) Run(ctx context.Context) error {
	if r.OnTick == nil {
		return fmt.Errorf("runner has no tick callback")
	}
	if r.StopAt < 1 {
		return fmt.Errorf("stop tick must be >= 1, got %d", r.StopAt)
	}

	log.Printf("[Schedule] Running ticks 1..%d", r.StopAt)
	for tick := r.tick + 1; tick <= r.StopAt; tick++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()

		if err := r.OnTick(ctx, tick); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
		for _, p := range r.Periodic {
			if p.Every > 0 && tick%p.Every == 0 {
				if err := p.Fn(ctx, tick); err != nil {
					return fmt.Errorf("tick %d: %w", tick, err)
				}
			}
		}
		r.tick = tick

		if elapsed := time.Since(start); elapsed < r.Interval {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.Interval - elapsed):
			}
		}
	}

	log.Printf("[Schedule] Stop tick %d reached", r.StopAt)
	if r.OnStop != nil {
		return r.OnStop(ctx, r.tick)
	}
	return nil
}
