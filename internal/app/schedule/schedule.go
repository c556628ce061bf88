// Package schedule drives the engine's clock-driven work. It owns no
// deadlines itself: every due transition is derived from persisted
// timestamps, so a sweep after a crash or missed tick still applies the
// transitions that came due in the gap.
package schedule

import (
	"context"
	"log"
	"time"
)

// Sweepable is the slice of the orchestrator the sweeper drives.
type Sweepable interface {
	Sweep(ctx context.Context)
}

// Sweeper runs periodic sweeps until its context is cancelled.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
}

// New creates a sweeper. Intervals under a second are clamped: the warning
// thresholds are seconds-granular and a hotter loop only burns the database.
func New(target Sweepable, interval time.Duration) *Sweeper {
	if interval < time.Second {
		interval = time.Second
	}
	return &Sweeper{target: target, interval: interval}
}

// Run sweeps immediately, then on every tick, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("[schedule] sweeper running every %s", s.interval)
	s.target.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[schedule] sweeper stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			s.target.Sweep(ctx)
		}
	}
}
