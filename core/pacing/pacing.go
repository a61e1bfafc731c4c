package pacing

import (
	"context"
	"time"
)

// Result is the engine's feedback about one loop iteration.
type Result int

const (
	// ResultSuccess means the iteration produced an accepted dispatch.
	ResultSuccess Result = iota
	// ResultFailure means the dispatch was attempted and not accepted.
	ResultFailure
	// ResultSkipped means no dispatch was attempted, e.g. every group was
	// exhausted.
	ResultSkipped
)

// Pacer gates the dispatch loop. Next blocks until the next iteration may
// start; ok=false ends the run. newWindow is true when the iteration opens
// a new pacing window, at which point the engine resets per-candidate
// usage counters. Observe feeds back how the iteration went.
//
// All waits select on the context and return immediately on cancellation.
type Pacer interface {
	Next(ctx context.Context) (newWindow, ok bool)
	Observe(Result)
}

// sleepUntil waits for the deadline or the context, whichever comes first.
func sleepUntil(ctx context.Context, deadline time.Time, now func() time.Time) error {
	d := deadline.Sub(now())
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
