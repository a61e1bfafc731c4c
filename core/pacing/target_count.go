package pacing

import (
	"context"
	"time"
)

// DefaultFailureDelay is the pause after an unsuccessful iteration when
// the configuration does not set one.
const DefaultFailureDelay = 30 * time.Second

// TargetCountPacer runs the loop until a configured number of successes
// has been observed. There is no fixed grid: iterations follow each other
// immediately, except that an unsuccessful or skipped iteration is
// followed by a fixed delay so a failing endpoint is not hammered.
type TargetCountPacer struct {
	target       int
	failureDelay time.Duration
	now          func() time.Time

	successes    int
	pendingDelay bool
}

// NewTargetCount creates a pacer stopping after target successes.
func NewTargetCount(target int, failureDelay time.Duration) *TargetCountPacer {
	if failureDelay <= 0 {
		failureDelay = DefaultFailureDelay
	}
	return &TargetCountPacer{target: target, failureDelay: failureDelay, now: time.Now}
}

// Next waits out any pending failure delay and reports whether the run
// should continue. Target-count mode has a single window for the whole run.
func (p *TargetCountPacer) Next(ctx context.Context) (bool, bool) {
	if ctx.Err() != nil {
		return false, false
	}
	if p.successes >= p.target {
		return false, false
	}
	if p.pendingDelay {
		p.pendingDelay = false
		if err := sleepUntil(ctx, p.now().Add(p.failureDelay), p.now); err != nil {
			return false, false
		}
	}
	return false, true
}

// Observe counts successes and arms the failure delay otherwise.
func (p *TargetCountPacer) Observe(r Result) {
	if r == ResultSuccess {
		p.successes++
		return
	}
	p.pendingDelay = true
}

// Successes returns the number of successes observed so far.
func (p *TargetCountPacer) Successes() int { return p.successes }
