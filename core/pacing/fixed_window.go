package pacing

import (
	"context"
	"time"

	"github.com/warehousekit/dispatchd/core/logger"
)

// FixedWindowPacer schedules dispatches on a constant-rate grid for a
// fixed wall-clock duration. Every deadline is computed as
// start + k*interval from the schedule origin rather than by chaining
// relative sleeps, so a slow request or a retry burst cannot accumulate
// scheduling error. When an iteration is already past its deadline the
// pacer logs a warning instead of sleeping.
type FixedWindowPacer struct {
	window    time.Duration
	perWindow int
	duration  time.Duration
	log       logger.Logger
	now       func() time.Time

	start time.Time
	end   time.Time
	k     int
}

// NewFixedWindow creates a pacer issuing perWindow dispatches per window
// for the given total duration.
func NewFixedWindow(window time.Duration, perWindow int, duration time.Duration, log logger.Logger) *FixedWindowPacer {
	if window <= 0 {
		window = time.Hour
	}
	return &FixedWindowPacer{
		window:    window,
		perWindow: perWindow,
		duration:  duration,
		log:       log,
		now:       time.Now,
	}
}

// Start pins the schedule origin. When not called, the first Next anchors
// the schedule at the current time.
func (p *FixedWindowPacer) Start(at time.Time) {
	p.start = at
	p.end = at.Add(p.duration)
}

// Interval is the grid spacing between consecutive deadlines.
func (p *FixedWindowPacer) Interval() time.Duration {
	return p.window / time.Duration(p.perWindow)
}

// Deadline returns the absolute deadline of the k-th dispatch. It is
// independent of how long any earlier dispatch took.
func (p *FixedWindowPacer) Deadline(k int) time.Time {
	return p.start.Add(time.Duration(k) * p.Interval())
}

// Next sleeps until the current iteration's absolute deadline. It reports
// a new window when the iteration index crosses a window boundary, and
// ends the run once the schedule reaches the configured duration.
func (p *FixedWindowPacer) Next(ctx context.Context) (bool, bool) {
	if ctx.Err() != nil {
		return false, false
	}
	if p.start.IsZero() {
		p.Start(p.now())
	}
	deadline := p.Deadline(p.k)
	if !deadline.Before(p.end) {
		return false, false
	}
	if behind := p.now().Sub(deadline); behind > 0 {
		p.log.Warnf("falling behind schedule by %s, dispatching immediately", behind.Round(time.Millisecond))
	} else if err := sleepUntil(ctx, deadline, p.now); err != nil {
		return false, false
	}
	newWindow := p.k > 0 && p.k%p.perWindow == 0
	p.k++
	return newWindow, true
}

// Observe is a no-op: the grid does not react to outcomes.
func (p *FixedWindowPacer) Observe(Result) {}
