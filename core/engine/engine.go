package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warehousekit/dispatchd/core/breaker"
	"github.com/warehousekit/dispatchd/core/classify"
	"github.com/warehousekit/dispatchd/core/engine/logging"
	"github.com/warehousekit/dispatchd/core/logger"
	"github.com/warehousekit/dispatchd/core/metrics"
	"github.com/warehousekit/dispatchd/core/model"
	"github.com/warehousekit/dispatchd/core/pacing"
	"github.com/warehousekit/dispatchd/core/selector"
	"github.com/warehousekit/dispatchd/internal/eventbus"
)

// ErrBreakerTripped terminates a run after too many consecutive failures.
var ErrBreakerTripped = errors.New("engine: circuit breaker tripped")

// errNoEligible means no group had an eligible pickup/candidate pair.
var errNoEligible = errors.New("engine: no eligible candidate in any group")

// TaskSubmitter delivers one task to the remote dispatch endpoint and
// returns the HTTP-shaped response. Implementations authenticate with a
// bearer credential that must never surface in logs.
type TaskSubmitter interface {
	Submit(ctx context.Context, pickupID, area string) (status int, body []byte, err error)
	ReleaseLocations(ctx context.Context, all bool) error
}

// Availability gates candidate eligibility, usually the availability cache.
type Availability interface {
	Refresh(ctx context.Context, force bool)
	IsBlocked(id string) bool
}

// Engine owns the dispatch loop. One engine instance runs a single logical
// sequence of iterations; concurrent engines (one per warehouse, say) each
// own independent selector, cache and breaker state.
type Engine struct {
	cfg        Config
	mode       string
	sel        *selector.FairSelector
	avail      Availability
	submitter  TaskSubmitter
	classifier *classify.Classifier
	brk        *breaker.CircuitBreaker
	pacer      pacing.Pacer
	sink       metrics.Sink
	bus        eventbus.EventBus
	store      logging.Store
	log        logger.Logger

	stats       *RunStats
	pickupIdx   map[string]int
	lastRelease time.Time
	now         func() time.Time
}

// New creates an engine. sink, bus and store may be nil.
func New(cfg Config, mode string, sel *selector.FairSelector, avail Availability, submitter TaskSubmitter, cls *classify.Classifier, brk *breaker.CircuitBreaker, pacer pacing.Pacer, sink metrics.Sink, bus eventbus.EventBus, store logging.Store, log logger.Logger) (*Engine, error) {
	if sel == nil || avail == nil || submitter == nil || cls == nil || brk == nil || pacer == nil {
		return nil, fmt.Errorf("engine: nil parameter provided to New")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if store == nil {
		store = logging.NopStore{}
	}
	return &Engine{
		cfg:        cfg,
		mode:       mode,
		sel:        sel,
		avail:      avail,
		submitter:  submitter,
		classifier: cls,
		brk:        brk,
		pacer:      pacer,
		sink:       sink,
		bus:        bus,
		store:      store,
		log:        log,
		stats:      newRunStats(),
		pickupIdx:  make(map[string]int),
		now:        time.Now,
	}, nil
}

// Run executes the dispatch loop until the pacer ends the run, the context
// is canceled, or the breaker trips. The returned report is always valid;
// the error is ErrBreakerTripped when the run was terminated early.
func (e *Engine) Run(ctx context.Context) (RunReport, error) {
	e.stats.StartedAt = e.now()
	e.log.Infof("dispatch engine starting, mode=%s groups=%d", e.mode, len(e.sel.Groups()))

	if e.cfg.Release.Enabled {
		e.release(ctx)
	}

	for {
		newWindow, ok := e.pacer.Next(ctx)
		if !ok {
			break
		}
		if newWindow {
			e.log.Infof("pacing window rolled over, resetting usage counters")
			e.sel.ResetUsage()
		}
		if e.cfg.Release.Enabled && e.now().Sub(e.lastRelease) >= e.cfg.ReleaseInterval() {
			e.release(ctx)
		}

		e.avail.Refresh(ctx, true)

		task, err := e.pick()
		if err != nil {
			// Resource exhaustion: no dispatch happened, so the breaker
			// is not fed.
			e.stats.Skipped++
			e.log.Warnf("no eligible pickup/candidate pair in any group, skipping iteration")
			e.pacer.Observe(pacing.ResultSkipped)
			continue
		}

		outcome := e.execute(ctx, task)
		e.recordTask(task, outcome)
		tripped := e.brk.Observe(outcome)

		if e.stats.Attempts%e.cfg.StatsEvery == 0 {
			e.logInterim()
		}
		if tripped {
			e.log.Errorf("circuit breaker tripped after %d consecutive failures, stopping", e.brk.ConsecutiveFailures())
			return e.report(), ErrBreakerTripped
		}
		if outcome.IsSuccess() {
			e.pacer.Observe(pacing.ResultSuccess)
		} else {
			e.pacer.Observe(pacing.ResultFailure)
		}
	}

	rep := e.report()
	e.log.Infof("dispatch engine finished: %s", rep.String())
	return rep, nil
}

// Stats exposes the live counters, mainly for tests.
func (e *Engine) Stats() *RunStats { return e.stats }

// pick walks the groups in weighted order and returns the first group that
// yields both an eligible candidate and a registered pickup location.
func (e *Engine) pick() (model.Task, error) {
	for _, gid := range e.sel.GroupOrder() {
		cand, err := e.sel.SelectWithinGroup(gid, nil)
		if err != nil {
			if errors.Is(err, selector.ErrGroupExhausted) {
				e.log.Warnf("group %s has no usable candidate, trying next group", gid)
				continue
			}
			return model.Task{}, err
		}
		pickup, ok := e.nextPickup(gid)
		if !ok {
			e.log.Warnf("group %s has no pickup locations, trying next group", gid)
			continue
		}
		return model.Task{PickupID: pickup, Area: cand.ID, Group: gid}, nil
	}
	return model.Task{}, errNoEligible
}

// nextPickup round-robins over the group's pickup locations so coverage
// stays even.
func (e *Engine) nextPickup(groupID string) (string, bool) {
	for _, g := range e.sel.Groups() {
		if g.ID != groupID {
			continue
		}
		if len(g.Pickups) == 0 {
			return "", false
		}
		i := e.pickupIdx[groupID]
		e.pickupIdx[groupID] = i + 1
		return g.Pickups[i%len(g.Pickups)], true
	}
	return "", false
}

// execute submits the task with the configured retry policy and returns
// the final classified outcome.
func (e *Engine) execute(ctx context.Context, task model.Task) model.DispatchOutcome {
	taskID := uuid.NewString()
	var outcome model.DispatchOutcome
	for attempt := 1; attempt <= e.cfg.RetryCount+1; attempt++ {
		start := e.now()
		status, body, err := e.submitter.Submit(ctx, task.PickupID, task.Area)
		latency := e.now().Sub(start)
		if err != nil {
			outcome = classify.TransportError(err)
		} else {
			outcome = e.classifier.Classify(status, body)
		}
		e.emitAttempt(taskID, task, attempt, outcome, latency)

		if outcome.IsSuccess() {
			e.log.Infof("task %s accepted: pickup=%s area=%s group=%s attempt=%d",
				taskID, task.PickupID, task.Area, task.Group, attempt)
			return outcome
		}
		e.log.Warnf("task %s attempt %d/%d not accepted (%s): code=%d msg=%q pickup=%s area=%s group=%s",
			taskID, attempt, e.cfg.RetryCount+1, outcome.Kind, outcome.Code, outcome.Message,
			task.PickupID, task.Area, task.Group)
		if attempt <= e.cfg.RetryCount {
			if err := sleepCtx(ctx, e.cfg.RetryDelay()); err != nil {
				return outcome
			}
		}
	}
	return outcome
}

// recordTask updates counters and usage once per task, after retries are
// exhausted or the task succeeded. The request was actually issued, so the
// candidate counts as used either way.
func (e *Engine) recordTask(task model.Task, outcome model.DispatchOutcome) {
	e.stats.Attempts++
	e.stats.Usage[task.Area]++
	e.stats.GroupUsage[task.Group]++
	e.sel.MarkUsed(task.Area)
	switch outcome.Kind {
	case model.OutcomeSuccess:
		e.stats.Successes++
	case model.OutcomeBusinessFailure:
		e.stats.BusinessFailures++
	case model.OutcomeTransportFailure:
		e.stats.TransportFailures++
	}
}

func (e *Engine) emitAttempt(taskID string, task model.Task, attempt int, outcome model.DispatchOutcome, latency time.Duration) {
	ev := metrics.AttemptEvent{
		TaskID:    taskID,
		Group:     task.Group,
		PickupID:  task.PickupID,
		Candidate: task.Area,
		Attempt:   attempt,
		Outcome:   outcome,
		Latency:   latency,
		Time:      e.now(),
	}
	if err := e.sink.RecordAttempt(ev); err != nil {
		e.log.Errorf("metrics sink: %v", err)
	}
	if e.bus != nil {
		e.bus.Publish(ev)
	}
	rec := logging.Record{
		Timestamp: ev.Time,
		TaskID:    taskID,
		Group:     task.Group,
		PickupID:  task.PickupID,
		Candidate: task.Area,
		Attempt:   attempt,
		Outcome:   outcome,
		LatencyMS: latency.Milliseconds(),
	}
	if err := e.store.Append(context.Background(), rec); err != nil {
		e.log.Errorf("attempt log store: %v", err)
	}
}

func (e *Engine) release(ctx context.Context) {
	if err := e.submitter.ReleaseLocations(ctx, e.cfg.Release.All); err != nil {
		e.log.Warnf("release locations failed: %v", err)
	} else {
		e.log.Infof("released location occupancy (all=%v)", e.cfg.Release.All)
	}
	e.lastRelease = e.now()
}

func (e *Engine) logInterim() {
	e.log.Debugw("interim statistics", map[string]any{
		"attempts":           e.stats.Attempts,
		"successes":          e.stats.Successes,
		"business_failures":  e.stats.BusinessFailures,
		"transport_failures": e.stats.TransportFailures,
		"skipped":            e.stats.Skipped,
	})
}

func (e *Engine) report() RunReport {
	end := e.now()
	if err := e.sink.RecordRunReport(metrics.RunEvent{
		Mode:              e.mode,
		Attempts:          e.stats.Attempts,
		Successes:         e.stats.Successes,
		BusinessFailures:  e.stats.BusinessFailures,
		TransportFailures: e.stats.TransportFailures,
		Skipped:           e.stats.Skipped,
		BreakerTripped:    e.brk.Tripped(),
		Started:           e.stats.StartedAt,
		Ended:             end,
	}); err != nil {
		e.log.Errorf("metrics sink: %v", err)
	}
	return RunReport{
		Mode:                e.mode,
		StartedAt:           e.stats.StartedAt,
		EndedAt:             end,
		ElapsedSeconds:      end.Sub(e.stats.StartedAt).Seconds(),
		Attempts:            e.stats.Attempts,
		Successes:           e.stats.Successes,
		BusinessFailures:    e.stats.BusinessFailures,
		TransportFailures:   e.stats.TransportFailures,
		Skipped:             e.stats.Skipped,
		BreakerTripped:      e.brk.Tripped(),
		ConsecutiveFailures: e.brk.ConsecutiveFailures(),
		Usage:               e.stats.Usage,
		GroupUsage:          e.stats.GroupUsage,
	}
}

// sleepCtx waits d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
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
