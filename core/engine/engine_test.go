package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/warehousekit/dispatchd/core/breaker"
	"github.com/warehousekit/dispatchd/core/classify"
	"github.com/warehousekit/dispatchd/core/metrics"
	"github.com/warehousekit/dispatchd/core/model"
	"github.com/warehousekit/dispatchd/core/pacing"
	"github.com/warehousekit/dispatchd/core/selector"
	"github.com/warehousekit/dispatchd/infra/logger"
)

const targetCode = 50421021

type fakeSubmitter struct {
	mu       sync.Mutex
	replies  []reply
	idx      int
	releases int
}

type reply struct {
	status int
	body   string
	err    error
}

func (f *fakeSubmitter) Submit(_ context.Context, _, _ string) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.replies[len(f.replies)-1]
	if f.idx < len(f.replies) {
		r = f.replies[f.idx]
	}
	f.idx++
	return r.status, []byte(r.body), r.err
}

func (f *fakeSubmitter) ReleaseLocations(context.Context, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

type fakeAvailability struct {
	blocked map[string]bool
}

func (f *fakeAvailability) Refresh(context.Context, bool) {}
func (f *fakeAvailability) IsBlocked(id string) bool      { return f.blocked[id] }

type captureSink struct {
	mu     sync.Mutex
	events []metrics.AttemptEvent
	runs   []metrics.RunEvent
}

func (c *captureSink) RecordAttempt(ev metrics.AttemptEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSink) RecordRefresh(metrics.RefreshEvent) error { return nil }

func (c *captureSink) RecordRunReport(ev metrics.RunEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, ev)
	return nil
}

func testGroups() []model.Group {
	return []model.Group{
		{
			ID:      "g1",
			Weight:  2,
			Pickups: []string{"p1", "p2"},
			Candidates: []model.Candidate{
				{ID: "a", Group: "g1"}, {ID: "b", Group: "g1"},
			},
		},
		{
			ID:      "g2",
			Weight:  1,
			Pickups: []string{"p3"},
			Candidates: []model.Candidate{
				{ID: "c", Group: "g2"},
			},
		},
	}
}

func newTestEngine(t *testing.T, sub TaskSubmitter, avail *fakeAvailability, brk *breaker.CircuitBreaker, pacer pacing.Pacer, sink metrics.Sink, cfg Config) *Engine {
	t.Helper()
	sel, err := selector.New(testGroups(), avail, rand.NewPCG(7, 11))
	if err != nil {
		t.Fatalf("selector: %v", err)
	}
	eng, err := New(cfg, "test", sel, avail, sub, classify.New(targetCode), brk, pacer, sink, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng
}

func successReply() reply {
	return reply{status: 200, body: `{"success":true}`}
}

func TestRun_StopsAtTargetSuccesses(t *testing.T) {
	sub := &fakeSubmitter{replies: []reply{successReply()}}
	avail := &fakeAvailability{}
	sink := &captureSink{}
	pacer := pacing.NewTargetCount(5, time.Millisecond)
	eng := newTestEngine(t, sub, avail, breaker.New(5), pacer, sink, Config{RetryDelaySeconds: 0.001})

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Attempts != 5 || rep.Successes != 5 {
		t.Fatalf("expected exactly 5 successful attempts, got %+v", rep)
	}
	if rep.Failed() {
		t.Fatalf("clean run must not report failure")
	}
	if len(sink.events) != 5 {
		t.Fatalf("expected 5 attempt events, got %d", len(sink.events))
	}
	if len(sink.runs) != 1 || sink.runs[0].Successes != 5 {
		t.Fatalf("expected one run summary with 5 successes, got %+v", sink.runs)
	}
}

func TestRun_WindowBoundaryResetsSelectorUsage(t *testing.T) {
	sub := &fakeSubmitter{replies: []reply{successReply()}}
	avail := &fakeAvailability{}
	sel, err := selector.New(testGroups(), avail, rand.NewPCG(3, 5))
	if err != nil {
		t.Fatalf("selector: %v", err)
	}
	pacer := pacing.NewFixedWindow(20*time.Millisecond, 2, 40*time.Millisecond, logger.NopLogger{})
	eng, err := New(Config{RetryDelaySeconds: 0.001}, "window", sel, avail, sub,
		classify.New(targetCode), breaker.New(5), pacer, metrics.NopSink{}, nil, nil, logger.NopLogger{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Attempts != 4 {
		t.Fatalf("expected 4 attempts over 2 windows, got %d", rep.Attempts)
	}
	// The second window resets per-candidate counters, so no candidate can
	// carry more than one window's worth of usage.
	for id, n := range sel.Usage() {
		if n > 2 {
			t.Fatalf("usage for %s not reset at the window boundary: %d", id, n)
		}
	}
	// Cumulative report usage is unaffected by the reset.
	total := 0
	for _, n := range rep.Usage {
		total += n
	}
	if total != 4 {
		t.Fatalf("report usage must stay cumulative: %v", rep.Usage)
	}
}

func TestRun_BreakerTripsOnConsecutiveTransportFailures(t *testing.T) {
	sub := &fakeSubmitter{replies: []reply{{err: errors.New("connection refused")}}}
	avail := &fakeAvailability{}
	pacer := pacing.NewTargetCount(100, time.Millisecond)
	eng := newTestEngine(t, sub, avail, breaker.New(3), pacer, metrics.NopSink{}, Config{RetryDelaySeconds: 0.001})

	rep, err := eng.Run(context.Background())
	if !errors.Is(err, ErrBreakerTripped) {
		t.Fatalf("expected ErrBreakerTripped, got %v", err)
	}
	if rep.Attempts != 3 {
		t.Fatalf("expected exactly 3 tasks before tripping, got %d", rep.Attempts)
	}
	if !rep.BreakerTripped || rep.ConsecutiveFailures != 3 {
		t.Fatalf("report must record the trip: %+v", rep)
	}
}

func TestRun_SuccessResetsBreakerStreak(t *testing.T) {
	sub := &fakeSubmitter{replies: []reply{
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
		successReply(),
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
		successReply(),
		successReply(),
	}}
	avail := &fakeAvailability{}
	pacer := pacing.NewTargetCount(3, time.Millisecond)
	eng := newTestEngine(t, sub, avail, breaker.New(3), pacer, metrics.NopSink{}, Config{RetryDelaySeconds: 0.001})

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Successes != 3 || rep.TransportFailures != 4 {
		t.Fatalf("unexpected counters: %+v", rep)
	}
}

func TestRun_BlockedCandidateNeverUsed(t *testing.T) {
	sub := &fakeSubmitter{replies: []reply{successReply()}}
	avail := &fakeAvailability{blocked: map[string]bool{"b": true}}
	pacer := pacing.NewTargetCount(20, time.Millisecond)
	eng := newTestEngine(t, sub, avail, breaker.New(5), pacer, metrics.NopSink{}, Config{RetryDelaySeconds: 0.001})

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := rep.Usage["b"]; n != 0 {
		t.Fatalf("blocked candidate was dispatched %d times", n)
	}
	if rep.Usage["a"] == 0 || rep.Usage["c"] == 0 {
		t.Fatalf("free candidates should share the load: %v", rep.Usage)
	}
}

func TestRun_RetryThenSuccessIsOneTask(t *testing.T) {
	sub := &fakeSubmitter{replies: []reply{
		{status: 200, body: `{"error_id":40010,"info":"no free location"}`},
		successReply(),
	}}
	avail := &fakeAvailability{}
	sink := &captureSink{}
	pacer := pacing.NewTargetCount(1, time.Millisecond)
	eng := newTestEngine(t, sub, avail, breaker.New(5), pacer, sink, Config{RetryCount: 1, RetryDelaySeconds: 0.001})

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Attempts != 1 || rep.Successes != 1 {
		t.Fatalf("retried task must count once: %+v", rep)
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 attempt events for 1 task, got %d", len(sink.events))
	}
	if sink.events[0].Attempt != 1 || sink.events[1].Attempt != 2 {
		t.Fatalf("attempt numbers wrong: %+v", sink.events)
	}
	if sink.events[0].TaskID != sink.events[1].TaskID {
		t.Fatalf("retries must share the task correlation id")
	}
}

func TestRun_AllBlockedSkipsWithoutFeedingBreaker(t *testing.T) {
	sub := &fakeSubmitter{replies: []reply{successReply()}}
	avail := &fakeAvailability{blocked: map[string]bool{"a": true, "b": true, "c": true}}
	brk := breaker.New(2)
	pacer := pacing.NewFixedWindow(10*time.Millisecond, 2, 20*time.Millisecond, logger.NopLogger{})
	eng := newTestEngine(t, sub, avail, brk, pacer, metrics.NopSink{}, Config{RetryDelaySeconds: 0.001})

	rep, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Attempts != 0 {
		t.Fatalf("no dispatch should happen when everything is blocked: %+v", rep)
	}
	if rep.Skipped == 0 {
		t.Fatalf("skipped iterations must be counted")
	}
	if brk.Tripped() || brk.ConsecutiveFailures() != 0 {
		t.Fatalf("resource exhaustion must not feed the breaker")
	}
}

func TestRun_ReleaseCalledWhenEnabled(t *testing.T) {
	sub := &fakeSubmitter{replies: []reply{successReply()}}
	avail := &fakeAvailability{}
	pacer := pacing.NewTargetCount(2, time.Millisecond)
	cfg := Config{RetryDelaySeconds: 0.001, Release: ReleaseConfig{Enabled: true, IntervalSeconds: 1800}}
	eng := newTestEngine(t, sub, avail, breaker.New(5), pacer, metrics.NopSink{}, cfg)

	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sub.releases == 0 {
		t.Fatalf("expected at least one release call")
	}
}

func TestRun_ContextCancelStopsLoop(t *testing.T) {
	sub := &fakeSubmitter{replies: []reply{successReply()}}
	avail := &fakeAvailability{}
	pacer := pacing.NewTargetCount(1000, time.Minute)
	eng := newTestEngine(t, sub, avail, breaker.New(5), pacer, metrics.NopSink{}, Config{RetryDelaySeconds: 0.001})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	done := make(chan struct{})
	go func() {
		_, _ = eng.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("engine did not stop on context cancellation")
	}
}
