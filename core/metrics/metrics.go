package metrics

import (
	"time"

	"github.com/warehousekit/dispatchd/core/model"
)

// AttemptEvent captures one dispatch attempt, including retries.
type AttemptEvent struct {
	TaskID    string
	Group     string
	PickupID  string
	Candidate string
	// Attempt is 1-based and counts retries of the same task.
	Attempt int
	Outcome model.DispatchOutcome
	Latency time.Duration
	Time    time.Time
}

// RefreshEvent captures an availability transition after a cache refresh.
type RefreshEvent struct {
	Blocked      []string
	Unblocked    []string
	BlockedTotal int
	Time         time.Time
}

// RunEvent summarizes a finished run for the sinks.
type RunEvent struct {
	Mode              string
	Attempts          int
	Successes         int
	BusinessFailures  int
	TransportFailures int
	Skipped           int
	BreakerTripped    bool
	Started           time.Time
	Ended             time.Time
}

// Sink records engine events for observability purposes.
type Sink interface {
	RecordAttempt(ev AttemptEvent) error
	RecordRefresh(ev RefreshEvent) error
	RecordRunReport(ev RunEvent) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordAttempt(AttemptEvent) error { return nil }
func (NopSink) RecordRefresh(RefreshEvent) error { return nil }
func (NopSink) RecordRunReport(RunEvent) error   { return nil }
