package logging

import (
	"context"
	"time"

	"github.com/warehousekit/dispatchd/core/model"
)

// Record captures one dispatch attempt as seen by the engine.
type Record struct {
	Timestamp time.Time             `json:"timestamp"`
	TaskID    string                `json:"task_id"`
	Group     string                `json:"group"`
	PickupID  string                `json:"pickup_id"`
	Candidate string                `json:"candidate"`
	Attempt   int                   `json:"attempt"`
	Outcome   model.DispatchOutcome `json:"outcome"`
	LatencyMS int64                 `json:"latency_ms"`
}

// Query defines filters for retrieving records.
type Query struct {
	Start     time.Time
	End       time.Time
	Group     string
	Candidate string
}

// matches applies the non-time filters of q to r.
func (q Query) matches(r Record) bool {
	if q.Group != "" && r.Group != q.Group {
		return false
	}
	if q.Candidate != "" && r.Candidate != q.Candidate {
		return false
	}
	return true
}

// Store persists attempt records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards all records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
