package breaker

import (
	"github.com/warehousekit/dispatchd/core/model"
)

// DefaultThreshold is the consecutive-failure count that trips the breaker
// when the configuration does not set one.
const DefaultThreshold = 5

// CircuitBreaker halts the dispatch loop after a run of consecutive
// non-success outcomes. Business and transport failures are
// indistinguishable here: both mean the dispatch was not accepted. Once
// tripped the breaker stays tripped for the rest of the run.
type CircuitBreaker struct {
	threshold   int
	consecutive int
	tripped     bool
}

// New creates a breaker tripping at the given threshold.
func New(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &CircuitBreaker{threshold: threshold}
}

// Observe feeds one outcome into the breaker and reports whether it is
// tripped. A success resets the consecutive-failure counter but never
// un-trips an already tripped breaker.
func (b *CircuitBreaker) Observe(outcome model.DispatchOutcome) bool {
	if b.tripped {
		return true
	}
	if outcome.IsSuccess() {
		b.consecutive = 0
		return false
	}
	b.consecutive++
	if b.consecutive >= b.threshold {
		b.tripped = true
	}
	return b.tripped
}

// Tripped reports whether the breaker has tripped.
func (b *CircuitBreaker) Tripped() bool { return b.tripped }

// ConsecutiveFailures returns the current failure run length.
func (b *CircuitBreaker) ConsecutiveFailures() int { return b.consecutive }

// Threshold returns the configured trip threshold.
func (b *CircuitBreaker) Threshold() int { return b.threshold }
