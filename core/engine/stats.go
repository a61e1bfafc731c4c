package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RunStats accumulates counters while a run is active. Counters are
// append-only; the final RunReport is derived from them.
type RunStats struct {
	Attempts          int
	Successes         int
	BusinessFailures  int
	TransportFailures int
	Skipped           int
	Usage             map[string]int
	GroupUsage        map[string]int
	StartedAt         time.Time
}

func newRunStats() *RunStats {
	return &RunStats{
		Usage:      make(map[string]int),
		GroupUsage: make(map[string]int),
	}
}

// Failures is the total number of non-success dispatches.
func (s *RunStats) Failures() int { return s.BusinessFailures + s.TransportFailures }

// RunReport is the structured summary emitted at the end of a run.
type RunReport struct {
	Mode                string         `json:"mode"`
	StartedAt           time.Time      `json:"started_at"`
	EndedAt             time.Time      `json:"ended_at"`
	ElapsedSeconds      float64        `json:"elapsed_seconds"`
	Attempts            int            `json:"attempts"`
	Successes           int            `json:"successes"`
	BusinessFailures    int            `json:"business_failures"`
	TransportFailures   int            `json:"transport_failures"`
	Skipped             int            `json:"skipped"`
	BreakerTripped      bool           `json:"breaker_tripped"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	Usage               map[string]int `json:"usage"`
	GroupUsage          map[string]int `json:"group_usage"`
}

// Failed reports whether at least one dispatch was not accepted.
func (r RunReport) Failed() bool {
	return r.BusinessFailures+r.TransportFailures > 0
}

// String renders the report for humans.
func (r RunReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode=%s elapsed=%s attempts=%d successes=%d business_failures=%d transport_failures=%d skipped=%d",
		r.Mode, time.Duration(r.ElapsedSeconds*float64(time.Second)).Round(time.Second),
		r.Attempts, r.Successes, r.BusinessFailures, r.TransportFailures, r.Skipped)
	if r.BreakerTripped {
		fmt.Fprintf(&b, " breaker_tripped=true consecutive_failures=%d", r.ConsecutiveFailures)
	}
	if len(r.Usage) > 0 {
		ids := make([]string, 0, len(r.Usage))
		for id := range r.Usage {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		b.WriteString(" usage=")
		for i, id := range ids {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, "%s:%d", id, r.Usage[id])
		}
	}
	return b.String()
}
