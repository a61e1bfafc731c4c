package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/warehousekit/dispatchd/core/metrics"
)

// PromSink records engine events in Prometheus metrics.
type PromSink struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	blocked  prometheus.Gauge
}

// NewPromSink registers dispatch metrics on the default Prometheus
// registerer. The metrics server is started separately on the configured
// port.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_attempts_total",
		Help: "Total number of dispatch attempts including retries",
	}, []string{"group", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_attempt_duration_seconds",
		Help:    "Time spent submitting one dispatch attempt",
		Buckets: prometheus.DefBuckets,
	}, []string{"group", "outcome"})
	blocked := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "availability_blocked_candidates",
		Help: "Number of candidates currently blocked by the availability cache",
	})

	if err := reg.Register(attempts); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			attempts = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(blocked); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			blocked = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{attempts: attempts, latency: latency, blocked: blocked}, nil
}

// RecordAttempt increments the attempt counter and latency histogram.
func (s *PromSink) RecordAttempt(ev coremetrics.AttemptEvent) error {
	outcome := ev.Outcome.Kind.String()
	s.attempts.WithLabelValues(ev.Group, outcome).Inc()
	s.latency.WithLabelValues(ev.Group, outcome).Observe(ev.Latency.Seconds())
	return nil
}

// RecordRefresh tracks the size of the blocked set.
func (s *PromSink) RecordRefresh(ev coremetrics.RefreshEvent) error {
	s.blocked.Set(float64(ev.BlockedTotal))
	return nil
}

// RecordRunReport is a no-op; run totals are derivable from the attempt
// counters.
func (s *PromSink) RecordRunReport(coremetrics.RunEvent) error { return nil }
