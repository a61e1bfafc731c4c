package metrics

import coremetrics "github.com/warehousekit/dispatchd/core/metrics"

// MultiSink fans engine events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAttempt forwards the event to all sinks, returning the first error.
func (m *MultiSink) RecordAttempt(ev coremetrics.AttemptEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordAttempt(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordRefresh forwards the event to all sinks, returning the first error.
func (m *MultiSink) RecordRefresh(ev coremetrics.RefreshEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRefresh(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordRunReport forwards the event to all sinks, returning the first error.
func (m *MultiSink) RecordRunReport(ev coremetrics.RunEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRunReport(ev); err != nil {
			return err
		}
	}
	return nil
}
