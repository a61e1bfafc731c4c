package mqtt

import (
	"fmt"
	"sync"

	coremetrics "github.com/warehousekit/dispatchd/core/metrics"
)

// MockPublisher is a simple publisher used in tests.
type MockPublisher struct {
	Attempts  []coremetrics.AttemptEvent
	Refreshes []coremetrics.RefreshEvent
	Fail      bool
	mu        sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishAttempt records the event or returns an error if configured to fail.
func (m *MockPublisher) PublishAttempt(ev coremetrics.AttemptEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Attempts = append(m.Attempts, ev)
	return nil
}

// PublishRefresh records the event or returns an error if configured to fail.
func (m *MockPublisher) PublishRefresh(ev coremetrics.RefreshEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Refreshes = append(m.Refreshes, ev)
	return nil
}

// Close is a no-op.
func (m *MockPublisher) Close() {}

// AttemptCount returns the number of recorded attempt events.
func (m *MockPublisher) AttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Attempts)
}
