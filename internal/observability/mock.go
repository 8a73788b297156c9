package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry is a MetricsRegistry that records counter
// increments for assertions in tests.
type MockMetricsRegistry struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMockMetricsRegistry creates a new MockMetricsRegistry
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{counts: make(map[string]int)}
}

func (m *MockMetricsRegistry) inc(key string) {
	m.mu.Lock()
	m.counts[key]++
	m.mu.Unlock()
}

// Count returns the number of increments recorded under key.
func (m *MockMetricsRegistry) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc("requests:" + endpoint + ":" + method + ":" + status)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementDeployments(platform, outcome string) {
	m.inc("deployments:" + platform + ":" + outcome)
}
func (m *MockMetricsRegistry) RecordDeploymentLatency(platform string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementRuns(status string) {
	m.inc("runs:" + status)
}
func (m *MockMetricsRegistry) IncrementUploadAttempts(platform, outcome string) {
	m.inc("uploads:" + platform + ":" + outcome)
}
func (m *MockMetricsRegistry) SetTrackedAssets(count int) {}
func (m *MockMetricsRegistry) IncrementAssetsDestroyed(reason string) {
	m.inc("destroyed:" + reason)
}
func (m *MockMetricsRegistry) IncrementRateLimitRequests(platform string) {
	m.inc("ratelimit_requests:" + platform)
}
func (m *MockMetricsRegistry) IncrementRateLimitHits(platform string) {
	m.inc("ratelimit_hits:" + platform)
}
