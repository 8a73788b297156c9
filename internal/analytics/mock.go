package analytics

import (
	"context"
	"sync"

	"github.com/adlaunch/adlaunch/internal/models"
)

var _ Service = (*MockAnalytics)(nil)

// MockAnalytics is a mock implementation of Service for testing. It
// records every call so tests can assert on what was written.
type MockAnalytics struct {
	mu          sync.Mutex
	Deployments []models.DeploymentResult
	Drops       []models.DroppedPlatform
}

// NewMockAnalytics creates a new mock analytics instance
func NewMockAnalytics() *MockAnalytics {
	return &MockAnalytics{}
}

// RecordDeployment records a deployment event (mock implementation)
func (m *MockAnalytics) RecordDeployment(ctx context.Context, runID string, result models.DeploymentResult, budget int64, durationMs int64) error {
	m.mu.Lock()
	m.Deployments = append(m.Deployments, result)
	m.mu.Unlock()
	return nil
}

// RecordDrop records a drop event (mock implementation)
func (m *MockAnalytics) RecordDrop(ctx context.Context, runID string, dropped models.DroppedPlatform) error {
	m.mu.Lock()
	m.Drops = append(m.Drops, dropped)
	m.mu.Unlock()
	return nil
}

// DeploymentCount returns the number of recorded deployment events.
func (m *MockAnalytics) DeploymentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Deployments)
}
