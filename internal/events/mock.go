package events

import (
	"context"
	"sync"
)

// MockPublisher implements Publisher for testing.
type MockPublisher struct {
	mu sync.Mutex

	// PublishFunc overrides the default behavior when set.
	PublishFunc func(ctx context.Context, ev StatusChanged) error

	// Published collects every event accepted by the default behavior.
	Published []StatusChanged
}

// NewMockPublisher creates a mock that accepts every publish.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishStatusChanged(ctx context.Context, ev StatusChanged) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, ev)
	}
	m.mu.Lock()
	m.Published = append(m.Published, ev)
	m.mu.Unlock()
	return nil
}

func (m *MockPublisher) Close() {}

// Events returns a copy of the published events.
func (m *MockPublisher) Events() []StatusChanged {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StatusChanged, len(m.Published))
	copy(out, m.Published)
	return out
}
