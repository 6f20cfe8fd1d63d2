package inventory

import (
	"context"
	"fmt"
	"sync"
)

// MockDecrementer implements Decrementer for testing.
type MockDecrementer struct {
	mu sync.Mutex

	// DecrementStockFunc overrides the default behavior when set.
	DecrementStockFunc func(ctx context.Context, invoiceID string) error

	// CallLog tracks all method calls for verification in tests.
	CallLog []string
}

// NewMockDecrementer creates a mock that accepts every decrement.
func NewMockDecrementer() *MockDecrementer {
	return &MockDecrementer{}
}

func (m *MockDecrementer) DecrementStock(ctx context.Context, invoiceID string) error {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("DecrementStock(%s)", invoiceID))
	m.mu.Unlock()

	if m.DecrementStockFunc != nil {
		return m.DecrementStockFunc(ctx, invoiceID)
	}
	return nil
}

// DecrementCalls returns how many times DecrementStock was invoked.
func (m *MockDecrementer) DecrementCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, entry := range m.CallLog {
		if len(entry) >= len("DecrementStock(") && entry[:len("DecrementStock(")] == "DecrementStock(" {
			n++
		}
	}
	return n
}

// Reset clears the call log between test cases.
func (m *MockDecrementer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = nil
}
