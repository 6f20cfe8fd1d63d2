package email

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockSender implements Sender for testing.
type MockSender struct {
	mu sync.Mutex

	// SendFunc overrides the default behavior when set.
	SendFunc func(ctx context.Context, msg *Message) (string, error)

	// Sent collects every message accepted by the default behavior.
	Sent []*Message

	// CallLog tracks all method calls for verification in tests.
	CallLog []string
}

// NewMockSender creates a mock that accepts every dispatch.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Send(ctx context.Context, msg *Message) (string, error) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("Send(%s, %s)", msg.Kind, msg.InvoiceID))
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}

	m.mu.Lock()
	m.Sent = append(m.Sent, msg)
	m.mu.Unlock()
	return "msg_" + uuid.New().String(), nil
}

// SendCalls returns how many times Send was invoked.
func (m *MockSender) SendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CallLog)
}

// Reset clears recorded state between test cases.
func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = nil
	m.CallLog = nil
}
