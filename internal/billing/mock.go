package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockProvider is a mock payment-link provider for testing.
// Simulates successful link issuance without calling the Stripe API.
type MockProvider struct {
	// CreatePaymentLinkFunc allows customizing link creation behavior
	CreatePaymentLinkFunc func(ctx context.Context, params CreatePaymentLinkParams) (*PaymentLink, error)

	// Links stores created links for retrieval
	Links map[string]*PaymentLink

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// NewMockProvider creates a new mock payment-link provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Links:   make(map[string]*PaymentLink),
		CallLog: []string{},
	}
}

// CreatePaymentLink creates a mock payment link.
func (m *MockProvider) CreatePaymentLink(ctx context.Context, params CreatePaymentLinkParams) (*PaymentLink, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreatePaymentLink(%s, %d)", params.InvoiceID, params.AmountCents))

	if m.CreatePaymentLinkFunc != nil {
		return m.CreatePaymentLinkFunc(ctx, params)
	}

	link := &PaymentLink{
		ID:        "plink_" + uuid.New().String(),
		URL:       "https://pay.example.com/" + params.InvoiceID,
		Active:    true,
		Metadata:  params.Metadata,
		CreatedAt: time.Now(),
	}

	m.Links[link.ID] = link
	return link, nil
}

// GetPaymentLink retrieves a previously created mock link.
func (m *MockProvider) GetPaymentLink(ctx context.Context, linkID string) (*PaymentLink, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("GetPaymentLink(%s)", linkID))

	link, ok := m.Links[linkID]
	if !ok {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

// DeactivatePaymentLink marks a mock link inactive.
func (m *MockProvider) DeactivatePaymentLink(ctx context.Context, linkID string) error {
	m.CallLog = append(m.CallLog, fmt.Sprintf("DeactivatePaymentLink(%s)", linkID))

	link, ok := m.Links[linkID]
	if !ok {
		return ErrLinkNotFound
	}
	link.Active = false
	return nil
}

// CreateCalls returns how many times CreatePaymentLink was invoked.
func (m *MockProvider) CreateCalls() int {
	n := 0
	for _, call := range m.CallLog {
		if len(call) >= 17 && call[:17] == "CreatePaymentLink" {
			n++
		}
	}
	return n
}
