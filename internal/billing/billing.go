package billing

import (
	"context"
	"time"
)

// Provider defines the interface for payment-link issuance.
// Implementations can use Stripe, PayPal, Square, etc.
type Provider interface {
	// CreatePaymentLink issues a hosted payment link for an invoice.
	// Issuance is idempotent from the caller's side: the orchestrator
	// checks the invoice record before every call and never requests a
	// second link for the same invoice.
	//
	// A provider may persist the link out-of-band and return a response
	// without a URL; callers must then re-read the invoice record rather
	// than treat the issuance as failed.
	CreatePaymentLink(ctx context.Context, params CreatePaymentLinkParams) (*PaymentLink, error)

	// GetPaymentLink retrieves an existing payment link by id.
	GetPaymentLink(ctx context.Context, linkID string) (*PaymentLink, error)

	// DeactivatePaymentLink deactivates a link, e.g. after cancellation.
	DeactivatePaymentLink(ctx context.Context, linkID string) error
}

// CreatePaymentLinkParams contains parameters for issuing a payment link.
type CreatePaymentLinkParams struct {
	// InvoiceID is our invoice identifier; always included in metadata.
	InvoiceID string

	// InvoiceNumber is the human-readable number shown on the checkout page.
	InvoiceNumber string

	// AmountCents is the invoice total in the smallest currency unit.
	AmountCents int64

	// Currency code (ISO 4217 lowercase) - e.g., "usd".
	Currency string

	// CustomerEmail prefills the checkout page.
	CustomerEmail string

	// Metadata for filtering and reconciliation (always include invoice_id).
	Metadata map[string]string

	// IdempotencyKey prevents duplicate links when a request is retried.
	// Derived from the invoice id, not the attempt.
	IdempotencyKey string
}

// PaymentLink represents an issued payment link.
type PaymentLink struct {
	// ID is the provider's link identifier (plink_... for Stripe).
	ID string

	// URL is the hosted checkout URL. May be empty when the provider
	// persisted the link out-of-band; see Provider.CreatePaymentLink.
	URL string

	Active    bool
	Metadata  map[string]string
	CreatedAt time.Time
}
