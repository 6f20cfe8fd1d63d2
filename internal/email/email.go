// Package email dispatches transactional invoice emails through the
// mail service's HTTP API. Dispatch carries a hard 35 second timeout;
// timeouts and network failures are reported as inconclusive so callers
// can retry without burning the resend cooldown.
package email

import "context"

// Kind distinguishes the transactional templates the mail service renders.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindReminder Kind = "reminder"
)

// Message is the dispatch request for a single invoice email.
type Message struct {
	Kind          Kind
	InvoiceID     string
	InvoiceNumber string
	Recipient     string
	PublicToken   string
	TotalCents    int64
}

// Sender defines the interface for dispatching invoice emails.
type Sender interface {
	// Send dispatches an email message.
	// Returns the message ID from the mail service (if available).
	Send(ctx context.Context, msg *Message) (string, error)
}
