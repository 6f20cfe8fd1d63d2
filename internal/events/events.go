// Package events publishes invoice lifecycle events so interested
// clients can refetch after an external status change.
package events

import (
	"context"
	"time"
)

// Subject names for published events.
const (
	SubjectInvoiceStatusChanged = "invoice.status.changed"
)

// StatusChanged is emitted after an invoice's status has been persisted.
// Consumers treat it as a hint to refetch; duplicates are harmless.
type StatusChanged struct {
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	UserID        string    `json:"user_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher emits domain events. Publishing is best-effort: a failed
// publish never blocks or reverts the state transition that produced it.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, ev StatusChanged) error
	Close()
}
