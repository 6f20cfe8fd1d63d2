// Package store defines the persistence boundary of the lifecycle engine.
//
// The backing store is treated as an external transactional record store:
// atomic at single-record granularity only. Mutations therefore go through
// narrow methods (status update, payment link set, mark sent) rather than
// whole-record overwrites, so a partially failed orchestration can never
// half-apply an unrelated field.
package store

import (
	"context"
	"time"

	"github.com/sundin/kvitto/internal/domain"
)

// InvoiceStore provides access to invoice and invoice item records.
type InvoiceStore interface {
	// CreateInvoice inserts a new invoice record. The caller assigns ID,
	// InvoiceNumber and PublicToken before insert; the store enforces
	// invoice number uniqueness.
	CreateInvoice(ctx context.Context, inv *domain.Invoice) error

	// GetInvoice retrieves an invoice by ID.
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)

	// GetInvoiceByNumber retrieves an invoice by its human-readable number.
	GetInvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error)

	// GetInvoiceByToken retrieves an invoice by its public token, for the
	// customer-facing read path.
	GetInvoiceByToken(ctx context.Context, token string) (*domain.Invoice, error)

	// UpdateDraft overwrites the editable fields of a draft invoice
	// (customer and financial fields). Status, token, payment link and
	// timestamps are not touched.
	UpdateDraft(ctx context.Context, inv *domain.Invoice) error

	// DeleteInvoice removes an invoice and its items.
	DeleteInvoice(ctx context.Context, id string) error

	// ReplaceItems deletes and recreates the invoice's item set.
	ReplaceItems(ctx context.Context, invoiceID string, items []domain.InvoiceItem) error

	// GetItems returns the invoice's line items.
	GetItems(ctx context.Context, invoiceID string) ([]domain.InvoiceItem, error)

	// UpdateStatus sets the invoice status.
	UpdateStatus(ctx context.Context, id string, status domain.Status) error

	// SetPaymentLink records the issued payment link URL.
	SetPaymentLink(ctx context.Context, id string, url string) error

	// MarkSent sets status=sent, sent_at and last_invoice_email_sent in
	// one record write. Used only after a confirmed email dispatch.
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// SetLastReminderSent records a reminder email dispatch.
	SetLastReminderSent(ctx context.Context, id string, at time.Time) error

	// MarkPaid sets status=paid and paid_date.
	MarkPaid(ctx context.Context, id string, paidAt time.Time) error

	// SetStockUpdateStatus progresses the inventory decrement marker.
	SetStockUpdateStatus(ctx context.Context, id string, status domain.StockUpdateStatus) error

	// ListByStatus returns all invoices in the given status.
	ListByStatus(ctx context.Context, status domain.Status) ([]domain.Invoice, error)

	// ListByOwnerAndStatus returns the owner's invoices in the given status.
	ListByOwnerAndStatus(ctx context.Context, userID string, status domain.Status) ([]domain.Invoice, error)

	// NextInvoiceNumber allocates the next unique invoice number.
	NextInvoiceNumber(ctx context.Context) (string, error)
}

// BlacklistStore is a read-only view of flagged customers.
type BlacklistStore interface {
	// FindMatch returns the first record whose customer email OR name
	// matches (exact, case-insensitive). Returns nil, nil when no match.
	FindMatch(ctx context.Context, email, name string) (*domain.BlacklistRecord, error)
}

// NotificationStore persists the three per-user notification blobs:
// the ordered list, the deleted-key tombstone set, and the last-digest-date
// marker. Blobs are independent and scoped by user id; there is no
// cross-user sharing.
type NotificationStore interface {
	GetList(ctx context.Context, userID string) ([]domain.Notification, error)
	SaveList(ctx context.Context, userID string, list []domain.Notification) error

	// Tombstones map a deleted notification key to the deletion time, so
	// stale entries can be pruned once their digest day has passed.
	GetTombstones(ctx context.Context, userID string) (map[string]time.Time, error)
	SaveTombstones(ctx context.Context, userID string, tombstones map[string]time.Time) error

	// The last-digest-date marker is a calendar date string (2006-01-02)
	// in the user's local zone; empty when no digest has run yet.
	GetLastDigestDate(ctx context.Context, userID string) (string, error)
	SetLastDigestDate(ctx context.Context, userID string, date string) error
}
