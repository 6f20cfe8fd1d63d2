package domain

import (
	"time"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusPending   Status = "pending"
	StatusOverdue   Status = "overdue"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known invoice status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPending, StatusOverdue, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// StockUpdateStatus tracks the external inventory decrement for a paid
// invoice. It is the idempotency marker for the decrement call: it
// progresses none→pending→{completed,failed} and never re-enters pending
// once completed. A failed update may be retried by an operator.
type StockUpdateStatus string

const (
	StockNone      StockUpdateStatus = "none"
	StockPending   StockUpdateStatus = "pending"
	StockCompleted StockUpdateStatus = "completed"
	StockFailed    StockUpdateStatus = "failed"
)

// Role identifies the capability level of a caller. Authentication is
// external; callers arrive already resolved to a user id and role.
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Actor is the caller identity attached to every guarded operation.
type Actor struct {
	UserID string
	Role   Role
}

// Invoice is the core record the lifecycle engine operates on.
// The store is atomic at single-record granularity only; fields below are
// mutated through narrow store methods, never by whole-record overwrite
// outside of draft editing.
type Invoice struct {
	ID            string
	InvoiceNumber string // human-readable, unique, immutable once assigned
	Status        Status

	// Customer fields.
	CustomerName  string
	CustomerEmail string

	// Financial fields. Total = SubtotalCents + TaxCents, recomputed on
	// every item change.
	SubtotalCents int64
	TaxRate       float64
	TaxCents      int64
	TotalCents    int64

	// PublicToken grants unauthenticated read access to the customer-facing
	// view. Generated once at creation, stable for the invoice lifetime.
	PublicToken string

	// StripePaymentLink is issued at most once, by the orchestrator.
	StripePaymentLink string

	StockUpdateStatus StockUpdateStatus

	SentAt                *time.Time
	LastInvoiceEmailSent  *time.Time
	LastReminderEmailSent *time.Time
	PaidDate              *time.Time
	DueDate               *time.Time

	// Ownership. CreatorRole is denormalized so guard checks need no user
	// store round-trip.
	UserID      string
	CreatorRole Role

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvoiceItem belongs to exactly one invoice. Items are deleted and
// recreated as a set on every edit; there is no per-item diffing.
type InvoiceItem struct {
	ID        string
	InvoiceID string

	// ProductID references an external product handle. Empty for free-text
	// lines, which carry their own Name.
	ProductID string
	Name      string

	Quantity       int32
	UnitPriceCents int64
	TotalCents     int64

	// StockSnapshot is the available stock observed when the item was
	// added. Quantity validation uses this point-in-time value, not live
	// stock.
	StockSnapshot int32
}

// MaxItemQuantity is the fixed per-line quantity ceiling.
const MaxItemQuantity = 999

// BlacklistRecord flags a customer for caution. Consulted, never mutated,
// before the first transition out of draft.
type BlacklistRecord struct {
	ID            string
	CustomerEmail string
	CustomerName  string
	Reason        string
	CreatedAt     time.Time
}

// Invoice domain errors.
var (
	ErrInvoiceNotFound     = &Error{Code: ENOTFOUND, Message: "Invoice not found"}
	ErrInvoiceNotDraft     = &Error{Code: EINVALID, Message: "Invoice must be in draft status"}
	ErrInvoiceAlreadyPaid  = &Error{Code: ECONFLICT, Message: "Invoice already paid"}
	ErrInvoiceCancelled    = &Error{Code: ECONFLICT, Message: "Invoice is cancelled"}
	ErrIllegalTransition   = &Error{Code: ECONFLICT, Message: "Invoice status does not permit this action"}
	ErrNoLineItems         = &Error{Code: EINVALID, Message: "Invoice has no line items"}
	ErrMissingCustomerEmail = &Error{Code: EINVALID, Message: "Customer email is required before sending"}
	ErrBlacklistMatch      = &Error{Code: EBLACKLISTED, Message: "Customer matches a blacklist record; confirm to proceed"}
	ErrPaymentLinkFailed   = &Error{Code: EUNAVAILABLE, Message: "Payment link could not be issued; try again"}
	ErrStockUpdateResolved = &Error{Code: ECONFLICT, Message: "Stock update already completed"}
)
