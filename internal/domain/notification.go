package domain

import "time"

// NotificationType classifies a notification by the event or digest
// category that produced it.
type NotificationType string

const (
	// Point events - one notification per event instance.
	NotificationPaymentReceived  NotificationType = "payment_received"
	NotificationEmailSendFailed  NotificationType = "email_send_failed"
	NotificationStockUpdateFailed NotificationType = "stock_update_failed"

	// Digest categories - at most one per user per calendar day.
	NotificationOverdueInvoices      NotificationType = "overdue_invoices"
	NotificationPendingInvestigation NotificationType = "pending_investigation"
	NotificationDraftExpiry          NotificationType = "draft_deletion_warning"
)

// Digest reports whether t is a once-per-day digest category.
func (t NotificationType) Digest() bool {
	switch t {
	case NotificationOverdueInvoices, NotificationPendingInvestigation, NotificationDraftExpiry:
		return true
	}
	return false
}

// Priority is the display severity of a notification.
type Priority string

const (
	PriorityError   Priority = "error"
	PriorityWarning Priority = "warning"
	PrioritySuccess Priority = "success"
	PriorityInfo    Priority = "info"
)

// Notification is a persisted, per-user notification record.
type Notification struct {
	ID string `json:"id"`

	// Key is the deduplication key. Digest categories derive it from the
	// type, calendar date and a stable fingerprint so repeated scans
	// collapse to one entry; point events embed the event instant and are
	// always inserted.
	Key string `json:"notificationKey"`

	Type      NotificationType  `json:"type"`
	Priority  Priority          `json:"priority"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Read      bool              `json:"read"`
	Timestamp time.Time         `json:"timestamp"`
	ActionURL string            `json:"actionUrl,omitempty"`
	InvoiceID string            `json:"invoiceId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MaxNotifications is the retained list length per user; older entries are
// truncated on insert.
const MaxNotifications = 50
