package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/store"
	"github.com/sundin/kvitto/internal/telemetry"
)

// tombstoneRetention bounds tombstone blob growth. Digest keys embed
// their calendar date, so a tombstone stops mattering once its day has
// passed; anything older than this is pruned on the next write.
const tombstoneRetention = 48 * time.Hour

// NotificationService turns domain events and digest scans into a
// bounded, deduplicated, per-user notification list with unread
// tracking.
type NotificationService struct {
	store   store.NotificationStore
	metrics *telemetry.Metrics
	logger  *slog.Logger

	now func() time.Time
}

// NewNotificationService creates a new NotificationService instance.
func NewNotificationService(st store.NotificationStore, metrics *telemetry.Metrics, logger *slog.Logger) *NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationService{
		store:   st,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// UnreadCount is the derived unread total. Always a fresh count over the
// list, never an independently maintained counter.
func UnreadCount(list []domain.Notification) int {
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}

// ============================================================================
// Point events
// ============================================================================
// Point-event keys embed the event instant, so they are unique per
// event instance and every occurrence is shown. Three rapid failures
// produce three notifications; the dedup step only collapses digests.

// NotifyPaymentReceived records a payment-received event for the
// invoice owner. Insert failures are logged, never propagated; the paid
// transition has already committed.
func (n *NotificationService) NotifyPaymentReceived(ctx context.Context, userID string, inv *domain.Invoice) {
	n.insertEvent(ctx, userID, domain.Notification{
		Type:      domain.NotificationPaymentReceived,
		Priority:  domain.PrioritySuccess,
		Title:     "Payment received",
		Message:   fmt.Sprintf("Invoice %s was paid", inv.InvoiceNumber),
		InvoiceID: inv.ID,
	})
}

// NotifyEmailSendFailed records a dispatch failure so it stays visible
// after the triggering user dismisses the immediate error.
func (n *NotificationService) NotifyEmailSendFailed(ctx context.Context, userID string, inv *domain.Invoice) {
	n.insertEvent(ctx, userID, domain.Notification{
		Type:      domain.NotificationEmailSendFailed,
		Priority:  domain.PriorityError,
		Title:     "Email failed",
		Message:   fmt.Sprintf("Email for invoice %s could not be sent", inv.InvoiceNumber),
		InvoiceID: inv.ID,
	})
}

// NotifyStockUpdateFailed records a failed inventory decrement for
// manual reconciliation.
func (n *NotificationService) NotifyStockUpdateFailed(ctx context.Context, userID string, inv *domain.Invoice) {
	n.insertEvent(ctx, userID, domain.Notification{
		Type:      domain.NotificationStockUpdateFailed,
		Priority:  domain.PriorityWarning,
		Title:     "Stock update failed",
		Message:   fmt.Sprintf("Inventory was not decremented for invoice %s", inv.InvoiceNumber),
		InvoiceID: inv.ID,
	})
}

func (n *NotificationService) insertEvent(ctx context.Context, userID string, notif domain.Notification) {
	now := n.now()
	notif.ID = uuid.New().String()
	notif.Key = fmt.Sprintf("%s_%s_%d", notif.Type, notif.InvoiceID, now.UnixNano())
	notif.Timestamp = now

	if err := n.Insert(ctx, userID, notif); err != nil {
		n.logger.Error("failed to insert notification",
			"user_id", userID,
			"type", notif.Type,
			"error", err,
		)
	}
}

// ============================================================================
// Digests
// ============================================================================

// DigestScope separates a user's own records from the system-wide view
// elevated roles also receive.
type DigestScope string

const (
	ScopeOwn DigestScope = "own"
	ScopeAll DigestScope = "all"
)

// InsertDigest records a digest notification for one category and
// scope. The key derivation caps each category to one notification per
// user per day for a given count/scope, regardless of how many times
// the scan runs.
func (n *NotificationService) InsertDigest(ctx context.Context, userID string, typ domain.NotificationType, date string, scope DigestScope, count int, message string) error {
	priority := domain.PriorityInfo
	if typ == domain.NotificationOverdueInvoices {
		priority = domain.PriorityWarning
	}

	notif := domain.Notification{
		ID:        uuid.New().String(),
		Key:       digestKey(typ, date, scope, count),
		Type:      typ,
		Priority:  priority,
		Title:     digestTitle(typ, scope),
		Message:   message,
		Timestamp: n.now(),
		Metadata: map[string]string{
			"count": fmt.Sprintf("%d", count),
			"scope": string(scope),
		},
	}
	return n.Insert(ctx, userID, notif)
}

func digestKey(typ domain.NotificationType, date string, scope DigestScope, count int) string {
	fp := sha256.Sum256([]byte(fmt.Sprintf("%d|%s", count, scope)))
	return fmt.Sprintf("%s_%s_%s", typ, date, hex.EncodeToString(fp[:8]))
}

func digestTitle(typ domain.NotificationType, scope DigestScope) string {
	switch typ {
	case domain.NotificationOverdueInvoices:
		if scope == ScopeAll {
			return "Overdue invoices (all users)"
		}
		return "Overdue invoices"
	case domain.NotificationPendingInvestigation:
		if scope == ScopeAll {
			return "Stalled pending invoices (all users)"
		}
		return "Stalled pending invoices"
	case domain.NotificationDraftExpiry:
		return "Old drafts"
	}
	return string(typ)
}

// ============================================================================
// Insertion and mutations
// ============================================================================

// Insert applies the insertion algorithm: drop if tombstoned, drop if
// the key already exists, otherwise prepend, truncate to the retained
// maximum, and persist.
func (n *NotificationService) Insert(ctx context.Context, userID string, notif domain.Notification) error {
	tombstones, err := n.store.GetTombstones(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load tombstones: %w", err)
	}
	if _, dead := tombstones[notif.Key]; dead {
		if n.metrics != nil {
			n.metrics.NotificationsTombstone.Inc()
		}
		return nil
	}

	list, err := n.store.GetList(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load notifications: %w", err)
	}
	for _, existing := range list {
		if existing.Key == notif.Key {
			if n.metrics != nil {
				n.metrics.NotificationsDeduped.WithLabelValues(string(notif.Type)).Inc()
			}
			return nil
		}
	}

	list = append([]domain.Notification{notif}, list...)
	if len(list) > domain.MaxNotifications {
		list = list[:domain.MaxNotifications]
	}
	if err := n.store.SaveList(ctx, userID, list); err != nil {
		return fmt.Errorf("failed to save notifications: %w", err)
	}

	if n.metrics != nil {
		n.metrics.NotificationsInserted.WithLabelValues(string(notif.Type)).Inc()
	}
	return nil
}

// List returns the user's notifications and the derived unread count.
func (n *NotificationService) List(ctx context.Context, userID string) ([]domain.Notification, int, error) {
	list, err := n.store.GetList(ctx, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load notifications: %w", err)
	}
	return list, UnreadCount(list), nil
}

// MarkRead marks one notification read and returns the new unread count.
func (n *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) (int, error) {
	list, err := n.store.GetList(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load notifications: %w", err)
	}
	for i := range list {
		if list[i].ID == notificationID {
			list[i].Read = true
			break
		}
	}
	if err := n.store.SaveList(ctx, userID, list); err != nil {
		return 0, fmt.Errorf("failed to save notifications: %w", err)
	}
	return UnreadCount(list), nil
}

// MarkAllRead marks every notification read.
func (n *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	list, err := n.store.GetList(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load notifications: %w", err)
	}
	for i := range list {
		list[i].Read = true
	}
	return n.store.SaveList(ctx, userID, list)
}

// Delete removes one notification and tombstones its key so a same-day
// digest cannot regenerate it.
func (n *NotificationService) Delete(ctx context.Context, userID, notificationID string) (int, error) {
	list, err := n.store.GetList(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load notifications: %w", err)
	}

	kept := list[:0]
	var removedKey string
	for _, item := range list {
		if item.ID == notificationID {
			removedKey = item.Key
			continue
		}
		kept = append(kept, item)
	}
	if removedKey == "" {
		return UnreadCount(list), nil
	}

	if err := n.store.SaveList(ctx, userID, kept); err != nil {
		return 0, fmt.Errorf("failed to save notifications: %w", err)
	}
	if err := n.tombstone(ctx, userID, removedKey); err != nil {
		return 0, err
	}
	return UnreadCount(kept), nil
}

// ClearAll removes every notification, tombstoning all keys.
func (n *NotificationService) ClearAll(ctx context.Context, userID string) error {
	list, err := n.store.GetList(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load notifications: %w", err)
	}
	if err := n.store.SaveList(ctx, userID, nil); err != nil {
		return fmt.Errorf("failed to save notifications: %w", err)
	}

	keys := make([]string, 0, len(list))
	for _, item := range list {
		keys = append(keys, item.Key)
	}
	return n.tombstone(ctx, userID, keys...)
}

func (n *NotificationService) tombstone(ctx context.Context, userID string, keys ...string) error {
	tombstones, err := n.store.GetTombstones(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load tombstones: %w", err)
	}
	if tombstones == nil {
		tombstones = make(map[string]time.Time)
	}

	now := n.now()
	for key, at := range tombstones {
		if now.Sub(at) > tombstoneRetention {
			delete(tombstones, key)
		}
	}
	for _, key := range keys {
		tombstones[key] = now
	}
	return n.store.SaveTombstones(ctx, userID, tombstones)
}
