package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/store"
	"github.com/sundin/kvitto/internal/telemetry"
)

// Digest classification thresholds.
const (
	pendingInvestigationAge = 72 * time.Hour
	draftWarningAge         = 24 * time.Hour
)

// DigestService scans invoices and feeds the notification generator
// with once-per-day digest summaries.
type DigestService struct {
	invoices      store.InvoiceStore
	notifications store.NotificationStore
	notifier      *NotificationService
	metrics       *telemetry.Metrics
	logger        *slog.Logger

	now func() time.Time
}

// NewDigestService creates a new DigestService instance.
func NewDigestService(invoices store.InvoiceStore, notifications store.NotificationStore, notifier *NotificationService, metrics *telemetry.Metrics, logger *slog.Logger) *DigestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DigestService{
		invoices:      invoices,
		notifications: notifications,
		notifier:      notifier,
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Run executes one digest scan for the given user. Idempotent per
// calendar day: a persisted last-digest-date marker short-circuits
// repeat runs. Two concurrent sessions can both pass the marker check;
// that race is accepted because identical scans derive identical dedup
// keys and collapse to one notification anyway.
func (d *DigestService) Run(ctx context.Context, actor domain.Actor) error {
	now := d.now()
	date := now.Format("2006-01-02")

	last, err := d.notifications.GetLastDigestDate(ctx, actor.UserID)
	if err != nil {
		return fmt.Errorf("failed to read last digest date: %w", err)
	}
	if last == date {
		if d.metrics != nil {
			d.metrics.DigestSkipped.Inc()
		}
		return nil
	}

	if err := d.scan(ctx, actor, now, date); err != nil {
		return err
	}

	if err := d.notifications.SetLastDigestDate(ctx, actor.UserID, date); err != nil {
		return fmt.Errorf("failed to record digest date: %w", err)
	}
	return nil
}

func (d *DigestService) scan(ctx context.Context, actor domain.Actor, now time.Time, date string) error {
	elevated := actor.Role == domain.RoleAdmin || actor.Role == domain.RoleSuperAdmin

	// Overdue: everything currently in the overdue status.
	overdue, err := d.invoices.ListByOwnerAndStatus(ctx, actor.UserID, domain.StatusOverdue)
	if err != nil {
		return fmt.Errorf("failed to list overdue invoices: %w", err)
	}
	if len(overdue) > 0 {
		d.insert(ctx, actor.UserID, domain.NotificationOverdueInvoices, date, ScopeOwn, len(overdue),
			fmt.Sprintf("You have %d overdue invoice(s)", len(overdue)))
	}

	// Pending investigation: pending and stalled past the threshold.
	pending, err := d.invoices.ListByOwnerAndStatus(ctx, actor.UserID, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to list pending invoices: %w", err)
	}
	stalled := countOlderThan(pending, now, pendingInvestigationAge)
	if stalled > 0 {
		d.insert(ctx, actor.UserID, domain.NotificationPendingInvestigation, date, ScopeOwn, stalled,
			fmt.Sprintf("%d pending invoice(s) have stalled for 3+ days", stalled))
	}

	// Draft warnings are own-records only, regardless of role.
	drafts, err := d.invoices.ListByOwnerAndStatus(ctx, actor.UserID, domain.StatusDraft)
	if err != nil {
		return fmt.Errorf("failed to list draft invoices: %w", err)
	}
	old := countOlderThan(drafts, now, draftWarningAge)
	if old > 0 {
		d.insert(ctx, actor.UserID, domain.NotificationDraftExpiry, date, ScopeOwn, old,
			fmt.Sprintf("%d draft invoice(s) are older than a day", old))
	}

	// Elevated roles also see others' records, aggregated separately.
	if elevated {
		allOverdue, err := d.invoices.ListByStatus(ctx, domain.StatusOverdue)
		if err != nil {
			return fmt.Errorf("failed to list overdue invoices: %w", err)
		}
		others := countOthers(allOverdue, actor.UserID)
		if others > 0 {
			d.insert(ctx, actor.UserID, domain.NotificationOverdueInvoices, date, ScopeAll, others,
				fmt.Sprintf("%d overdue invoice(s) across other users", others))
		}

		allPending, err := d.invoices.ListByStatus(ctx, domain.StatusPending)
		if err != nil {
			return fmt.Errorf("failed to list pending invoices: %w", err)
		}
		othersStalled := 0
		for _, inv := range allPending {
			if inv.UserID != actor.UserID && now.Sub(inv.CreatedAt) >= pendingInvestigationAge {
				othersStalled++
			}
		}
		if othersStalled > 0 {
			d.insert(ctx, actor.UserID, domain.NotificationPendingInvestigation, date, ScopeAll, othersStalled,
				fmt.Sprintf("%d pending invoice(s) across other users have stalled", othersStalled))
		}
	}

	if d.metrics != nil {
		d.metrics.DigestRuns.WithLabelValues("schedule").Inc()
	}
	return nil
}

func (d *DigestService) insert(ctx context.Context, userID string, typ domain.NotificationType, date string, scope DigestScope, count int, message string) {
	if err := d.notifier.InsertDigest(ctx, userID, typ, date, scope, count, message); err != nil {
		d.logger.Error("failed to insert digest notification",
			"user_id", userID,
			"type", typ,
			"error", err,
		)
	}
}

func countOlderThan(list []domain.Invoice, now time.Time, age time.Duration) int {
	n := 0
	for _, inv := range list {
		if now.Sub(inv.CreatedAt) >= age {
			n++
		}
	}
	return n
}

func countOthers(list []domain.Invoice, userID string) int {
	n := 0
	for _, inv := range list {
		if inv.UserID != userID {
			n++
		}
	}
	return n
}
