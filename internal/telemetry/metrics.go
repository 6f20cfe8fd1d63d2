package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for invoice lifecycle observability.
type Metrics struct {
	// Invoice lifecycle
	InvoicesCreated     *prometheus.CounterVec
	StatusTransitions   *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
	InvoiceValue        *prometheus.HistogramVec

	// Send path
	PaymentLinksIssued    prometheus.Counter
	PaymentLinkFailures   prometheus.Counter
	EmailsSent            *prometheus.CounterVec
	EmailsFailed          *prometheus.CounterVec
	EmailsRateLimited     prometheus.Counter
	BlacklistBlocks       prometheus.Counter
	BlacklistOverrides    prometheus.Counter

	// Paid path
	StockUpdates *prometheus.CounterVec

	// Notifications
	NotificationsInserted  *prometheus.CounterVec
	NotificationsDeduped   *prometheus.CounterVec
	NotificationsTombstone prometheus.Counter

	// Digest
	DigestRuns    *prometheus.CounterVec
	DigestSkipped prometheus.Counter
}

// NewMetrics creates and registers all invoice metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "kvitto"
	}

	subsystem := "invoices"

	m := &Metrics{
		InvoicesCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "created_total",
				Help:      "Total invoices created",
			},
			[]string{"creator_role"},
		),
		StatusTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "status_transitions_total",
				Help:      "Total applied status transitions",
			},
			[]string{"from", "to"},
		),
		TransitionsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "transitions_rejected_total",
				Help:      "Total transitions rejected by guards or validation",
			},
			[]string{"reason"}, // reason: guard, validation, cooldown, blacklist
		),
		InvoiceValue: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "value_cents",
				Help:      "Invoice total at send time, in cents",
				Buckets:   prometheus.ExponentialBuckets(500, 4, 8),
			},
			[]string{"status"},
		),
		PaymentLinksIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_links_issued_total",
				Help:      "Total payment links issued",
			},
		),
		PaymentLinkFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_link_failures_total",
				Help:      "Total payment link issuance failures",
			},
		),
		EmailsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_sent_total",
				Help:      "Total invoice emails accepted by the mail service",
			},
			[]string{"kind"}, // kind: invoice, reminder
		),
		EmailsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_failed_total",
				Help:      "Total invoice email dispatch failures",
			},
			[]string{"kind", "outcome"}, // outcome: rejected, inconclusive
		),
		EmailsRateLimited: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "emails_rate_limited_total",
				Help:      "Total sends rejected by the resend cooldown",
			},
		),
		BlacklistBlocks: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "blacklist_blocks_total",
				Help:      "Total first sends blocked by a blacklist match",
			},
		),
		BlacklistOverrides: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "blacklist_overrides_total",
				Help:      "Total blacklist matches overridden by the caller",
			},
		),
		StockUpdates: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stock_updates_total",
				Help:      "Total inventory decrement attempts by outcome",
			},
			[]string{"outcome"}, // outcome: completed, failed, skipped
		),
		NotificationsInserted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "inserted_total",
				Help:      "Total notifications inserted",
			},
			[]string{"type"},
		),
		NotificationsDeduped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "deduped_total",
				Help:      "Total inserts dropped as duplicate keys",
			},
			[]string{"type"},
		),
		NotificationsTombstone: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notifications",
				Name:      "tombstoned_total",
				Help:      "Total inserts suppressed by a deleted-key tombstone",
			},
		),
		DigestRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "digest",
				Name:      "runs_total",
				Help:      "Total digest scans executed",
			},
			[]string{"trigger"}, // trigger: startup, schedule
		),
		DigestSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "digest",
				Name:      "skipped_total",
				Help:      "Total digest wakes skipped because today already ran",
			},
		),
	}

	return m
}
