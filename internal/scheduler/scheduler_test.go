package scheduler

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sundin/kvitto/internal/billing"
	"github.com/sundin/kvitto/internal/cooldown"
	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/email"
	"github.com/sundin/kvitto/internal/inventory"
	"github.com/sundin/kvitto/internal/service"
	"github.com/sundin/kvitto/internal/store"
	"github.com/sundin/kvitto/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMetrics = telemetry.NewMetrics("kvitto_scheduler_test")

type fixture struct {
	scheduler *Scheduler
	store     *store.MemoryStore
	notifier  *service.NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemoryStore()

	notifier := service.NewNotificationService(mem, testMetrics, nil)
	digest := service.NewDigestService(mem, mem, notifier, testMetrics, nil)

	invoices, err := service.NewInvoiceService(service.InvoiceServiceConfig{
		Invoices:        mem,
		Blacklist:       mem,
		Notifier:        notifier,
		BillingProvider: billing.NewMockProvider(),
		EmailSender:     email.NewMockSender(),
		Stock:           inventory.NewMockDecrementer(),
		Cooldowns:       cooldown.NewTracker(),
		Metrics:         testMetrics,
	})
	require.NoError(t, err)

	s, err := New(Config{
		Invoices: invoices,
		Digest:   digest,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	return &fixture{scheduler: s, store: mem, notifier: notifier}
}

func seedInvoice(t *testing.T, mem *store.MemoryStore, userID string, status domain.Status, due *time.Time) {
	t.Helper()
	inv := &domain.Invoice{
		ID:            uuid.New().String(),
		InvoiceNumber: "INV-" + uuid.New().String()[:8],
		Status:        status,
		UserID:        userID,
		CreatorRole:   domain.RoleEmployee,
		DueDate:       due,
		CreatedAt:     time.Now().Add(-time.Hour),
		UpdatedAt:     time.Now().Add(-time.Hour),
	}
	require.NoError(t, mem.CreateInvoice(t.Context(), inv))
}

func TestStartSessionRunsDigestImmediately(t *testing.T) {
	f := newFixture(t)
	seedInvoice(t, f.store, "user_1", domain.StatusOverdue, nil)

	f.scheduler.StartSession(t.Context(), domain.Actor{UserID: "user_1", Role: domain.RoleEmployee})

	list, unread, err := f.notifier.List(t.Context(), "user_1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.NotificationOverdueInvoices, list[0].Type)
	assert.Equal(t, 1, unread)
}

func TestTimedWakeSweepsThenScans(t *testing.T) {
	f := newFixture(t)
	pastDue := time.Now().Add(-48 * time.Hour)
	seedInvoice(t, f.store, "user_1", domain.StatusSent, &pastDue)

	f.scheduler.mu.Lock()
	f.scheduler.sessions["user_1"] = domain.Actor{UserID: "user_1", Role: domain.RoleEmployee}
	f.scheduler.mu.Unlock()

	f.scheduler.runDigests()

	// The sweep moved the invoice to overdue before the scan classified,
	// so the digest sees it in the same wake.
	invoices, err := f.store.ListByStatus(t.Context(), domain.StatusOverdue)
	require.NoError(t, err)
	require.Len(t, invoices, 1)

	list, _, err := f.notifier.List(t.Context(), "user_1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.NotificationOverdueInvoices, list[0].Type)
}

func TestStopSessionExcludesUserFromWake(t *testing.T) {
	f := newFixture(t)
	seedInvoice(t, f.store, "user_1", domain.StatusOverdue, nil)

	f.scheduler.mu.Lock()
	f.scheduler.sessions["user_1"] = domain.Actor{UserID: "user_1", Role: domain.RoleEmployee}
	f.scheduler.mu.Unlock()
	f.scheduler.StopSession("user_1")

	f.scheduler.runDigests()

	list, _, err := f.notifier.List(t.Context(), "user_1")
	require.NoError(t, err)
	assert.Empty(t, list)
}
