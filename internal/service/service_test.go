package service

import (
	"log/slog"
	"testing"
	"time"

	"github.com/sundin/kvitto/internal/billing"
	"github.com/sundin/kvitto/internal/cooldown"
	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/email"
	"github.com/sundin/kvitto/internal/events"
	"github.com/sundin/kvitto/internal/inventory"
	"github.com/sundin/kvitto/internal/store"
	"github.com/sundin/kvitto/internal/telemetry"
	"github.com/stretchr/testify/require"
)

// Registered once per test binary; the default Prometheus registry
// rejects duplicate collectors.
var testMetrics = telemetry.NewMetrics("kvitto_test")

// engine bundles a fully wired invoice service with its mocks.
type engine struct {
	svc   *invoiceService
	store *store.MemoryStore

	billing   *billing.MockProvider
	email     *email.MockSender
	stock     *inventory.MockDecrementer
	publisher *events.MockPublisher

	notifier *NotificationService
	clock    *fakeClock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	mem := store.NewMemoryStore()
	mockBilling := billing.NewMockProvider()
	mockEmail := email.NewMockSender()
	mockStock := inventory.NewMockDecrementer()
	mockPublisher := events.NewMockPublisher()

	clock := &fakeClock{t: time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)}
	logger := slog.Default()

	notifier := NewNotificationService(mem, testMetrics, logger)
	notifier.now = clock.now

	tracker := cooldown.NewTracker()
	tracker.Now = clock.now

	svc, err := NewInvoiceService(InvoiceServiceConfig{
		Invoices:        mem,
		Blacklist:       mem,
		Notifier:        notifier,
		BillingProvider: mockBilling,
		EmailSender:     mockEmail,
		Stock:           mockStock,
		Publisher:       mockPublisher,
		Cooldowns:       tracker,
		Metrics:         testMetrics,
		Logger:          logger,
	})
	require.NoError(t, err)

	impl := svc.(*invoiceService)
	impl.now = clock.now

	return &engine{
		svc:       impl,
		store:     mem,
		billing:   mockBilling,
		email:     mockEmail,
		stock:     mockStock,
		publisher: mockPublisher,
		notifier:  notifier,
		clock:     clock,
	}
}

func employee(id string) domain.Actor {
	return domain.Actor{UserID: id, Role: domain.RoleEmployee}
}

func twoLineItems() []ItemParams {
	return []ItemParams{
		{ProductID: "prod_1", Name: "Widget", Quantity: 2, UnitPriceCents: 2500, StockSnapshot: 10},
		{Name: "Setup fee", Quantity: 1, UnitPriceCents: 5000},
	}
}

func (e *engine) draft(t *testing.T, actor domain.Actor) *domain.Invoice {
	t.Helper()
	inv, err := e.svc.CreateDraft(t.Context(), actor, DraftParams{
		CustomerName:  "Acme Corp",
		CustomerEmail: "billing@acme.example",
		Items:         twoLineItems(),
	})
	require.NoError(t, err)
	return inv
}

// sent creates a draft and moves it to sent.
func (e *engine) sent(t *testing.T, actor domain.Actor) *domain.Invoice {
	t.Helper()
	inv := e.draft(t, actor)
	res, err := e.svc.ReadyToSend(t.Context(), actor, inv.ID, SendOptions{})
	require.NoError(t, err)
	return res.Invoice
}
