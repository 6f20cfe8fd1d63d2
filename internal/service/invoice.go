package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sundin/kvitto/internal/billing"
	"github.com/sundin/kvitto/internal/cooldown"
	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/email"
	"github.com/sundin/kvitto/internal/events"
	"github.com/sundin/kvitto/internal/inventory"
	"github.com/sundin/kvitto/internal/store"
	"github.com/sundin/kvitto/internal/telemetry"
)

// InvoiceService provides the invoice lifecycle operations: draft
// editing, the guarded status transitions, and the orchestrated send
// and mark-as-paid flows.
type InvoiceService interface {
	// CreateDraft creates a new draft invoice with its line items.
	// Assigns the invoice number and public token; both are immutable
	// afterwards.
	CreateDraft(ctx context.Context, actor domain.Actor, params DraftParams) (*domain.Invoice, error)

	// SaveDraft overwrites a draft's customer fields and replaces its item
	// set, recomputing totals. Only draft invoices are editable.
	SaveDraft(ctx context.Context, actor domain.Actor, invoiceID string, params DraftParams) (*domain.Invoice, error)

	// DeleteDraft deletes a draft invoice and its items.
	DeleteDraft(ctx context.Context, actor domain.Actor, invoiceID string) error

	// ReadyToSend transitions draft→sent: validates the invoice, runs the
	// blacklist check, issues the payment link if absent, dispatches the
	// invoice email, and persists the transition.
	ReadyToSend(ctx context.Context, actor domain.Actor, invoiceID string, opts SendOptions) (*SendResult, error)

	// Resend re-dispatches the invoice email for a sent, pending or
	// overdue invoice, subject to the resend cooldown.
	Resend(ctx context.Context, actor domain.Actor, invoiceID string, opts SendOptions) (*SendResult, error)

	// SendReminder dispatches a payment reminder email, subject to its own
	// cooldown window.
	SendReminder(ctx context.Context, actor domain.Actor, invoiceID string) error

	// MarkPaid transitions to paid and runs the inventory decrement at
	// most once. The paid status never rolls back on decrement failure.
	MarkPaid(ctx context.Context, actor domain.Actor, invoiceID string) (*domain.Invoice, error)

	// RetryStockUpdate re-runs a failed inventory decrement for a paid
	// invoice. Completed updates are never re-run.
	RetryStockUpdate(ctx context.Context, actor domain.Actor, invoiceID string) error

	// Cancel moves a non-paid invoice to cancelled. Externally driven,
	// e.g. by a payment lapse; not guarded by ownership.
	Cancel(ctx context.Context, invoiceID string) error

	// SweepOverdue moves sent and pending invoices past their due date to
	// overdue. Returns the number of invoices transitioned.
	SweepOverdue(ctx context.Context) (int, error)

	// GetInvoice retrieves an invoice with its items, guarded by
	// ownership.
	GetInvoice(ctx context.Context, actor domain.Actor, invoiceID string) (*domain.Invoice, []domain.InvoiceItem, error)

	// GetInvoiceByToken retrieves an invoice for the customer-facing view.
	// No actor guard; the token is the capability.
	GetInvoiceByToken(ctx context.Context, token string) (*domain.Invoice, error)
}

// DraftParams carries the editable fields of a draft invoice.
type DraftParams struct {
	CustomerName  string
	CustomerEmail string
	TaxRate       float64
	DueDate       *time.Time
	Items         []ItemParams
}

// ItemParams is one line item in a draft edit.
type ItemParams struct {
	// ProductID references an external product; empty for free-text lines.
	ProductID      string
	Name           string
	Quantity       int32
	UnitPriceCents int64
	StockSnapshot  int32
}

// SendOptions tunes the send/resend flow.
type SendOptions struct {
	// OverrideBlacklist is the one-shot confirmation bypassing a
	// blacklist match. It is never persisted.
	OverrideBlacklist bool

	// ProceedOnEmailFailure promotes the status to sent even when the
	// mail service definitively rejected the dispatch, so the user can
	// share the payment link manually. The cooldown window is not
	// consumed and sent_at stays unset.
	ProceedOnEmailFailure bool
}

// SendResult reports what the send flow accomplished.
type SendResult struct {
	Invoice *domain.Invoice

	// PaymentLinkIssued is true when this call issued a new link (as
	// opposed to reusing an existing one).
	PaymentLinkIssued bool

	// EmailSent is true only on a confirmed 200 from the mail service.
	// The status may still be sent when false; see
	// SendOptions.ProceedOnEmailFailure.
	EmailSent bool
}

type invoiceService struct {
	invoices  store.InvoiceStore
	blacklist store.BlacklistStore
	notifier  *NotificationService

	billingProvider billing.Provider
	emailSender     email.Sender
	stock           inventory.Decrementer
	publisher       events.Publisher

	cooldowns *cooldown.Tracker
	validate  *validator.Validate
	metrics   *telemetry.Metrics
	logger    *slog.Logger

	now func() time.Time
}

// InvoiceServiceConfig wires the invoice service's collaborators.
type InvoiceServiceConfig struct {
	Invoices  store.InvoiceStore
	Blacklist store.BlacklistStore
	Notifier  *NotificationService

	BillingProvider billing.Provider
	EmailSender     email.Sender
	Stock           inventory.Decrementer
	Publisher       events.Publisher

	Cooldowns *cooldown.Tracker
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger // Optional: defaults to slog.Default()
}

// NewInvoiceService creates a new InvoiceService instance.
func NewInvoiceService(cfg InvoiceServiceConfig) (InvoiceService, error) {
	if cfg.Invoices == nil {
		return nil, fmt.Errorf("invoice store is required")
	}
	if cfg.Blacklist == nil {
		return nil, fmt.Errorf("blacklist store is required")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if cfg.BillingProvider == nil {
		return nil, fmt.Errorf("billing provider is required")
	}
	if cfg.EmailSender == nil {
		return nil, fmt.Errorf("email sender is required")
	}
	if cfg.Stock == nil {
		return nil, fmt.Errorf("inventory decrementer is required")
	}

	cooldowns := cfg.Cooldowns
	if cooldowns == nil {
		cooldowns = cooldown.NewTracker()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &invoiceService{
		invoices:        cfg.Invoices,
		blacklist:       cfg.Blacklist,
		notifier:        cfg.Notifier,
		billingProvider: cfg.BillingProvider,
		emailSender:     cfg.EmailSender,
		stock:           cfg.Stock,
		publisher:       cfg.Publisher,
		cooldowns:       cooldowns,
		validate:        validator.New(),
		metrics:         cfg.Metrics,
		logger:          logger,
		now:             time.Now,
	}, nil
}

// ============================================================================
// Draft editing
// ============================================================================

func (s *invoiceService) CreateDraft(ctx context.Context, actor domain.Actor, params DraftParams) (*domain.Invoice, error) {
	const op = "InvoiceService.CreateDraft"

	if err := s.validateItems(op, params.Items); err != nil {
		return nil, err
	}

	number, err := s.invoices.NextInvoiceNumber(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to allocate invoice number")
	}

	token, err := newPublicToken()
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to generate public token")
	}

	now := s.now()
	inv := &domain.Invoice{
		ID:                uuid.New().String(),
		InvoiceNumber:     number,
		Status:            domain.StatusDraft,
		CustomerName:      params.CustomerName,
		CustomerEmail:     params.CustomerEmail,
		TaxRate:           params.TaxRate,
		PublicToken:       token,
		StockUpdateStatus: domain.StockNone,
		DueDate:           params.DueDate,
		UserID:            actor.UserID,
		CreatorRole:       actor.Role,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	items := buildItems(inv.ID, params.Items)
	applyTotals(inv, items)

	if err := s.invoices.CreateInvoice(ctx, inv); err != nil {
		return nil, domain.Internal(err, op, "Failed to create invoice")
	}
	if err := s.invoices.ReplaceItems(ctx, inv.ID, items); err != nil {
		return nil, domain.Internal(err, op, "Failed to save line items")
	}

	if s.metrics != nil {
		s.metrics.InvoicesCreated.WithLabelValues(string(actor.Role)).Inc()
	}
	s.logger.Info("invoice draft created",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"user_id", actor.UserID,
	)

	return inv, nil
}

func (s *invoiceService) SaveDraft(ctx context.Context, actor domain.Actor, invoiceID string, params DraftParams) (*domain.Invoice, error) {
	const op = "InvoiceService.SaveDraft"

	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if !canManage(actor, inv) {
		return nil, ErrNotAuthorized
	}
	if inv.Status != domain.StatusDraft {
		return nil, domain.ErrInvoiceNotDraft
	}
	if err := s.validateItems(op, params.Items); err != nil {
		return nil, err
	}

	inv.CustomerName = params.CustomerName
	inv.CustomerEmail = params.CustomerEmail
	inv.TaxRate = params.TaxRate
	inv.DueDate = params.DueDate
	inv.UpdatedAt = s.now()

	items := buildItems(inv.ID, params.Items)
	applyTotals(inv, items)

	if err := s.invoices.UpdateDraft(ctx, inv); err != nil {
		return nil, domain.Internal(err, op, "Failed to update invoice")
	}
	if err := s.invoices.ReplaceItems(ctx, inv.ID, items); err != nil {
		return nil, domain.Internal(err, op, "Failed to save line items")
	}

	return inv, nil
}

func (s *invoiceService) DeleteDraft(ctx context.Context, actor domain.Actor, invoiceID string) error {
	const op = "InvoiceService.DeleteDraft"

	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.ErrInvoiceNotFound
	}
	if !canManage(actor, inv) {
		return ErrNotAuthorized
	}
	if inv.Status != domain.StatusDraft {
		return domain.ErrInvoiceNotDraft
	}

	if err := s.invoices.DeleteInvoice(ctx, invoiceID); err != nil {
		return domain.Internal(err, op, "Failed to delete invoice")
	}

	s.logger.Info("invoice draft deleted",
		"invoice_id", invoiceID,
		"user_id", actor.UserID,
	)
	return nil
}

// ============================================================================
// Send and resend
// ============================================================================

func (s *invoiceService) ReadyToSend(ctx context.Context, actor domain.Actor, invoiceID string, opts SendOptions) (*SendResult, error) {
	const op = "InvoiceService.ReadyToSend"

	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if !canManage(actor, inv) {
		s.countRejection("guard")
		return nil, ErrNotAuthorized
	}
	if inv.Status != domain.StatusDraft {
		s.countRejection("guard")
		return nil, domain.ErrIllegalTransition
	}

	items, err := s.invoices.GetItems(ctx, invoiceID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load line items")
	}
	if len(items) == 0 {
		s.countRejection("validation")
		return nil, domain.ErrNoLineItems
	}
	if inv.CustomerEmail == "" {
		s.countRejection("validation")
		return nil, domain.ErrMissingCustomerEmail
	}
	if err := s.validate.Var(inv.CustomerEmail, "required,email"); err != nil {
		s.countRejection("validation")
		return nil, domain.NewValidationError(op, "customer_email", "Customer email is not a valid address")
	}

	// Blacklist check gates only the first transition out of draft. The
	// override is a one-shot confirmation, never persisted.
	match, err := s.blacklist.FindMatch(ctx, inv.CustomerEmail, inv.CustomerName)
	if err != nil {
		return nil, domain.Internal(err, op, "Blacklist check failed")
	}
	if match != nil {
		if !opts.OverrideBlacklist {
			s.countRejection("blacklist")
			if s.metrics != nil {
				s.metrics.BlacklistBlocks.Inc()
			}
			return nil, domain.ErrBlacklistMatch
		}
		if s.metrics != nil {
			s.metrics.BlacklistOverrides.Inc()
		}
		s.logger.Warn("blacklist match overridden",
			"invoice_id", inv.ID,
			"blacklist_id", match.ID,
			"user_id", actor.UserID,
		)
	}

	return s.send(ctx, inv, opts)
}

func (s *invoiceService) Resend(ctx context.Context, actor domain.Actor, invoiceID string, opts SendOptions) (*SendResult, error) {
	const op = "InvoiceService.Resend"

	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if !canManage(actor, inv) {
		s.countRejection("guard")
		return nil, ErrNotAuthorized
	}
	if !resendable(inv.Status) {
		s.countRejection("guard")
		return nil, domain.ErrIllegalTransition
	}

	st := s.cooldowns.Check(cooldown.ActionInvoiceEmail, inv.LastInvoiceEmailSent)
	if st.Blocked {
		s.countRejection("cooldown")
		if s.metrics != nil {
			s.metrics.EmailsRateLimited.Inc()
		}
		return nil, s.cooldowns.Err(op, st)
	}

	return s.send(ctx, inv, opts)
}

func (s *invoiceService) SendReminder(ctx context.Context, actor domain.Actor, invoiceID string) error {
	const op = "InvoiceService.SendReminder"

	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.ErrInvoiceNotFound
	}
	if !canManage(actor, inv) {
		return ErrNotAuthorized
	}
	if !resendable(inv.Status) {
		return domain.ErrIllegalTransition
	}

	st := s.cooldowns.Check(cooldown.ActionReminderEmail, inv.LastReminderEmailSent)
	if st.Blocked {
		if s.metrics != nil {
			s.metrics.EmailsRateLimited.Inc()
		}
		return s.cooldowns.Err(op, st)
	}

	msg := &email.Message{
		Kind:          email.KindReminder,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Recipient:     inv.CustomerEmail,
		PublicToken:   inv.PublicToken,
		TotalCents:    inv.TotalCents,
	}
	if _, err := s.emailSender.Send(ctx, msg); err != nil {
		s.recordEmailFailure(ctx, inv, email.KindReminder, err)
		if email.IsInconclusive(err) {
			return ErrEmailInconclusive
		}
		return ErrEmailNotSent
	}

	if err := s.invoices.SetLastReminderSent(ctx, inv.ID, s.now()); err != nil {
		return domain.Internal(err, op, "Failed to record reminder dispatch")
	}
	if s.metrics != nil {
		s.metrics.EmailsSent.WithLabelValues(string(email.KindReminder)).Inc()
	}
	return nil
}

// ============================================================================
// Mark as paid
// ============================================================================

func (s *invoiceService) MarkPaid(ctx context.Context, actor domain.Actor, invoiceID string) (*domain.Invoice, error) {
	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, domain.ErrInvoiceNotFound
	}
	if !canMarkPaid(actor, inv) {
		s.countRejection("guard")
		return nil, ErrNotAuthorized
	}

	switch inv.Status {
	case domain.StatusPaid:
		return nil, domain.ErrInvoiceAlreadyPaid
	case domain.StatusCancelled:
		return nil, domain.ErrInvoiceCancelled
	case domain.StatusSent, domain.StatusPending, domain.StatusOverdue:
		// paid is reachable
	default:
		s.countRejection("guard")
		return nil, domain.ErrIllegalTransition
	}

	return s.markPaid(ctx, inv)
}

func (s *invoiceService) RetryStockUpdate(ctx context.Context, actor domain.Actor, invoiceID string) error {
	const op = "InvoiceService.RetryStockUpdate"

	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.ErrInvoiceNotFound
	}
	if !canMarkPaid(actor, inv) {
		return ErrNotAuthorized
	}
	if inv.Status != domain.StatusPaid {
		return domain.ErrIllegalTransition
	}
	if inv.StockUpdateStatus == domain.StockCompleted {
		return domain.ErrStockUpdateResolved
	}

	if err := s.invoices.SetStockUpdateStatus(ctx, inv.ID, domain.StockPending); err != nil {
		return domain.Internal(err, op, "Failed to mark stock update pending")
	}
	s.decrementStock(ctx, inv)
	return nil
}

// ============================================================================
// External transitions
// ============================================================================

func (s *invoiceService) Cancel(ctx context.Context, invoiceID string) error {
	const op = "InvoiceService.Cancel"

	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.ErrInvoiceNotFound
	}
	if inv.Status == domain.StatusPaid {
		return domain.ErrInvoiceAlreadyPaid
	}
	if inv.Status == domain.StatusCancelled {
		return nil
	}

	if err := s.invoices.UpdateStatus(ctx, inv.ID, domain.StatusCancelled); err != nil {
		return domain.Internal(err, op, "Failed to cancel invoice")
	}
	s.recordTransition(ctx, inv, inv.Status, domain.StatusCancelled)
	return nil
}

func (s *invoiceService) SweepOverdue(ctx context.Context) (int, error) {
	const op = "InvoiceService.SweepOverdue"

	now := s.now()
	moved := 0
	for _, status := range []domain.Status{domain.StatusSent, domain.StatusPending} {
		list, err := s.invoices.ListByStatus(ctx, status)
		if err != nil {
			return moved, domain.Internal(err, op, "Failed to list invoices")
		}
		for i := range list {
			inv := &list[i]
			if inv.DueDate == nil || !inv.DueDate.Before(now) {
				continue
			}
			if err := s.invoices.UpdateStatus(ctx, inv.ID, domain.StatusOverdue); err != nil {
				s.logger.Error("overdue sweep failed for invoice",
					"invoice_id", inv.ID,
					"error", err,
				)
				continue
			}
			s.recordTransition(ctx, inv, status, domain.StatusOverdue)
			moved++
		}
	}
	return moved, nil
}

// ============================================================================
// Reads
// ============================================================================

func (s *invoiceService) GetInvoice(ctx context.Context, actor domain.Actor, invoiceID string) (*domain.Invoice, []domain.InvoiceItem, error) {
	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, nil, domain.ErrInvoiceNotFound
	}
	if !canManage(actor, inv) {
		return nil, nil, ErrNotAuthorized
	}
	items, err := s.invoices.GetItems(ctx, invoiceID)
	if err != nil {
		return nil, nil, domain.Internal(err, "InvoiceService.GetInvoice", "Failed to load line items")
	}
	return inv, items, nil
}

func (s *invoiceService) GetInvoiceByToken(ctx context.Context, token string) (*domain.Invoice, error) {
	inv, err := s.invoices.GetInvoiceByToken(ctx, token)
	if err != nil {
		return nil, domain.ErrInvoiceNotFound
	}
	return inv, nil
}

// ============================================================================
// Guards and validation
// ============================================================================

// canManage covers draft editing, deletion and the send path: the
// creator, a super admin, or an admin acting on an employee's invoice.
func canManage(actor domain.Actor, inv *domain.Invoice) bool {
	if actor.UserID == inv.UserID {
		return true
	}
	switch actor.Role {
	case domain.RoleSuperAdmin:
		return true
	case domain.RoleAdmin:
		return inv.CreatorRole == domain.RoleEmployee
	}
	return false
}

// canMarkPaid is stricter: only the creator or a super admin.
func canMarkPaid(actor domain.Actor, inv *domain.Invoice) bool {
	return actor.UserID == inv.UserID || actor.Role == domain.RoleSuperAdmin
}

func resendable(status domain.Status) bool {
	switch status {
	case domain.StatusSent, domain.StatusPending, domain.StatusOverdue:
		return true
	}
	return false
}

func (s *invoiceService) validateItems(op string, items []ItemParams) error {
	for i, item := range items {
		if item.UnitPriceCents < 0 {
			return domain.NewValidationError(op, fmt.Sprintf("items[%d].unit_price", i), "Price must not be negative")
		}
		if item.Quantity < 1 || item.Quantity > domain.MaxItemQuantity {
			return domain.NewValidationError(op, fmt.Sprintf("items[%d].quantity", i),
				fmt.Sprintf("Quantity must be between 1 and %d", domain.MaxItemQuantity))
		}
		if item.ProductID == "" && item.Name == "" {
			return domain.NewValidationError(op, fmt.Sprintf("items[%d].name", i), "Free-text items require a name")
		}
		if item.ProductID != "" && item.StockSnapshot > 0 && item.Quantity > item.StockSnapshot {
			return domain.NewValidationError(op, fmt.Sprintf("items[%d].quantity", i), "Quantity exceeds available stock")
		}
	}
	return nil
}

func buildItems(invoiceID string, params []ItemParams) []domain.InvoiceItem {
	items := make([]domain.InvoiceItem, len(params))
	for i, p := range params {
		items[i] = domain.InvoiceItem{
			ID:             uuid.New().String(),
			InvoiceID:      invoiceID,
			ProductID:      p.ProductID,
			Name:           p.Name,
			Quantity:       p.Quantity,
			UnitPriceCents: p.UnitPriceCents,
			TotalCents:     int64(p.Quantity) * p.UnitPriceCents,
			StockSnapshot:  p.StockSnapshot,
		}
	}
	return items
}

// applyTotals recomputes subtotal, tax and total from the item set.
func applyTotals(inv *domain.Invoice, items []domain.InvoiceItem) {
	var subtotal int64
	for _, item := range items {
		subtotal += item.TotalCents
	}
	inv.SubtotalCents = subtotal
	inv.TaxCents = int64(float64(subtotal) * inv.TaxRate)
	inv.TotalCents = inv.SubtotalCents + inv.TaxCents
}

func newPublicToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (s *invoiceService) countRejection(reason string) {
	if s.metrics != nil {
		s.metrics.TransitionsRejected.WithLabelValues(reason).Inc()
	}
}
