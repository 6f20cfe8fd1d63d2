package service

import (
	"context"

	"github.com/sundin/kvitto/internal/billing"
	"github.com/sundin/kvitto/internal/domain"
	"github.com/sundin/kvitto/internal/email"
	"github.com/sundin/kvitto/internal/events"
)

// This file sequences the non-transactional external effects around a
// status transition. The ordering contracts:
//
//   - send path: payment link must exist (or be issued) before the email
//     is attempted; status=sent with sent_at commits only on a confirmed
//     dispatch. A definitive email rejection may still promote the
//     status when the caller opts in, but never advances sent_at or the
//     cooldown timestamp.
//   - paid path: the paid write commits first and is never rolled back;
//     the inventory decrement is strictly after it and its failure is
//     recorded and surfaced, not compensated.

// send runs the shared send/resend flow. Callers have already applied
// guards, validation and (for first sends) the blacklist check.
func (s *invoiceService) send(ctx context.Context, inv *domain.Invoice, opts SendOptions) (*SendResult, error) {
	const op = "InvoiceService.send"
	result := &SendResult{Invoice: inv}

	// Step 1: ensure the payment link. Checked before every call, so
	// issuance happens at most once per invoice.
	if inv.StripePaymentLink == "" {
		link, err := s.billingProvider.CreatePaymentLink(ctx, billing.CreatePaymentLinkParams{
			InvoiceID:      inv.ID,
			InvoiceNumber:  inv.InvoiceNumber,
			AmountCents:    inv.TotalCents,
			Currency:       "usd",
			CustomerEmail:  inv.CustomerEmail,
			Metadata:       map[string]string{"invoice_id": inv.ID},
			IdempotencyKey: "invoice_" + inv.ID,
		})
		if err != nil {
			if s.metrics != nil {
				s.metrics.PaymentLinkFailures.Inc()
			}
			s.logger.Error("payment link issuance failed",
				"invoice_id", inv.ID,
				"error", err,
			)
			// Critical to the transition: the sent transition does not
			// commit on a first send without a link.
			return nil, domain.ErrPaymentLinkFailed
		}

		url := link.URL
		if url == "" {
			// The provider may persist the link out-of-band; re-read the
			// record before treating issuance as failed.
			fresh, err := s.invoices.GetInvoice(ctx, inv.ID)
			if err == nil && fresh.StripePaymentLink != "" {
				url = fresh.StripePaymentLink
			}
		}
		if url == "" {
			return nil, domain.ErrPaymentLinkFailed
		}

		if err := s.invoices.SetPaymentLink(ctx, inv.ID, url); err != nil {
			return nil, domain.Internal(err, op, "Failed to record payment link")
		}
		inv.StripePaymentLink = url
		result.PaymentLinkIssued = true
		if s.metrics != nil {
			s.metrics.PaymentLinksIssued.Inc()
		}
	}

	// Step 2: dispatch the email, bounded by the dispatch timeout.
	fromStatus := inv.Status
	msg := &email.Message{
		Kind:          email.KindInvoice,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Recipient:     inv.CustomerEmail,
		PublicToken:   inv.PublicToken,
		TotalCents:    inv.TotalCents,
	}
	_, sendErr := s.emailSender.Send(ctx, msg)

	if sendErr == nil {
		// Step 3: confirmed dispatch. One record write sets status,
		// sent_at and the cooldown timestamp together.
		sentAt := s.now()
		if err := s.invoices.MarkSent(ctx, inv.ID, sentAt); err != nil {
			return nil, domain.Internal(err, op, "Failed to record send")
		}
		inv.Status = domain.StatusSent
		inv.SentAt = &sentAt
		inv.LastInvoiceEmailSent = &sentAt
		result.EmailSent = true

		if s.metrics != nil {
			s.metrics.EmailsSent.WithLabelValues(string(email.KindInvoice)).Inc()
			s.metrics.InvoiceValue.WithLabelValues(string(domain.StatusSent)).Observe(float64(inv.TotalCents))
		}
		s.publishStatusChange(ctx, inv, fromStatus, domain.StatusSent)
		s.logger.Info("invoice sent",
			"invoice_id", inv.ID,
			"invoice_number", inv.InvoiceNumber,
		)
		return result, nil
	}

	s.recordEmailFailure(ctx, inv, email.KindInvoice, sendErr)

	// Timeout and transport failures are inconclusive: the email may have
	// gone out. Retryable, and the cooldown window is untouched so a
	// transient failure cannot lock the user out.
	if email.IsInconclusive(sendErr) {
		return nil, ErrEmailInconclusive
	}

	// Definitive rejection. The caller may still promote the status so
	// the payment link stays shareable; sent_at and the cooldown
	// timestamp record only confirmed dispatches, so they stay unset.
	if opts.ProceedOnEmailFailure {
		if err := s.invoices.UpdateStatus(ctx, inv.ID, domain.StatusSent); err != nil {
			return nil, domain.Internal(err, op, "Failed to update status")
		}
		inv.Status = domain.StatusSent
		if fromStatus != domain.StatusSent {
			s.publishStatusChange(ctx, inv, fromStatus, domain.StatusSent)
		}
		return result, nil
	}

	return nil, ErrEmailNotSent
}

// markPaid commits the paid transition and runs the inventory decrement
// at most once.
func (s *invoiceService) markPaid(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	const op = "InvoiceService.markPaid"

	fromStatus := inv.Status
	paidAt := s.now()
	if err := s.invoices.MarkPaid(ctx, inv.ID, paidAt); err != nil {
		return nil, domain.Internal(err, op, "Failed to mark invoice paid")
	}
	inv.Status = domain.StatusPaid
	inv.PaidDate = &paidAt

	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(fromStatus), string(domain.StatusPaid)).Inc()
	}
	s.publishStatusChange(ctx, inv, fromStatus, domain.StatusPaid)
	s.notifier.NotifyPaymentReceived(ctx, inv.UserID, inv)

	// The decrement runs at most once: a resolved marker means a prior
	// attempt already happened and is skipped here.
	if inv.StockUpdateStatus != domain.StockNone {
		if s.metrics != nil {
			s.metrics.StockUpdates.WithLabelValues("skipped").Inc()
		}
		return inv, nil
	}

	if err := s.invoices.SetStockUpdateStatus(ctx, inv.ID, domain.StockPending); err != nil {
		return nil, domain.Internal(err, op, "Failed to mark stock update pending")
	}
	inv.StockUpdateStatus = domain.StockPending
	s.decrementStock(ctx, inv)

	return inv, nil
}

// decrementStock calls the inventory service and records the outcome.
// Never reverts the paid status; a failure is surfaced as a warning
// notification for manual reconciliation.
func (s *invoiceService) decrementStock(ctx context.Context, inv *domain.Invoice) {
	err := s.stock.DecrementStock(ctx, inv.ID)
	if err == nil {
		if serr := s.invoices.SetStockUpdateStatus(ctx, inv.ID, domain.StockCompleted); serr != nil {
			s.logger.Error("failed to record completed stock update",
				"invoice_id", inv.ID,
				"error", serr,
			)
			return
		}
		inv.StockUpdateStatus = domain.StockCompleted
		if s.metrics != nil {
			s.metrics.StockUpdates.WithLabelValues("completed").Inc()
		}
		return
	}

	s.logger.Warn("inventory decrement failed",
		"invoice_id", inv.ID,
		"error", err,
	)
	if serr := s.invoices.SetStockUpdateStatus(ctx, inv.ID, domain.StockFailed); serr != nil {
		s.logger.Error("failed to record failed stock update",
			"invoice_id", inv.ID,
			"error", serr,
		)
	}
	inv.StockUpdateStatus = domain.StockFailed
	if s.metrics != nil {
		s.metrics.StockUpdates.WithLabelValues("failed").Inc()
	}
	s.notifier.NotifyStockUpdateFailed(ctx, inv.UserID, inv)
}

func (s *invoiceService) recordEmailFailure(ctx context.Context, inv *domain.Invoice, kind email.Kind, err error) {
	outcome := "rejected"
	if email.IsInconclusive(err) {
		outcome = "inconclusive"
	}
	if s.metrics != nil {
		s.metrics.EmailsFailed.WithLabelValues(string(kind), outcome).Inc()
	}
	s.logger.Warn("email dispatch failed",
		"invoice_id", inv.ID,
		"kind", kind,
		"outcome", outcome,
		"error", err,
	)
	s.notifier.NotifyEmailSendFailed(ctx, inv.UserID, inv)
}

func (s *invoiceService) recordTransition(ctx context.Context, inv *domain.Invoice, from, to domain.Status) {
	if s.metrics != nil {
		s.metrics.StatusTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
	inv.Status = to
	s.publishStatusChange(ctx, inv, from, to)
}

// publishStatusChange is best-effort: consumers refetch on receipt, so a
// lost or duplicated event is harmless.
func (s *invoiceService) publishStatusChange(ctx context.Context, inv *domain.Invoice, from, to domain.Status) {
	if s.publisher == nil {
		return
	}
	ev := events.StatusChanged{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		FromStatus:    string(from),
		ToStatus:      string(to),
		UserID:        inv.UserID,
		OccurredAt:    s.now(),
	}
	if err := s.publisher.PublishStatusChanged(ctx, ev); err != nil {
		s.logger.Warn("failed to publish status change",
			"invoice_id", inv.ID,
			"error", err,
		)
	}
}
