package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentlink"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
)

// Stripe requires at least $0.50 USD for a checkout amount.
const minAmountCents = 50

// StripeProvider implements Provider using Stripe Payment Links.
//
// Stripe payment links require a Price, so issuance is a three-step call:
// create a one-off Product for the invoice, attach a Price for the total,
// then create the link. All three calls share the invoice-derived
// idempotency key prefix, so a retried request resolves to the same
// objects instead of issuing duplicates.
type StripeProvider struct {
	logger *slog.Logger
}

// StripeConfig contains configuration for the Stripe provider.
type StripeConfig struct {
	SecretKey string
	Logger    *slog.Logger // Optional: defaults to slog.Default()
}

// NewStripeProvider creates a new Stripe payment-link provider.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.SecretKey == "" {
		return nil, ErrInvalidAPIKey
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stripe.Key = cfg.SecretKey

	return &StripeProvider{logger: logger}, nil
}

// CreatePaymentLink issues a hosted payment link for an invoice.
func (p *StripeProvider) CreatePaymentLink(ctx context.Context, params CreatePaymentLinkParams) (*PaymentLink, error) {
	if params.AmountCents < minAmountCents {
		return nil, ErrAmountTooSmall
	}

	prodParams := &stripe.ProductParams{
		Name: stripe.String(fmt.Sprintf("Invoice %s", params.InvoiceNumber)),
	}
	prodParams.IdempotencyKey = stripe.String(params.IdempotencyKey + "_product")
	prodParams.AddMetadata("invoice_id", params.InvoiceID)

	prod, err := product.New(prodParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	priceParams := &stripe.PriceParams{
		Product:    stripe.String(prod.ID),
		UnitAmount: stripe.Int64(params.AmountCents),
		Currency:   stripe.String(params.Currency),
	}
	priceParams.IdempotencyKey = stripe.String(params.IdempotencyKey + "_price")

	pr, err := price.New(priceParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	linkParams := &stripe.PaymentLinkParams{
		LineItems: []*stripe.PaymentLinkLineItemParams{
			{
				Price:    stripe.String(pr.ID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	linkParams.IdempotencyKey = stripe.String(params.IdempotencyKey + "_link")
	linkParams.AddMetadata("invoice_id", params.InvoiceID)
	for k, v := range params.Metadata {
		linkParams.AddMetadata(k, v)
	}

	link, err := paymentlink.New(linkParams)
	if err != nil {
		return nil, wrapStripeError(err)
	}

	p.logger.Info("payment link issued",
		"invoice_id", params.InvoiceID,
		"link_id", link.ID,
	)

	return &PaymentLink{
		ID:        link.ID,
		URL:       link.URL,
		Active:    link.Active,
		Metadata:  link.Metadata,
		CreatedAt: time.Now(),
	}, nil
}

// GetPaymentLink retrieves an existing payment link by id.
func (p *StripeProvider) GetPaymentLink(ctx context.Context, linkID string) (*PaymentLink, error) {
	link, err := paymentlink.Get(linkID, nil)
	if err != nil {
		var sErr *stripe.Error
		if errors.As(err, &sErr) && sErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, ErrLinkNotFound
		}
		return nil, wrapStripeError(err)
	}

	return &PaymentLink{
		ID:       link.ID,
		URL:      link.URL,
		Active:   link.Active,
		Metadata: link.Metadata,
	}, nil
}

// DeactivatePaymentLink deactivates a link so the hosted page stops
// accepting payments.
func (p *StripeProvider) DeactivatePaymentLink(ctx context.Context, linkID string) error {
	_, err := paymentlink.Update(linkID, &stripe.PaymentLinkParams{
		Active: stripe.Bool(false),
	})
	if err != nil {
		return wrapStripeError(err)
	}
	return nil
}
