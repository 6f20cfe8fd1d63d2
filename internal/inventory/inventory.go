// Package inventory wraps the external stock service. The lifecycle
// engine only ever asks it to decrement stock for a paid invoice; the
// result is recorded on the invoice and never retried automatically.
package inventory

import (
	"context"
	"errors"
)

var (
	// ErrMissingBaseURL is returned when the client is built without an endpoint.
	ErrMissingBaseURL = errors.New("inventory: missing service URL")

	// ErrDecrementFailed is returned when the service reports a failed
	// decrement. The caller persists stock_update_status=failed and stops.
	ErrDecrementFailed = errors.New("inventory: stock decrement failed")
)

// Decrementer performs the external inventory decrement for an invoice.
type Decrementer interface {
	// DecrementStock reduces stock for every product-backed line on the
	// invoice. The service resolves the line items itself from the
	// invoice id. Failure carries no automatic retry.
	DecrementStock(ctx context.Context, invoiceID string) error
}
