package email

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnauthorized covers 401 and 403 responses from the mail service.
	ErrUnauthorized = errors.New("email: mail service rejected credentials")

	// ErrInvoiceNotFound covers 404 responses.
	ErrInvoiceNotFound = errors.New("email: mail service does not know this invoice")

	// ErrUpstreamUnavailable covers 503 and 504 responses.
	ErrUpstreamUnavailable = errors.New("email: mail service upstream unavailable")
)

// RateLimitedError is the 429 response. The mail service is authoritative
// for the remaining cooldown; callers reconcile any local countdown
// against this value.
type RateLimitedError struct {
	CooldownRemaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("email: rate limited, retry in %ds", int(e.CooldownRemaining.Seconds()))
}

// InconclusiveError wraps a timeout or network failure. The email may or
// may not have been sent; the dispatch is retryable and must not advance
// cooldown state.
type InconclusiveError struct {
	Err error
}

func (e *InconclusiveError) Error() string {
	return fmt.Sprintf("email: dispatch inconclusive: %v", e.Err)
}

func (e *InconclusiveError) Unwrap() error {
	return e.Err
}

// IsInconclusive reports whether the dispatch outcome is unknown
// (timeout or transport failure) rather than a definitive rejection.
func IsInconclusive(err error) bool {
	var ie *InconclusiveError
	return errors.As(err, &ie)
}

// IsRateLimited reports whether err is a 429 rejection, returning the
// server-side cooldown remaining when it is.
func IsRateLimited(err error) (time.Duration, bool) {
	var re *RateLimitedError
	if errors.As(err, &re) {
		return re.CooldownRemaining, true
	}
	return 0, false
}
