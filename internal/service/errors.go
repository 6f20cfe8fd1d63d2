package service

import "github.com/sundin/kvitto/internal/domain"

// Service-level errors. Guard failures deliberately carry a generic
// denial; they never explain which guard failed.
var (
	// ErrNotAuthorized is returned when a role/ownership guard rejects the
	// caller.
	ErrNotAuthorized = &domain.Error{Code: domain.EFORBIDDEN, Message: "You are not allowed to perform this action"}

	// ErrEmailNotSent is returned when the mail service definitively
	// rejected the dispatch and the caller did not ask to proceed anyway.
	ErrEmailNotSent = &domain.Error{Code: domain.EUNAVAILABLE, Message: "Invoice email could not be sent; try again"}

	// ErrEmailInconclusive is returned on dispatch timeout or transport
	// failure. The email may have been sent; the attempt is retryable and
	// did not start a cooldown window.
	ErrEmailInconclusive = &domain.Error{Code: domain.ETIMEOUT, Message: "Email dispatch timed out; the send may be retried"}
)
