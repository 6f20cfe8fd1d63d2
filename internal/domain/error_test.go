package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name: "message only",
			err: &Error{
				Code:    EINVALID,
				Message: "invalid input",
			},
			expected: "invalid input",
		},
		{
			name: "with operation",
			err: &Error{
				Code:    EINVALID,
				Op:      "invoice.create",
				Message: "invalid input",
			},
			expected: "invoice.create: invalid input",
		},
		{
			name: "with wrapped error",
			err: &Error{
				Code:    EINTERNAL,
				Op:      "invoice.create",
				Message: "failed to save",
				Err:     errors.New("database connection failed"),
			},
			expected: "invoice.create: failed to save: database connection failed",
		},
		{
			name: "wrapped error without op",
			err: &Error{
				Code:    EINTERNAL,
				Message: "failed to save",
				Err:     errors.New("database connection failed"),
			},
			expected: "failed to save: database connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := &Error{
		Code:    EINTERNAL,
		Message: "wrapped",
		Err:     underlying,
	}

	if unwrapped := err.Unwrap(); unwrapped != underlying {
		t.Errorf("Error.Unwrap() = %v, want %v", unwrapped, underlying)
	}

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find underlying error")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "domain error",
			err:      &Error{Code: EINVALID, Message: "test"},
			expected: EINVALID,
		},
		{
			name:     "wrapped domain error",
			err:      fmt.Errorf("wrapped: %w", &Error{Code: ENOTFOUND, Message: "test"}),
			expected: ENOTFOUND,
		},
		{
			name:     "rate limit error",
			err:      &RateLimitError{Op: "invoice.resend", CooldownRemaining: 30 * time.Second},
			expected: ERATELIMIT,
		},
		{
			name:     "non-domain error",
			err:      errors.New("some error"),
			expected: EINTERNAL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.expected {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "domain error with message",
			err:      &Error{Code: EINVALID, Message: "invalid customer email"},
			expected: "invalid customer email",
		},
		{
			name:     "internal error hides message",
			err:      &Error{Code: EINTERNAL, Message: "database connection string leaked"},
			expected: "An internal error occurred. Please try again later.",
		},
		{
			name:     "non-domain error returns generic message",
			err:      errors.New("some internal detail"),
			expected: "An internal error occurred. Please try again later.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorMessage(tt.err); got != tt.expected {
				t.Errorf("ErrorMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRateLimitError(t *testing.T) {
	err := &RateLimitError{Op: "invoice.resend", CooldownRemaining: 299500 * time.Millisecond}

	if !IsRateLimit(err) {
		t.Error("IsRateLimit should be true for *RateLimitError")
	}
	if IsRateLimit(errors.New("nope")) {
		t.Error("IsRateLimit should be false for plain errors")
	}

	// Remainder rounds up so clients never retry early.
	if got := err.RemainingSeconds(); got != 300 {
		t.Errorf("RemainingSeconds() = %d, want 300", got)
	}

	wrapped := fmt.Errorf("send rejected: %w", err)
	if ErrorCode(wrapped) != ERATELIMIT {
		t.Errorf("ErrorCode(wrapped) = %q, want %q", ErrorCode(wrapped), ERATELIMIT)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("invoice.validate", "customer_email", "must be a valid email")

	if !IsValidationError(err) {
		t.Fatal("IsValidationError should be true")
	}

	err = AddFieldError(err, "items", "at least one line item required")

	fields := GetValidationFields(err)
	if len(fields) != 2 {
		t.Fatalf("expected 2 field errors, got %d", len(fields))
	}
	if fields["customer_email"] != "must be a valid email" {
		t.Errorf("unexpected field message: %q", fields["customer_email"])
	}
}

func TestIsCode(t *testing.T) {
	err := Conflict("invoice.markpaid", "invoice already paid")

	if !IsCode(err, ECONFLICT) {
		t.Error("IsCode should match ECONFLICT")
	}
	if IsCode(err, EINVALID) {
		t.Error("IsCode should not match EINVALID")
	}
}

func TestConvenienceFunctions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"NotFound", NotFound("invoice.get", "invoice", "abc"), ENOTFOUND},
		{"Forbidden", Forbidden("invoice.delete", "not permitted"), EFORBIDDEN},
		{"Invalid", Invalid("invoice.validate", "bad quantity"), EINVALID},
		{"Conflict", Conflict("invoice.send", "already sent"), ECONFLICT},
		{"Internal", Internal(errors.New("boom"), "invoice.save", "failed"), EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.code {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.code)
			}
		})
	}
}
