// Package cooldown computes whether a timed action is currently rate
// limited. The tracked timestamp lives on the entity record itself (no
// separate ledger), so the check is a pure function of the last-sent time
// and the window; last-writer-wins on the timestamp is acceptable.
package cooldown

import (
	"time"

	"github.com/sundin/kvitto/internal/domain"
)

// Action identifies a rate-limited action kind. Cooldowns are keyed by
// (entity, action): each kind reads its own timestamp field.
type Action string

const (
	ActionInvoiceEmail  Action = "invoice_email"
	ActionReminderEmail Action = "reminder_email"
	ActionPasswordReset Action = "password_reset"
)

// Default windows per action kind.
const (
	InvoiceEmailWindow  = 10 * time.Minute
	ReminderEmailWindow = 10 * time.Minute
	PasswordResetWindow = 10 * time.Minute
)

// Status is the result of a cooldown check. The server-side value is
// authoritative; clients running an optimistic local countdown must
// reconcile against Remaining on any rate-limit rejection.
type Status struct {
	Blocked   bool
	Remaining time.Duration
}

// Tracker checks cooldown windows against last-sent timestamps.
type Tracker struct {
	windows map[Action]time.Duration

	// Now is the clock source; overridden in tests.
	Now func() time.Time
}

// NewTracker creates a tracker with the default windows.
func NewTracker() *Tracker {
	return &Tracker{
		windows: map[Action]time.Duration{
			ActionInvoiceEmail:  InvoiceEmailWindow,
			ActionReminderEmail: ReminderEmailWindow,
			ActionPasswordReset: PasswordResetWindow,
		},
		Now: time.Now,
	}
}

// SetWindow overrides the window for one action kind.
func (t *Tracker) SetWindow(action Action, window time.Duration) {
	t.windows[action] = window
}

// Window returns the configured window for an action kind.
func (t *Tracker) Window(action Action) time.Duration {
	return t.windows[action]
}

// Check reports whether the action is blocked given its last-sent time.
// A nil lastSent means the action has never run and is never blocked.
func (t *Tracker) Check(action Action, lastSent *time.Time) Status {
	if lastSent == nil {
		return Status{}
	}

	window, ok := t.windows[action]
	if !ok {
		return Status{}
	}

	elapsed := t.Now().Sub(*lastSent)
	if elapsed >= window {
		return Status{}
	}

	return Status{Blocked: true, Remaining: window - elapsed}
}

// Err converts a blocked status into the structured rate-limit error
// carrying the authoritative remaining wait. Returns nil when not blocked.
func (t *Tracker) Err(op string, st Status) error {
	if !st.Blocked {
		return nil
	}
	return &domain.RateLimitError{Op: op, CooldownRemaining: st.Remaining}
}
