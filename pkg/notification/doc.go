// Package notification defines the core domain model for the delivery
// lifecycle: the notification Record, its channel/status/priority enums,
// and the state-machine transitions between them.
//
// A Record is an immutable value. Transitions return a new Record (or an
// error) instead of mutating in place, which keeps the state machine
// exhaustively testable as pure functions:
//
//	rec, err := notification.New(tenantID, notification.ChannelEmail, "welcome", []string{"user@example.com"})
//	if err != nil {
//	    // empty recipient list, invalid channel, ...
//	}
//
//	sending, err := rec.MarkSending()
//	if err != nil {
//	    // invalid transition: rec was not pending
//	}
//
// Transition failures are contract violations on the caller's side, not
// operational failures; they are surfaced as typed sentinel errors
// (ErrInvalidTransition, ErrRetryLimitExceeded, ...) suitable for errors.Is.
//
// Per-channel tuning constants (payload ceilings, recipient ceilings, retry
// backoff base/cap) hang off the Channel type so that validation and retry
// logic read a single source of truth.
package notification
