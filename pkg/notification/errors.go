package notification

import "errors"

var (
	// ErrNoRecipients is returned by New when the recipient list is empty.
	// A record without recipients must not exist at all.
	ErrNoRecipients = errors.New("notification requires at least one recipient")

	// ErrInvalidChannel is returned by New for an unknown channel.
	ErrInvalidChannel = errors.New("invalid notification channel")

	// ErrInvalidTransition indicates a state transition from a source state
	// that does not permit it. This is caller misuse, never an operational
	// failure, and is not retryable.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrRetryLimitExceeded is returned by Retry once the retry budget is
	// exhausted.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")

	// ErrAlreadySent is returned when cancelling a record that already ran
	// through delivery. The same rule (and message) applies to failed
	// records without retry budget: a delivery attempt happened, so the
	// record cannot be cancelled anymore.
	ErrAlreadySent = errors.New("already sent notifications cannot be cancelled")

	// ErrAlreadyCancelled is returned when cancelling a cancelled record.
	ErrAlreadyCancelled = errors.New("notification is already cancelled")
)
