package retry

import (
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Provider error codes classified as retryable. Any code outside this set
// is a permanent failure (invalid address, rejected payload, ...).
const (
	CodeTemporaryFailure    = "TEMPORARY_FAILURE"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeTimeout             = "TIMEOUT"
	CodeDeviceNotRegistered = "DEVICE_NOT_REGISTERED" // push only
)

// Strategy is the retry decision for a failed delivery attempt.
type Strategy struct {
	ShouldRetry bool
	Delay       time.Duration
	MaxRetries  int
}

// Retryable reports whether the provider error code indicates a transient
// condition worth re-attempting on the given channel.
//
// DEVICE_NOT_REGISTERED is retryable for push only: an FCM token may be
// mid-rotation, while the same code from any other provider integration
// would be a misconfiguration.
func Retryable(ch notification.Channel, errorCode string) bool {
	switch errorCode {
	case CodeTemporaryFailure, CodeRateLimitExceeded, CodeServiceUnavailable, CodeTimeout:
		return true
	case CodeDeviceNotRegistered:
		return ch == notification.ChannelPush
	}
	return false
}

// Delay returns the backoff before attempt retryCount+1 on the channel:
// exponential in retryCount, capped at the channel ceiling. Negative retry
// counts are treated as zero.
func Delay(ch notification.Channel, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	base := ch.BackoffBase()
	cap := ch.BackoffCap()

	// Shifting past 62 bits would overflow time.Duration long before any
	// realistic retry budget; clamp straight to the ceiling.
	if retryCount > 30 {
		return cap
	}

	delay := base << uint(retryCount)
	if delay > cap || delay < base {
		return cap
	}
	return delay
}

// Calculate decides whether and when a failed record should be retried,
// given the provider error code of the last attempt.
func Calculate(rec notification.Record, errorCode string) Strategy {
	if rec.RetryCount >= rec.MaxRetries {
		return Strategy{MaxRetries: rec.MaxRetries}
	}
	if !Retryable(rec.Channel, errorCode) {
		return Strategy{MaxRetries: rec.MaxRetries}
	}
	return Strategy{
		ShouldRetry: true,
		Delay:       Delay(rec.Channel, rec.RetryCount),
		MaxRetries:  rec.MaxRetries,
	}
}
