package dispatcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/validation"
)

var (
	// ErrNoSender is returned when no sender is registered for the
	// record's channel.
	ErrNoSender = errors.New("no sender registered for channel")

	// ErrStoreNil is returned by New when no store is provided.
	ErrStoreNil = errors.New("store must not be nil")
)

// ValidationError carries the structured validation result of a rejected
// record. Warnings never produce this error, only rule violations do.
type ValidationError struct {
	Result validation.Result
}

func (e *ValidationError) Error() string {
	return "notification validation failed: " + strings.Join(e.Result.Errors, "; ")
}

// SendError is a classified provider failure. Senders return it to feed
// the retry calculator; any other error from a sender is treated as a
// transient infrastructure failure.
type SendError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %s", e.Code, e.Message)
}

// NewSendError creates a classified provider failure.
func NewSendError(code, message string, details map[string]any) *SendError {
	return &SendError{Code: code, Message: message, Details: details}
}
