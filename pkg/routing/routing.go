package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/retry"
)

// ErrInvalidTimezone is returned when tenant settings carry a timezone the
// runtime cannot load. Misconfiguration is surfaced, never guessed around.
var ErrInvalidTimezone = errors.New("invalid tenant timezone")

// Decision is the routing verdict for a single record.
type Decision struct {
	// ShouldSend is true when the record should be handed to the sender now.
	ShouldSend bool
	// Reason explains a deferral; empty for immediate sends.
	Reason string
	// Priority echoes the record priority for the dispatch layer.
	Priority notification.Priority
	// ScheduledAt is the next eligible send time when deferred.
	ScheduledAt *time.Time
}

// Predicate is the pluggable rate-limit hook consulted before an immediate
// send. Returning true defers the record by its channel retry backoff.
type Predicate func(ctx context.Context, rec notification.Record) (bool, error)

// NeverLimited is the default Predicate: no send-history based limiting.
func NeverLimited(ctx context.Context, rec notification.Record) (bool, error) {
	return false, nil
}

// Engine evaluates the routing rules. The zero value is usable and applies
// no rate limiting.
type Engine struct {
	rateLimited Predicate
}

// Option configures an Engine.
type Option func(*Engine)

// WithRateLimitPredicate installs a send-history based rate-limit check.
func WithRateLimitPredicate(p Predicate) Option {
	return func(e *Engine) {
		if p != nil {
			e.rateLimited = p
		}
	}
}

// NewEngine creates a routing engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{rateLimited: NeverLimited}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide applies the routing rules to a record under the given tenant
// settings at the given time.
func (e *Engine) Decide(ctx context.Context, rec notification.Record, settings Settings, now time.Time) (Decision, error) {
	if rec.ScheduledAt != nil && rec.ScheduledAt.After(now) {
		scheduled := *rec.ScheduledAt
		return Decision{
			Reason:      "scheduled in future",
			Priority:    rec.Priority,
			ScheduledAt: &scheduled,
		}, nil
	}

	// High and urgent notifications escalate past quiet hours and rate
	// limiting.
	if rec.Priority == notification.PriorityHigh || rec.Priority == notification.PriorityUrgent {
		return Decision{ShouldSend: true, Priority: rec.Priority}, nil
	}

	if settings.QuietHoursEnabled {
		inQuiet, resumeAt, err := quietWindow(settings, now)
		if err != nil {
			return Decision{}, err
		}
		if inQuiet {
			return Decision{
				Reason:      "tenant quiet hours",
				Priority:    rec.Priority,
				ScheduledAt: &resumeAt,
			}, nil
		}
	}

	limited := e.rateLimited
	if limited == nil {
		limited = NeverLimited
	}
	tripped, err := limited(ctx, rec)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check: %w", err)
	}
	if tripped {
		retryAt := now.Add(retry.Delay(rec.Channel, rec.RetryCount))
		return Decision{
			Reason:      "rate limited",
			Priority:    rec.Priority,
			ScheduledAt: &retryAt,
		}, nil
	}

	return Decision{ShouldSend: true, Priority: rec.Priority}, nil
}

// quietWindow reports whether now falls inside the tenant quiet window and,
// if so, the next occurrence of the window end in the tenant timezone.
// Hour granularity is the documented semantics.
func quietWindow(settings Settings, now time.Time) (bool, time.Time, error) {
	loc := time.UTC
	if settings.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(settings.Timezone)
		if err != nil {
			return false, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, settings.Timezone)
		}
	}

	start, end := settings.QuietHoursStart, settings.QuietHoursEnd
	if start == end {
		// Empty window.
		return false, time.Time{}, nil
	}

	local := now.In(loc)
	hour := local.Hour()

	var inQuiet bool
	if start < end {
		inQuiet = hour >= start && hour < end
	} else {
		// Window wraps across midnight, e.g. 22 -> 7.
		inQuiet = hour >= start || hour < end
	}
	if !inQuiet {
		return false, time.Time{}, nil
	}

	resume := time.Date(local.Year(), local.Month(), local.Day(), end, 0, 0, 0, loc)
	if !resume.After(local) {
		resume = resume.AddDate(0, 0, 1)
	}
	return true, resume, nil
}
