package dispatcher

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/routing"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSenders registers channel senders. A later sender for the same
// channel replaces the earlier one.
func WithSenders(senders ...Sender) Option {
	return func(d *Dispatcher) {
		for _, s := range senders {
			if s != nil {
				d.senders[s.Channel()] = s
			}
		}
	}
}

// WithSettingsProvider installs the tenant settings source consulted by
// routing. Without one, every tenant is always eligible to send.
func WithSettingsProvider(p routing.SettingsProvider) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.settings = p
		}
	}
}

// WithRateLimitPredicate installs the send-history based rate-limit hook.
func WithRateLimitPredicate(p routing.Predicate) Option {
	return func(d *Dispatcher) {
		if p != nil {
			d.engine = routing.NewEngine(routing.WithRateLimitPredicate(p))
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.logger = log
		}
	}
}

// WithClock overrides the time source. Tests use this to pin "now".
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithConcurrency bounds how many batches DispatchDue works in parallel.
// Non-positive values are ignored.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithBatchSize sets the batch size DispatchDue falls back to when the
// caller passes a non-positive size. Non-positive values are ignored.
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}
