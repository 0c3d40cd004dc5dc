package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/batch"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/retry"
	"github.com/dmitrymomot/notifykit/pkg/routing"
	"github.com/dmitrymomot/notifykit/pkg/storage"
	"github.com/dmitrymomot/notifykit/pkg/validation"
)

const defaultConcurrency = 4

// Dispatcher drives notification records through validation, routing,
// delivery, and retry scheduling on top of a Store.
type Dispatcher struct {
	store       storage.Store
	senders     map[notification.Channel]Sender
	engine      *routing.Engine
	settings    routing.SettingsProvider
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
	batchSize   int
}

// New creates a Dispatcher backed by the given store.
func New(store storage.Store, opts ...Option) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	d := &Dispatcher{
		store:       store,
		senders:     make(map[notification.Channel]Sender),
		engine:      routing.NewEngine(),
		logger:      slog.Default(),
		now:         time.Now,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// NewFromConfig creates a Dispatcher tuned by environment configuration.
// When DevSenderDir is set, a development sender is registered for every
// channel; senders passed through opts override them per channel.
func NewFromConfig(store storage.Store, cfg Config, opts ...Option) (*Dispatcher, error) {
	base := []Option{
		WithConcurrency(cfg.MaxConcurrentBatches),
		WithBatchSize(cfg.DefaultBatchSize),
	}
	if cfg.DevSenderDir != "" {
		channels := notification.Channels()
		senders := make([]Sender, 0, len(channels))
		for _, ch := range channels {
			senders = append(senders, NewDevSender(cfg.DevSenderDir, ch))
		}
		base = append(base, WithSenders(senders...))
	}
	return New(store, append(base, opts...)...)
}

// Submit validates and persists a new record, routes it, and either
// dispatches it immediately or parks it with the decision's scheduled time.
// The returned Decision tells the caller which path was taken.
//
// A failed validation returns *ValidationError and persists nothing.
// Validation warnings are logged and do not block submission.
func (d *Dispatcher) Submit(ctx context.Context, rec notification.Record) (routing.Decision, error) {
	now := d.now()

	res := validation.Validate(rec, now)
	for _, w := range res.Warnings {
		d.logger.WarnContext(ctx, "notification validation warning",
			logger.NotificationID(rec.ID),
			logger.TenantID(rec.TenantID),
			logger.Channel(rec.Channel),
			slog.String("warning", w),
		)
	}
	if !res.Valid {
		return routing.Decision{}, &ValidationError{Result: res}
	}

	if err := d.store.Save(ctx, rec); err != nil {
		return routing.Decision{}, fmt.Errorf("save notification: %w", err)
	}

	decision, err := d.route(ctx, rec, now)
	if err != nil {
		return routing.Decision{}, err
	}

	if !decision.ShouldSend {
		parked := rec
		if decision.ScheduledAt != nil {
			parked = rec.WithSchedule(*decision.ScheduledAt)
		}
		if err := d.store.Save(ctx, parked); err != nil {
			return routing.Decision{}, fmt.Errorf("park notification: %w", err)
		}
		d.logger.InfoContext(ctx, "notification deferred",
			logger.NotificationID(rec.ID),
			logger.TenantID(rec.TenantID),
			logger.Channel(rec.Channel),
			slog.String("reason", decision.Reason),
		)
		return decision, nil
	}

	if err := d.Dispatch(ctx, rec); err != nil {
		return decision, err
	}
	return decision, nil
}

// Dispatch performs a single delivery attempt on a pending record. It
// claims the record with a compare-and-swap transition to sending, hands it
// to the channel sender, and persists the outcome. A retryable failure is
// requeued as a pending record scheduled at now+backoff; an exhausted or
// permanent failure stays failed.
//
// Losing the claim race surfaces storage.ErrConcurrentModification: another
// dispatcher owns the record.
func (d *Dispatcher) Dispatch(ctx context.Context, rec notification.Record) error {
	sender, ok := d.senders[rec.Channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSender, rec.Channel)
	}

	sending, err := rec.MarkSending()
	if err != nil {
		return err
	}
	if err := d.store.SaveTransition(ctx, sending, notification.StatusPending); err != nil {
		return fmt.Errorf("claim notification: %w", err)
	}

	receipt, sendErr := sender.Send(ctx, sending)
	if sendErr == nil {
		sent, err := sending.MarkSent(receipt, d.now())
		if err != nil {
			return err
		}
		if err := d.store.SaveTransition(ctx, sent, notification.StatusSending); err != nil {
			return fmt.Errorf("persist sent notification: %w", err)
		}
		d.logger.InfoContext(ctx, "notification sent",
			logger.NotificationID(rec.ID),
			logger.TenantID(rec.TenantID),
			logger.Channel(rec.Channel),
			slog.String("provider", receipt.Provider),
		)
		return nil
	}

	return d.handleFailure(ctx, sending, sendErr)
}

// handleFailure classifies a sender error, records the failure, and either
// requeues the record with backoff or leaves it failed.
func (d *Dispatcher) handleFailure(ctx context.Context, rec notification.Record, sendErr error) error {
	code := retry.CodeTemporaryFailure
	message := sendErr.Error()
	var details map[string]any

	var classified *SendError
	if errors.As(sendErr, &classified) {
		code = classified.Code
		message = classified.Message
		details = classified.Details
	}

	strategy := retry.Calculate(rec, code)
	now := d.now()

	failed, err := rec.MarkFailed(code, message, details, strategy.ShouldRetry, now)
	if err != nil {
		return err
	}

	if !strategy.ShouldRetry {
		if err := d.store.SaveTransition(ctx, failed, notification.StatusSending); err != nil {
			return fmt.Errorf("persist failed notification: %w", err)
		}
		d.logger.ErrorContext(ctx, "notification failed permanently",
			logger.NotificationID(rec.ID),
			logger.TenantID(rec.TenantID),
			logger.Channel(rec.Channel),
			logger.ErrorCode(code),
			slog.Int("retry_count", failed.RetryCount),
		)
		return nil
	}

	requeued, err := failed.Retry()
	if err != nil {
		return err
	}
	requeued = requeued.WithSchedule(now.Add(strategy.Delay))
	if err := d.store.SaveTransition(ctx, requeued, notification.StatusSending); err != nil {
		return fmt.Errorf("requeue notification: %w", err)
	}
	d.logger.WarnContext(ctx, "notification retry scheduled",
		logger.NotificationID(rec.ID),
		logger.TenantID(rec.TenantID),
		logger.Channel(rec.Channel),
		logger.ErrorCode(code),
		slog.Int("retry_count", requeued.RetryCount),
		slog.Duration("delay", strategy.Delay),
	)
	return nil
}

// DispatchDue loads the tenant's due pending records, re-checks routing for
// each, and dispatches the eligible ones in priority-ordered batches under
// the configured concurrency limit. A non-positive batchSize falls back to
// the configured default. It returns how many records were handed to a
// sender. Per-record failures are logged and skipped so one bad record
// cannot stall a sweep.
func (d *Dispatcher) DispatchDue(ctx context.Context, tenantID uuid.UUID, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = d.batchSize
	}
	now := d.now()
	due, err := d.store.FindByTenant(ctx, tenantID, storage.Filter{
		Status:    notification.StatusPending,
		DueBefore: &now,
	})
	if err != nil {
		return 0, fmt.Errorf("load due notifications: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	var dispatched atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, records := range batch.Optimize(due, batchSize) {
		g.Go(func() error {
			for _, rec := range records {
				if err := d.dispatchDueRecord(ctx, rec, now); err != nil {
					d.logger.ErrorContext(ctx, "dispatch failed",
						logger.NotificationID(rec.ID),
						logger.TenantID(rec.TenantID),
						logger.Channel(rec.Channel),
						logger.Error(err),
					)
					continue
				}
				dispatched.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(dispatched.Load()), err
	}
	return int(dispatched.Load()), nil
}

// dispatchDueRecord re-routes a due record before delivery: quiet hours may
// have started since the record was parked. A concurrent claim by another
// dispatcher is not an error.
func (d *Dispatcher) dispatchDueRecord(ctx context.Context, rec notification.Record, now time.Time) error {
	decision, err := d.route(ctx, rec, now)
	if err != nil {
		return err
	}
	if !decision.ShouldSend {
		if decision.ScheduledAt != nil {
			if err := d.store.Save(ctx, rec.WithSchedule(*decision.ScheduledAt)); err != nil {
				return fmt.Errorf("reschedule notification: %w", err)
			}
		}
		return nil
	}
	if err := d.Dispatch(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrConcurrentModification) {
			return nil
		}
		return err
	}
	return nil
}

// Cancel cancels a pending or sending record. The write is compare-and-swap
// guarded so a cancel cannot overwrite a delivery that completed in between.
func (d *Dispatcher) Cancel(ctx context.Context, tenantID, id uuid.UUID) (notification.Record, error) {
	rec, err := d.store.FindByID(ctx, tenantID, id)
	if err != nil {
		return notification.Record{}, err
	}
	cancelled, err := rec.Cancel()
	if err != nil {
		return notification.Record{}, err
	}
	if err := d.store.SaveTransition(ctx, cancelled, rec.Status); err != nil {
		return notification.Record{}, fmt.Errorf("persist cancellation: %w", err)
	}
	d.logger.InfoContext(ctx, "notification cancelled",
		logger.NotificationID(id),
		logger.TenantID(tenantID),
	)
	return cancelled, nil
}

// Retry manually requeues a failed record for an immediate attempt,
// charging one retry from its budget.
func (d *Dispatcher) Retry(ctx context.Context, tenantID, id uuid.UUID) (notification.Record, error) {
	rec, err := d.store.FindByID(ctx, tenantID, id)
	if err != nil {
		return notification.Record{}, err
	}
	requeued, err := rec.Retry()
	if err != nil {
		return notification.Record{}, err
	}
	requeued.ScheduledAt = nil
	if err := d.store.SaveTransition(ctx, requeued, notification.StatusFailed); err != nil {
		return notification.Record{}, fmt.Errorf("requeue notification: %w", err)
	}
	return requeued, nil
}

// Delete removes a non-pending record from the store.
func (d *Dispatcher) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	return d.store.Delete(ctx, tenantID, id)
}

func (d *Dispatcher) route(ctx context.Context, rec notification.Record, now time.Time) (routing.Decision, error) {
	var settings routing.Settings
	if d.settings != nil {
		var err error
		settings, err = d.settings.Settings(ctx, rec.TenantID)
		if err != nil {
			return routing.Decision{}, fmt.Errorf("load tenant settings: %w", err)
		}
	}
	decision, err := d.engine.Decide(ctx, rec, settings, now)
	if err != nil {
		return routing.Decision{}, fmt.Errorf("route notification: %w", err)
	}
	return decision, nil
}
