package dispatcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/dispatcher"
	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/retry"
	"github.com/dmitrymomot/notifykit/pkg/routing"
	"github.com/dmitrymomot/notifykit/pkg/storage"
)

type stubSender struct {
	channel notification.Channel
	receipt notification.Receipt
	err     error
	calls   atomic.Int64
}

func (s *stubSender) Channel() notification.Channel { return s.channel }

func (s *stubSender) Send(ctx context.Context, rec notification.Record) (notification.Receipt, error) {
	s.calls.Add(1)
	if s.err != nil {
		return notification.Receipt{}, s.err
	}
	if s.receipt.MessageID == "" {
		return notification.Receipt{MessageID: rec.ID.String(), Provider: "stub"}, nil
	}
	return s.receipt, nil
}

func newEmailRecord(t *testing.T, opts ...notification.Option) notification.Record {
	t.Helper()
	rec, err := notification.New(uuid.New(), notification.ChannelEmail, "welcome-email", []string{"user@example.com"}, opts...)
	require.NoError(t, err)
	return rec
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func TestDispatcher_New(t *testing.T) {
	t.Parallel()

	t.Run("nil store", func(t *testing.T) {
		t.Parallel()
		_, err := dispatcher.New(nil)
		require.ErrorIs(t, err, dispatcher.ErrStoreNil)
	})

	t.Run("minimal", func(t *testing.T) {
		t.Parallel()
		d, err := dispatcher.New(storage.NewMemoryStore())
		require.NoError(t, err)
		require.NotNil(t, d)
	})
}

func TestDispatcher_NewFromConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	t.Run("dev sender dir registers all channels", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		store := storage.NewMemoryStore()
		d, err := dispatcher.NewFromConfig(store, dispatcher.Config{
			MaxConcurrentBatches: 2,
			DefaultBatchSize:     10,
			DevSenderDir:         dir,
		}, dispatcher.WithClock(fixedClock(now)))
		require.NoError(t, err)

		rec := newEmailRecord(t)
		decision, err := d.Submit(ctx, rec)
		require.NoError(t, err)
		assert.True(t, decision.ShouldSend)

		stored, err := store.FindByID(ctx, rec.TenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusSent, stored.Status)
		assert.Equal(t, "dev", stored.Receipt.Provider)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)

		sms, err := notification.New(rec.TenantID, notification.ChannelSMS, "otp", []string{"+14155550100"})
		require.NoError(t, err)
		_, err = d.Submit(ctx, sms)
		require.NoError(t, err)
	})

	t.Run("explicit sender overrides dev sender", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{channel: notification.ChannelEmail}
		d, err := dispatcher.NewFromConfig(store, dispatcher.Config{DevSenderDir: t.TempDir()},
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(now)),
		)
		require.NoError(t, err)

		rec := newEmailRecord(t)
		_, err = d.Submit(ctx, rec)
		require.NoError(t, err)
		assert.EqualValues(t, 1, sender.calls.Load())
	})

	t.Run("default batch size applied to sweeps", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{channel: notification.ChannelEmail}
		d, err := dispatcher.NewFromConfig(store, dispatcher.Config{DefaultBatchSize: 2},
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(now)),
		)
		require.NoError(t, err)

		tenantID := uuid.New()
		for range 3 {
			rec, err := notification.New(tenantID, notification.ChannelEmail, "digest", []string{"user@example.com"})
			require.NoError(t, err)
			require.NoError(t, store.Save(ctx, rec))
		}

		n, err := d.DispatchDue(ctx, tenantID, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.EqualValues(t, 3, sender.calls.Load())
	})
}

func TestDispatcher_Submit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	t.Run("sends immediately", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{channel: notification.ChannelEmail}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(now)),
		)
		require.NoError(t, err)

		rec := newEmailRecord(t)
		decision, err := d.Submit(ctx, rec)
		require.NoError(t, err)
		assert.True(t, decision.ShouldSend)
		assert.EqualValues(t, 1, sender.calls.Load())

		stored, err := store.FindByID(ctx, rec.TenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusSent, stored.Status)
		require.NotNil(t, stored.SentAt)
		assert.True(t, stored.SentAt.Equal(now))
		assert.Equal(t, rec.ID.String(), stored.Receipt.MessageID)
	})

	t.Run("rejects invalid record", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		d, err := dispatcher.New(store, dispatcher.WithClock(fixedClock(now)))
		require.NoError(t, err)

		rec := newEmailRecord(t)
		rec.Recipients = []string{"not-an-email"}

		_, err = d.Submit(ctx, rec)
		var verr *dispatcher.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.False(t, verr.Result.Valid)

		_, err = store.FindByID(ctx, rec.TenantID, rec.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("parks future scheduled record", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{channel: notification.ChannelEmail}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(now)),
		)
		require.NoError(t, err)

		at := now.Add(2 * time.Hour)
		rec := newEmailRecord(t, notification.WithScheduledAt(at))

		decision, err := d.Submit(ctx, rec)
		require.NoError(t, err)
		assert.False(t, decision.ShouldSend)
		assert.Equal(t, "scheduled in future", decision.Reason)
		assert.EqualValues(t, 0, sender.calls.Load())

		stored, err := store.FindByID(ctx, rec.TenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusPending, stored.Status)
		require.NotNil(t, stored.ScheduledAt)
		assert.True(t, stored.ScheduledAt.Equal(at))
	})

	t.Run("defers during quiet hours", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{channel: notification.ChannelEmail}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC))),
			dispatcher.WithSettingsProvider(routing.StaticSettings{
				QuietHoursEnabled: true,
				QuietHoursStart:   22,
				QuietHoursEnd:     7,
			}),
		)
		require.NoError(t, err)

		rec := newEmailRecord(t)
		decision, err := d.Submit(ctx, rec)
		require.NoError(t, err)
		assert.False(t, decision.ShouldSend)
		assert.Equal(t, "tenant quiet hours", decision.Reason)
		require.NotNil(t, decision.ScheduledAt)
		assert.Equal(t, 7, decision.ScheduledAt.Hour())
		assert.EqualValues(t, 0, sender.calls.Load())
	})

	t.Run("urgent bypasses quiet hours", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{channel: notification.ChannelEmail}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC))),
			dispatcher.WithSettingsProvider(routing.StaticSettings{
				QuietHoursEnabled: true,
				QuietHoursStart:   22,
				QuietHoursEnd:     7,
			}),
		)
		require.NoError(t, err)

		rec := newEmailRecord(t, notification.WithPriority(notification.PriorityUrgent))
		decision, err := d.Submit(ctx, rec)
		require.NoError(t, err)
		assert.True(t, decision.ShouldSend)
		assert.EqualValues(t, 1, sender.calls.Load())
	})
}

func TestDispatcher_Dispatch_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	t.Run("retryable failure requeues with backoff", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{
			channel: notification.ChannelEmail,
			err:     dispatcher.NewSendError(retry.CodeTemporaryFailure, "smtp 421", nil),
		}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(now)),
		)
		require.NoError(t, err)

		rec := newEmailRecord(t)
		require.NoError(t, store.Save(ctx, rec))
		require.NoError(t, d.Dispatch(ctx, rec))

		stored, err := store.FindByID(ctx, rec.TenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusPending, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Equal(t, retry.CodeTemporaryFailure, stored.ErrorCode)
		assert.Empty(t, stored.ErrorMessage)
		require.NotNil(t, stored.ScheduledAt)
		assert.True(t, stored.ScheduledAt.Equal(now.Add(60*time.Second)))
	})

	t.Run("permanent failure stays failed", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{
			channel: notification.ChannelEmail,
			err:     dispatcher.NewSendError("INVALID_RECIPIENT", "mailbox does not exist", map[string]any{"smtp_code": 550}),
		}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(now)),
		)
		require.NoError(t, err)

		rec := newEmailRecord(t)
		require.NoError(t, store.Save(ctx, rec))
		require.NoError(t, d.Dispatch(ctx, rec))

		stored, err := store.FindByID(ctx, rec.TenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailed, stored.Status)
		assert.False(t, stored.CanRetry)
		assert.Equal(t, "INVALID_RECIPIENT", stored.ErrorCode)
		assert.Equal(t, "mailbox does not exist", stored.ErrorMessage)
		require.NotNil(t, stored.FailedAt)
	})

	t.Run("unclassified error treated as transient", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{
			channel: notification.ChannelEmail,
			err:     errors.New("connection reset by peer"),
		}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(now)),
		)
		require.NoError(t, err)

		rec := newEmailRecord(t)
		require.NoError(t, store.Save(ctx, rec))
		require.NoError(t, d.Dispatch(ctx, rec))

		stored, err := store.FindByID(ctx, rec.TenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusPending, stored.Status)
		assert.Equal(t, retry.CodeTemporaryFailure, stored.ErrorCode)
		assert.Equal(t, 1, stored.RetryCount)
	})

	t.Run("exhausted budget fails permanently", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{
			channel: notification.ChannelEmail,
			err:     dispatcher.NewSendError(retry.CodeTemporaryFailure, "smtp 421", nil),
		}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(now)),
		)
		require.NoError(t, err)

		rec := newEmailRecord(t, notification.WithMaxRetries(1))
		require.NoError(t, store.Save(ctx, rec))

		// First attempt charges the single retry, second exhausts the budget.
		require.NoError(t, d.Dispatch(ctx, rec))
		stored, err := store.FindByID(ctx, rec.TenantID, rec.ID)
		require.NoError(t, err)
		require.Equal(t, notification.StatusPending, stored.Status)

		require.NoError(t, d.Dispatch(ctx, stored))
		stored, err = store.FindByID(ctx, rec.TenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusFailed, stored.Status)
		assert.False(t, stored.CanRetry)
		assert.Equal(t, 1, stored.RetryCount)
	})

	t.Run("no sender registered", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		d, err := dispatcher.New(store, dispatcher.WithClock(fixedClock(now)))
		require.NoError(t, err)

		rec := newEmailRecord(t)
		require.NoError(t, store.Save(ctx, rec))
		require.ErrorIs(t, d.Dispatch(ctx, rec), dispatcher.ErrNoSender)
	})

	t.Run("lost claim race", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{channel: notification.ChannelEmail}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(now)),
		)
		require.NoError(t, err)

		rec := newEmailRecord(t)
		require.NoError(t, store.Save(ctx, rec))

		claimed, err := rec.MarkSending()
		require.NoError(t, err)
		require.NoError(t, store.SaveTransition(ctx, claimed, notification.StatusPending))

		err = d.Dispatch(ctx, rec)
		require.ErrorIs(t, err, storage.ErrConcurrentModification)
		assert.EqualValues(t, 0, sender.calls.Load())
	})
}

func TestDispatcher_DispatchDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	t.Run("dispatches only due records", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{channel: notification.ChannelEmail}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(now)),
			dispatcher.WithConcurrency(2),
		)
		require.NoError(t, err)

		tenantID := uuid.New()
		var due []notification.Record
		for range 5 {
			rec, err := notification.New(tenantID, notification.ChannelEmail, "digest", []string{"user@example.com"})
			require.NoError(t, err)
			rec = rec.WithSchedule(now.Add(-time.Minute))
			require.NoError(t, store.Save(ctx, rec))
			due = append(due, rec)
		}
		future, err := notification.New(tenantID, notification.ChannelEmail, "digest", []string{"user@example.com"},
			notification.WithScheduledAt(now.Add(time.Hour)))
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, future))

		n, err := d.DispatchDue(ctx, tenantID, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.EqualValues(t, 5, sender.calls.Load())

		for _, rec := range due {
			stored, err := store.FindByID(ctx, tenantID, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, notification.StatusSent, stored.Status)
		}
		stored, err := store.FindByID(ctx, tenantID, future.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusPending, stored.Status)
	})

	t.Run("empty sweep", func(t *testing.T) {
		t.Parallel()
		d, err := dispatcher.New(storage.NewMemoryStore(), dispatcher.WithClock(fixedClock(now)))
		require.NoError(t, err)

		n, err := d.DispatchDue(ctx, uuid.New(), 10)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("bad record does not stall the sweep", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		emailSender := &stubSender{channel: notification.ChannelEmail}
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(emailSender),
			dispatcher.WithClock(fixedClock(now)),
		)
		require.NoError(t, err)

		tenantID := uuid.New()
		// No sms sender is registered, so this record fails to dispatch.
		orphan, err := notification.New(tenantID, notification.ChannelSMS, "otp", []string{"+14155550100"})
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, orphan))

		ok, err := notification.New(tenantID, notification.ChannelEmail, "digest", []string{"user@example.com"})
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, ok))

		n, err := d.DispatchDue(ctx, tenantID, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		stored, err := store.FindByID(ctx, tenantID, ok.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusSent, stored.Status)
	})

	t.Run("reschedules when quiet hours started", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		sender := &stubSender{channel: notification.ChannelEmail}
		quietNow := time.Date(2025, 6, 2, 23, 30, 0, 0, time.UTC)
		d, err := dispatcher.New(store,
			dispatcher.WithSenders(sender),
			dispatcher.WithClock(fixedClock(quietNow)),
			dispatcher.WithSettingsProvider(routing.StaticSettings{
				QuietHoursEnabled: true,
				QuietHoursStart:   22,
				QuietHoursEnd:     7,
			}),
		)
		require.NoError(t, err)

		tenantID := uuid.New()
		rec, err := notification.New(tenantID, notification.ChannelEmail, "digest", []string{"user@example.com"})
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, rec))

		n, err := d.DispatchDue(ctx, tenantID, 10)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.EqualValues(t, 0, sender.calls.Load())

		stored, err := store.FindByID(ctx, tenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusPending, stored.Status)
		require.NotNil(t, stored.ScheduledAt)
		assert.Equal(t, 7, stored.ScheduledAt.Hour())
	})
}

func TestDispatcher_CancelRetryDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	t.Run("cancel pending", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		d, err := dispatcher.New(store, dispatcher.WithClock(fixedClock(now)))
		require.NoError(t, err)

		rec := newEmailRecord(t)
		require.NoError(t, store.Save(ctx, rec))

		cancelled, err := d.Cancel(ctx, rec.TenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusCancelled, cancelled.Status)
	})

	t.Run("cancel sent record", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		d, err := dispatcher.New(store, dispatcher.WithClock(fixedClock(now)))
		require.NoError(t, err)

		rec := newEmailRecord(t)
		sent, err := rec.MarkSent(notification.Receipt{MessageID: "m1"}, now)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, sent))

		_, err = d.Cancel(ctx, rec.TenantID, rec.ID)
		require.ErrorIs(t, err, notification.ErrAlreadySent)
	})

	t.Run("manual retry clears schedule", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		d, err := dispatcher.New(store, dispatcher.WithClock(fixedClock(now)))
		require.NoError(t, err)

		rec := newEmailRecord(t)
		failed, err := rec.MarkFailed("INVALID_RECIPIENT", "rejected", nil, false, now)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, failed))

		requeued, err := d.Retry(ctx, rec.TenantID, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusPending, requeued.Status)
		assert.Equal(t, 1, requeued.RetryCount)
		assert.Nil(t, requeued.ScheduledAt)
	})

	t.Run("delete refuses pending", func(t *testing.T) {
		t.Parallel()
		store := storage.NewMemoryStore()
		d, err := dispatcher.New(store, dispatcher.WithClock(fixedClock(now)))
		require.NoError(t, err)

		rec := newEmailRecord(t)
		require.NoError(t, store.Save(ctx, rec))
		require.ErrorIs(t, d.Delete(ctx, rec.TenantID, rec.ID), storage.ErrRecordPending)
	})
}

func TestDevSender(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	sender := dispatcher.NewDevSender(dir, notification.ChannelEmail)
	assert.Equal(t, notification.ChannelEmail, sender.Channel())

	rec := newEmailRecord(t,
		notification.WithSubject("Welcome"),
		notification.WithData(map[string]any{"name": "Ada"}),
	)
	receipt, err := sender.Send(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ID.String(), receipt.MessageID)
	assert.Equal(t, "dev", receipt.Provider)
	assert.Equal(t, "delivered", receipt.DeliveryStatus)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "email", payload["channel"])
	assert.Equal(t, "welcome-email", payload["template_id"])
	assert.Equal(t, "Welcome", payload["subject"])
}
