package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// TimeWindow bounds a query by record creation time. Nil bounds are open.
type TimeWindow struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

// Filter narrows FindByTenant results. Zero-valued fields are ignored.
type Filter struct {
	Status     notification.Status
	Priority   notification.Priority
	Channel    notification.Channel
	TemplateID string
	// Recipient matches records whose recipient list contains the token.
	Recipient string
	// DueBefore matches pending records eligible to dispatch at that time:
	// unscheduled, or scheduled at or before it.
	DueBefore *time.Time
	Limit     int
	Offset    int
}

func (f Filter) matches(rec notification.Record) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Priority != "" && rec.Priority != f.Priority {
		return false
	}
	if f.Channel != "" && rec.Channel != f.Channel {
		return false
	}
	if f.TemplateID != "" && rec.TemplateID != f.TemplateID {
		return false
	}
	if f.Recipient != "" {
		found := false
		for _, r := range rec.Recipients {
			if r == f.Recipient {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DueBefore != nil && !rec.IsDue(*f.DueBefore) {
		return false
	}
	return true
}

// Store handles notification record persistence. All operations are scoped
// to the record's tenant.
type Store interface {
	// Save upserts the record unconditionally.
	Save(ctx context.Context, rec notification.Record) error

	// SaveTransition persists a state transition only if the stored record
	// is still in the expected source status. Returns
	// ErrConcurrentModification when another writer got there first, and
	// ErrNotFound for unknown records.
	SaveTransition(ctx context.Context, rec notification.Record, expected notification.Status) error

	// FindByID retrieves a single record.
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (notification.Record, error)

	// FindByTenant lists records matching the filter in insertion order.
	FindByTenant(ctx context.Context, tenantID uuid.UUID, f Filter) ([]notification.Record, error)

	// Delete removes a record. Pending records are refused with
	// ErrRecordPending.
	Delete(ctx context.Context, tenantID, id uuid.UUID) error

	CountingStore
}

// CountingStore is the aggregate-query surface consumed by the statistics
// layer.
type CountingStore interface {
	// Count returns the number of tenant records created in the window.
	Count(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (int64, error)

	// CountByStatus returns per-status record counts in the window.
	CountByStatus(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Status]int64, error)

	// CountByPriority returns per-priority record counts in the window.
	CountByPriority(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Priority]int64, error)

	// CountByChannel returns per-channel record counts in the window.
	CountByChannel(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Channel]int64, error)

	// AverageDeliveryTime returns the mean sent_at-created_at duration of
	// sent records in the window, zero when none were sent.
	AverageDeliveryTime(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (time.Duration, error)
}
