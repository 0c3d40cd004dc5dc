package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// MemoryStore is an in-memory Store implementation. Suitable for tests and
// single-process deployments; the mutex provides the compare-and-swap
// guarantee that a database provides in production.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*tenantRecords
}

// tenantRecords keeps insertion order so listings are deterministic.
type tenantRecords struct {
	byID  map[uuid.UUID]notification.Record
	order []uuid.UUID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tenants: make(map[uuid.UUID]*tenantRecords)}
}

func (s *MemoryStore) tenant(id uuid.UUID) *tenantRecords {
	t, ok := s.tenants[id]
	if !ok {
		t = &tenantRecords{byID: make(map[uuid.UUID]notification.Record)}
		s.tenants[id] = t
	}
	return t
}

func (s *MemoryStore) Save(ctx context.Context, rec notification.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.tenant(rec.TenantID)
	if _, exists := t.byID[rec.ID]; !exists {
		t.order = append(t.order, rec.ID)
	}
	t.byID[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) SaveTransition(ctx context.Context, rec notification.Record, expected notification.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[rec.TenantID]
	if !ok {
		return ErrNotFound
	}
	stored, ok := t.byID[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != expected {
		return ErrConcurrentModification
	}
	t.byID[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, tenantID, id uuid.UUID) (notification.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return notification.Record{}, ErrNotFound
	}
	rec, ok := t.byID[id]
	if !ok {
		return notification.Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) FindByTenant(ctx context.Context, tenantID uuid.UUID, f Filter) ([]notification.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}

	var matched []notification.Record
	for _, id := range t.order {
		rec := t.byID[id]
		if f.matches(rec) {
			matched = append(matched, cloneRecord(rec))
		}
	}

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return ErrNotFound
	}
	rec, ok := t.byID[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status == notification.StatusPending {
		return ErrRecordPending
	}

	delete(t.byID, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (int64, error) {
	var total int64
	s.each(tenantID, win, func(notification.Record) { total++ })
	return total, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Status]int64, error) {
	counts := make(map[notification.Status]int64)
	s.each(tenantID, win, func(rec notification.Record) { counts[rec.Status]++ })
	return counts, nil
}

func (s *MemoryStore) CountByPriority(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Priority]int64, error) {
	counts := make(map[notification.Priority]int64)
	s.each(tenantID, win, func(rec notification.Record) { counts[rec.Priority]++ })
	return counts, nil
}

func (s *MemoryStore) CountByChannel(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Channel]int64, error) {
	counts := make(map[notification.Channel]int64)
	s.each(tenantID, win, func(rec notification.Record) { counts[rec.Channel]++ })
	return counts, nil
}

func (s *MemoryStore) AverageDeliveryTime(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (time.Duration, error) {
	var total time.Duration
	var sent int64
	s.each(tenantID, win, func(rec notification.Record) {
		if rec.Status == notification.StatusSent && rec.SentAt != nil {
			total += rec.SentAt.Sub(rec.CreatedAt)
			sent++
		}
	})
	if sent == 0 {
		return 0, nil
	}
	return total / time.Duration(sent), nil
}

func (s *MemoryStore) each(tenantID uuid.UUID, win TimeWindow, fn func(notification.Record)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return
	}
	for _, rec := range t.byID {
		if win.Contains(rec.CreatedAt) {
			fn(rec)
		}
	}
}

// cloneRecord copies the record's reference fields so stored data cannot be
// mutated through values handed out earlier.
func cloneRecord(rec notification.Record) notification.Record {
	rec.Recipients = append([]string(nil), rec.Recipients...)
	if rec.Data != nil {
		data := make(map[string]any, len(rec.Data))
		for k, v := range rec.Data {
			data[k] = v
		}
		rec.Data = data
	}
	if rec.Metadata != nil {
		md := make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			md[k] = v
		}
		rec.Metadata = md
	}
	if rec.ErrorDetails != nil {
		details := make(map[string]any, len(rec.ErrorDetails))
		for k, v := range rec.ErrorDetails {
			details[k] = v
		}
		rec.ErrorDetails = details
	}
	return rec
}
