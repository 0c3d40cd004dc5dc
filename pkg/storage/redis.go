package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// RedisStore persists records as JSON values with a per-tenant index set.
// The status compare-and-swap runs as a Lua script so the check-and-write
// is atomic on the server.
//
// Aggregate queries scan the tenant index; acceptable for the ephemeral
// high-churn workloads this store targets. Use PostgresStore when tenants
// accumulate large histories.
type RedisStore struct {
	client *redis.Client
}

const (
	redisRecordKey = "notify:rec:%s:%s" // tenant, record id
	redisIndexKey  = "notify:idx:%s"    // tenant
)

// casScript swaps the record value only when the stored status still
// matches. Returns 1 on success, 0 on status mismatch, -1 when missing.
var casScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return -1
end
local rec = cjson.decode(raw)
if rec['status'] ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`)

// saveScript upserts the record value and appends the id to the tenant
// index only on first insert, so the index holds one entry per record no
// matter how often the record transitions.
var saveScript = redis.NewScript(`
local created = redis.call('EXISTS', KEYS[1]) == 0
redis.call('SET', KEYS[1], ARGV[1])
if created then
	redis.call('RPUSH', KEYS[2], ARGV[2])
end
return created and 1 or 0
`)

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// ConnectRedis establishes a Redis connection from configuration, retrying
// on startup races with the server.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var lastErr error
	for range cfg.RetryAttempts {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		} else {
			lastErr = err
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), lastErr)
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, fmt.Errorf("redis not ready: %w", lastErr)
}

func (s *RedisStore) recordKey(tenantID, id uuid.UUID) string {
	return fmt.Sprintf(redisRecordKey, tenantID, id)
}

func (s *RedisStore) indexKey(tenantID uuid.UUID) string {
	return fmt.Sprintf(redisIndexKey, tenantID)
}

func (s *RedisStore) Save(ctx context.Context, rec notification.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	err = saveScript.Run(ctx, s.client,
		[]string{s.recordKey(rec.TenantID, rec.ID), s.indexKey(rec.TenantID)},
		string(raw), rec.ID.String(),
	).Err()
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveTransition(ctx context.Context, rec notification.Record, expected notification.Status) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	res, err := casScript.Run(ctx, s.client,
		[]string{s.recordKey(rec.TenantID, rec.ID)},
		string(expected), string(raw),
	).Int()
	if err != nil {
		return fmt.Errorf("transition record: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrConcurrentModification
	default:
		return ErrNotFound
	}
}

func (s *RedisStore) FindByID(ctx context.Context, tenantID, id uuid.UUID) (notification.Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(tenantID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return notification.Record{}, ErrNotFound
	}
	if err != nil {
		return notification.Record{}, fmt.Errorf("get record: %w", err)
	}

	var rec notification.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return notification.Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) FindByTenant(ctx context.Context, tenantID uuid.UUID, f Filter) ([]notification.Record, error) {
	var matched []notification.Record
	err := s.each(ctx, tenantID, TimeWindow{}, func(rec notification.Record) {
		if f.matches(rec) {
			matched = append(matched, rec)
		}
	})
	if err != nil {
		return nil, err
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

func (s *RedisStore) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	rec, err := s.FindByID(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if rec.Status == notification.StatusPending {
		return ErrRecordPending
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.recordKey(tenantID, id))
	pipe.LRem(ctx, s.indexKey(tenantID), 1, id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (int64, error) {
	var total int64
	err := s.each(ctx, tenantID, win, func(notification.Record) { total++ })
	return total, err
}

func (s *RedisStore) CountByStatus(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Status]int64, error) {
	counts := make(map[notification.Status]int64)
	err := s.each(ctx, tenantID, win, func(rec notification.Record) { counts[rec.Status]++ })
	return counts, err
}

func (s *RedisStore) CountByPriority(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Priority]int64, error) {
	counts := make(map[notification.Priority]int64)
	err := s.each(ctx, tenantID, win, func(rec notification.Record) { counts[rec.Priority]++ })
	return counts, err
}

func (s *RedisStore) CountByChannel(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Channel]int64, error) {
	counts := make(map[notification.Channel]int64)
	err := s.each(ctx, tenantID, win, func(rec notification.Record) { counts[rec.Channel]++ })
	return counts, err
}

func (s *RedisStore) AverageDeliveryTime(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (time.Duration, error) {
	var total time.Duration
	var sent int64
	err := s.each(ctx, tenantID, win, func(rec notification.Record) {
		if rec.Status == notification.StatusSent && rec.SentAt != nil {
			total += rec.SentAt.Sub(rec.CreatedAt)
			sent++
		}
	})
	if err != nil || sent == 0 {
		return 0, err
	}
	return total / time.Duration(sent), nil
}

// each streams the tenant's records through fn in insertion order,
// tolerating index entries whose value expired or was deleted mid-scan.
func (s *RedisStore) each(ctx context.Context, tenantID uuid.UUID, win TimeWindow, fn func(notification.Record)) error {
	ids, err := s.client.LRange(ctx, s.indexKey(tenantID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list tenant index: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		// The save script keeps entries unique; dedupe anyway so a stray
		// manual push cannot double-count a record.
		if !seen[id] {
			seen[id] = true
			keys = append(keys, fmt.Sprintf(redisRecordKey, tenantID, id))
		}
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("load tenant records: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec notification.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return fmt.Errorf("unmarshal record: %w", err)
		}
		if win.Contains(rec.CreatedAt) {
			fn(rec)
		}
	}
	return nil
}
