package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// PostgresStore is the durable Store implementation. The status
// compare-and-swap maps to a conditional UPDATE, and aggregate queries run
// in SQL instead of scanning rows in the application.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Store backed by the given connection pool.
// The schema must be migrated first; see Migrate.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ConnectPostgres establishes a pgx connection pool from configuration,
// retrying transient startup failures.
func ConnectPostgres(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxOpenConns
	poolCfg.MinConns = cfg.MinIdleConns

	var lastErr error
	for i := range cfg.RetryAttempts {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Join(ctx.Err(), lastErr)
		case <-time.After(time.Duration(i+1) * cfg.RetryInterval):
		}
	}
	return nil, fmt.Errorf("postgres not ready: %w", lastErr)
}

const notificationColumns = `id, tenant_id, channel, template_id, recipients, data, subject, metadata,
	scheduled_at, status, priority, retry_count, max_retries, can_retry,
	failed_at, error_code, error_message, error_details,
	sent_at, message_id, provider_message_id, delivery_status, provider,
	response_status, response_body, created_at, updated_at`

func recordArgs(rec notification.Record) []any {
	return []any{
		rec.ID, rec.TenantID, rec.Channel, rec.TemplateID, rec.Recipients, rec.Data, rec.Subject, rec.Metadata,
		rec.ScheduledAt, rec.Status, rec.Priority, rec.RetryCount, rec.MaxRetries, rec.CanRetry,
		rec.FailedAt, rec.ErrorCode, rec.ErrorMessage, rec.ErrorDetails,
		rec.SentAt, rec.Receipt.MessageID, rec.Receipt.ProviderMessageID, rec.Receipt.DeliveryStatus, rec.Receipt.Provider,
		rec.Receipt.ResponseStatus, rec.Receipt.ResponseBody, rec.CreatedAt, rec.UpdatedAt,
	}
}

func scanRecord(row pgx.Row) (notification.Record, error) {
	var rec notification.Record
	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.Channel, &rec.TemplateID, &rec.Recipients, &rec.Data, &rec.Subject, &rec.Metadata,
		&rec.ScheduledAt, &rec.Status, &rec.Priority, &rec.RetryCount, &rec.MaxRetries, &rec.CanRetry,
		&rec.FailedAt, &rec.ErrorCode, &rec.ErrorMessage, &rec.ErrorDetails,
		&rec.SentAt, &rec.Receipt.MessageID, &rec.Receipt.ProviderMessageID, &rec.Receipt.DeliveryStatus, &rec.Receipt.Provider,
		&rec.Receipt.ResponseStatus, &rec.Receipt.ResponseBody, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, ErrNotFound
	}
	if err != nil {
		return rec, fmt.Errorf("scan record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Save(ctx context.Context, rec notification.Record) error {
	placeholders := make([]string, 27)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`
		INSERT INTO notifications (%s) VALUES (%s)
		ON CONFLICT (id) DO UPDATE SET
			recipients = EXCLUDED.recipients,
			data = EXCLUDED.data,
			subject = EXCLUDED.subject,
			metadata = EXCLUDED.metadata,
			scheduled_at = EXCLUDED.scheduled_at,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			retry_count = EXCLUDED.retry_count,
			max_retries = EXCLUDED.max_retries,
			can_retry = EXCLUDED.can_retry,
			failed_at = EXCLUDED.failed_at,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			error_details = EXCLUDED.error_details,
			sent_at = EXCLUDED.sent_at,
			message_id = EXCLUDED.message_id,
			provider_message_id = EXCLUDED.provider_message_id,
			delivery_status = EXCLUDED.delivery_status,
			provider = EXCLUDED.provider,
			response_status = EXCLUDED.response_status,
			response_body = EXCLUDED.response_body,
			updated_at = EXCLUDED.updated_at`,
		notificationColumns, strings.Join(placeholders, ", "))

	if _, err := s.pool.Exec(ctx, query, recordArgs(rec)...); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveTransition(ctx context.Context, rec notification.Record, expected notification.Status) error {
	query := `
		UPDATE notifications SET
			status = $1, priority = $2, scheduled_at = $3,
			retry_count = $4, can_retry = $5,
			failed_at = $6, error_code = $7, error_message = $8, error_details = $9,
			sent_at = $10, message_id = $11, provider_message_id = $12,
			delivery_status = $13, provider = $14, response_status = $15, response_body = $16,
			updated_at = $17
		WHERE id = $18 AND tenant_id = $19 AND status = $20`

	tag, err := s.pool.Exec(ctx, query,
		rec.Status, rec.Priority, rec.ScheduledAt,
		rec.RetryCount, rec.CanRetry,
		rec.FailedAt, rec.ErrorCode, rec.ErrorMessage, rec.ErrorDetails,
		rec.SentAt, rec.Receipt.MessageID, rec.Receipt.ProviderMessageID,
		rec.Receipt.DeliveryStatus, rec.Receipt.Provider, rec.Receipt.ResponseStatus, rec.Receipt.ResponseBody,
		rec.UpdatedAt,
		rec.ID, rec.TenantID, expected,
	)
	if err != nil {
		return fmt.Errorf("transition record: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows: either the record is gone or someone else transitioned it.
	if _, err := s.FindByID(ctx, rec.TenantID, rec.ID); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return ErrConcurrentModification
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID, id uuid.UUID) (notification.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE tenant_id = $1 AND id = $2`, notificationColumns)
	return scanRecord(s.pool.QueryRow(ctx, query, tenantID, id))
}

func (s *PostgresStore) FindByTenant(ctx context.Context, tenantID uuid.UUID, f Filter) ([]notification.Record, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		conditions = append(conditions, "status = "+arg(f.Status))
	}
	if f.Priority != "" {
		conditions = append(conditions, "priority = "+arg(f.Priority))
	}
	if f.Channel != "" {
		conditions = append(conditions, "channel = "+arg(f.Channel))
	}
	if f.TemplateID != "" {
		conditions = append(conditions, "template_id = "+arg(f.TemplateID))
	}
	if f.Recipient != "" {
		conditions = append(conditions, arg(f.Recipient)+" = ANY(recipients)")
	}
	if f.DueBefore != nil {
		conditions = append(conditions, "status = 'pending'")
		conditions = append(conditions, "(scheduled_at IS NULL OR scheduled_at <= "+arg(*f.DueBefore)+")")
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY inserted_seq`,
		notificationColumns, strings.Join(conditions, " AND "))
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []notification.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM notifications WHERE tenant_id = $1 AND id = $2 AND status <> 'pending'`,
		tenantID, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := s.FindByID(ctx, tenantID, id); errors.Is(err, ErrNotFound) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return ErrRecordPending
}

// windowClause appends created_at bounds to conditions, mutating args.
func windowClause(win TimeWindow, conditions []string, args []any) ([]string, []any) {
	if win.From != nil {
		args = append(args, *win.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if win.To != nil {
		args = append(args, *win.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return conditions, args
}

func (s *PostgresStore) Count(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (int64, error) {
	conditions, args := windowClause(win, []string{"tenant_id = $1"}, []any{tenantID})
	query := `SELECT COUNT(*) FROM notifications WHERE ` + strings.Join(conditions, " AND ")

	var total int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Status]int64, error) {
	return countGrouped[notification.Status](ctx, s.pool, "status", tenantID, win)
}

func (s *PostgresStore) CountByPriority(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Priority]int64, error) {
	return countGrouped[notification.Priority](ctx, s.pool, "priority", tenantID, win)
}

func (s *PostgresStore) CountByChannel(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (map[notification.Channel]int64, error) {
	return countGrouped[notification.Channel](ctx, s.pool, "channel", tenantID, win)
}

func countGrouped[T ~string](ctx context.Context, pool *pgxpool.Pool, column string, tenantID uuid.UUID, win TimeWindow) (map[T]int64, error) {
	conditions, args := windowClause(win, []string{"tenant_id = $1"}, []any{tenantID})
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM notifications WHERE %s GROUP BY %s`,
		column, strings.Join(conditions, " AND "), column)

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[T]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan %s count: %w", column, err)
		}
		counts[T(key)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) AverageDeliveryTime(ctx context.Context, tenantID uuid.UUID, win TimeWindow) (time.Duration, error) {
	conditions, args := windowClause(win,
		[]string{"tenant_id = $1", "status = 'sent'", "sent_at IS NOT NULL"},
		[]any{tenantID})
	query := `SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (sent_at - created_at))), 0)
		FROM notifications WHERE ` + strings.Join(conditions, " AND ")

	var seconds float64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&seconds); err != nil {
		return 0, fmt.Errorf("average delivery time: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
