package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/recipient"
	"github.com/dmitrymomot/notifykit/pkg/storage"
)

// Statistics is the per-tenant delivery rollup for an optional time range.
type Statistics struct {
	Total     int64 `json:"total"`
	Sent      int64 `json:"sent"`
	Failed    int64 `json:"failed"`
	Pending   int64 `json:"pending"`
	Cancelled int64 `json:"cancelled"`

	// SuccessRate is sent/total in [0,1]; zero when no records exist.
	SuccessRate float64 `json:"success_rate"`

	AvgDeliveryTime time.Duration `json:"avg_delivery_time"`

	ByStatus   map[notification.Status]int64   `json:"by_status"`
	ByPriority map[notification.Priority]int64 `json:"by_priority"`
	ByChannel  map[notification.Channel]int64  `json:"by_channel"`

	// PushPlatforms counts push recipient tokens by provider platform and
	// WebhookSchemes counts webhook endpoints by URL scheme. Nil when the
	// tenant has no records on the channel in the window.
	PushPlatforms  map[recipient.Platform]int64 `json:"push_platforms,omitempty"`
	WebhookSchemes map[string]int64             `json:"webhook_schemes,omitempty"`
}

// Source is the store view statistics are composed from: counting
// primitives plus record listing for the recipient-level breakdowns.
// storage.Store satisfies it.
type Source interface {
	storage.CountingStore
	FindByTenant(ctx context.Context, tenantID uuid.UUID, f storage.Filter) ([]notification.Record, error)
}

// Aggregator composes statistics from a store's counting primitives.
type Aggregator struct {
	store Source
}

// NewAggregator creates an Aggregator over the given store.
func NewAggregator(store Source) *Aggregator {
	return &Aggregator{store: store}
}

// Collect gathers the rollup for a tenant over the given window.
func (a *Aggregator) Collect(ctx context.Context, tenantID uuid.UUID, win storage.TimeWindow) (Statistics, error) {
	byStatus, err := a.store.CountByStatus(ctx, tenantID, win)
	if err != nil {
		return Statistics{}, fmt.Errorf("count by status: %w", err)
	}
	byPriority, err := a.store.CountByPriority(ctx, tenantID, win)
	if err != nil {
		return Statistics{}, fmt.Errorf("count by priority: %w", err)
	}
	byChannel, err := a.store.CountByChannel(ctx, tenantID, win)
	if err != nil {
		return Statistics{}, fmt.Errorf("count by channel: %w", err)
	}
	avg, err := a.store.AverageDeliveryTime(ctx, tenantID, win)
	if err != nil {
		return Statistics{}, fmt.Errorf("average delivery time: %w", err)
	}
	pushPlatforms, err := a.pushPlatforms(ctx, tenantID, win)
	if err != nil {
		return Statistics{}, fmt.Errorf("count push platforms: %w", err)
	}
	webhookSchemes, err := a.webhookSchemes(ctx, tenantID, win)
	if err != nil {
		return Statistics{}, fmt.Errorf("count webhook schemes: %w", err)
	}

	stats := Statistics{
		Sent:            byStatus[notification.StatusSent],
		Failed:          byStatus[notification.StatusFailed],
		Pending:         byStatus[notification.StatusPending],
		Cancelled:       byStatus[notification.StatusCancelled],
		AvgDeliveryTime: avg,
		ByStatus:        byStatus,
		ByPriority:      byPriority,
		ByChannel:       byChannel,
		PushPlatforms:   pushPlatforms,
		WebhookSchemes:  webhookSchemes,
	}
	for _, n := range byStatus {
		stats.Total += n
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Sent) / float64(stats.Total)
	}
	return stats, nil
}

// pushPlatforms counts the tenant's push recipient tokens by platform,
// classified by token shape.
func (a *Aggregator) pushPlatforms(ctx context.Context, tenantID uuid.UUID, win storage.TimeWindow) (map[recipient.Platform]int64, error) {
	records, err := a.store.FindByTenant(ctx, tenantID, storage.Filter{Channel: notification.ChannelPush})
	if err != nil {
		return nil, err
	}

	var counts map[recipient.Platform]int64
	for _, rec := range records {
		if !win.Contains(rec.CreatedAt) {
			continue
		}
		for _, token := range rec.Recipients {
			if counts == nil {
				counts = make(map[recipient.Platform]int64)
			}
			counts[recipient.DeviceTokenPlatform(token)]++
		}
	}
	return counts, nil
}

// webhookSchemes counts the tenant's webhook endpoints by URL scheme.
// Tokens without a scheme are skipped; they never passed validation.
func (a *Aggregator) webhookSchemes(ctx context.Context, tenantID uuid.UUID, win storage.TimeWindow) (map[string]int64, error) {
	records, err := a.store.FindByTenant(ctx, tenantID, storage.Filter{Channel: notification.ChannelWebhook})
	if err != nil {
		return nil, err
	}

	var counts map[string]int64
	for _, rec := range records {
		if !win.Contains(rec.CreatedAt) {
			continue
		}
		for _, endpoint := range rec.Recipients {
			scheme, _, ok := strings.Cut(endpoint, "://")
			if !ok {
				continue
			}
			if counts == nil {
				counts = make(map[string]int64)
			}
			counts[strings.ToLower(scheme)]++
		}
	}
	return counts, nil
}
