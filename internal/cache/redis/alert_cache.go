package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pmradar/pmradar/internal/domain"
)

const (
	alertsGlobalKey = "radar:alerts:recent"
	alertsTierKey   = "radar:alerts:recent:" // + tier
)

// AlertCache implements domain.AlertCache as bounded Redis lists of
// JSON-encoded alerts, newest first.
type AlertCache struct {
	rdb *redis.Client
}

var _ domain.AlertCache = (*AlertCache)(nil)

// NewAlertCache creates an AlertCache backed by the given Client.
func NewAlertCache(c *Client) *AlertCache {
	return &AlertCache{rdb: c.Raw()}
}

// push prepends the alert and trims the ring to limit in one pipeline.
func (ac *AlertCache) push(ctx context.Context, key string, alert domain.Alert, limit int) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("redis: marshal alert %s: %w", alert.ID, err)
	}
	if limit < 1 {
		limit = 1
	}

	pipe := ac.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: push alert to %s: %w", key, err)
	}
	return nil
}

func (ac *AlertCache) recent(ctx context.Context, key string, limit int) ([]domain.Alert, error) {
	if limit < 1 {
		return nil, nil
	}
	items, err := ac.rdb.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read alerts from %s: %w", key, err)
	}
	alerts := make([]domain.Alert, 0, len(items))
	for _, item := range items {
		var a domain.Alert
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			// Skip entries written by an incompatible version.
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// Push records the alert in the global recent ring.
func (ac *AlertCache) Push(ctx context.Context, alert domain.Alert, limit int) error {
	return ac.push(ctx, alertsGlobalKey, alert, limit)
}

// PushTier records the alert in one tier's recent ring.
func (ac *AlertCache) PushTier(ctx context.Context, tier domain.Tier, alert domain.Alert, limit int) error {
	return ac.push(ctx, alertsTierKey+string(tier), alert, limit)
}

// Recent returns up to limit most recent alerts, newest first.
func (ac *AlertCache) Recent(ctx context.Context, limit int) ([]domain.Alert, error) {
	return ac.recent(ctx, alertsGlobalKey, limit)
}

// RecentByTier returns up to limit most recent alerts for one tier.
func (ac *AlertCache) RecentByTier(ctx context.Context, tier domain.Tier, limit int) ([]domain.Alert, error) {
	return ac.recent(ctx, alertsTierKey+string(tier), limit)
}
