package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pmradar/pmradar/internal/domain"
)

//go:embed scripts/daily_counter.lua
var dailyCounterLua string

// CounterCache implements domain.CounterCache with an atomic Lua script so
// the increment and the conditional TTL arm happen in one round trip.
type CounterCache struct {
	rdb     *redis.Client
	counter *redis.Script
}

var _ domain.CounterCache = (*CounterCache)(nil)

// NewCounterCache creates a CounterCache backed by the given Client.
func NewCounterCache(c *Client) *CounterCache {
	return &CounterCache{
		rdb:     c.Raw(),
		counter: redis.NewScript(dailyCounterLua),
	}
}

// IncrWithExpiry increments the counter at key and returns the new value.
// The TTL is set only when the increment creates the key.
func (cc *CounterCache) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	seconds := int64(ttl.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	count, err := cc.counter.Run(ctx, cc.rdb, []string{key}, seconds).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: incr counter %s: %w", key, err)
	}
	return count, nil
}
