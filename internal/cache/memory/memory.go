// Package memory provides in-process implementations of the cache and lock
// interfaces for single-instance deployments that run without Redis.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pmradar/pmradar/internal/domain"
)

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// CounterCache is a process-local domain.CounterCache.
type CounterCache struct {
	mu       sync.Mutex
	counters map[string]*counterEntry
	now      func() time.Time
}

var _ domain.CounterCache = (*CounterCache)(nil)

func NewCounterCache() *CounterCache {
	return &CounterCache{
		counters: make(map[string]*counterEntry),
		now:      time.Now,
	}
}

// IncrWithExpiry mirrors the Redis contract: the TTL is armed only when the
// key is created, and an expired key restarts from one.
func (c *CounterCache) IncrWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, ok := c.counters[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &counterEntry{expiresAt: now.Add(ttl)}
		c.counters[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// AlertCache is a process-local domain.AlertCache with bounded rings.
type AlertCache struct {
	mu     sync.Mutex
	global []domain.Alert
	byTier map[domain.Tier][]domain.Alert
}

var _ domain.AlertCache = (*AlertCache)(nil)

func NewAlertCache() *AlertCache {
	return &AlertCache{byTier: make(map[domain.Tier][]domain.Alert)}
}

func prepend(ring []domain.Alert, alert domain.Alert, limit int) []domain.Alert {
	if limit < 1 {
		limit = 1
	}
	ring = append([]domain.Alert{alert}, ring...)
	if len(ring) > limit {
		ring = ring[:limit]
	}
	return ring
}

func (c *AlertCache) Push(_ context.Context, alert domain.Alert, limit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.global = prepend(c.global, alert, limit)
	return nil
}

func (c *AlertCache) PushTier(_ context.Context, tier domain.Tier, alert domain.Alert, limit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTier[tier] = prepend(c.byTier[tier], alert, limit)
	return nil
}

func (c *AlertCache) Recent(_ context.Context, limit int) ([]domain.Alert, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshotRing(c.global, limit), nil
}

func (c *AlertCache) RecentByTier(_ context.Context, tier domain.Tier, limit int) ([]domain.Alert, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return snapshotRing(c.byTier[tier], limit), nil
}

func snapshotRing(ring []domain.Alert, limit int) []domain.Alert {
	if limit < 0 {
		limit = 0
	}
	if limit > len(ring) {
		limit = len(ring)
	}
	out := make([]domain.Alert, limit)
	copy(out, ring[:limit])
	return out
}

type lockEntry struct {
	token     uint64
	expiresAt time.Time
}

// LockManager is a process-local domain.LockManager. It guards against
// overlapping runs inside one process only. Each acquisition carries a
// token so an unlock from a holder whose TTL already lapsed cannot release
// a successor's lock, mirroring the Redis conditional unlock.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	seq   uint64
	now   func() time.Time
}

var _ domain.LockManager = (*LockManager)(nil)

func NewLockManager() *LockManager {
	return &LockManager{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if entry, held := lm.locks[key]; held && now.Before(entry.expiresAt) {
		return nil, domain.ErrLockHeld
	}
	lm.seq++
	token := lm.seq
	lm.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			lm.mu.Lock()
			if entry, held := lm.locks[key]; held && entry.token == token {
				delete(lm.locks, key)
			}
			lm.mu.Unlock()
		})
	}
	return unlock, nil
}
