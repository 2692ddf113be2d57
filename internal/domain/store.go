package domain

import (
	"context"
	"time"
)

// SnapshotRepository supplies consistent snapshot batches for one venue.
// Implementations apply the tradable price band and the minimum-volume cut
// so detector input stays bounded.
type SnapshotRepository interface {
	LoadActiveMarkets(ctx context.Context, venue Venue, minVolume float64) ([]MarketSnapshot, error)
}

// PatternStore persists detected patterns.
type PatternStore interface {
	InsertBatch(ctx context.Context, patterns []Pattern) error
	// GetByID returns ErrNotFound for unknown or already collected ids.
	GetByID(ctx context.Context, id string) (Pattern, error)
	ListActive(ctx context.Context, limit int) ([]Pattern, error)
	UpdateStatus(ctx context.Context, id string, status PatternStatus) error
	// MarkExpired flips active patterns whose expiry has passed and returns
	// how many rows changed.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]Pattern, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// MatchStore persists cross-venue market matches.
type MatchStore interface {
	Upsert(ctx context.Context, m MarketMatch) error
	GetByID(ctx context.Context, id string) (MarketMatch, error)
	ListActive(ctx context.Context) ([]MarketMatch, error)
	Deactivate(ctx context.Context, id string) error
}

// CounterCache is a counter with expiry. IncrWithExpiry must be a single
// atomic check-and-increment round trip: it increments the counter at key,
// arms the TTL only when the key is first created, and returns the new
// value. That contract, not any particular backend, is what alert rate
// limiting depends on.
type CounterCache interface {
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// AlertCache keeps a bounded most-recent window of emitted alerts for fast
// read access. It is a cache, not the system of record.
type AlertCache interface {
	Push(ctx context.Context, alert Alert, limit int) error
	PushTier(ctx context.Context, tier Tier, alert Alert, limit int) error
	Recent(ctx context.Context, limit int) ([]Alert, error)
	RecentByTier(ctx context.Context, tier Tier, limit int) ([]Alert, error)
}

// LockManager provides distributed locking so overlapping scheduled runs of
// the same pipeline skip instead of double-writing.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
