package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmradar/pmradar/internal/domain"
)

// historyWindow bounds how many history points a snapshot carries. The
// detectors need at most a few dozen; loading more is wasted transfer.
const historyWindow = 48

// SnapshotStore implements domain.SnapshotRepository using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

var _ domain.SnapshotRepository = (*SnapshotStore)(nil)

// NewSnapshotStore creates a SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// LoadActiveMarkets returns the venue's active markets above minVolume and
// inside the tradable price band, each with its history window ordered
// oldest to newest.
func (s *SnapshotStore) LoadActiveMarkets(ctx context.Context, venue domain.Venue, minVolume float64) ([]domain.MarketSnapshot, error) {
	const marketQuery = `
		SELECT market_id, title, yes_price, volume, best_bid, best_ask, close_time
		FROM markets
		WHERE venue = $1
		  AND is_active
		  AND volume >= $2
		  AND yes_price > $3 AND yes_price < $4
		ORDER BY volume DESC`

	rows, err := s.pool.Query(ctx, marketQuery,
		string(venue), minVolume, domain.MinTradablePrice, domain.MaxTradablePrice)
	if err != nil {
		return nil, fmt.Errorf("postgres: load %s markets: %w", venue, err)
	}
	defer rows.Close()

	var snapshots []domain.MarketSnapshot
	index := make(map[string]int)
	for rows.Next() {
		m := domain.MarketSnapshot{Venue: venue}
		var closeTime sql.NullTime
		if err := rows.Scan(
			&m.MarketID, &m.Title, &m.YesPrice, &m.Volume,
			&m.BestBid, &m.BestAsk, &closeTime,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan %s market: %w", venue, err)
		}
		if closeTime.Valid {
			m.CloseTime = closeTime.Time
		}
		index[m.MarketID] = len(snapshots)
		snapshots = append(snapshots, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load %s markets: %w", venue, err)
	}
	if len(snapshots) == 0 {
		return nil, nil
	}

	if err := s.attachHistory(ctx, venue, snapshots, index); err != nil {
		return nil, err
	}
	return snapshots, nil
}

// attachHistory loads the bounded history window for every selected market
// in one query and distributes the points in chronological order.
func (s *SnapshotStore) attachHistory(ctx context.Context, venue domain.Venue, snapshots []domain.MarketSnapshot, index map[string]int) error {
	ids := make([]string, len(snapshots))
	for i, m := range snapshots {
		ids[i] = m.MarketID
	}

	const historyQuery = `
		SELECT market_id, ts, price, volume
		FROM (
			SELECT market_id, ts, price, volume,
			       ROW_NUMBER() OVER (PARTITION BY market_id ORDER BY ts DESC) AS rn
			FROM market_history
			WHERE venue = $1 AND market_id = ANY($2)
		) ranked
		WHERE rn <= $3
		ORDER BY market_id, ts ASC`

	rows, err := s.pool.Query(ctx, historyQuery, string(venue), ids, historyWindow)
	if err != nil {
		return fmt.Errorf("postgres: load %s history: %w", venue, err)
	}
	defer rows.Close()

	for rows.Next() {
		var marketID string
		var p domain.PricePoint
		var ts time.Time
		if err := rows.Scan(&marketID, &ts, &p.Price, &p.Volume); err != nil {
			return fmt.Errorf("postgres: scan %s history: %w", venue, err)
		}
		p.Timestamp = ts
		if i, ok := index[marketID]; ok {
			snapshots[i].History = append(snapshots[i].History, p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: load %s history: %w", venue, err)
	}
	return nil
}
