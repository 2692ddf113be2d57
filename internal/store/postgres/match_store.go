package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmradar/pmradar/internal/domain"
)

// MatchStore implements domain.MatchStore using PostgreSQL.
type MatchStore struct {
	pool *pgxpool.Pool
}

var _ domain.MatchStore = (*MatchStore)(nil)

// NewMatchStore creates a MatchStore backed by the given pool.
func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{pool: pool}
}

const matchCols = `id, topic,
	poly_market_id, poly_title, poly_price, poly_volume, poly_close_time,
	kalshi_market_id, kalshi_title, kalshi_price, kalshi_volume, kalshi_close_time,
	price_gap_cents, gap_direction, combined_volume, similarity,
	is_active, first_seen, last_seen`

// Upsert inserts a match or refreshes an existing one by slug ID. The
// original first_seen is preserved; a re-seen match is reactivated.
func (s *MatchStore) Upsert(ctx context.Context, m domain.MarketMatch) error {
	const query = `
		INSERT INTO market_matches (` + matchCols + `)
		VALUES (
			$1, $2,
			$3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			TRUE, $17, $18
		)
		ON CONFLICT (id) DO UPDATE SET
			topic             = EXCLUDED.topic,
			poly_market_id    = EXCLUDED.poly_market_id,
			poly_title        = EXCLUDED.poly_title,
			poly_price        = EXCLUDED.poly_price,
			poly_volume       = EXCLUDED.poly_volume,
			poly_close_time   = EXCLUDED.poly_close_time,
			kalshi_market_id  = EXCLUDED.kalshi_market_id,
			kalshi_title      = EXCLUDED.kalshi_title,
			kalshi_price      = EXCLUDED.kalshi_price,
			kalshi_volume     = EXCLUDED.kalshi_volume,
			kalshi_close_time = EXCLUDED.kalshi_close_time,
			price_gap_cents   = EXCLUDED.price_gap_cents,
			gap_direction     = EXCLUDED.gap_direction,
			combined_volume   = EXCLUDED.combined_volume,
			similarity        = EXCLUDED.similarity,
			is_active         = TRUE,
			last_seen         = EXCLUDED.last_seen`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Topic,
		m.Polymarket.MarketID, m.Polymarket.Title, m.Polymarket.Price, m.Polymarket.Volume, nullTime(m.Polymarket.CloseTime),
		m.Kalshi.MarketID, m.Kalshi.Title, m.Kalshi.Price, m.Kalshi.Volume, nullTime(m.Kalshi.CloseTime),
		m.PriceGapCents, string(m.GapDirection), m.CombinedVolume, m.Similarity,
		m.FirstSeen, m.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert match %s: %w", m.ID, err)
	}
	return nil
}

func scanMatch(row pgx.Row) (domain.MarketMatch, error) {
	var m domain.MarketMatch
	var direction string
	var polyClose, kalshiClose sql.NullTime
	err := row.Scan(
		&m.ID, &m.Topic,
		&m.Polymarket.MarketID, &m.Polymarket.Title, &m.Polymarket.Price, &m.Polymarket.Volume, &polyClose,
		&m.Kalshi.MarketID, &m.Kalshi.Title, &m.Kalshi.Price, &m.Kalshi.Volume, &kalshiClose,
		&m.PriceGapCents, &direction, &m.CombinedVolume, &m.Similarity,
		&m.IsActive, &m.FirstSeen, &m.LastSeen,
	)
	if err != nil {
		return domain.MarketMatch{}, err
	}
	m.GapDirection = domain.GapDirection(direction)
	if polyClose.Valid {
		m.Polymarket.CloseTime = polyClose.Time
	}
	if kalshiClose.Valid {
		m.Kalshi.CloseTime = kalshiClose.Time
	}
	return m, nil
}

// GetByID retrieves one match by its slug ID.
func (s *MatchStore) GetByID(ctx context.Context, id string) (domain.MarketMatch, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+matchCols+` FROM market_matches WHERE id = $1`, id)
	m, err := scanMatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketMatch{}, domain.ErrNotFound
		}
		return domain.MarketMatch{}, fmt.Errorf("postgres: get match %s: %w", id, err)
	}
	return m, nil
}

// ListActive returns all active matches, most recently seen first.
func (s *MatchStore) ListActive(ctx context.Context) ([]domain.MarketMatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchCols+` FROM market_matches WHERE is_active ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active matches: %w", err)
	}
	defer rows.Close()

	var matches []domain.MarketMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan active match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active matches: %w", err)
	}
	return matches, nil
}

// Deactivate marks a match inactive. Deactivating an unknown ID is
// ErrNotFound; deactivating an inactive match is a no-op.
func (s *MatchStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE market_matches SET is_active = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: deactivate match %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
