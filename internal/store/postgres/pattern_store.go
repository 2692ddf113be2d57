package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmradar/pmradar/internal/domain"
)

// PatternStore implements domain.PatternStore using PostgreSQL.
type PatternStore struct {
	pool *pgxpool.Pool
}

var _ domain.PatternStore = (*PatternStore)(nil)

// NewPatternStore creates a PatternStore backed by the given pool.
func NewPatternStore(pool *pgxpool.Pool) *PatternStore {
	return &PatternStore{pool: pool}
}

const patternCols = `id, type, venue, market_id, title,
	confidence, profit_potential, time_sensitivity, risk_level,
	description, suggested_action, evidence, related_markets,
	score, status, detected_at, expires_at`

// InsertBatch writes a batch of patterns in one round trip.
func (s *PatternStore) InsertBatch(ctx context.Context, patterns []domain.Pattern) error {
	if len(patterns) == 0 {
		return nil
	}

	const query = `
		INSERT INTO patterns (` + patternCols + `)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17
		)`

	batch := &pgx.Batch{}
	for _, p := range patterns {
		evidence := p.Evidence
		if evidence == nil {
			evidence = map[string]float64{}
		}
		related := p.RelatedMarkets
		if related == nil {
			related = []string{}
		}
		batch.Queue(query,
			p.ID, string(p.Type), string(p.Venue), p.MarketID, p.Title,
			p.Confidence, p.ProfitPotential, p.TimeSensitivity, p.RiskLevel,
			p.Description, p.SuggestedAction, evidence, related,
			p.Score, string(p.Status), p.DetectedAt, p.ExpiresAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range patterns {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert pattern batch item %d: %w", i, err)
		}
	}
	return nil
}

func scanPattern(row pgx.Row) (domain.Pattern, error) {
	var p domain.Pattern
	var typ, venue, status string
	err := row.Scan(
		&p.ID, &typ, &venue, &p.MarketID, &p.Title,
		&p.Confidence, &p.ProfitPotential, &p.TimeSensitivity, &p.RiskLevel,
		&p.Description, &p.SuggestedAction, &p.Evidence, &p.RelatedMarkets,
		&p.Score, &status, &p.DetectedAt, &p.ExpiresAt,
	)
	if err != nil {
		return domain.Pattern{}, err
	}
	p.Type = domain.PatternType(typ)
	p.Venue = domain.Venue(venue)
	p.Status = domain.PatternStatus(status)
	return p, nil
}

// ListActive returns active patterns ordered by score, best first.
func (s *PatternStore) ListActive(ctx context.Context, limit int) ([]domain.Pattern, error) {
	query := `SELECT ` + patternCols + ` FROM patterns WHERE status = 'active' ORDER BY score DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active patterns: %w", err)
	}
	defer rows.Close()

	var patterns []domain.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan active pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active patterns: %w", err)
	}
	return patterns, nil
}

// UpdateStatus sets the status of one pattern.
func (s *PatternStore) UpdateStatus(ctx context.Context, id string, status domain.PatternStatus) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE patterns SET status = $2 WHERE id = $1", id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update pattern %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkExpired flips active patterns past their expiry and returns the
// number of rows changed.
func (s *PatternStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"UPDATE patterns SET status = 'expired' WHERE status = 'active' AND expires_at <= $1", now)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark expired patterns: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListExpiredBefore returns non-active patterns whose expiry passed before
// cutoff, oldest first.
func (s *PatternStore) ListExpiredBefore(ctx context.Context, cutoff time.Time) ([]domain.Pattern, error) {
	query := `SELECT ` + patternCols + `
		FROM patterns
		WHERE status <> 'active' AND expires_at < $1
		ORDER BY expires_at ASC`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired patterns: %w", err)
	}
	defer rows.Close()

	var patterns []domain.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan expired pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list expired patterns: %w", err)
	}
	return patterns, nil
}

// DeleteByIDs removes the given patterns.
func (s *PatternStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx,
		"DELETE FROM patterns WHERE id = ANY($1)", ids); err != nil {
		return fmt.Errorf("postgres: delete patterns: %w", err)
	}
	return nil
}

// GetByID retrieves one pattern.
func (s *PatternStore) GetByID(ctx context.Context, id string) (domain.Pattern, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+patternCols+` FROM patterns WHERE id = $1`, id)
	p, err := scanPattern(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pattern{}, domain.ErrNotFound
		}
		return domain.Pattern{}, fmt.Errorf("postgres: get pattern %s: %w", id, err)
	}
	return p, nil
}
