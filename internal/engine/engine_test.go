package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pmradar/pmradar/internal/cache/memory"
	"github.com/pmradar/pmradar/internal/config"
	"github.com/pmradar/pmradar/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubRepo struct {
	byVenue map[domain.Venue][]domain.MarketSnapshot
	err     error
}

func (r *stubRepo) LoadActiveMarkets(_ context.Context, venue domain.Venue, _ float64) ([]domain.MarketSnapshot, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.byVenue[venue], nil
}

type stubPatternStore struct {
	inserted  []domain.Pattern
	insertErr error

	expired   int64
	stale     []domain.Pattern
	deleted   [][]string
	deleteErr error
}

func (s *stubPatternStore) GetByID(_ context.Context, id string) (domain.Pattern, error) {
	for _, p := range s.inserted {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Pattern{}, domain.ErrNotFound
}

func (s *stubPatternStore) InsertBatch(_ context.Context, patterns []domain.Pattern) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, patterns...)
	return nil
}

func (s *stubPatternStore) ListActive(context.Context, int) ([]domain.Pattern, error) {
	return nil, nil
}

func (s *stubPatternStore) UpdateStatus(context.Context, string, domain.PatternStatus) error {
	return nil
}

func (s *stubPatternStore) MarkExpired(context.Context, time.Time) (int64, error) {
	return s.expired, nil
}

func (s *stubPatternStore) ListExpiredBefore(context.Context, time.Time) ([]domain.Pattern, error) {
	return s.stale, nil
}

func (s *stubPatternStore) DeleteByIDs(_ context.Context, ids []string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted = append(s.deleted, ids)
	return nil
}

type stubArchiver struct {
	archived [][]domain.Pattern
	err      error
}

func (a *stubArchiver) ArchivePatterns(_ context.Context, patterns []domain.Pattern) error {
	if a.err != nil {
		return a.err
	}
	a.archived = append(a.archived, patterns)
	return nil
}

// spikingMarket produces exactly one volume-spike pattern.
func spikingMarket(venue domain.Venue, id string) domain.MarketSnapshot {
	history := make([]domain.PricePoint, 5)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := range history {
		history[i] = domain.PricePoint{
			Price:     0.5,
			Volume:    100,
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
		}
	}
	return domain.MarketSnapshot{
		Venue:    venue,
		MarketID: id,
		Title:    "Spiking market " + id,
		YesPrice: 0.5,
		Volume:   400,
		History:  history,
	}
}

func newTestEngine(repo domain.SnapshotRepository, patterns domain.PatternStore, archiver Archiver) *Engine {
	cfg := config.Defaults()
	return New(cfg.Engine, cfg.Detector, repo, patterns, memory.NewLockManager(), nil, nil, archiver, testLogger())
}

func TestRun(t *testing.T) {
	repo := &stubRepo{byVenue: map[domain.Venue][]domain.MarketSnapshot{
		domain.VenuePolymarket: {spikingMarket(domain.VenuePolymarket, "p1")},
		domain.VenueKalshi:     {spikingMarket(domain.VenueKalshi, "k1")},
	}}
	store := &stubPatternStore{}
	eng := newTestEngine(repo, store, nil)

	report, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.MarketsScanned != 2 {
		t.Fatalf("markets scanned = %d, want 2", report.MarketsScanned)
	}
	if report.Detected != 2 || report.AfterDedup != 2 || report.Persisted != 2 {
		t.Fatalf("pipeline counts = %+v", report)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("persisted %d patterns, want 2", len(store.inserted))
	}
	for _, p := range store.inserted {
		if p.ID == "" {
			t.Fatal("pattern ID not assigned")
		}
		if p.Status != domain.PatternStatusActive {
			t.Fatalf("status = %s, want active", p.Status)
		}
		if p.DetectedAt.IsZero() || !p.ExpiresAt.After(p.DetectedAt) {
			t.Fatalf("timestamps not stamped: %+v", p)
		}
		if p.Score <= 0 {
			t.Fatalf("score not assigned: %v", p.Score)
		}
	}
	for i := 1; i < len(store.inserted); i++ {
		if store.inserted[i].Score > store.inserted[i-1].Score {
			t.Fatalf("patterns not persisted in rank order")
		}
	}
}

func TestRunEmptyBatch(t *testing.T) {
	repo := &stubRepo{byVenue: map[domain.Venue][]domain.MarketSnapshot{}}
	store := &stubPatternStore{}
	eng := newTestEngine(repo, store, nil)

	report, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.MarketsScanned != 0 || report.Persisted != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(store.inserted) != 0 {
		t.Fatal("nothing should be persisted for an empty batch")
	}
}

func TestRunLoadError(t *testing.T) {
	repo := &stubRepo{err: errors.New("postgres down")}
	eng := newTestEngine(repo, &stubPatternStore{}, nil)

	if _, err := eng.Run(context.Background()); err == nil {
		t.Fatal("expected load error to propagate")
	}
}

func TestRunLockHeld(t *testing.T) {
	repo := &stubRepo{byVenue: map[domain.Venue][]domain.MarketSnapshot{}}
	locks := memory.NewLockManager()
	cfg := config.Defaults()
	eng := New(cfg.Engine, cfg.Detector, repo, &stubPatternStore{}, locks, nil, nil, nil, testLogger())

	if _, err := locks.Acquire(context.Background(), "radar:lock:analyze", time.Minute); err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}
	_, err := eng.Run(context.Background())
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("err = %v, want ErrLockHeld", err)
	}
}

func TestGC(t *testing.T) {
	stale := []domain.Pattern{
		{ID: "old-1", Status: domain.PatternStatusExpired},
		{ID: "old-2", Status: domain.PatternStatusExpired},
	}
	store := &stubPatternStore{expired: 3, stale: stale}
	archiver := &stubArchiver{}
	eng := newTestEngine(&stubRepo{}, store, archiver)

	report, err := eng.GC(context.Background(), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if report.Expired != 3 || report.Archived != 2 || report.Deleted != 2 {
		t.Fatalf("report = %+v", report)
	}
	if len(archiver.archived) != 1 || len(archiver.archived[0]) != 2 {
		t.Fatalf("archived batches = %v", archiver.archived)
	}
	if len(store.deleted) != 1 || len(store.deleted[0]) != 2 || store.deleted[0][0] != "old-1" {
		t.Fatalf("deleted ids = %v", store.deleted)
	}
}

func TestGCArchiveFailureAbortsDeletion(t *testing.T) {
	store := &stubPatternStore{stale: []domain.Pattern{{ID: "old-1"}}}
	archiver := &stubArchiver{err: errors.New("s3 unavailable")}
	eng := newTestEngine(&stubRepo{}, store, archiver)

	if _, err := eng.GC(context.Background(), time.Hour); err == nil {
		t.Fatal("expected archive failure to propagate")
	}
	if len(store.deleted) != 0 {
		t.Fatal("deletion must not run after a failed archive")
	}
}

func TestGCNothingStale(t *testing.T) {
	store := &stubPatternStore{expired: 1}
	archiver := &stubArchiver{}
	eng := newTestEngine(&stubRepo{}, store, archiver)

	report, err := eng.GC(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if report.Expired != 1 || report.Archived != 0 || report.Deleted != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(archiver.archived) != 0 {
		t.Fatal("nothing should be archived")
	}
}
