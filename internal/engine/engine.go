// Package engine orchestrates one analysis cycle: load snapshots, run the
// detectors, score, persist, and hand off to alerting. It also owns the
// garbage-collection pass that expires and archives stale patterns.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pmradar/pmradar/internal/alerting"
	"github.com/pmradar/pmradar/internal/config"
	"github.com/pmradar/pmradar/internal/detector"
	"github.com/pmradar/pmradar/internal/domain"
	"github.com/pmradar/pmradar/internal/enrich"
	"github.com/pmradar/pmradar/internal/scoring"
)

const (
	lockAnalyze = "radar:lock:analyze"
	lockGC      = "radar:lock:gc"
)

// Archiver writes expired patterns to long-term storage before deletion.
type Archiver interface {
	ArchivePatterns(ctx context.Context, patterns []domain.Pattern) error
}

// RunReport summarizes one analysis cycle for logging and operational
// visibility.
type RunReport struct {
	MarketsScanned int
	Detected       int
	AfterDedup     int
	Persisted      int
	AlertsEmitted  int
	Elapsed        time.Duration
}

// GCReport summarizes one garbage-collection pass.
type GCReport struct {
	Expired  int64
	Archived int
	Deleted  int
}

// Engine wires the detectors to storage and alerting.
type Engine struct {
	cfg       config.EngineConfig
	repo      domain.SnapshotRepository
	patterns  domain.PatternStore
	locks     domain.LockManager
	detectors []detector.Detector
	annotator enrich.Annotator
	alerts    *alerting.Generator
	archiver  Archiver
	logger    *slog.Logger

	now func() time.Time
}

// New builds an Engine. annotator, alerts, and archiver may be nil; the
// corresponding stages are skipped.
func New(
	cfg config.EngineConfig,
	detectorCfg config.DetectorConfig,
	repo domain.SnapshotRepository,
	patterns domain.PatternStore,
	locks domain.LockManager,
	annotator enrich.Annotator,
	alerts *alerting.Generator,
	archiver Archiver,
	logger *slog.Logger,
) *Engine {
	log := logger.With(slog.String("component", "engine"))
	return &Engine{
		cfg:      cfg,
		repo:     repo,
		patterns: patterns,
		locks:    locks,
		detectors: []detector.Detector{
			detector.NewVolumeDetector(detectorCfg, logger),
			detector.NewPriceDetector(detectorCfg, logger),
			detector.NewArbitrageDetector(detectorCfg, logger),
		},
		annotator: annotator,
		alerts:    alerts,
		archiver:  archiver,
		logger:    log,
		now:       time.Now,
	}
}

// Run executes one full analysis cycle under the analyze lock. A held lock
// means another instance is mid-cycle; Run returns domain.ErrLockHeld and
// the caller skips the tick.
func (e *Engine) Run(ctx context.Context) (RunReport, error) {
	unlock, err := e.locks.Acquire(ctx, lockAnalyze, e.cfg.LockTTL.Duration)
	if err != nil {
		return RunReport{}, fmt.Errorf("engine: acquire analyze lock: %w", err)
	}
	defer unlock()

	start := e.now()
	var report RunReport

	markets, err := e.loadMarkets(ctx)
	if err != nil {
		return report, err
	}
	report.MarketsScanned = len(markets)

	detected, err := e.detect(ctx, markets)
	if err != nil {
		return report, err
	}
	report.Detected = len(detected)

	deduped := detector.Dedup(detected)
	report.AfterDedup = len(deduped)
	if len(deduped) == 0 {
		report.Elapsed = e.now().Sub(start)
		e.logReport(report)
		return report, nil
	}

	ranked := scoring.Rank(deduped)
	if e.annotator != nil {
		ranked = e.annotator.Annotate(ctx, ranked)
	}

	now := e.now().UTC()
	for i := range ranked {
		ranked[i].ID = uuid.New().String()
		ranked[i].Stamp(now)
	}

	if err := e.patterns.InsertBatch(ctx, ranked); err != nil {
		return report, fmt.Errorf("engine: persist patterns: %w", err)
	}
	report.Persisted = len(ranked)

	if e.alerts != nil {
		emitted := e.alerts.Process(ctx, ranked)
		report.AlertsEmitted = len(emitted)
	}

	report.Elapsed = e.now().Sub(start)
	e.logReport(report)
	return report, nil
}

// loadMarkets pulls both venues concurrently and merges in fixed venue
// order so downstream output is deterministic.
func (e *Engine) loadMarkets(ctx context.Context) ([]domain.MarketSnapshot, error) {
	byVenue := make([][]domain.MarketSnapshot, len(domain.Venues))
	g, gctx := errgroup.WithContext(ctx)
	for i, venue := range domain.Venues {
		g.Go(func() error {
			markets, err := e.repo.LoadActiveMarkets(gctx, venue, e.cfg.MinVolume)
			if err != nil {
				return fmt.Errorf("engine: load %s markets: %w", venue, err)
			}
			byVenue[i] = markets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var merged []domain.MarketSnapshot
	for _, markets := range byVenue {
		merged = append(merged, markets...)
	}
	return merged, nil
}

// detect fans the batch out to every detector concurrently and merges the
// results in detector registration order.
func (e *Engine) detect(ctx context.Context, markets []domain.MarketSnapshot) ([]domain.Pattern, error) {
	results := make([][]domain.Pattern, len(e.detectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range e.detectors {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return domain.ErrContextDone
			}
			results[i] = d.DetectBatch(markets)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("engine: run detectors: %w", err)
	}
	var merged []domain.Pattern
	for _, batch := range results {
		merged = append(merged, batch...)
	}
	return merged, nil
}

func (e *Engine) logReport(r RunReport) {
	e.logger.Info("analysis cycle complete",
		slog.Int("markets", r.MarketsScanned),
		slog.Int("detected", r.Detected),
		slog.Int("deduped", r.AfterDedup),
		slog.Int("persisted", r.Persisted),
		slog.Int("alerts", r.AlertsEmitted),
		slog.Duration("elapsed", r.Elapsed),
	)
}

// GC expires overdue patterns, archives anything expired longer than the
// retention window, and deletes the archived rows. Archive failure aborts
// deletion so no pattern is lost unarchived.
func (e *Engine) GC(ctx context.Context, retention time.Duration) (GCReport, error) {
	unlock, err := e.locks.Acquire(ctx, lockGC, e.cfg.LockTTL.Duration)
	if err != nil {
		return GCReport{}, fmt.Errorf("engine: acquire gc lock: %w", err)
	}
	defer unlock()

	var report GCReport
	now := e.now().UTC()

	expired, err := e.patterns.MarkExpired(ctx, now)
	if err != nil {
		return report, fmt.Errorf("engine: mark expired: %w", err)
	}
	report.Expired = expired

	cutoff := now.Add(-retention)
	stale, err := e.patterns.ListExpiredBefore(ctx, cutoff)
	if err != nil {
		return report, fmt.Errorf("engine: list stale patterns: %w", err)
	}
	if len(stale) == 0 {
		return report, nil
	}

	if e.archiver != nil {
		if err := e.archiver.ArchivePatterns(ctx, stale); err != nil {
			return report, fmt.Errorf("engine: archive stale patterns: %w", err)
		}
		report.Archived = len(stale)
	}

	ids := make([]string, len(stale))
	for i, p := range stale {
		ids[i] = p.ID
	}
	if err := e.patterns.DeleteByIDs(ctx, ids); err != nil {
		return report, fmt.Errorf("engine: delete stale patterns: %w", err)
	}
	report.Deleted = len(ids)

	e.logger.Info("gc pass complete",
		slog.Int64("expired", report.Expired),
		slog.Int("archived", report.Archived),
		slog.Int("deleted", report.Deleted),
	)
	return report, nil
}
