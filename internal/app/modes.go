package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pmradar/pmradar/internal/alerting"
	"github.com/pmradar/pmradar/internal/domain"
	"github.com/pmradar/pmradar/internal/engine"
	"github.com/pmradar/pmradar/internal/enrich"
	"github.com/pmradar/pmradar/internal/matcher"
)

// buildEngine assembles the analysis engine with alerting and enrichment.
func (a *App) buildEngine(deps *Dependencies) *engine.Engine {
	generator := alerting.New(alerting.Config{
		Tiers:          a.cfg.Alerts.Policies(),
		RecentGlobal:   a.cfg.Alerts.RecentGlobal,
		RecentPerTier:  a.cfg.Alerts.RecentPerTier,
		NotifyMinScore: a.cfg.Alerts.NotifyMinScore,
	}, deps.Counters, deps.Alerts, deps.Notifier, a.logger)

	var archiver engine.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}

	return engine.New(
		a.cfg.Engine,
		a.cfg.Detector,
		deps.Snapshots,
		deps.Patterns,
		deps.Locks,
		enrich.NewMatchHints(deps.Matches),
		generator,
		archiver,
		a.logger,
	)
}

// runEvery runs fn immediately and then on every tick until the context is
// cancelled. A held lock means another instance took the run and is logged
// at debug; any other error is logged, reported to operators, and the loop
// keeps going.
func (a *App) runEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) error {
	run := func() {
		if err := fn(ctx); err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.DebugContext(ctx, "run skipped, lock held", slog.String("loop", name))
				return
			}
			a.logger.ErrorContext(ctx, "run failed",
				slog.String("loop", name),
				slog.String("error", err.Error()),
			)
			if a.notifier != nil {
				if nerr := a.notifier.RunFailed(ctx, name, err); nerr != nil {
					a.logger.WarnContext(ctx, "run failure notification failed",
						slog.String("error", nerr.Error()),
					)
				}
			}
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			run()
		}
	}
}

// AnalyzeMode runs the detection pipeline on its configured interval.
func (a *App) AnalyzeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting analyze mode")
	eng := a.buildEngine(deps)
	return a.runEvery(ctx, "analyze", a.cfg.Engine.RunInterval.Duration, func(ctx context.Context) error {
		_, err := eng.Run(ctx)
		return err
	})
}

// MatchMode runs the cross-venue matcher on its configured interval.
func (a *App) MatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting match mode")
	m := matcher.New(a.cfg.Matcher, deps.Snapshots, deps.Matches, a.logger)
	return a.runEvery(ctx, "match", a.cfg.Matcher.RunInterval.Duration, func(ctx context.Context) error {
		_, err := m.Run(ctx)
		return err
	})
}

// GCMode runs a single garbage-collection pass and exits.
func (a *App) GCMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting gc mode")
	eng := a.buildEngine(deps)
	_, err := eng.GC(ctx, a.cfg.Engine.GCRetention.Duration)
	return err
}

// MonitorMode periodically reports the current radar state: active pattern
// counts and the most recent alerts. It writes nothing.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runEvery(ctx, "monitor", a.cfg.Engine.RunInterval.Duration, func(ctx context.Context) error {
		patterns, err := deps.Patterns.ListActive(ctx, 0)
		if err != nil {
			return err
		}
		byType := make(map[domain.PatternType]int)
		for _, p := range patterns {
			byType[p.Type]++
		}
		attrs := []any{slog.Int("active_patterns", len(patterns))}
		for typ, n := range byType {
			attrs = append(attrs, slog.Int(string(typ), n))
		}
		a.logger.InfoContext(ctx, "radar state", attrs...)

		alerts, err := deps.Alerts.Recent(ctx, 5)
		if err != nil {
			return err
		}
		for _, alert := range alerts {
			// Patterns outlive their alerts only until GC; a collected one
			// is reported as such rather than skipped.
			status := "collected"
			switch p, err := deps.Patterns.GetByID(ctx, alert.PatternID); {
			case err == nil:
				status = string(p.Status)
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
			a.logger.InfoContext(ctx, "recent alert",
				slog.String("tier", string(alert.Tier)),
				slog.String("title", alert.Title),
				slog.Float64("score", alert.Score),
				slog.String("pattern_status", status),
			)
		}
		return nil
	})
}

// FullMode runs analysis, matching, and garbage collection concurrently,
// each on its own interval.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	eng := a.buildEngine(deps)
	m := matcher.New(a.cfg.Matcher, deps.Snapshots, deps.Matches, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.runEvery(ctx, "analyze", a.cfg.Engine.RunInterval.Duration, func(ctx context.Context) error {
			_, err := eng.Run(ctx)
			return err
		})
	})
	g.Go(func() error {
		return a.runEvery(ctx, "match", a.cfg.Matcher.RunInterval.Duration, func(ctx context.Context) error {
			_, err := m.Run(ctx)
			return err
		})
	})
	g.Go(func() error {
		return a.runEvery(ctx, "gc", a.cfg.Engine.GCInterval.Duration, func(ctx context.Context) error {
			_, err := eng.GC(ctx, a.cfg.Engine.GCRetention.Duration)
			return err
		})
	})
	return g.Wait()
}
