// Package alerting turns ranked patterns into tier-gated alerts under a
// sliding daily rate budget.
package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pmradar/pmradar/internal/domain"
)

const counterTTL = 24 * time.Hour

// Notifier is the optional operator-notification hook. Delivery transport is
// owned by the implementation; failures are logged and ignored here.
type Notifier interface {
	AlertRaised(ctx context.Context, alert domain.Alert) error
}

// Config holds the generator's static policy.
type Config struct {
	Tiers          map[domain.Tier]domain.TierPolicy
	RecentGlobal   int // global recent-alert ring size
	RecentPerTier  int // per-tier recent-alert ring size
	NotifyMinScore float64
}

// Generator applies per-tier eligibility thresholds and daily budgets to a
// ranked pattern list and emits alerts.
type Generator struct {
	cfg      Config
	counters domain.CounterCache
	cache    domain.AlertCache
	notifier Notifier
	logger   *slog.Logger

	now func() time.Time // injected for tests
}

// New creates a Generator. notifier may be nil.
func New(cfg Config, counters domain.CounterCache, cache domain.AlertCache, notifier Notifier, logger *slog.Logger) *Generator {
	return &Generator{
		cfg:      cfg,
		counters: counters,
		cache:    cache,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "alert_generator")),
		now:      time.Now,
	}
}

// counterKey identifies one tier's budget for one UTC date. The TTL is armed
// only when the key is created, so the budget resets at date rollover by
// natural expiry rather than a scheduled reset.
func counterKey(tier domain.Tier, day time.Time) string {
	return fmt.Sprintf("radar:alerts:%s:%s", tier, day.UTC().Format("2006-01-02"))
}

// Process walks the ranked patterns in order. For each tier whose minimum
// score a pattern meets, it consumes one unit of that tier's daily budget
// and emits an Alert; an exhausted budget suppresses silently. Counter
// errors skip the tier for that pattern rather than failing the run.
func (g *Generator) Process(ctx context.Context, ranked []domain.Pattern) []domain.Alert {
	now := g.now().UTC()
	var alerts []domain.Alert

	for _, p := range ranked {
		for _, tier := range domain.TiersByPrivilege {
			policy, ok := g.cfg.Tiers[tier]
			if !ok || p.Score < policy.MinScore {
				continue
			}

			count, err := g.counters.IncrWithExpiry(ctx, counterKey(tier, now), counterTTL)
			if err != nil {
				g.logger.Warn("rate counter unavailable",
					slog.String("tier", string(tier)),
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > int64(policy.MaxPerDay) {
				// Budget used up for today. Not an error.
				continue
			}

			alert := g.buildAlert(p, tier, now)
			g.pushCache(ctx, alert)
			alerts = append(alerts, alert)
		}
	}

	g.notifyTop(ctx, alerts)
	return alerts
}

func (g *Generator) buildAlert(p domain.Pattern, tier domain.Tier, now time.Time) domain.Alert {
	return domain.Alert{
		ID:          uuid.New().String(),
		Tier:        tier,
		Title:       fmt.Sprintf("%s: %s", patternLabel(p.Type), p.Title),
		Message:     p.Description,
		Action:      p.SuggestedAction,
		PatternID:   p.ID,
		PatternType: p.Type,
		MarketID:    p.MarketID,
		Score:       p.Score,
		CreatedAt:   now,
	}
}

// pushCache maintains the bounded recent-alert rings. Cache failures are
// logged and ignored; the cache is not the system of record.
func (g *Generator) pushCache(ctx context.Context, alert domain.Alert) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Push(ctx, alert, g.cfg.RecentGlobal); err != nil {
		g.logger.Warn("alert cache push failed", slog.String("error", err.Error()))
	}
	if err := g.cache.PushTier(ctx, alert.Tier, alert, g.cfg.RecentPerTier); err != nil {
		g.logger.Warn("alert cache tier push failed",
			slog.String("tier", string(alert.Tier)),
			slog.String("error", err.Error()),
		)
	}
}

// notifyTop forwards high-score pro-tier alerts to the operator channels,
// best effort.
func (g *Generator) notifyTop(ctx context.Context, alerts []domain.Alert) {
	if g.notifier == nil {
		return
	}
	for _, a := range alerts {
		if a.Tier != domain.TierPro || a.Score < g.cfg.NotifyMinScore {
			continue
		}
		if err := g.notifier.AlertRaised(ctx, a); err != nil {
			g.logger.Warn("operator notification failed", slog.String("error", err.Error()))
		}
	}
}

var patternLabels = map[domain.PatternType]string{
	domain.PatternVolumeSpike:         "Volume spike",
	domain.PatternVolumeDivergence:    "Volume divergence",
	domain.PatternUnusualFlow:         "Unusual flow",
	domain.PatternRapidPriceChange:    "Rapid price move",
	domain.PatternTrendReversal:       "Trend reversal",
	domain.PatternSupportBreak:        "Support break",
	domain.PatternResistanceBreak:     "Resistance break",
	domain.PatternCrossVenueArbitrage: "Cross-venue arbitrage",
	domain.PatternRelatedMarketArb:    "Related-market mispricing",
}

func patternLabel(t domain.PatternType) string {
	if label, ok := patternLabels[t]; ok {
		return label
	}
	return string(t)
}
