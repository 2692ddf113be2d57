// Package detector implements the statistical pattern detectors that run
// over snapshot batches: volume anomalies, price structure breaks, and
// cross-market arbitrage. Detectors are pure with respect to their input:
// they perform no I/O and keep no state between calls.
package detector

import (
	"log/slog"

	"github.com/pmradar/pmradar/internal/domain"
)

// Detector is the common contract: consume a batch of snapshots-with-history
// and emit zero or more patterns. Insufficient history is silence, not an
// error; a failure on one market must not abort the batch.
type Detector interface {
	Name() string
	DetectBatch(markets []domain.MarketSnapshot) []domain.Pattern
}

// perMarket runs fn over each market, recovering from a panic on any single
// market so the rest of the batch still gets scanned.
func perMarket(logger *slog.Logger, name string, markets []domain.MarketSnapshot, fn func(domain.MarketSnapshot) []domain.Pattern) []domain.Pattern {
	var out []domain.Pattern
	for _, m := range markets {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Warn("detector failed on market",
						slog.String("detector", name),
						slog.String("market_id", m.MarketID),
						slog.Any("panic", r),
					)
				}
			}()
			out = append(out, fn(m)...)
		}()
	}
	return out
}

// Dedup collapses patterns sharing (market, type) to the first encountered,
// preserving input order otherwise.
func Dedup(patterns []domain.Pattern) []domain.Pattern {
	type key struct {
		marketID string
		typ      domain.PatternType
	}
	seen := make(map[key]bool, len(patterns))
	out := make([]domain.Pattern, 0, len(patterns))
	for _, p := range patterns {
		k := key{p.MarketID, p.Type}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

func clamp100(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

func meanVolume(points []domain.PricePoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Volume
	}
	return sum / float64(len(points))
}
