package detector

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pmradar/pmradar/internal/config"
	"github.com/pmradar/pmradar/internal/domain"
)

const (
	// rapidLookback compares the current price to this many history points
	// back, about one hour at 15-minute sampling.
	rapidLookback = 4
	// minReversalHistory is the minimum history before a half/half trend
	// comparison means anything.
	minReversalHistory = 8
	// minLevelHistory is the minimum history for support/resistance
	// bucketing.
	minLevelHistory = 10
	// levelBins is the number of equal-width buckets across the price range.
	levelBins = 20
	// breakMargin is how far beyond a level the price must move to count as
	// a break.
	breakMargin = 0.02
)

// PriceDetector finds rapid price changes, trend reversals, and
// support/resistance breaks.
type PriceDetector struct {
	cfg    config.DetectorConfig
	logger *slog.Logger
}

// NewPriceDetector creates a PriceDetector with the given tunables.
func NewPriceDetector(cfg config.DetectorConfig, logger *slog.Logger) *PriceDetector {
	return &PriceDetector{cfg: cfg, logger: logger.With(slog.String("detector", "price"))}
}

// Name returns the detector identifier.
func (d *PriceDetector) Name() string { return "price" }

// DetectBatch scans every market in the batch independently.
func (d *PriceDetector) DetectBatch(markets []domain.MarketSnapshot) []domain.Pattern {
	return perMarket(d.logger, d.Name(), markets, d.detectOne)
}

func (d *PriceDetector) detectOne(m domain.MarketSnapshot) []domain.Pattern {
	var out []domain.Pattern
	if p, ok := d.rapidChange(m); ok {
		out = append(out, p)
	}
	if p, ok := d.trendReversal(m); ok {
		out = append(out, p)
	}
	out = append(out, d.levelBreaks(m)...)
	return out
}

// rapidChange fires when the price moved more than rapid_change_threshold
// against the reading ~4 points back.
func (d *PriceDetector) rapidChange(m domain.MarketSnapshot) (domain.Pattern, bool) {
	if len(m.History) < rapidLookback {
		return domain.Pattern{}, false
	}
	old := m.History[len(m.History)-rapidLookback].Price
	if old <= 0 {
		return domain.Pattern{}, false
	}
	delta := (m.YesPrice - old) / old
	if math.Abs(delta) < d.cfg.RapidChangeThreshold {
		return domain.Pattern{}, false
	}

	risk := 3
	if math.Abs(delta) >= 0.20 {
		risk = 4
	}
	direction := "up"
	if delta < 0 {
		direction = "down"
	}

	p := domain.Pattern{
		Type:            domain.PatternRapidPriceChange,
		Venue:           m.Venue,
		MarketID:        m.MarketID,
		Title:           m.Title,
		Confidence:      clamp100(60 + math.Abs(delta)*100),
		ProfitPotential: clamp100(50 + math.Abs(delta)*100),
		TimeSensitivity: 5,
		RiskLevel:       risk,
		Description:     fmt.Sprintf("Price moved %.1f%% %s within the last hour (%.2f -> %.2f)", math.Abs(delta)*100, direction, old, m.YesPrice),
		SuggestedAction: "Check for news; momentum entries decay fast",
		Evidence: map[string]float64{
			"delta":     delta,
			"old_price": old,
			"new_price": m.YesPrice,
		},
	}
	return p, true
}

// trendReversal fires when the first and second halves of the history trend
// in opposite directions with enough combined magnitude.
func (d *PriceDetector) trendReversal(m domain.MarketSnapshot) (domain.Pattern, bool) {
	if len(m.History) < minReversalHistory {
		return domain.Pattern{}, false
	}
	half := len(m.History) / 2
	t1 := normalizedTrend(m.History[:half])
	t2 := normalizedTrend(m.History[half:])
	if t1 == 0 || t2 == 0 || (t1 > 0) == (t2 > 0) {
		return domain.Pattern{}, false
	}
	combined := math.Abs(t1) + math.Abs(t2)
	if combined < d.cfg.ReversalThreshold {
		return domain.Pattern{}, false
	}

	from, to := "down", "up"
	if t1 > 0 {
		from, to = "up", "down"
	}

	p := domain.Pattern{
		Type:            domain.PatternTrendReversal,
		Venue:           m.Venue,
		MarketID:        m.MarketID,
		Title:           m.Title,
		Confidence:      clamp100(50 + combined*100),
		ProfitPotential: 65,
		TimeSensitivity: 3,
		RiskLevel:       3,
		Description:     fmt.Sprintf("Trend flipped from %s to %s (%.1f%% combined swing)", from, to, combined*100),
		SuggestedAction: "Sentiment has turned; the new direction may continue",
		Evidence: map[string]float64{
			"first_half_trend":  t1,
			"second_half_trend": t2,
			"combined":          combined,
		},
	}
	return p, true
}

// normalizedTrend returns (end-start)/start for a window, 0 when undefined.
func normalizedTrend(points []domain.PricePoint) float64 {
	if len(points) < 2 {
		return 0
	}
	start, end := points[0].Price, points[len(points)-1].Price
	if start <= 0 {
		return 0
	}
	return (end - start) / start
}

// levelBreaks buckets historical prices into equal-width bins, takes bins
// with enough touches as levels, and emits a break when the current price
// moves past the nearest level by the break margin.
func (d *PriceDetector) levelBreaks(m domain.MarketSnapshot) []domain.Pattern {
	if len(m.History) < minLevelHistory {
		return nil
	}

	lo, hi := m.History[0].Price, m.History[0].Price
	for _, pt := range m.History {
		if pt.Price < lo {
			lo = pt.Price
		}
		if pt.Price > hi {
			hi = pt.Price
		}
	}
	if hi <= lo {
		return nil
	}

	width := (hi - lo) / levelBins
	counts := make([]int, levelBins)
	for _, pt := range m.History {
		idx := int((pt.Price - lo) / width)
		if idx >= levelBins {
			idx = levelBins - 1
		}
		counts[idx]++
	}

	// Candidate levels are bin centers with enough touches. Levels are
	// anchored to the last historical reading so a break by the current
	// price is observable.
	ref := m.History[len(m.History)-1].Price
	var support, resistance float64
	hasSupport, hasResistance := false, false
	for i, c := range counts {
		if c < d.cfg.MinLevelTouches {
			continue
		}
		level := lo + width*(float64(i)+0.5)
		if level < ref && (!hasSupport || level > support) {
			support, hasSupport = level, true
		}
		if level > ref && (!hasResistance || level < resistance) {
			resistance, hasResistance = level, true
		}
	}

	var out []domain.Pattern
	if hasSupport && m.YesPrice <= support*(1-breakMargin) {
		out = append(out, domain.Pattern{
			Type:            domain.PatternSupportBreak,
			Venue:           m.Venue,
			MarketID:        m.MarketID,
			Title:           m.Title,
			Confidence:      70,
			ProfitPotential: 60,
			TimeSensitivity: 4,
			RiskLevel:       4,
			Description:     fmt.Sprintf("Price %.2f broke below support at %.2f", m.YesPrice, support),
			SuggestedAction: "Support failed; further downside is likely until a new level forms",
			Evidence: map[string]float64{
				"support": support,
				"price":   m.YesPrice,
			},
		})
	}
	if hasResistance && m.YesPrice >= resistance*(1+breakMargin) {
		out = append(out, domain.Pattern{
			Type:            domain.PatternResistanceBreak,
			Venue:           m.Venue,
			MarketID:        m.MarketID,
			Title:           m.Title,
			Confidence:      70,
			ProfitPotential: 60,
			TimeSensitivity: 4,
			RiskLevel:       3,
			Description:     fmt.Sprintf("Price %.2f broke above resistance at %.2f", m.YesPrice, resistance),
			SuggestedAction: "Resistance cleared; breakouts often extend",
			Evidence: map[string]float64{
				"resistance": resistance,
				"price":      m.YesPrice,
			},
		})
	}
	return out
}
