// Package scoring maps patterns to a normalized 0-100 opportunity score and
// provides ranking, tier filtering, and category bucketing over scored
// pattern lists.
package scoring

import (
	"sort"

	"github.com/pmradar/pmradar/internal/domain"
)

// Weighting of the score components.
const (
	confidenceWeight = 0.35
	profitWeight     = 0.35
	urgencyWeight    = 0.15
	riskAdjWeight    = 0.15
	riskPenalty      = 0.3
)

// typeBonus is the fixed per-type adjustment added after the weighted sum.
// Arbitrage patterns are structurally safer claims; divergence and flow
// signals are the most speculative.
var typeBonus = map[domain.PatternType]float64{
	domain.PatternCrossVenueArbitrage: 15,
	domain.PatternRelatedMarketArb:    10,
	domain.PatternVolumeDivergence:    -5,
	domain.PatternUnusualFlow:         -5,
}

// tierThresholds are the minimum scores visible per subscriber tier.
var tierThresholds = map[domain.Tier]float64{
	domain.TierBasic:   70,
	domain.TierPremium: 50,
	domain.TierPro:     30,
}

// Score maps one pattern to [0,100]: a weighted sum of confidence, profit
// potential, urgency, and risk-adjusted confidence, plus the per-type bonus,
// clamped.
func Score(p domain.Pattern) float64 {
	riskAdj := p.Confidence * (1 - riskPenalty*float64(p.RiskLevel-1)/4)
	urgency := float64(p.TimeSensitivity) / 5 * 100

	s := p.Confidence*confidenceWeight +
		p.ProfitPotential*profitWeight +
		urgency*urgencyWeight +
		riskAdj*riskAdjWeight
	s += typeBonus[p.Type]

	if s > 100 {
		return 100
	}
	if s < 0 {
		return 0
	}
	return s
}

// Rank fills in each pattern's score and sorts descending. The sort is
// stable: detection order is the tiebreak and is never re-randomized, so
// ranking an already-ranked list is a no-op.
func Rank(patterns []domain.Pattern) []domain.Pattern {
	out := make([]domain.Pattern, len(patterns))
	copy(out, patterns)
	for i := range out {
		out[i].Score = Score(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// FilterByTier keeps the patterns whose score meets the tier's threshold.
func FilterByTier(patterns []domain.Pattern, tier domain.Tier) []domain.Pattern {
	threshold, ok := tierThresholds[tier]
	if !ok {
		return nil
	}
	out := make([]domain.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Score >= threshold {
			out = append(out, p)
		}
	}
	return out
}

// Category names used by Categorize. Buckets are not exclusive: one pattern
// can appear in several.
const (
	CategoryHighConfidence = "high_confidence"
	CategoryHighProfit     = "high_profit"
	CategoryTimeSensitive  = "time_sensitive"
	CategoryLowRisk        = "low_risk"
	CategoryArbitrage      = "arbitrage"
)

// Categorize buckets patterns for summary reporting.
func Categorize(patterns []domain.Pattern) map[string][]domain.Pattern {
	buckets := make(map[string][]domain.Pattern)
	for _, p := range patterns {
		if p.Confidence >= 75 {
			buckets[CategoryHighConfidence] = append(buckets[CategoryHighConfidence], p)
		}
		if p.ProfitPotential >= 70 {
			buckets[CategoryHighProfit] = append(buckets[CategoryHighProfit], p)
		}
		if p.TimeSensitivity >= 4 {
			buckets[CategoryTimeSensitive] = append(buckets[CategoryTimeSensitive], p)
		}
		if p.RiskLevel <= 2 {
			buckets[CategoryLowRisk] = append(buckets[CategoryLowRisk], p)
		}
		if p.Type.IsArbitrage() {
			buckets[CategoryArbitrage] = append(buckets[CategoryArbitrage], p)
		}
	}
	return buckets
}
