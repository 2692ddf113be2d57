package domain

import "time"

// PatternType enumerates the closed set of detectable pattern variants.
type PatternType string

const (
	PatternVolumeSpike          PatternType = "volume_spike"
	PatternVolumeDivergence     PatternType = "volume_divergence"
	PatternUnusualFlow          PatternType = "unusual_flow"
	PatternRapidPriceChange     PatternType = "rapid_price_change"
	PatternTrendReversal        PatternType = "trend_reversal"
	PatternSupportBreak         PatternType = "support_break"
	PatternResistanceBreak      PatternType = "resistance_break"
	PatternCrossVenueArbitrage  PatternType = "cross_venue_arbitrage"
	PatternRelatedMarketArb     PatternType = "related_market_arbitrage"
)

// IsArbitrage reports whether the type is one of the arbitrage variants.
func (t PatternType) IsArbitrage() bool {
	return t == PatternCrossVenueArbitrage || t == PatternRelatedMarketArb
}

// PatternStatus is the persisted lifecycle state of a pattern.
type PatternStatus string

const (
	PatternStatusActive    PatternStatus = "active"
	PatternStatusExpired   PatternStatus = "expired"
	PatternStatusActedUpon PatternStatus = "acted_upon"
)

// Pattern is a detector's structured claim that something statistically
// notable occurred in a market. Never mutated after creation except for
// Status, and Score which the scorer fills in before persistence.
type Pattern struct {
	ID              string             `json:"id"`
	Type            PatternType        `json:"type"`
	Venue           Venue              `json:"venue"`
	MarketID        string             `json:"market_id"`
	Title           string             `json:"title"`
	Confidence      float64            `json:"confidence"`       // 0..100
	ProfitPotential float64            `json:"profit_potential"` // 0..100
	TimeSensitivity int                `json:"time_sensitivity"` // 1..5, 5 = act now
	RiskLevel       int                `json:"risk_level"`       // 1..5, 5 = highest
	Description     string             `json:"description"`
	SuggestedAction string             `json:"suggested_action"`
	Evidence        map[string]float64 `json:"evidence,omitempty"`
	RelatedMarkets  []string           `json:"related_markets,omitempty"`
	Score           float64            `json:"score"`
	Status          PatternStatus      `json:"status"`
	DetectedAt      time.Time          `json:"detected_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
}

// expiryBySensitivity maps time-sensitivity to pattern lifetime.
var expiryBySensitivity = map[int]time.Duration{
	5: time.Hour,
	4: 4 * time.Hour,
	3: 12 * time.Hour,
	2: 24 * time.Hour,
	1: 48 * time.Hour,
}

// ExpiryFor returns the lifetime implied by a time-sensitivity value.
// Out-of-range values get the most conservative (longest) lifetime.
func ExpiryFor(sensitivity int) time.Duration {
	if d, ok := expiryBySensitivity[sensitivity]; ok {
		return d
	}
	return 48 * time.Hour
}

// Stamp fills in the lifecycle fields derived at detection time.
func (p *Pattern) Stamp(now time.Time) {
	p.Status = PatternStatusActive
	p.DetectedAt = now
	p.ExpiresAt = now.Add(ExpiryFor(p.TimeSensitivity))
}
