package domain

import "time"

// GapDirection tells which venue quotes the matched event higher.
type GapDirection string

const (
	GapPolymarketHigher GapDirection = "polymarket_higher"
	GapKalshiHigher     GapDirection = "kalshi_higher"
	GapNone             GapDirection = "none"
)

// VenueQuote is the per-venue side of a cross-venue match.
type VenueQuote struct {
	MarketID  string    `json:"market_id"`
	Title     string    `json:"title"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time,omitzero"`
}

// MarketMatch is a persisted belief that a Polymarket market and a Kalshi
// market represent the same real-world event. Matches are deactivated when
// their constituent markets stop appearing in a matching run, never deleted.
type MarketMatch struct {
	ID             string       `json:"id"` // slug derived from the Polymarket title
	Topic          string       `json:"topic"`
	Polymarket     VenueQuote   `json:"polymarket"`
	Kalshi         VenueQuote   `json:"kalshi"`
	PriceGapCents  float64      `json:"price_gap_cents"` // |gap| in cents on a 0-100 scale
	GapDirection   GapDirection `json:"gap_direction"`
	CombinedVolume float64      `json:"combined_volume"`
	Similarity     float64      `json:"similarity"` // 0..1
	IsActive       bool         `json:"is_active"`
	FirstSeen      time.Time    `json:"first_seen"`
	LastSeen       time.Time    `json:"last_seen"`
}
