package domain

import "time"

// Venue identifies one of the two prediction-market platforms whose
// snapshots are ingested.
type Venue string

const (
	VenuePolymarket Venue = "polymarket"
	VenueKalshi     Venue = "kalshi"
)

// Venues lists all supported venues in a fixed order.
var Venues = []Venue{VenuePolymarket, VenueKalshi}

// Prices at or beyond these bounds mean a market has effectively resolved
// and is excluded from analysis upstream.
const (
	MinTradablePrice = 0.02
	MaxTradablePrice = 0.98
)

// PricePoint is a single historical price/volume reading for one market.
type PricePoint struct {
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// MarketSnapshot is the immutable per-batch view of one market: its current
// quote plus a bounded history window ordered oldest to newest.
type MarketSnapshot struct {
	Venue     Venue        `json:"venue"`
	MarketID  string       `json:"market_id"`
	Title     string       `json:"title"`
	YesPrice  float64      `json:"yes_price"` // probability, 0..1
	Volume    float64      `json:"volume"`
	BestBid   float64      `json:"best_bid,omitempty"` // 0 = not quoted
	BestAsk   float64      `json:"best_ask,omitempty"`
	CloseTime time.Time    `json:"close_time,omitzero"`
	History   []PricePoint `json:"history"`
}

// Tradable reports whether the snapshot's price lies inside the open
// (MinTradablePrice, MaxTradablePrice) band.
func (m MarketSnapshot) Tradable() bool {
	return m.YesPrice > MinTradablePrice && m.YesPrice < MaxTradablePrice
}
