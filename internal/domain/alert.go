package domain

import "time"

// Tier is a subscriber service level gating which patterns and alerts are
// visible and at what rate.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierPro     Tier = "pro"
)

// TiersByPrivilege lists tiers from most to least privileged.
var TiersByPrivilege = []Tier{TierPro, TierPremium, TierBasic}

// TierPolicy holds the static admission parameters for one tier.
type TierPolicy struct {
	MinScore      float64       `json:"min_score"`
	MaxPerDay     int           `json:"max_per_day"`
	DeliveryDelay time.Duration `json:"delivery_delay"` // consumed by the delivery layer, not enforced here
}

// Alert is derived from one pattern for one tier-eligible subscriber tier.
type Alert struct {
	ID          string      `json:"id"`
	Tier        Tier        `json:"tier"`
	Title       string      `json:"title"`
	Message     string      `json:"message"`
	Action      string      `json:"action"`
	PatternID   string      `json:"pattern_id"`
	PatternType PatternType `json:"pattern_type"`
	MarketID    string      `json:"market_id"`
	Score       float64     `json:"score"`
	CreatedAt   time.Time   `json:"created_at"`
}
