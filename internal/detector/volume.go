package detector

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/pmradar/pmradar/internal/config"
	"github.com/pmradar/pmradar/internal/domain"
)

const (
	// minSpikeHistory is the minimum history needed before a spike claim
	// means anything.
	minSpikeHistory = 5
	// concurrentMoveThreshold is the price move that upgrades a volume
	// signal.
	concurrentMoveThreshold = 0.05
	// accelerationThreshold is how far the recent-3 volume average must
	// exceed the full-history average to count as unusual flow.
	accelerationThreshold = 1.5
)

// VolumeDetector finds volume spikes, volume/price divergences, and unusual
// recent flow.
type VolumeDetector struct {
	cfg    config.DetectorConfig
	logger *slog.Logger
}

// NewVolumeDetector creates a VolumeDetector with the given tunables.
func NewVolumeDetector(cfg config.DetectorConfig, logger *slog.Logger) *VolumeDetector {
	return &VolumeDetector{cfg: cfg, logger: logger.With(slog.String("detector", "volume"))}
}

// Name returns the detector identifier.
func (d *VolumeDetector) Name() string { return "volume" }

// DetectBatch scans every market in the batch independently.
func (d *VolumeDetector) DetectBatch(markets []domain.MarketSnapshot) []domain.Pattern {
	return perMarket(d.logger, d.Name(), markets, d.detectOne)
}

func (d *VolumeDetector) detectOne(m domain.MarketSnapshot) []domain.Pattern {
	var out []domain.Pattern
	if p, ok := d.volumeSpike(m); ok {
		out = append(out, p)
	}
	if p, ok := d.volumeDivergence(m); ok {
		out = append(out, p)
	}
	if p, ok := d.unusualFlow(m); ok {
		out = append(out, p)
	}
	return out
}

// volumeSpike fires when current volume reaches spike_multiplier times the
// mean of the all-but-last history points.
func (d *VolumeDetector) volumeSpike(m domain.MarketSnapshot) (domain.Pattern, bool) {
	if len(m.History) < minSpikeHistory {
		return domain.Pattern{}, false
	}
	base := meanVolume(m.History[:len(m.History)-1])
	if base <= 0 {
		return domain.Pattern{}, false
	}
	ratio := m.Volume / base
	if ratio < d.cfg.SpikeMultiplier {
		return domain.Pattern{}, false
	}

	confidence := clamp100(50 + (ratio-d.cfg.SpikeMultiplier)*10)
	profit := clamp100(40 + ratio*5)

	lastPrice := m.History[len(m.History)-1].Price
	var priceMove float64
	if lastPrice > 0 {
		priceMove = (m.YesPrice - lastPrice) / lastPrice
	}
	if math.Abs(priceMove) >= concurrentMoveThreshold {
		confidence = clamp100(confidence + 10)
		profit = clamp100(profit + 10)
	}

	p := domain.Pattern{
		Type:            domain.PatternVolumeSpike,
		Venue:           m.Venue,
		MarketID:        m.MarketID,
		Title:           m.Title,
		Confidence:      confidence,
		ProfitPotential: profit,
		TimeSensitivity: 4,
		RiskLevel:       3,
		Description:     fmt.Sprintf("Volume %.1fx above recent average (%.0f vs %.0f)", ratio, m.Volume, base),
		SuggestedAction: "Investigate what is driving the surge before the move completes",
		Evidence: map[string]float64{
			"ratio":       ratio,
			"base_volume": base,
			"volume":      m.Volume,
			"price_move":  priceMove,
		},
	}
	return p, true
}

// volumeDivergence fires when volume moved sharply over the last five points
// while price barely moved.
func (d *VolumeDetector) volumeDivergence(m domain.MarketSnapshot) (domain.Pattern, bool) {
	if len(m.History) < 5 {
		return domain.Pattern{}, false
	}
	window := m.History[len(m.History)-5:]
	first, last := window[0], window[len(window)-1]
	if first.Volume <= 0 || first.Price <= 0 {
		return domain.Pattern{}, false
	}
	volChange := (last.Volume - first.Volume) / first.Volume
	priceChange := math.Abs((last.Price - first.Price) / first.Price)
	if math.Abs(volChange) <= d.cfg.DivergenceThreshold || priceChange >= concurrentMoveThreshold {
		return domain.Pattern{}, false
	}

	p := domain.Pattern{
		Type:            domain.PatternVolumeDivergence,
		Venue:           m.Venue,
		MarketID:        m.MarketID,
		Title:           m.Title,
		Confidence:      clamp100(50 + math.Abs(volChange)*50),
		ProfitPotential: 60,
		TimeSensitivity: 3,
		RiskLevel:       2,
		Description:     fmt.Sprintf("Volume moved %.0f%% while price moved only %.1f%%", volChange*100, priceChange*100),
		SuggestedAction: "Positioning may be happening quietly; watch for the price to follow",
		Evidence: map[string]float64{
			"volume_change": volChange,
			"price_change":  priceChange,
		},
	}
	return p, true
}

// unusualFlow fires when the last-3 average volume accelerates past the full
// history average. The direction label is advisory text only.
func (d *VolumeDetector) unusualFlow(m domain.MarketSnapshot) (domain.Pattern, bool) {
	if len(m.History) < minSpikeHistory {
		return domain.Pattern{}, false
	}
	full := meanVolume(m.History)
	recent := meanVolume(m.History[len(m.History)-3:])
	if full <= 0 {
		return domain.Pattern{}, false
	}
	accel := recent / full
	if accel <= accelerationThreshold {
		return domain.Pattern{}, false
	}

	direction := "unknown"
	refPrice := m.History[len(m.History)-3].Price
	switch {
	case m.YesPrice > refPrice:
		direction = "bullish"
	case m.YesPrice < refPrice:
		direction = "bearish"
	}

	p := domain.Pattern{
		Type:            domain.PatternUnusualFlow,
		Venue:           m.Venue,
		MarketID:        m.MarketID,
		Title:           m.Title,
		Confidence:      clamp100(45 + (accel-accelerationThreshold)*40),
		ProfitPotential: 55,
		TimeSensitivity: 3,
		RiskLevel:       3,
		Description:     fmt.Sprintf("Recent flow %.1fx the period average, %s pressure", accel, direction),
		SuggestedAction: "Money is accelerating into this market; check the order flow",
		Evidence: map[string]float64{
			"acceleration":  accel,
			"recent_volume": recent,
			"full_volume":   full,
		},
	}
	return p, true
}
