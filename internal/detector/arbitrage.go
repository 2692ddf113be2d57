package detector

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/pmradar/pmradar/internal/config"
	"github.com/pmradar/pmradar/internal/domain"
	"github.com/pmradar/pmradar/internal/fuzzy"
	"github.com/pmradar/pmradar/internal/matcher"
)

// inversePairs are antonym markers whose presence on opposite sides of a
// similar title pair implies the two markets price complementary outcomes.
// This is a tunable heuristic table, not a guaranteed-correct classifier.
var inversePairs = [][2]string{
	{"win", "lose"},
	{"above", "below"},
	{"over", "under"},
	{"before", "after"},
}

// subsetMarkers flag a title as a strict-subset event of an otherwise
// similar title that lacks the marker.
var subsetMarkers = []string{"and", "both", "all", "every"}

const (
	// relatedBaseSimilarity is the minimum similarity of the stripped base
	// titles before a related-market claim is made.
	relatedBaseSimilarity = 0.75
	// inverseDeviation is the deviation of a YES-price sum from 1.0 beyond
	// which an inverse pair is mispriced. Strictly greater-than fires.
	inverseDeviation = 0.05
	// sumEpsilon absorbs float64 noise when the price sum lands exactly on
	// the deviation boundary (0.55+0.50 must read as deviation 0.05, not a
	// hair above it).
	sumEpsilon = 1e-9
)

// ArbitrageDetector finds cross-venue spreads on same-event markets and
// related-market mispricings within one venue.
type ArbitrageDetector struct {
	cfg    config.DetectorConfig
	logger *slog.Logger
}

// NewArbitrageDetector creates an ArbitrageDetector with the given tunables.
func NewArbitrageDetector(cfg config.DetectorConfig, logger *slog.Logger) *ArbitrageDetector {
	return &ArbitrageDetector{cfg: cfg, logger: logger.With(slog.String("detector", "arbitrage"))}
}

// Name returns the detector identifier.
func (d *ArbitrageDetector) Name() string { return "arbitrage" }

// DetectBatch compares markets pairwise. The cross-venue pass is
// O(n_poly * n_kalshi); the loader bounds batch sizes with its minimum-
// volume cut to keep this tractable.
func (d *ArbitrageDetector) DetectBatch(markets []domain.MarketSnapshot) []domain.Pattern {
	byVenue := make(map[domain.Venue][]domain.MarketSnapshot)
	for _, m := range markets {
		byVenue[m.Venue] = append(byVenue[m.Venue], m)
	}

	var out []domain.Pattern
	out = append(out, d.crossVenue(byVenue[domain.VenuePolymarket], byVenue[domain.VenueKalshi])...)
	for _, venue := range domain.Venues {
		out = append(out, d.relatedMarkets(byVenue[venue])...)
	}
	return out
}

// crossVenue emits a pattern for every similar-titled pair whose prices
// diverge by at least min_spread, identifying the cheaper side to buy.
func (d *ArbitrageDetector) crossVenue(poly, kalshi []domain.MarketSnapshot) []domain.Pattern {
	var out []domain.Pattern
	for _, a := range poly {
		na := matcher.NormalizeTitle(a.Title)
		for _, b := range kalshi {
			sim := fuzzy.SequenceRatio(na, matcher.NormalizeTitle(b.Title))
			if sim < d.cfg.TitleSimilarity {
				continue
			}
			spread := math.Abs(a.YesPrice - b.YesPrice)
			if spread < d.cfg.MinSpread {
				continue
			}

			cheap, rich := a, b
			if b.YesPrice < a.YesPrice {
				cheap, rich = b, a
			}
			spreadPct := spread * 100

			out = append(out, domain.Pattern{
				Type:            domain.PatternCrossVenueArbitrage,
				Venue:           cheap.Venue,
				MarketID:        cheap.MarketID,
				Title:           cheap.Title,
				Confidence:      clamp100(70 + spreadPct*2),
				ProfitPotential: clamp100(spreadPct * 5),
				TimeSensitivity: 5,
				RiskLevel:       2,
				Description: fmt.Sprintf("Same event priced %.0fc on %s vs %.0fc on %s (%.1fc spread)",
					cheap.YesPrice*100, cheap.Venue, rich.YesPrice*100, rich.Venue, spreadPct),
				SuggestedAction: fmt.Sprintf("Buy YES on %s at %.0fc, sell on %s at %.0fc",
					cheap.Venue, cheap.YesPrice*100, rich.Venue, rich.YesPrice*100),
				Evidence: map[string]float64{
					"spread":      spread,
					"similarity":  sim,
					"cheap_price": cheap.YesPrice,
					"rich_price":  rich.YesPrice,
				},
				RelatedMarkets: []string{rich.MarketID},
			})
		}
	}
	return out
}

// relatedMarkets scans same-venue pairs for inverse and subset mispricings.
func (d *ArbitrageDetector) relatedMarkets(markets []domain.MarketSnapshot) []domain.Pattern {
	var out []domain.Pattern
	for i := 0; i < len(markets); i++ {
		for j := i + 1; j < len(markets); j++ {
			if p, ok := d.inversePair(markets[i], markets[j]); ok {
				out = append(out, p)
				continue
			}
			if p, ok := d.subsetPair(markets[i], markets[j]); ok {
				out = append(out, p)
			}
		}
	}
	return out
}

// inversePair checks whether two titles carry opposite antonym markers over
// the same base event; their YES prices should then sum to about 1.0.
// Deviation strictly beyond the 5% boundary is a mispricing.
func (d *ArbitrageDetector) inversePair(a, b domain.MarketSnapshot) (domain.Pattern, bool) {
	na, nb := matcher.NormalizeTitle(a.Title), matcher.NormalizeTitle(b.Title)
	matched := false
	for _, pair := range inversePairs {
		if containsToken(na, pair[0]) && containsToken(nb, pair[1]) ||
			containsToken(na, pair[1]) && containsToken(nb, pair[0]) {
			baseA := stripTokens(na, pair[0], pair[1])
			baseB := stripTokens(nb, pair[0], pair[1])
			if fuzzy.SequenceRatio(baseA, baseB) >= relatedBaseSimilarity {
				matched = true
				break
			}
		}
	}
	if !matched {
		return domain.Pattern{}, false
	}

	sum := a.YesPrice + b.YesPrice
	deviation := math.Abs(sum - 1.0)
	if deviation <= inverseDeviation+sumEpsilon {
		return domain.Pattern{}, false
	}

	action := "Buy YES on both sides; they sum below fair value"
	if sum > 1.0 {
		action = "Sell YES on both sides; they sum above fair value"
	}

	p := domain.Pattern{
		Type:            domain.PatternRelatedMarketArb,
		Venue:           a.Venue,
		MarketID:        a.MarketID,
		Title:           a.Title,
		Confidence:      clamp100(60 + deviation*400),
		ProfitPotential: clamp100(40 + deviation*500),
		TimeSensitivity: 4,
		RiskLevel:       2,
		Description:     fmt.Sprintf("Inverse outcomes sum to %.2f instead of 1.00 (%.1f%% off)", sum, deviation*100),
		SuggestedAction: action,
		Evidence: map[string]float64{
			"price_sum": sum,
			"deviation": deviation,
			"price_a":   a.YesPrice,
			"price_b":   b.YesPrice,
		},
		RelatedMarkets: []string{b.MarketID},
	}
	return p, true
}

// subsetPair checks whether one title is a strict-subset event of the other;
// the subset's YES price must not exceed the superset's.
func (d *ArbitrageDetector) subsetPair(a, b domain.MarketSnapshot) (domain.Pattern, bool) {
	na, nb := matcher.NormalizeTitle(a.Title), matcher.NormalizeTitle(b.Title)

	subset, superset := a, b
	ns, np := na, nb
	switch {
	case hasSubsetMarker(na) && !hasSubsetMarker(nb):
		// a is the subset
	case hasSubsetMarker(nb) && !hasSubsetMarker(na):
		subset, superset = b, a
		ns, np = nb, na
	default:
		return domain.Pattern{}, false
	}

	base := ns
	for _, marker := range subsetMarkers {
		base = stripTokens(base, marker)
	}
	if fuzzy.SequenceRatio(base, np) < relatedBaseSimilarity {
		return domain.Pattern{}, false
	}
	if subset.YesPrice <= superset.YesPrice {
		return domain.Pattern{}, false
	}
	violation := subset.YesPrice - superset.YesPrice

	p := domain.Pattern{
		Type:            domain.PatternRelatedMarketArb,
		Venue:           subset.Venue,
		MarketID:        subset.MarketID,
		Title:           subset.Title,
		Confidence:      clamp100(55 + violation*300),
		ProfitPotential: clamp100(violation * 500),
		TimeSensitivity: 3,
		RiskLevel:       3,
		Description: fmt.Sprintf("Subset event priced %.0fc above its superset (%.0fc vs %.0fc)",
			violation*100, subset.YesPrice*100, superset.YesPrice*100),
		SuggestedAction: "A narrower event cannot be more likely than its superset; sell the subset or buy the superset",
		Evidence: map[string]float64{
			"violation":      violation,
			"subset_price":   subset.YesPrice,
			"superset_price": superset.YesPrice,
		},
		RelatedMarkets: []string{superset.MarketID},
	}
	return p, true
}

func containsToken(s, token string) bool {
	for _, t := range strings.Fields(s) {
		if t == token || strings.TrimSuffix(t, "s") == token || strings.TrimSuffix(t, "es") == token {
			return true
		}
	}
	return false
}

func hasSubsetMarker(s string) bool {
	for _, marker := range subsetMarkers {
		if containsToken(s, marker) {
			return true
		}
	}
	return false
}

// stripTokens removes whole tokens (including simple plural forms) from s.
func stripTokens(s string, tokens ...string) string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		drop := false
		for _, t := range tokens {
			if f == t || strings.TrimSuffix(f, "s") == t || strings.TrimSuffix(f, "es") == t {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}
