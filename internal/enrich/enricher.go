// Package enrich adds optional context to detected patterns after scoring
// and before persistence.
package enrich

import (
	"context"

	"github.com/pmradar/pmradar/internal/domain"
)

// Annotator decorates patterns in place. Implementations must tolerate
// partial input and never fail the batch; enrichment is best effort.
type Annotator interface {
	Annotate(ctx context.Context, patterns []domain.Pattern) []domain.Pattern
}

// Noop passes patterns through unchanged. Used when no enrichment source is
// configured.
type Noop struct{}

var _ Annotator = Noop{}

func (Noop) Annotate(_ context.Context, patterns []domain.Pattern) []domain.Pattern {
	return patterns
}

// MatchHints tags arbitrage patterns whose market participates in an active
// cross-venue match, so alert consumers can jump to the paired market.
type MatchHints struct {
	store domain.MatchStore
}

func NewMatchHints(store domain.MatchStore) *MatchHints {
	return &MatchHints{store: store}
}

var _ Annotator = (*MatchHints)(nil)

func (h *MatchHints) Annotate(ctx context.Context, patterns []domain.Pattern) []domain.Pattern {
	matches, err := h.store.ListActive(ctx)
	if err != nil {
		return patterns
	}
	byMarket := make(map[string]domain.MarketMatch, len(matches)*2)
	for _, m := range matches {
		byMarket[m.Polymarket.MarketID] = m
		byMarket[m.Kalshi.MarketID] = m
	}
	for i := range patterns {
		m, ok := byMarket[patterns[i].MarketID]
		if !ok {
			continue
		}
		if patterns[i].Evidence == nil {
			patterns[i].Evidence = make(map[string]float64, 2)
		}
		patterns[i].Evidence["match_similarity"] = m.Similarity
		patterns[i].Evidence["match_gap_cents"] = m.PriceGapCents
		counterpart := m.Kalshi.MarketID
		if patterns[i].Venue == domain.VenueKalshi {
			counterpart = m.Polymarket.MarketID
		}
		if !contains(patterns[i].RelatedMarkets, counterpart) {
			patterns[i].RelatedMarkets = append(patterns[i].RelatedMarkets, counterpart)
		}
	}
	return patterns
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
