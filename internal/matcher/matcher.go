package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pmradar/pmradar/internal/config"
	"github.com/pmradar/pmradar/internal/domain"
	"github.com/pmradar/pmradar/internal/fuzzy"
)

// Candidate is a scored pairing of one Polymarket and one Kalshi market,
// produced during candidate generation and pruned by verification and dedup.
type Candidate struct {
	Poly       domain.MarketSnapshot
	Kalshi     domain.MarketSnapshot
	Similarity float64 // 0..1
}

// Report summarizes one matching run for partial-success reporting.
type Report struct {
	PolyMarkets   int
	KalshiMarkets int
	Candidates    int
	Verified      int
	Persisted     int
	Deactivated   int
}

// Matcher runs the cross-venue match pipeline: load, candidate generation,
// verification, dedup, persist.
type Matcher struct {
	cfg    config.MatcherConfig
	repo   domain.SnapshotRepository
	store  domain.MatchStore
	logger *slog.Logger
}

// New creates a Matcher.
func New(cfg config.MatcherConfig, repo domain.SnapshotRepository, store domain.MatchStore, logger *slog.Logger) *Matcher {
	return &Matcher{
		cfg:    cfg,
		repo:   repo,
		store:  store,
		logger: logger.With(slog.String("component", "matcher")),
	}
}

// Run executes one full matching pass. Persistence errors propagate; the
// report carries the counts of what succeeded before any failure.
func (m *Matcher) Run(ctx context.Context) (Report, error) {
	var report Report

	poly, err := m.repo.LoadActiveMarkets(ctx, domain.VenuePolymarket, m.cfg.MinVolume)
	if err != nil {
		return report, fmt.Errorf("matcher: load polymarket: %w", err)
	}
	kalshi, err := m.repo.LoadActiveMarkets(ctx, domain.VenueKalshi, m.cfg.MinVolume)
	if err != nil {
		return report, fmt.Errorf("matcher: load kalshi: %w", err)
	}
	report.PolyMarkets, report.KalshiMarkets = len(poly), len(kalshi)

	candidates := m.GenerateCandidates(poly, kalshi)
	report.Candidates = len(candidates)

	verified := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if m.Verify(c) {
			verified = append(verified, c)
		}
	}
	report.Verified = len(verified)

	matches := DedupCandidates(verified)

	now := time.Now().UTC()
	seen := make(map[string]bool, len(matches))
	for _, c := range matches {
		match := m.buildMatch(c, now)
		if err := m.store.Upsert(ctx, match); err != nil {
			return report, fmt.Errorf("matcher: persist match %s: %w", match.ID, err)
		}
		seen[match.ID] = true
		report.Persisted++
	}

	// Matches not reproduced in this run go inactive, never deleted.
	active, err := m.store.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("matcher: list active matches: %w", err)
	}
	for _, existing := range active {
		if seen[existing.ID] {
			continue
		}
		if err := m.store.Deactivate(ctx, existing.ID); err != nil {
			return report, fmt.Errorf("matcher: deactivate match %s: %w", existing.ID, err)
		}
		report.Deactivated++
	}

	m.logger.Info("matching run complete",
		slog.Int("poly_markets", report.PolyMarkets),
		slog.Int("kalshi_markets", report.KalshiMarkets),
		slog.Int("candidates", report.Candidates),
		slog.Int("verified", report.Verified),
		slog.Int("persisted", report.Persisted),
		slog.Int("deactivated", report.Deactivated),
	)
	return report, nil
}

// GenerateCandidates pairs each Polymarket market with its best Kalshi match
// above the similarity cutoff, using token-sort similarity over normalized
// titles.
func (m *Matcher) GenerateCandidates(poly, kalshi []domain.MarketSnapshot) []Candidate {
	normKalshi := make([]string, len(kalshi))
	for i, k := range kalshi {
		normKalshi[i] = NormalizeTitle(k.Title)
	}

	var out []Candidate
	for _, p := range poly {
		np := NormalizeTitle(p.Title)
		bestIdx, bestSim := -1, 0.0
		for i := range kalshi {
			sim := fuzzy.TokenSortRatio(np, normKalshi[i])
			if sim > bestSim {
				bestIdx, bestSim = i, sim
			}
		}
		if bestIdx >= 0 && bestSim*100 >= m.cfg.SimilarityCutoff {
			out = append(out, Candidate{Poly: p, Kalshi: kalshi[bestIdx], Similarity: bestSim})
		}
	}
	return out
}

// Verify applies the secondary heuristics that catch lexically similar but
// structurally different pairs.
func (m *Matcher) Verify(c Candidate) bool {
	np, nk := NormalizeTitle(c.Poly.Title), NormalizeTitle(c.Kalshi.Title)
	if np == "" || nk == "" {
		return false
	}

	ratio := float64(len(np)) / float64(len(nk))
	if ratio < 1/m.cfg.MaxLengthRatio || ratio > m.cfg.MaxLengthRatio {
		return false
	}

	if !c.Poly.CloseTime.IsZero() && !c.Kalshi.CloseTime.IsZero() {
		gap := c.Poly.CloseTime.Sub(c.Kalshi.CloseTime)
		if gap < 0 {
			gap = -gap
		}
		if gap > time.Duration(m.cfg.MaxCloseGapDays)*24*time.Hour {
			return false
		}
	}

	return !structurallyDifferent(np, nk)
}

// oppositeTokens are marker pairs that flip a question's meaning despite
// high lexical overlap.
var oppositeTokens = [][2]string{
	{"win", "lose"},
	{"above", "below"},
	{"over", "under"},
	{"before", "after"},
	{"more", "less"},
}

// structurallyDifferent is the curated false-positive filter: pairs whose
// numeric thresholds differ, or that carry opposite direction markers,
// imply different questions even when the wording mostly overlaps.
func structurallyDifferent(a, b string) bool {
	if !sameNumbers(a, b) {
		return true
	}
	for _, pair := range oppositeTokens {
		if hasToken(a, pair[0]) && hasToken(b, pair[1]) ||
			hasToken(a, pair[1]) && hasToken(b, pair[0]) {
			return true
		}
	}
	return false
}

// sameNumbers reports whether the numeric tokens of both titles agree.
// A title mentioning "500" is not the same question as one mentioning "600".
func sameNumbers(a, b string) bool {
	na, nb := numericTokens(a), numericTokens(b)
	if len(na) != len(nb) {
		return len(na) == 0 || len(nb) == 0
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

func numericTokens(s string) []string {
	var out []string
	for _, tok := range strings.Fields(s) {
		if tok != "" && tok[0] >= '0' && tok[0] <= '9' {
			out = append(out, tok)
		}
	}
	return out
}

func hasToken(s, token string) bool {
	for _, t := range strings.Fields(s) {
		if t == token || strings.TrimSuffix(t, "s") == token {
			return true
		}
	}
	return false
}

// DedupCandidates enforces that each Kalshi market is claimed by at most one
// Polymarket market per run: first-match-wins in descending combined-volume
// order. A higher-similarity alternative pairing processed later loses; that
// precision/recall tradeoff is deliberate.
func DedupCandidates(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Poly.Volume+sorted[i].Kalshi.Volume > sorted[j].Poly.Volume+sorted[j].Kalshi.Volume
	})

	claimed := make(map[string]bool, len(sorted))
	out := make([]Candidate, 0, len(sorted))
	for _, c := range sorted {
		if claimed[c.Kalshi.MarketID] {
			continue
		}
		claimed[c.Kalshi.MarketID] = true
		out = append(out, c)
	}
	return out
}

// buildMatch assembles the persisted record for a verified, deduped pair.
func (m *Matcher) buildMatch(c Candidate, now time.Time) domain.MarketMatch {
	gap := c.Poly.YesPrice - c.Kalshi.YesPrice
	direction := domain.GapNone
	switch {
	case gap > 0:
		direction = domain.GapPolymarketHigher
	case gap < 0:
		direction = domain.GapKalshiHigher
	}

	return domain.MarketMatch{
		ID:    MatchID(c.Poly.Title),
		Topic: TopicFor(c.Poly.Title),
		Polymarket: domain.VenueQuote{
			MarketID:  c.Poly.MarketID,
			Title:     c.Poly.Title,
			Price:     c.Poly.YesPrice,
			Volume:    c.Poly.Volume,
			CloseTime: c.Poly.CloseTime,
		},
		Kalshi: domain.VenueQuote{
			MarketID:  c.Kalshi.MarketID,
			Title:     c.Kalshi.Title,
			Price:     c.Kalshi.YesPrice,
			Volume:    c.Kalshi.Volume,
			CloseTime: c.Kalshi.CloseTime,
		},
		PriceGapCents:  math.Abs(gap) * 100,
		GapDirection:   direction,
		CombinedVolume: c.Poly.Volume + c.Kalshi.Volume,
		Similarity:     c.Similarity,
		IsActive:       true,
		FirstSeen:      now,
		LastSeen:       now,
	}
}
