// Package matcher pairs Polymarket and Kalshi markets that represent the
// same real-world event. Matching is probabilistic and tuned for precision:
// a missed match is acceptable, a wrong pair is not.
package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	leadingAux   = regexp.MustCompile(`^(will|does|is)\s+`)
	trailingYear = regexp.MustCompile(`\s+in\s+\d{4}$`)
	nonAlnum     = regexp.MustCompile(`[^a-z0-9\s]`)
	spaces       = regexp.MustCompile(`\s+`)
)

// NormalizeTitle reduces a market title to a canonical comparable form:
// lowercase, leading "will/does/is " stripped, trailing "?" and "in <year>"
// stripped, punctuation removed, whitespace collapsed. Idempotent.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	t = strings.TrimSuffix(t, "?")
	t = nonAlnum.ReplaceAllString(t, "")
	t = spaces.ReplaceAllString(t, " ")
	t = strings.TrimSpace(t)
	// Strip prefixes and year suffixes to a fixpoint so normalization is
	// idempotent even on degenerate titles.
	for {
		next := leadingAux.ReplaceAllString(t, "")
		next = trailingYear.ReplaceAllString(next, "")
		if next == t {
			return t
		}
		t = next
	}
}

// slugStopwords are dropped when deriving a match identifier.
var slugStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "by": true, "and": true, "or": true,
	"will": true, "be": true, "is": true, "does": true,
}

// maxSlugLen bounds derived match identifiers. Longer slugs are truncated
// and suffixed with a content hash to stay collision resistant.
const maxSlugLen = 50

// MatchID derives a human-stable identifier from the canonical (Polymarket)
// title: stopword-stripped, hyphen-joined slug, hash-suffixed when long.
func MatchID(canonicalTitle string) string {
	norm := NormalizeTitle(canonicalTitle)
	var kept []string
	for _, tok := range strings.Fields(norm) {
		if !slugStopwords[tok] {
			kept = append(kept, tok)
		}
	}
	slug := strings.Join(kept, "-")
	if slug == "" {
		slug = "market"
	}
	if len(slug) <= maxSlugLen {
		return slug
	}

	sum := sha256.Sum256([]byte(norm))
	suffix := hex.EncodeToString(sum[:4])
	cut := maxSlugLen - len(suffix) - 1
	slug = strings.TrimRight(slug[:cut], "-")
	return slug + "-" + suffix
}

// topicRules map title keywords to a coarse topic label for grouping in
// comparison views. First rule that matches wins; unknown titles fall
// through to "other".
var topicRules = []struct {
	topic    string
	keywords []string
}{
	{"politics", []string{"election", "president", "senate", "congress", "governor", "vote", "nominee"}},
	{"sports", []string{"nba", "nfl", "mlb", "nhl", "super bowl", "championship", "cup", "match", "game"}},
	{"crypto", []string{"bitcoin", "btc", "ethereum", "eth", "crypto", "token"}},
	{"economy", []string{"fed", "rate", "inflation", "gdp", "recession", "jobs"}},
	{"weather", []string{"temperature", "hurricane", "rainfall", "snow"}},
}

// TopicFor returns the coarse topic label for a title.
func TopicFor(title string) string {
	t := strings.ToLower(title)
	for _, rule := range topicRules {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.topic
			}
		}
	}
	return "other"
}
