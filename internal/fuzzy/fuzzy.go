// Package fuzzy implements the string-similarity primitives used by the
// arbitrage detector and the cross-venue market matcher: a sequence ratio
// over matching blocks and a token-sort variant that is insensitive to word
// order.
package fuzzy

import (
	"sort"
	"strings"
)

// SequenceRatio returns a similarity measure in [0,1] for two strings:
// 2*M / (len(a)+len(b)) where M is the total length of the longest
// non-overlapping matching blocks.
func SequenceRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	m := matchingLen([]rune(a), []rune(b))
	return 2 * float64(m) / float64(len([]rune(a))+len([]rune(b)))
}

// TokenSortRatio splits both strings into whitespace-separated tokens, sorts
// them, and returns the SequenceRatio of the rejoined strings. Scale is
// still [0,1]; callers that think in 0-100 multiply themselves.
func TokenSortRatio(a, b string) float64 {
	return SequenceRatio(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(strings.ToLower(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// matchingLen sums the lengths of the longest common substrings found by
// recursively splitting around the longest match, mirroring the classic
// sequence-matcher block algorithm.
func matchingLen(a, b []rune) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingLen(a[:ai], b[:bi])
	total += matchingLen(a[ai+size:], b[bi+size:])
	return total
}

// longestMatch finds the longest common substring of a and b, returning its
// start offsets and length. O(len(a)*len(b)) with O(len(b)) memory, which is
// fine for market titles.
func longestMatch(a, b []rune) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}
