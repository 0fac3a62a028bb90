// Package similarity implements the Jaccard token-set similarity used to
// detect near-duplicate titles across sources (spec §4.E).
package similarity

import "heatsight/internal/tokenizer"

// NearDupeThreshold is the default threshold above which two titles count
// as near-duplicates (spec §4.E / Glossary). Callers may use a configured
// value instead; this is the literal spec constant.
const NearDupeThreshold = 0.6

// Jaccard returns |A∩B| / |A∪B| over the tokenized, stopword-filtered sets
// of a and b. Returns 0 when the union is empty (both titles are empty),
// and 1 when a and b tokenize to the same non-empty set.
func Jaccard(a, b string) float64 {
	setA := tokenizer.TokenSet(a)
	setB := tokenizer.TokenSet(b)
	return JaccardSets(setA, setB)
}

// JaccardSets computes Jaccard similarity directly over two token sets,
// letting callers tokenize once and reuse across many comparisons.
func JaccardSets(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// IsNearDuplicate reports whether a and b exceed threshold.
func IsNearDuplicate(a, b string, threshold float64) bool {
	return Jaccard(a, b) > threshold
}
