package resolve

import (
	"strings"

	"github.com/agext/levenshtein"
)

// Similarity scores two normalized names on [0, 1]. The score blends
// edit-distance similarity with whole-token overlap so that a one-letter
// typo scores high while an unrelated name sharing a single generic word
// (PLAZA, CENTER) scores low.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	edit := levenshtein.Similarity(a, b, nil)
	return 0.7*edit + 0.3*tokenOverlap(a, b)
}

// tokenOverlap is the Jaccard coefficient over whitespace-split tokens.
func tokenOverlap(a, b string) float64 {
	at := tokenSet(a)
	bt := tokenSet(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}
	shared := 0
	for t := range at {
		if _, ok := bt[t]; ok {
			shared++
		}
	}
	union := len(at) + len(bt) - shared
	return float64(shared) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}
	return set
}
