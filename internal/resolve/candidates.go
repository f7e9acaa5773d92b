package resolve

import (
	"path/filepath"
	"regexp"
	"strings"
)

// noiseRe matches document-type words and date fragments that appear in
// filenames and report titles but carry no identity signal.
var noiseRe = regexp.MustCompile(`(?i)\b(rent\s*roll|income\s*statement|operating\s*statement|balance\s*sheet|cash\s*flow|statement|report|as\s+of|final|draft|v\d+|q[1-4]|fy)\b`)

var dateTokenRe = regexp.MustCompile(`(?i)\b(?:\d{1,2}[./-]\d{1,2}[./-]\d{2,4}|\d{4}[./-]\d{1,2}(?:[./-]\d{1,2})?|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s*\d{0,4}|\d{4})\b`)

// Candidates derives property-name candidate strings from a document's
// filename and the title lines captured during extraction. Filename
// candidates come first; ordering is stable so resolution is
// deterministic for identical inputs.
func Candidates(filename string, titleLines []string) []string {
	var out []string
	seen := make(map[string]struct{})

	add := func(raw string) {
		c := cleanCandidate(raw)
		if c == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}

	if filename != "" {
		base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
		add(base)
	}
	for _, line := range titleLines {
		add(line)
	}
	return out
}

func cleanCandidate(raw string) string {
	s := noiseRe.ReplaceAllString(raw, " ")
	s = dateTokenRe.ReplaceAllString(s, " ")
	s = Normalize(s)

	// Drop bare numeric tokens left behind by date stripping ("2024-06"
	// loses its year match but leaves "06").
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if isAllDigits(f) {
			continue
		}
		kept = append(kept, f)
	}
	s = strings.Join(kept, " ")

	// A lone character is never a usable name.
	if len(s) < 2 {
		return ""
	}
	return s
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
