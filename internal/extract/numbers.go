package extract

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// parseNumber parses a human-formatted numeric cell: currency symbols,
// thousands separators, accounting-style parentheses for negatives.
func parseNumber(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if t == "" || t == "-" || t == "--" {
		return 0, nil
	}

	neg := false
	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		neg = true
		t = t[1 : len(t)-1]
	}

	t = strings.NewReplacer("$", "", ",", "", " ", "").Replace(t)
	t = strings.TrimSuffix(strings.ToLower(t), "sf")

	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "extract: parse number %q", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// dateFormats lists layouts tried when parsing lease dates, most common first.
var dateFormats = []string{
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006-01-02",
	"01/02/06",
	"1/2/06",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2-Jan-2006",
	"2-Jan-06",
}

// parseDate parses a lease date cell. Empty cells return nil without error
// because many rent rolls omit dates on vacant or month-to-month units.
func parseDate(s string) (*time.Time, error) {
	t := strings.TrimSpace(s)
	if t == "" || t == "-" {
		return nil, nil
	}
	for _, layout := range dateFormats {
		if parsed, err := time.Parse(layout, t); err == nil {
			return &parsed, nil
		}
	}
	return nil, eris.Errorf("extract: parse date %q", s)
}

// splitColumns breaks a fixed-width text line on runs of two or more spaces,
// the way pdftotext -layout renders table columns.
func splitColumns(line string) []string {
	var fields []string
	for _, f := range strings.Split(line, "  ") {
		f = strings.TrimSpace(f)
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
