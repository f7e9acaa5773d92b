package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Patterns for the summary figures documents assert about themselves, e.g.
//
//	Total: 37 leases
//	Occupied: 326,695 sq ft    Vacant: 22,965 sq ft    Total: 349,660 sq ft
var (
	leaseCountRe   = regexp.MustCompile(`(?i)total[^0-9%]*?(\d+)\s*(?:leases|units|tenants)`)
	occupiedAreaRe = regexp.MustCompile(`(?i)(?:total\s+)?occupied:?\s*\$?([\d,]+(?:\.\d+)?)\s*(?:sq\.?\s?ft|sf)`)
	vacantAreaRe   = regexp.MustCompile(`(?i)(?:total\s+)?vacant:?\s*\$?([\d,]+(?:\.\d+)?)\s*(?:sq\.?\s?ft|sf)`)
	totalAreaRe    = regexp.MustCompile(`(?i)total(?:\s+area)?:?\s*([\d,]+(?:\.\d+)?)\s*(?:sq\.?\s?ft|sf)`)
)

// scanStated harvests stated totals from one line of text into st.
// Returns true if the line contributed at least one figure, meaning it is a
// summary line and not a data row.
func scanStated(line string, st *Stated) bool {
	found := false

	if st.LeaseCount == nil {
		if m := leaseCountRe.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				st.LeaseCount = &n
				found = true
			}
		}
	}
	if st.OccupiedArea == nil {
		if v, ok := matchArea(occupiedAreaRe, line); ok {
			st.OccupiedArea = &v
			found = true
		}
	}
	if st.VacantArea == nil {
		if v, ok := matchArea(vacantAreaRe, line); ok {
			st.VacantArea = &v
			found = true
		}
	}
	if st.TotalArea == nil {
		// "Total:" must not swallow the occupied/vacant figures on the
		// same line; strip them before matching.
		cleaned := occupiedAreaRe.ReplaceAllString(line, "")
		cleaned = vacantAreaRe.ReplaceAllString(cleaned, "")
		if v, ok := matchArea(totalAreaRe, cleaned); ok {
			st.TotalArea = &v
			found = true
		}
	}

	return found
}

func matchArea(re *regexp.Regexp, line string) (float64, bool) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
