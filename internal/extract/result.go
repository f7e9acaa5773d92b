package extract

import "github.com/sells-group/propfin/internal/model"

// RowError records one row that could not be parsed. Row-local failures are
// tolerated up to the configured ratio and surface as discrepancies.
type RowError struct {
	Row    int    `json:"row"`
	Detail string `json:"detail"`
}

// Stated carries the totals a document asserts about itself, harvested
// during extraction and reconciled by the validator.
type Stated struct {
	LeaseCount   *int     `json:"lease_count,omitempty"`
	OccupiedArea *float64 `json:"occupied_area,omitempty"`
	VacantArea   *float64 `json:"vacant_area,omitempty"`
	TotalArea    *float64 `json:"total_area,omitempty"`
}

// Result is the typed output of domain extraction for one document.
type Result struct {
	Kind       model.DocumentKind
	Strategy   string
	Units      []model.ExtractedUnit
	Metrics    []model.ExtractedMetric
	RowErrors  []RowError
	Stated     Stated
	TitleLines []string // candidate property-name lines for identity resolution
}

// IncludedUnits returns the units participating in count/area/occupancy math.
func (r *Result) IncludedUnits() []model.ExtractedUnit {
	var out []model.ExtractedUnit
	for _, u := range r.Units {
		if u.Included {
			out = append(out, u)
		}
	}
	return out
}
