// Package validate reconciles extracted records against the totals a
// document states about itself and produces validation reports.
package validate

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/sells-group/propfin/internal/extract"
	"github.com/sells-group/propfin/internal/model"
)

// DefaultTolerance is the relative tolerance for numeric reconciliation.
// Source documents round their summary figures, so exact equality is the
// wrong test.
const DefaultTolerance = 0.01

// Validator reconciles extraction results against document-stated totals.
type Validator struct {
	tolerance float64
}

// New builds a Validator. A non-positive tolerance falls back to the
// default 1%.
func New(tolerance float64) *Validator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Validator{tolerance: tolerance}
}

// Validate produces the validation report for one processing attempt.
// Rent rolls reconcile unit counts, area totals, and occupancy; financial
// statements check metric presence. Row errors carried over from
// extraction become discrepancies but only push the status to warning;
// total mismatches beyond tolerance fail the document.
func (v *Validator) Validate(documentID string, res *extract.Result) *model.ValidationReport {
	if res.Kind == model.KindRentRoll {
		return v.validateRentRoll(documentID, res)
	}
	return v.validateStatement(documentID, res)
}

func (v *Validator) validateRentRoll(documentID string, res *extract.Result) *model.ValidationReport {
	included := res.IncludedUnits()

	rep := &model.ValidationReport{
		ID:             uuid.NewString(),
		DocumentID:     documentID,
		ValidationType: model.ValidationRentRoll,
		ActualCount:    len(included),
		MatchStatus:    model.MatchPass,
	}

	occ := occupancy(included)
	rep.Occupancy = &occ
	actualArea := occ.OccupiedArea + occ.VacantArea
	rep.ActualArea = &actualArea

	for _, re := range res.RowErrors {
		rep.Discrepancies = append(rep.Discrepancies, model.Discrepancy{
			Field:  "row",
			Row:    re.Row,
			Detail: re.Detail,
		})
	}

	missingDates := 0
	for _, u := range included {
		if u.OccupancyStatus == model.Occupied && (u.LeaseStart == nil || u.LeaseEnd == nil) {
			missingDates++
		}
	}
	if missingDates > 0 {
		rep.Discrepancies = append(rep.Discrepancies, model.Discrepancy{
			Field:  "lease_dates",
			Actual: float64(missingDates),
			Detail: fmt.Sprintf("%d occupied units missing lease dates", missingDates),
		})
	}

	failed := false

	if res.Stated.LeaseCount != nil {
		rep.ExpectedCount = *res.Stated.LeaseCount
		if *res.Stated.LeaseCount != len(included) {
			failed = true
			rep.Discrepancies = append(rep.Discrepancies, model.Discrepancy{
				Field:    "lease_count",
				Expected: float64(*res.Stated.LeaseCount),
				Actual:   float64(len(included)),
				Detail:   "included unit count does not match document-stated lease count",
			})
		}
	} else {
		rep.ExpectedCount = len(included)
	}

	if res.Stated.TotalArea != nil {
		rep.ExpectedArea = res.Stated.TotalArea
		if !withinTolerance(*res.Stated.TotalArea, actualArea, v.tolerance) {
			failed = true
			rep.Discrepancies = append(rep.Discrepancies, model.Discrepancy{
				Field:    "total_area",
				Expected: *res.Stated.TotalArea,
				Actual:   actualArea,
				Detail:   "summed included area outside tolerance of document-stated total",
			})
		}
	}
	if res.Stated.OccupiedArea != nil && !withinTolerance(*res.Stated.OccupiedArea, occ.OccupiedArea, v.tolerance) {
		failed = true
		rep.Discrepancies = append(rep.Discrepancies, model.Discrepancy{
			Field:    "occupied_area",
			Expected: *res.Stated.OccupiedArea,
			Actual:   occ.OccupiedArea,
			Detail:   "occupied area outside tolerance of document-stated occupied total",
		})
	}
	if res.Stated.VacantArea != nil && !withinTolerance(*res.Stated.VacantArea, occ.VacantArea, v.tolerance) {
		failed = true
		rep.Discrepancies = append(rep.Discrepancies, model.Discrepancy{
			Field:    "vacant_area",
			Expected: *res.Stated.VacantArea,
			Actual:   occ.VacantArea,
			Detail:   "vacant area outside tolerance of document-stated vacant total",
		})
	}

	switch {
	case failed:
		rep.MatchStatus = model.MatchFail
	case len(rep.Discrepancies) > 0:
		rep.MatchStatus = model.MatchWarning
	}
	return rep
}

func (v *Validator) validateStatement(documentID string, res *extract.Result) *model.ValidationReport {
	rep := &model.ValidationReport{
		ID:             uuid.NewString(),
		DocumentID:     documentID,
		ValidationType: model.ValidationStatement,
		ActualCount:    len(res.Metrics),
		ExpectedCount:  len(res.Metrics),
		MatchStatus:    model.MatchPass,
	}

	for _, re := range res.RowErrors {
		rep.Discrepancies = append(rep.Discrepancies, model.Discrepancy{
			Field:  "row",
			Row:    re.Row,
			Detail: re.Detail,
		})
	}

	// Extraction already fails a statement with zero recognized metrics,
	// so an empty metric set here means the caller skipped that check.
	if len(res.Metrics) == 0 {
		rep.MatchStatus = model.MatchFail
		rep.Discrepancies = append(rep.Discrepancies, model.Discrepancy{
			Field:  "metrics",
			Detail: "no recognized metrics extracted",
		})
		return rep
	}

	// NOI should reconcile with revenue minus expense when all three are
	// stated; a mismatch suggests a misread line.
	var revenue, expense, noi *float64
	for i := range res.Metrics {
		m := res.Metrics[i]
		switch m.MetricType {
		case model.MetricRevenue:
			revenue = &m.Value
		case model.MetricExpense:
			expense = &m.Value
		case model.MetricNOI:
			noi = &m.Value
		}
	}
	if revenue != nil && expense != nil && noi != nil {
		derived := *revenue - *expense
		if !withinTolerance(derived, *noi, v.tolerance) {
			rep.MatchStatus = model.MatchWarning
			rep.Discrepancies = append(rep.Discrepancies, model.Discrepancy{
				Field:    "noi",
				Expected: derived,
				Actual:   *noi,
				Detail:   "stated NOI does not reconcile with revenue minus expense",
			})
		}
	}

	if rep.MatchStatus == model.MatchPass && len(rep.Discrepancies) > 0 {
		rep.MatchStatus = model.MatchWarning
	}
	return rep
}

// occupancy summarizes included units. Rate is occupied area over total
// included area, in [0,1].
func occupancy(included []model.ExtractedUnit) model.OccupancySummary {
	var occ model.OccupancySummary
	for _, u := range included {
		if u.OccupancyStatus == model.Vacant {
			occ.VacantUnits++
			occ.VacantArea += u.AreaSqFt
		} else {
			occ.OccupiedUnits++
			occ.OccupiedArea += u.AreaSqFt
		}
	}
	total := occ.OccupiedArea + occ.VacantArea
	if total > 0 {
		occ.Rate = occ.OccupiedArea / total
	}
	return occ
}

// withinTolerance compares actual against expected using relative
// tolerance. Expected zero degenerates to exact comparison.
func withinTolerance(expected, actual, tolerance float64) bool {
	if expected == 0 {
		return actual == 0
	}
	return math.Abs(actual-expected)/math.Abs(expected) <= tolerance
}
