package model

import "time"

// ValidationType distinguishes which reconciliation ruleset produced a report.
type ValidationType string

const (
	ValidationRentRoll  ValidationType = "rent_roll"
	ValidationStatement ValidationType = "financial_statement"
)

// MatchStatus is the outcome of reconciling extracted records against the
// totals the source document states about itself.
type MatchStatus string

const (
	MatchPass    MatchStatus = "pass"
	MatchWarning MatchStatus = "warning"
	MatchFail    MatchStatus = "fail"
)

// UsableForAggregates reports whether data behind this status may feed
// property-level rollups and anomaly detection.
func (s MatchStatus) UsableForAggregates() bool {
	return s == MatchPass || s == MatchWarning
}

// Discrepancy records a single reconciliation or extraction problem.
type Discrepancy struct {
	Field    string  `json:"field"`
	Expected float64 `json:"expected,omitempty"`
	Actual   float64 `json:"actual,omitempty"`
	Row      int     `json:"row,omitempty"`
	Detail   string  `json:"detail"`
}

// OccupancySummary is derived from included rent-roll units at validation time.
type OccupancySummary struct {
	OccupiedUnits int     `json:"occupied_units"`
	VacantUnits   int     `json:"vacant_units"`
	OccupiedArea  float64 `json:"occupied_area"`
	VacantArea    float64 `json:"vacant_area"`
	Rate          float64 `json:"rate"` // occupied area / total included area, in [0,1]
}

// ValidationReport is the self-validation result for one processing attempt.
// Reports are append-only history per document.
type ValidationReport struct {
	ID             string            `json:"id"`
	DocumentID     string            `json:"document_id"`
	ValidationType ValidationType    `json:"validation_type"`
	ExpectedCount  int               `json:"expected_count"`
	ActualCount    int               `json:"actual_count"`
	ExpectedArea   *float64          `json:"expected_area,omitempty"`
	ActualArea     *float64          `json:"actual_area,omitempty"`
	MatchStatus    MatchStatus       `json:"match_status"`
	Discrepancies  []Discrepancy     `json:"discrepancies,omitempty"`
	Occupancy      *OccupancySummary `json:"occupancy,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
