package model

import "time"

// OccupancyStatus marks whether a rent-roll unit is occupied or vacant.
type OccupancyStatus string

const (
	Occupied OccupancyStatus = "occupied"
	Vacant   OccupancyStatus = "vacant"
)

// ExtractedUnit is one lease-unit row extracted from a rent-roll document.
// Units are written once per document version and never edited; reprocessing
// supersedes the whole set atomically.
type ExtractedUnit struct {
	DocumentID      string          `json:"document_id"`
	UnitNumber      string          `json:"unit_number"`
	TenantName      *string         `json:"tenant_name,omitempty"`
	AreaSqFt        float64         `json:"area_sqft"`
	MonthlyRent     float64         `json:"monthly_rent"`
	LeaseStart      *time.Time      `json:"lease_start,omitempty"`
	LeaseEnd        *time.Time      `json:"lease_end,omitempty"`
	OccupancyStatus OccupancyStatus `json:"occupancy_status"`
	// Included is false for rows excluded from occupancy and area math,
	// e.g. expense-allocation-only entries with zero area and zero rent.
	// Excluded rows are retained for audit.
	Included bool `json:"included"`
}

// MetricType identifies a financial statement metric.
type MetricType string

const (
	MetricRevenue MetricType = "revenue"
	MetricExpense MetricType = "expense"
	MetricNOI     MetricType = "noi"
)

// PeriodType is the granularity of a statement period.
type PeriodType string

const (
	PeriodAnnual    PeriodType = "annual"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodMonthly   PeriodType = "monthly"
)

// Period identifies the reporting period a metric belongs to. Month is zero
// for annual periods; for quarterly periods it holds the quarter-ending month.
type Period struct {
	Year  int        `json:"year"`
	Month int        `json:"month,omitempty"`
	Type  PeriodType `json:"type"`
}

// ExtractedMetric is one (metricType, period) value extracted from a
// financial statement document.
type ExtractedMetric struct {
	DocumentID string     `json:"document_id"`
	PropertyID string     `json:"property_id"`
	Period     Period     `json:"period"`
	MetricType MetricType `json:"metric_type"`
	Value      float64    `json:"value"`
}
