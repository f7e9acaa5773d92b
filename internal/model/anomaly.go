package model

import "time"

// AnomalyRecord holds the statistics computed for the most recent point of a
// (property, metricType, period) series. Records are rewritten per batch run,
// last-write-wins, never mutated incrementally.
type AnomalyRecord struct {
	PropertyID     string     `json:"property_id"`
	MetricType     MetricType `json:"metric_type"`
	Period         Period     `json:"period"`
	Mean           float64    `json:"mean"`
	StdDev         float64    `json:"stddev"`
	ZScore         float64    `json:"zscore"`
	CUSUMStatistic float64    `json:"cusum_statistic"`
	Flagged        bool       `json:"flagged"`
	ComputedAt     time.Time  `json:"computed_at"`
}

// AnomalyRunSummary is returned by a detection batch run.
type AnomalyRunSummary struct {
	AsOf              time.Time `json:"as_of"`
	PropertiesScanned int       `json:"properties_scanned"`
	SeriesEvaluated   int       `json:"series_evaluated"`
	FlagsRaised       int       `json:"flags_raised"`
	SkippedShort      int       `json:"skipped_insufficient_history"`
	Failed            int       `json:"failed"`
}
