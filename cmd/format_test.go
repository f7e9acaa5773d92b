package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/propfin/internal/model"
)

func TestFormatDocuments(t *testing.T) {
	prop := "prop-1"
	docs := []model.Document{
		{
			ID:                 "doc-1",
			OriginalFilename:   "plaza_rent_roll.xlsx",
			DetectedKind:       model.KindRentRoll,
			ProcessingStatus:   model.StatusValidated,
			ResolvedPropertyID: &prop,
		},
		{
			ID:               "doc-2",
			OriginalFilename: "mystery.pdf",
			ProcessingStatus: model.StatusFailed,
		},
	}

	var buf bytes.Buffer
	formatDocuments(&buf, docs)
	out := buf.String()

	assert.Contains(t, out, "plaza_rent_roll.xlsx")
	assert.Contains(t, out, "prop-1")
	assert.Contains(t, out, "failed")
	// Unresolved documents render a placeholder, not an empty cell.
	assert.Contains(t, out, "-")
}

func TestFormatPending(t *testing.T) {
	aliasID := "alias-1"
	conf := 0.78
	pending := []model.PendingResolution{
		{
			DocumentID:    "doc-1",
			Filename:      "eastrn_shor.csv",
			CandidateText: "EASTRN SHOR PLAZA",
			Reason:        "low_confidence",
			AliasID:       &aliasID,
			Confidence:    &conf,
		},
		{
			DocumentID:    "doc-2",
			Filename:      "unknown.csv",
			CandidateText: "SOMEWHERE ELSE",
			Reason:        "no_match",
		},
	}

	var buf bytes.Buffer
	formatPending(&buf, pending)
	out := buf.String()

	assert.Contains(t, out, "alias-1")
	assert.Contains(t, out, "0.78")
	assert.Contains(t, out, "no_match")
}

func TestFormatAnomalies(t *testing.T) {
	records := []model.AnomalyRecord{
		{
			PropertyID:     "prop-1",
			MetricType:     model.MetricNOI,
			Period:         model.Period{Year: 2024, Month: 8, Type: model.PeriodMonthly},
			Mean:           50000,
			ZScore:         3.41,
			CUSUMStatistic: 6.2,
			Flagged:        true,
			ComputedAt:     time.Now(),
		},
	}

	var buf bytes.Buffer
	formatAnomalies(&buf, records)
	out := buf.String()

	assert.Contains(t, out, "2024-08")
	assert.Contains(t, out, "3.41")
	assert.Contains(t, out, "true")
}

func TestFormatProperties(t *testing.T) {
	props := []model.Property{
		{ID: "prop-1", Name: "Eastern Shore Plaza", PropertyClass: model.ClassStabilized},
	}
	aliases := map[string][]model.PropertyAlias{
		"prop-1": {
			{ID: "a1", PropertyID: "prop-1", Approved: true},
			{ID: "a2", PropertyID: "prop-1", Approved: false},
		},
	}

	var buf bytes.Buffer
	formatProperties(&buf, props, aliases)
	out := buf.String()

	assert.Contains(t, out, "Eastern Shore Plaza")
	assert.Contains(t, out, "1 approved, 1 pending")
}
