package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/parser"
)

func gridRentRoll(rows [][]string) *parser.Parsed {
	return &parser.Parsed{
		Format: parser.FormatXLSX,
		Tables: []parser.Table{{Name: "Rent Roll", Rows: rows}},
	}
}

func TestHeaderGrid_BasicExtraction(t *testing.T) {
	p := gridRentRoll([][]string{
		{"Eastern Shore Plaza"},
		{"Rent Roll as of January 1, 2026"},
		{"Unit", "Tenant", "SqFt", "Monthly Rent", "Lease Start", "Lease End"},
		{"101", "Acme Deli LLC", "1,200", "$2,500.00", "01/01/2024", "12/31/2026"},
		{"102", "", "900", "0", "", ""},
	})

	ext := New(nil, 0.2)
	res, err := ext.Extract("doc-1", p)
	require.NoError(t, err)

	assert.Equal(t, model.KindRentRoll, res.Kind)
	assert.Equal(t, "header_grid", res.Strategy)
	require.Len(t, res.Units, 2)

	acme := res.Units[0]
	assert.Equal(t, "101", acme.UnitNumber)
	require.NotNil(t, acme.TenantName)
	assert.Equal(t, "Acme Deli LLC", *acme.TenantName)
	assert.Equal(t, 1200.0, acme.AreaSqFt)
	assert.Equal(t, 2500.0, acme.MonthlyRent)
	assert.Equal(t, model.Occupied, acme.OccupancyStatus)
	assert.True(t, acme.Included)
	require.NotNil(t, acme.LeaseStart)
	assert.Equal(t, 2024, acme.LeaseStart.Year())

	vacant := res.Units[1]
	assert.Equal(t, model.Vacant, vacant.OccupancyStatus)
	assert.Nil(t, vacant.TenantName)
	assert.True(t, vacant.Included) // real space, counted

	assert.Contains(t, res.TitleLines, "Eastern Shore Plaza")
}

func TestHeaderGrid_ColumnOrderIndependent(t *testing.T) {
	p := gridRentRoll([][]string{
		{"Tenant Name", "Base Rent", "Suite", "Rentable SF"},
		{"Acme Deli", "2500", "101", "1200"},
	})

	ext := New(nil, 0.2)
	res, err := ext.Extract("doc-1", p)
	require.NoError(t, err)

	require.Len(t, res.Units, 1)
	assert.Equal(t, "101", res.Units[0].UnitNumber)
	assert.Equal(t, 1200.0, res.Units[0].AreaSqFt)
	assert.Equal(t, 2500.0, res.Units[0].MonthlyRent)
}

func TestExclusion_NonLeaseRowRetainedButExcluded(t *testing.T) {
	p := gridRentRoll([][]string{
		{"Unit", "Tenant", "SqFt", "Rent"},
		{"101", "Acme Deli", "1200", "2500"},
		{"MISC", "NAP-Exp Only", "0", "0"},
	})

	ext := New(nil, 0.2)
	res, err := ext.Extract("doc-1", p)
	require.NoError(t, err)

	require.Len(t, res.Units, 2)
	assert.Len(t, res.IncludedUnits(), 1)

	nap := res.Units[1]
	assert.False(t, nap.Included)
	require.NotNil(t, nap.TenantName)
	assert.Equal(t, "NAP-Exp Only", *nap.TenantName)
}

func TestExclusion_ZeroAreaZeroRentWithoutMarker(t *testing.T) {
	p := gridRentRoll([][]string{
		{"Unit", "Tenant", "SqFt", "Rent"},
		{"STOR", "Storage Allocation", "0", "0"},
	})

	ext := New(nil, 0.2)
	res, err := ext.Extract("doc-1", p)
	require.NoError(t, err)

	require.Len(t, res.Units, 1)
	assert.False(t, res.Units[0].Included)
}

// Thirty-eight rows, one NAP exp-only entry: the extractor must yield 37
// included units and keep the excluded row for audit.
func TestScenarioA_ThirtyEightRowsOneNAP(t *testing.T) {
	rows := [][]string{{"Unit", "Tenant", "SqFt", "Rent"}}
	for i := 1; i <= 37; i++ {
		rows = append(rows, []string{
			fmt.Sprintf("%d", 100+i),
			fmt.Sprintf("Tenant %d", i),
			"1000",
			"2000",
		})
	}
	rows = append(rows, []string{"NAP", "NAP-Exp Only", "0", "0"})
	rows = append(rows, []string{"Total", "", "37 leases", ""})

	ext := New(nil, 0.2)
	res, err := ext.Extract("doc-a", gridRentRoll(rows))
	require.NoError(t, err)

	assert.Len(t, res.Units, 38)
	included := res.IncludedUnits()
	assert.Len(t, included, 37)
	for _, u := range included {
		assert.Equal(t, model.Occupied, u.OccupancyStatus)
	}
	require.NotNil(t, res.Stated.LeaseCount)
	assert.Equal(t, 37, *res.Stated.LeaseCount)
}

func TestHeaderGrid_RowErrorCollected(t *testing.T) {
	p := gridRentRoll([][]string{
		{"Unit", "Tenant", "SqFt", "Rent"},
		{"101", "Acme Deli", "1200", "2500"},
		{"102", "Bad Row", "not-a-number", "2500"},
		{"103", "Fine Row", "800", "1600"},
	})

	ext := New(nil, 0.5)
	res, err := ext.Extract("doc-1", p)
	require.NoError(t, err)

	assert.Len(t, res.Units, 2)
	require.Len(t, res.RowErrors, 1)
	assert.Contains(t, res.RowErrors[0].Detail, "102")
}

func TestFailureRatio_ExceededFailsDocument(t *testing.T) {
	p := gridRentRoll([][]string{
		{"Unit", "Tenant", "SqFt", "Rent"},
		{"101", "Acme", "1200", "2500"},
		{"102", "Bad", "x", "y"},
		{"103", "Bad", "x", "y"},
	})

	ext := New(nil, 0.2)
	_, err := ext.Extract("doc-1", p)

	var tooMany *TooManyRowFailuresError
	require.ErrorAs(t, err, &tooMany)
	assert.Equal(t, 2, tooMany.Failed)
	assert.Equal(t, 3, tooMany.Total)
}

func TestSingleColumn_LegacyExport(t *testing.T) {
	p := &parser.Parsed{
		Format: parser.FormatCSV,
		Tables: []parser.Table{{Name: "csv", Rows: [][]string{
			{"Maple Court Rent Roll"},
			{"101  Acme Deli LLC  1,200  2,500.00  01/01/2024  12/31/2026"},
			{"102  VACANT  900  0"},
			{"Total: 2 leases"},
		}}},
	}

	ext := New(nil, 0.2)
	res, err := ext.Extract("doc-1", p)
	require.NoError(t, err)

	assert.Equal(t, "single_column", res.Strategy)
	require.Len(t, res.Units, 2)
	assert.Equal(t, "101", res.Units[0].UnitNumber)
	require.NotNil(t, res.Units[0].LeaseEnd)
	assert.Equal(t, model.Vacant, res.Units[1].OccupancyStatus)
	require.NotNil(t, res.Stated.LeaseCount)
	assert.Equal(t, 2, *res.Stated.LeaseCount)
}

func TestPagedText_RentRoll(t *testing.T) {
	page := "Eastern Shore Plaza\nRent Roll\n\n" +
		"101  Acme Deli LLC  1,200  2,500.00\n" +
		"102  Harbor Books  950  1,900.00\n" +
		"Occupied: 2,150 sq ft  Vacant: 0 sq ft  Total: 2,150 sq ft\n"
	p := &parser.Parsed{Format: parser.FormatPDF, Pages: []string{page}}

	ext := New(nil, 0.2)
	res, err := ext.Extract("doc-1", p)
	require.NoError(t, err)

	assert.Equal(t, "paged_text", res.Strategy)
	assert.Len(t, res.Units, 2)
	assert.Contains(t, res.TitleLines, "Eastern Shore Plaza")
	require.NotNil(t, res.Stated.TotalArea)
	assert.Equal(t, 2150.0, *res.Stated.TotalArea)
	require.NotNil(t, res.Stated.OccupiedArea)
	assert.Equal(t, 2150.0, *res.Stated.OccupiedArea)
}

func TestUnknownKind(t *testing.T) {
	p := &parser.Parsed{Format: parser.FormatText, Pages: []string{"a shopping list\nmilk\neggs"}}

	ext := New(nil, 0.2)
	_, err := ext.Extract("doc-1", p)

	var unk *UnrecognizedKindError
	require.ErrorAs(t, err, &unk)
}

// Reprocessing identical input must yield an identical extraction set.
func TestExtraction_Deterministic(t *testing.T) {
	p := gridRentRoll([][]string{
		{"Unit", "Tenant", "SqFt", "Rent"},
		{"101", "Acme Deli", "1200", "2500"},
		{"102", "VACANT", "900", "0"},
	})

	ext := New(nil, 0.2)
	first, err := ext.Extract("doc-1", p)
	require.NoError(t, err)
	second, err := ext.Extract("doc-1", p)
	require.NoError(t, err)

	assert.Equal(t, first.Units, second.Units)
	assert.Equal(t, first.Stated, second.Stated)
}
