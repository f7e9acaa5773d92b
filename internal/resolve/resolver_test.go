package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/propfin/internal/config"
	"github.com/sells-group/propfin/internal/model"
)

func testRegistry() Registry {
	return Registry{
		Properties: []model.Property{
			{ID: "prop-1", Name: "Eastern Shore Plaza"},
			{ID: "prop-2", Name: "Harborview Business Center"},
		},
		Aliases: []model.PropertyAlias{
			{ID: "alias-1", PropertyID: "prop-1", AliasText: "ESP", Approved: true},
		},
	}
}

func TestResolveExactAliasMatch(t *testing.T) {
	r := New(config.ResolveConfig{})
	d := r.Resolve([]string{"ESP"}, testRegistry(), "doc-1")

	assert.Equal(t, BandAuto, d.Band)
	assert.Equal(t, "prop-1", d.PropertyID)
	assert.Equal(t, 1.0, d.Confidence)
	assert.True(t, d.ViaAlias)
	assert.Nil(t, d.NewAlias, "matching an existing alias must not propose a new one")
}

func TestResolveMisspellingLandsInReviewBand(t *testing.T) {
	r := New(config.ResolveConfig{})
	d := r.Resolve([]string{"Eastrn Shor Plaza"}, testRegistry(), "doc-2")

	assert.Equal(t, BandReview, d.Band)
	assert.Equal(t, "prop-1", d.PropertyID)
	assert.Greater(t, d.Confidence, 0.60)
	assert.Less(t, d.Confidence, 0.90)

	require.NotNil(t, d.NewAlias)
	assert.False(t, d.NewAlias.Approved, "review-band aliases wait for approval")
	assert.Equal(t, "prop-1", d.NewAlias.PropertyID)
	assert.Equal(t, "EASTRN SHOR PLAZA", d.NewAlias.AliasText)
	assert.Equal(t, "doc-2", d.NewAlias.SourceDocumentID)
}

func TestResolveNoMatch(t *testing.T) {
	r := New(config.ResolveConfig{})
	d := r.Resolve([]string{"Totally Unrelated Warehouse"}, testRegistry(), "doc-3")

	assert.Equal(t, BandNone, d.Band)
	assert.Empty(t, d.PropertyID)
	assert.Nil(t, d.NewAlias)
}

func TestResolveExactCanonicalNameAutoResolvesWithoutAlias(t *testing.T) {
	r := New(config.ResolveConfig{})
	d := r.Resolve([]string{"Eastern Shore Plaza"}, testRegistry(), "doc-4")

	assert.Equal(t, BandAuto, d.Band)
	assert.Equal(t, "prop-1", d.PropertyID)
	assert.Nil(t, d.NewAlias, "canonical name itself is not an alias")
}

func TestResolveIgnoresUnapprovedAliases(t *testing.T) {
	reg := testRegistry()
	reg.Aliases = append(reg.Aliases, model.PropertyAlias{
		ID: "alias-2", PropertyID: "prop-2", AliasText: "HBC", Approved: false,
	})

	r := New(config.ResolveConfig{})
	d := r.Resolve([]string{"HBC"}, reg, "doc-5")

	assert.Equal(t, BandNone, d.Band)
}

func TestResolveDeterministic(t *testing.T) {
	r := New(config.ResolveConfig{})
	cands := []string{"Eastrn Shor Plaza", "Harborview Busines Center"}
	first := r.Resolve(cands, testRegistry(), "doc-6")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Resolve(cands, testRegistry(), "doc-6"))
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Eastern Shore Plaza, LLC": "EASTERN SHORE PLAZA",
		"Harborview  Inc.":         "HARBORVIEW",
		"Café Río Partners L.P.":   "CAFE RIO PARTNERS",
		"Smith & Jones Center":     "SMITH AND JONES CENTER",
		"  spaced   out  ":         "SPACED OUT",
		"":                         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("EASTERN SHORE PLAZA", "EASTERN SHORE PLAZA"))
	assert.Equal(t, 0.0, Similarity("", "EASTERN SHORE PLAZA"))

	typo := Similarity("EASTRN SHOR PLAZA", "EASTERN SHORE PLAZA")
	unrelated := Similarity("RIVERBEND LOGISTICS PARK", "EASTERN SHORE PLAZA")
	assert.Greater(t, typo, unrelated)
	assert.Greater(t, typo, 0.60)
	assert.Less(t, unrelated, 0.40)
}

func TestCandidatesFromFilenameAndTitles(t *testing.T) {
	got := Candidates(
		"eastern_shore_plaza_rent_roll_2024-06.xlsx",
		[]string{"Eastern Shore Plaza", "Rent Roll as of June 2024"},
	)
	require.NotEmpty(t, got)
	assert.Equal(t, "EASTERN SHORE PLAZA", got[0])
	// Title line repeats the filename-derived candidate; dedup keeps one.
	assert.Len(t, got, 1)
}

func TestCandidatesDropPureNoise(t *testing.T) {
	got := Candidates("rent_roll_2024.pdf", []string{"Rent Roll", "As of 12/31/2024"})
	assert.Empty(t, got)
}
