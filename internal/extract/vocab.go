// Package extract detects document kind and extracts typed records from the
// parser's normalized representation.
package extract

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Vocabulary is the recognition word list driving extraction: column-header
// synonyms, non-lease row markers, and the closed statement label sets.
// It ships with defaults and can be overridden from a YAML file so new
// marker spellings don't require a code change.
type Vocabulary struct {
	UnitHeaders       []string `yaml:"unit_headers"`
	TenantHeaders     []string `yaml:"tenant_headers"`
	AreaHeaders       []string `yaml:"area_headers"`
	RentHeaders       []string `yaml:"rent_headers"`
	LeaseStartHeaders []string `yaml:"lease_start_headers"`
	LeaseEndHeaders   []string `yaml:"lease_end_headers"`

	NonLeaseMarkers []string `yaml:"non_lease_markers"`
	VacantMarkers   []string `yaml:"vacant_markers"`
	TotalMarkers    []string `yaml:"total_markers"`

	RevenueLabels []string `yaml:"revenue_labels"`
	ExpenseLabels []string `yaml:"expense_labels"`
	NOILabels     []string `yaml:"noi_labels"`

	BalanceSheetLabels []string `yaml:"balance_sheet_labels"`
	CashFlowLabels     []string `yaml:"cash_flow_labels"`
}

// DefaultVocabulary returns the built-in recognition lists.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		UnitHeaders:       []string{"unit", "unit #", "unit no", "suite", "suite #", "space"},
		TenantHeaders:     []string{"tenant", "tenant name", "lessee", "occupant"},
		AreaHeaders:       []string{"sqft", "sq ft", "sq. ft.", "area", "rentable sf", "rsf", "gla", "square feet"},
		RentHeaders:       []string{"rent", "monthly rent", "base rent", "rent/mo", "monthly base rent"},
		LeaseStartHeaders: []string{"lease start", "start", "lease from", "commencement", "start date"},
		LeaseEndHeaders:   []string{"lease end", "end", "lease to", "expiration", "end date", "expiry"},

		NonLeaseMarkers: []string{"nap", "exp only", "exp. only", "expense only", "non-lease", "not a party"},
		VacantMarkers:   []string{"vacant", "(vacant)", "available"},
		TotalMarkers:    []string{"total", "totals", "grand total", "subtotal"},

		RevenueLabels: []string{"total revenue", "total income", "gross income", "rental income", "revenue", "income"},
		ExpenseLabels: []string{"total operating expenses", "total expenses", "operating expenses", "expenses"},
		NOILabels:     []string{"net operating income", "noi"},

		BalanceSheetLabels: []string{"total assets", "total liabilities", "shareholders equity", "owners equity", "retained earnings"},
		CashFlowLabels:     []string{"operating activities", "investing activities", "financing activities", "net cash"},
	}
}

// LoadVocabulary reads a YAML override file. Fields left empty in the file
// keep their defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	v := DefaultVocabulary()
	if path == "" {
		return v, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: read vocabulary %s", path)
	}

	var override Vocabulary
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, eris.Wrapf(err, "extract: parse vocabulary %s", path)
	}

	merge := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	merge(&v.UnitHeaders, override.UnitHeaders)
	merge(&v.TenantHeaders, override.TenantHeaders)
	merge(&v.AreaHeaders, override.AreaHeaders)
	merge(&v.RentHeaders, override.RentHeaders)
	merge(&v.LeaseStartHeaders, override.LeaseStartHeaders)
	merge(&v.LeaseEndHeaders, override.LeaseEndHeaders)
	merge(&v.NonLeaseMarkers, override.NonLeaseMarkers)
	merge(&v.VacantMarkers, override.VacantMarkers)
	merge(&v.TotalMarkers, override.TotalMarkers)
	merge(&v.RevenueLabels, override.RevenueLabels)
	merge(&v.ExpenseLabels, override.ExpenseLabels)
	merge(&v.NOILabels, override.NOILabels)
	merge(&v.BalanceSheetLabels, override.BalanceSheetLabels)
	merge(&v.CashFlowLabels, override.CashFlowLabels)

	return v, nil
}

// matchesAny reports whether the normalized text contains any of the markers.
func matchesAny(text string, markers []string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	for _, m := range markers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}

// headerMatches reports whether a normalized header cell names the field
// family described by the synonym list.
func headerMatches(cell string, synonyms []string) bool {
	c := strings.ToLower(strings.TrimSpace(cell))
	if c == "" {
		return false
	}
	for _, s := range synonyms {
		if c == s || strings.Contains(c, s) {
			return true
		}
	}
	return false
}
