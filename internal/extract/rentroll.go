package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/parser"
)

// columnMap maps field families to column indexes in a header-driven layout.
type columnMap struct {
	unit, tenant, area, rent, start, end int
}

// findHeaderRow scans the first rows of a table for the rent-roll header.
// A header row must name a unit column plus at least two of tenant, area,
// and rent. Returns the header row index and the column mapping, or -1/nil.
func findHeaderRow(table parser.Table, vocab *Vocabulary) (int, *columnMap) {
	limit := len(table.Rows)
	if limit > 10 {
		limit = 10
	}

	for i := 0; i < limit; i++ {
		cols := columnMap{unit: -1, tenant: -1, area: -1, rent: -1, start: -1, end: -1}
		for j, cell := range table.Rows[i] {
			switch {
			case cols.unit < 0 && headerMatches(cell, vocab.UnitHeaders):
				cols.unit = j
			case cols.tenant < 0 && headerMatches(cell, vocab.TenantHeaders):
				cols.tenant = j
			case cols.area < 0 && headerMatches(cell, vocab.AreaHeaders):
				cols.area = j
			case cols.start < 0 && headerMatches(cell, vocab.LeaseStartHeaders):
				cols.start = j
			case cols.end < 0 && headerMatches(cell, vocab.LeaseEndHeaders):
				cols.end = j
			case cols.rent < 0 && headerMatches(cell, vocab.RentHeaders):
				cols.rent = j
			}
		}

		found := 0
		for _, idx := range []int{cols.tenant, cols.area, cols.rent} {
			if idx >= 0 {
				found++
			}
		}
		if cols.unit >= 0 && found >= 2 {
			return i, &cols
		}
	}
	return -1, nil
}

// headerGridStrategy handles spreadsheet layouts with a recognizable header
// row. Field mapping is header-driven, not positional, because layouts vary.
type headerGridStrategy struct{}

func (s *headerGridStrategy) Name() string { return "header_grid" }

func (s *headerGridStrategy) Detect(p *parser.Parsed, vocab *Vocabulary) bool {
	for _, table := range p.Tables {
		if _, cols := findHeaderRow(table, vocab); cols != nil {
			return true
		}
	}
	return false
}

func (s *headerGridStrategy) Extract(docID string, p *parser.Parsed, vocab *Vocabulary) (*Result, error) {
	res := &Result{Kind: model.KindRentRoll, Strategy: s.Name()}

	for _, table := range p.Tables {
		headerIdx, cols := findHeaderRow(table, vocab)
		if cols == nil {
			continue
		}

		// Rows above the header are title lines: property name, as-of date.
		for i := 0; i < headerIdx; i++ {
			if line := soleCell(table.Rows[i]); line != "" {
				res.TitleLines = append(res.TitleLines, line)
			}
		}

		for i := headerIdx + 1; i < len(table.Rows); i++ {
			row := table.Rows[i]
			if blankRow(row) {
				continue
			}
			if matchesAny(firstCell(row), vocab.TotalMarkers) {
				scanStated(strings.Join(row, " "), &res.Stated)
				continue
			}

			unit, rowErr := parseGridRow(docID, row, cols, vocab)
			if rowErr != nil {
				res.RowErrors = append(res.RowErrors, RowError{Row: i + 1, Detail: rowErr.Error()})
				continue
			}
			res.Units = append(res.Units, unit)
		}
		break // one rent roll per document
	}

	return res, nil
}

// parseGridRow extracts one unit from a header-mapped row.
func parseGridRow(docID string, row []string, cols *columnMap, vocab *Vocabulary) (model.ExtractedUnit, error) {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	unitNumber := cell(cols.unit)
	if unitNumber == "" {
		return model.ExtractedUnit{}, fmt.Errorf("missing unit number")
	}

	area, err := parseNumber(cell(cols.area))
	if err != nil {
		return model.ExtractedUnit{}, fmt.Errorf("unit %s: bad area: %v", unitNumber, err)
	}
	rent, err := parseNumber(cell(cols.rent))
	if err != nil {
		return model.ExtractedUnit{}, fmt.Errorf("unit %s: bad rent: %v", unitNumber, err)
	}

	// Unparsable dates degrade to nil rather than failing the row; the
	// validator reports missing dates as a completeness warning.
	start, err := parseDate(cell(cols.start))
	if err != nil {
		start = nil
	}
	end, err := parseDate(cell(cols.end))
	if err != nil {
		end = nil
	}

	return buildUnit(docID, unitNumber, cell(cols.tenant), area, rent, start, end, vocab), nil
}

// buildUnit applies occupancy and exclusion rules shared by all strategies.
// A row is excluded from occupancy/area math when both area and rent are
// zero, or the tenant text matches a known non-lease marker; it is retained
// for audit either way.
func buildUnit(docID, unitNumber, tenant string, area, rent float64, start, end *time.Time, vocab *Vocabulary) model.ExtractedUnit {
	u := model.ExtractedUnit{
		DocumentID:  docID,
		UnitNumber:  unitNumber,
		AreaSqFt:    area,
		MonthlyRent: rent,
		LeaseStart:  start,
		LeaseEnd:    end,
		Included:    true,
	}

	if tenant == "" || matchesAny(tenant, vocab.VacantMarkers) {
		u.OccupancyStatus = model.Vacant
	} else {
		u.OccupancyStatus = model.Occupied
		t := tenant
		u.TenantName = &t
	}

	if (area == 0 && rent == 0) || matchesAny(tenant, vocab.NonLeaseMarkers) {
		u.Included = false
		if tenant != "" {
			t := tenant
			u.TenantName = &t
		}
	}

	return u
}

var unitNumberRe = regexp.MustCompile(`^[A-Za-z]{0,3}-?\d+[A-Za-z0-9\-./]*$`)

// unitLine is one parsed legacy/text rent-roll line.
type unitLine struct {
	unit   string
	tenant string
	area   float64
	rent   float64
	start  *time.Time
	end    *time.Time
}

// parseUnitLine pattern-matches a single text line of the form
//
//	101   Acme Deli LLC    1,200   2,500.00   01/01/2024   12/31/2026
//
// with columns separated by two or more spaces and optional lease dates.
func parseUnitLine(line string, vocab *Vocabulary) (*unitLine, bool) {
	fields := splitColumns(line)
	if len(fields) < 4 {
		return nil, false
	}
	if !unitNumberRe.MatchString(fields[0]) {
		return nil, false
	}
	if matchesAny(fields[0], vocab.TotalMarkers) {
		return nil, false
	}

	// Tenant names may themselves contain wide gaps; locate the first pair of
	// adjacent numeric fields and treat them as area and rent.
	numAt := -1
	for i := 2; i < len(fields)-1; i++ {
		if _, err1 := parseNumber(fields[i]); err1 != nil {
			continue
		}
		if _, err2 := parseNumber(fields[i+1]); err2 == nil {
			numAt = i
			break
		}
	}
	if numAt < 0 {
		return nil, false
	}

	area, _ := parseNumber(fields[numAt])
	rent, _ := parseNumber(fields[numAt+1])

	ul := &unitLine{
		unit:   fields[0],
		tenant: strings.Join(fields[1:numAt], " "),
		area:   area,
		rent:   rent,
	}

	rest := fields[numAt+2:]
	if len(rest) >= 2 {
		if start, err := parseDate(rest[0]); err == nil {
			ul.start = start
		}
		if end, err := parseDate(rest[1]); err == nil {
			ul.end = end
		}
	}

	return ul, true
}

// singleColumnStrategy handles legacy exports where every unit collapses
// into one delimited text column.
type singleColumnStrategy struct{}

func (s *singleColumnStrategy) Name() string { return "single_column" }

func (s *singleColumnStrategy) Detect(p *parser.Parsed, vocab *Vocabulary) bool {
	n := 0
	for _, table := range p.Tables {
		for _, row := range table.Rows {
			if len(row) != 1 {
				continue
			}
			if _, ok := parseUnitLine(row[0], vocab); ok {
				n++
			}
		}
	}
	return n >= 2
}

func (s *singleColumnStrategy) Extract(docID string, p *parser.Parsed, vocab *Vocabulary) (*Result, error) {
	res := &Result{Kind: model.KindRentRoll, Strategy: s.Name()}

	for _, table := range p.Tables {
		for i, row := range table.Rows {
			if len(row) != 1 || strings.TrimSpace(row[0]) == "" {
				continue
			}
			line := row[0]
			if scanStated(line, &res.Stated) {
				continue
			}
			ul, ok := parseUnitLine(line, vocab)
			if !ok {
				if i < 3 {
					res.TitleLines = append(res.TitleLines, strings.TrimSpace(line))
					continue
				}
				if looksLikeHeader(line, vocab) {
					continue
				}
				res.RowErrors = append(res.RowErrors, RowError{Row: i + 1, Detail: fmt.Sprintf("unparsable line %q", strings.TrimSpace(line))})
				continue
			}
			res.Units = append(res.Units, buildUnit(docID, ul.unit, ul.tenant, ul.area, ul.rent, ul.start, ul.end, vocab))
		}
	}

	return res, nil
}

// pagedTextStrategy handles paginated documents (pdftotext output) whose
// table structure survives only as aligned text columns.
type pagedTextStrategy struct{}

func (s *pagedTextStrategy) Name() string { return "paged_text" }

func (s *pagedTextStrategy) Detect(p *parser.Parsed, vocab *Vocabulary) bool {
	n := 0
	for _, page := range p.Pages {
		for _, line := range strings.Split(page, "\n") {
			if _, ok := parseUnitLine(line, vocab); ok {
				n++
			}
		}
	}
	return n >= 2
}

func (s *pagedTextStrategy) Extract(docID string, p *parser.Parsed, vocab *Vocabulary) (*Result, error) {
	res := &Result{Kind: model.KindRentRoll, Strategy: s.Name()}

	for pageNo, page := range p.Pages {
		lines := strings.Split(page, "\n")
		for i, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if scanStated(line, &res.Stated) {
				continue
			}
			ul, ok := parseUnitLine(line, vocab)
			if !ok {
				if pageNo == 0 && i < 5 {
					res.TitleLines = append(res.TitleLines, strings.TrimSpace(line))
				}
				continue
			}
			res.Units = append(res.Units, buildUnit(docID, ul.unit, ul.tenant, ul.area, ul.rent, ul.start, ul.end, vocab))
		}
	}

	return res, nil
}

// looksLikeHeader reports whether a text line is a column header rather
// than data, so legacy exports don't count their own header as a failure.
func looksLikeHeader(line string, vocab *Vocabulary) bool {
	matched := 0
	for _, f := range splitColumns(line) {
		if headerMatches(f, vocab.UnitHeaders) || headerMatches(f, vocab.TenantHeaders) ||
			headerMatches(f, vocab.AreaHeaders) || headerMatches(f, vocab.RentHeaders) {
			matched++
		}
	}
	return matched >= 2
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func firstCell(row []string) string {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

// soleCell returns the row's single non-empty cell, or "" if the row has
// zero or several.
func soleCell(row []string) string {
	found := ""
	for _, c := range row {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if found != "" {
			return ""
		}
		found = c
	}
	return found
}
