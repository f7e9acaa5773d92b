package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/parser"
)

var (
	quarterRe = regexp.MustCompile(`(?i)\bQ([1-4])[\s,-]*((?:19|20)\d{2})`)
	monthRe   = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\w*\.?,?\s+(?:\d{1,2},?\s+)?((?:19|20)\d{2})`)
	yearRe    = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
)

var monthNumbers = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5, "june": 6,
	"july": 7, "august": 8, "september": 9, "october": 10, "november": 11, "december": 12,
}

// detectPeriod finds the statement's reporting period from its text.
// Monthly beats quarterly beats annual because the more specific header
// always also contains a year.
func detectPeriod(text string) (model.Period, bool) {
	if m := monthRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[2])
		return model.Period{Year: year, Month: monthNumbers[strings.ToLower(m[1])], Type: model.PeriodMonthly}, true
	}
	if m := quarterRe.FindStringSubmatch(text); m != nil {
		q, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		return model.Period{Year: year, Month: q * 3, Type: model.PeriodQuarterly}, true
	}
	if m := yearRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		return model.Period{Year: year, Type: model.PeriodAnnual}, true
	}
	return model.Period{}, false
}

// lineItem is one "label ... value" row of a statement.
type lineItem struct {
	label string
	value float64
}

// statementLines flattens the representation into label/value line items.
// A line item is any row or text line whose trailing cell parses as a number
// and whose leading text does not.
func statementLines(p *parser.Parsed) []lineItem {
	var items []lineItem

	addRow := func(cells []string) {
		var labelParts []string
		var value *float64
		for _, cell := range cells {
			c := strings.TrimSpace(cell)
			if c == "" {
				continue
			}
			if v, err := parseNumber(c); err == nil && looksNumeric(c) {
				if value == nil {
					// First numeric cell is the current-period column.
					value = &v
				}
				continue
			}
			if value == nil {
				labelParts = append(labelParts, c)
			}
		}
		if value != nil && len(labelParts) > 0 {
			items = append(items, lineItem{label: strings.Join(labelParts, " "), value: *value})
		}
	}

	for _, table := range p.Tables {
		for _, row := range table.Rows {
			addRow(row)
		}
	}
	for _, page := range p.Pages {
		for _, line := range strings.Split(page, "\n") {
			addRow(splitColumns(line))
		}
	}

	return items
}

// looksNumeric guards parseNumber's leniency: bare dashes and empty strings
// parse as zero but are not statement values.
func looksNumeric(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}

// extractStatement scans line items for the closed label sets and emits one
// metric per recognized type. Unrecognized line items are ignored, never
// guessed. Zero recognized metrics is a failure condition.
func extractStatement(docID string, kind model.DocumentKind, p *parser.Parsed, vocab *Vocabulary) (*Result, error) {
	res := &Result{Kind: kind, Strategy: "statement"}

	text := flattenText(p)
	period, ok := detectPeriod(text)
	if !ok {
		return nil, &NoMetricsError{Kind: string(kind)}
	}

	// Title lines: leading non-numeric lines carry the property name.
	res.TitleLines = titleLines(p)

	items := statementLines(p)
	byType := map[model.MetricType]*float64{}

	pick := func(mt model.MetricType, labels []string) {
		// Labels are ordered most authoritative first ("total revenue"
		// before "revenue"); the first label with any matching line wins.
		for _, label := range labels {
			for _, item := range items {
				if strings.Contains(strings.ToLower(item.label), label) {
					v := item.value
					byType[mt] = &v
					return
				}
			}
		}
	}

	pick(model.MetricRevenue, vocab.RevenueLabels)
	pick(model.MetricExpense, vocab.ExpenseLabels)
	pick(model.MetricNOI, vocab.NOILabels)

	// NOI is derivable when stated revenue and expenses are present.
	if byType[model.MetricNOI] == nil && byType[model.MetricRevenue] != nil && byType[model.MetricExpense] != nil {
		noi := *byType[model.MetricRevenue] - *byType[model.MetricExpense]
		byType[model.MetricNOI] = &noi
	}

	for _, mt := range []model.MetricType{model.MetricRevenue, model.MetricExpense, model.MetricNOI} {
		if v := byType[mt]; v != nil {
			res.Metrics = append(res.Metrics, model.ExtractedMetric{
				DocumentID: docID,
				Period:     period,
				MetricType: mt,
				Value:      *v,
			})
		}
	}

	if len(res.Metrics) == 0 {
		return nil, &NoMetricsError{Kind: string(kind)}
	}
	return res, nil
}

// titleLines returns the first few non-numeric lines of the document.
func titleLines(p *parser.Parsed) []string {
	var lines []string
	take := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || len(lines) >= 5 {
			return
		}
		if _, err := parseNumber(s); err == nil && looksNumeric(s) {
			return
		}
		lines = append(lines, s)
	}

	for _, table := range p.Tables {
		for i, row := range table.Rows {
			if i >= 5 {
				break
			}
			take(soleCell(row))
		}
		break
	}
	if len(p.Pages) > 0 {
		for i, line := range strings.Split(p.Pages[0], "\n") {
			if i >= 5 {
				break
			}
			take(line)
		}
	}
	return lines
}
