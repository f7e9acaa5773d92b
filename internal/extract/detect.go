package extract

import (
	"strings"

	"github.com/sells-group/propfin/internal/model"
	"github.com/sells-group/propfin/internal/parser"
)

// DetectKind scans the normalized representation for structural signals.
// A rent roll is a header row naming unit, tenant, and area/rent columns;
// statements are recognized by their line-item label families. Documents
// with no recognized structure come back as KindUnknown.
func DetectKind(p *parser.Parsed, vocab *Vocabulary) model.DocumentKind {
	for _, table := range p.Tables {
		if _, cols := findHeaderRow(table, vocab); cols != nil {
			return model.KindRentRoll
		}
	}
	if countRentRollLines(p, vocab) >= 2 {
		return model.KindRentRoll
	}

	text := flattenText(p)
	switch {
	case matchesAny(text, vocab.BalanceSheetLabels):
		return model.KindBalanceSheet
	case matchesAny(text, vocab.CashFlowLabels):
		return model.KindCashFlow
	case matchesAny(text, vocab.RevenueLabels) || matchesAny(text, vocab.ExpenseLabels) || matchesAny(text, vocab.NOILabels):
		return model.KindIncomeStatement
	}

	return model.KindUnknown
}

// flattenText joins all cell and page content for label scanning.
func flattenText(p *parser.Parsed) string {
	var sb strings.Builder
	for _, table := range p.Tables {
		for _, row := range table.Rows {
			sb.WriteString(strings.Join(row, " "))
			sb.WriteString("\n")
		}
	}
	for _, page := range p.Pages {
		sb.WriteString(page)
		sb.WriteString("\n")
	}
	return sb.String()
}

// countRentRollLines counts text lines that parse as rent-roll unit rows,
// used to recognize header-less legacy exports and paginated layouts.
func countRentRollLines(p *parser.Parsed, vocab *Vocabulary) int {
	n := 0
	forEachLine(p, func(line string) {
		if _, ok := parseUnitLine(line, vocab); ok {
			n++
		}
	})
	return n
}

// forEachLine visits every text line of the representation: page lines plus
// single-column table rows (legacy exports land there).
func forEachLine(p *parser.Parsed, fn func(line string)) {
	for _, page := range p.Pages {
		for _, line := range strings.Split(page, "\n") {
			fn(line)
		}
	}
	for _, table := range p.Tables {
		for _, row := range table.Rows {
			if len(row) == 1 {
				fn(row[0])
			}
		}
	}
}
