package parser

import (
	"github.com/tealeg/xlsx/v2"
)

// parseXLSX reads every sheet of a workbook into raw string rows.
func parseXLSX(data []byte) (*Parsed, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, &ParseError{Detail: "open xlsx", Err: err}
	}

	parsed := &Parsed{Format: FormatXLSX}
	for _, sheet := range f.Sheets {
		table := Table{Name: sheet.Name}
		for _, row := range sheet.Rows {
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = cell.String()
			}
			table.Rows = append(table.Rows, cells)
		}
		parsed.Tables = append(parsed.Tables, table)
	}
	return parsed, nil
}
