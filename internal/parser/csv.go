package parser

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
)

// parseCSV reads a delimited export into a single table. Variable field
// counts are tolerated because legacy exports pad unevenly.
func parseCSV(data []byte) (*Parsed, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	table := Table{Name: "csv"}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Detail: "read csv row", Err: err}
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		table.Rows = append(table.Rows, record)
	}

	return &Parsed{Format: FormatCSV, Tables: []Table{table}}, nil
}
