// Package parser turns raw document bytes into a normalized intermediate
// representation: tabular rows for spreadsheet-like input, page-ordered text
// for paginated documents.
package parser

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Format is the sniffed input format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatText Format = "text"
)

// Table is one sheet worth of raw cell rows. Header detection is left to the
// extractor because rent rolls routinely carry title lines above the header.
type Table struct {
	Name string
	Rows [][]string
}

// Parsed is the normalized intermediate representation handed to extraction.
type Parsed struct {
	Format Format
	Tables []Table
	Pages  []string
}

// Empty reports whether parsing produced no usable content.
func (p *Parsed) Empty() bool {
	for _, t := range p.Tables {
		for _, row := range t.Rows {
			for _, cell := range row {
				if strings.TrimSpace(cell) != "" {
					return false
				}
			}
		}
	}
	for _, page := range p.Pages {
		if strings.TrimSpace(page) != "" {
			return false
		}
	}
	return true
}

// Parser dispatches on format and produces the normalized representation.
type Parser struct {
	pdf TextExtractor
}

// New creates a Parser using the given PDF text extractor.
func New(pdf TextExtractor) *Parser {
	return &Parser{pdf: pdf}
}

// Parse sniffs the format from the declared filename and content and
// dispatches to the matching reader. Unreadable input yields a *ParseError
// (retryable); readable but contentless input yields *EmptyDocumentError.
func (p *Parser) Parse(ctx context.Context, filename string, data []byte) (*Parsed, error) {
	if len(data) == 0 {
		return nil, &EmptyDocumentError{Detail: "zero-byte input"}
	}

	format := sniffFormat(filename, data)
	zap.L().Debug("parsing document",
		zap.String("component", "parser"),
		zap.String("filename", filename),
		zap.String("format", string(format)),
	)

	var (
		parsed *Parsed
		err    error
	)
	switch format {
	case FormatXLSX:
		parsed, err = parseXLSX(data)
	case FormatCSV:
		parsed, err = parseCSV(data)
	case FormatPDF:
		parsed, err = p.parsePDF(ctx, data)
	default:
		parsed, err = parseText(data)
	}
	if err != nil {
		return nil, err
	}

	if parsed.Empty() {
		return nil, &EmptyDocumentError{Detail: "no rows or pages with content"}
	}
	return parsed, nil
}

var (
	magicZIP = []byte{0x50, 0x4b, 0x03, 0x04}
	magicPDF = []byte("%PDF")
)

// sniffFormat prefers the file extension and falls back to magic bytes.
func sniffFormat(filename string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".csv":
		return FormatCSV
	case ".pdf":
		return FormatPDF
	case ".txt":
		return FormatText
	}

	if bytes.HasPrefix(data, magicZIP) {
		return FormatXLSX
	}
	if bytes.HasPrefix(data, magicPDF) {
		return FormatPDF
	}
	if looksDelimited(data) {
		return FormatCSV
	}
	return FormatText
}

// looksDelimited checks the first few lines for a consistent comma count.
func looksDelimited(data []byte) bool {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	lines := strings.Split(string(sample), "\n")
	counted := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Count(line, ",") == 0 {
			return false
		}
		counted++
		if counted >= 3 {
			break
		}
	}
	return counted > 0
}
