package parser

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// TextExtractor extracts layout-preserved text from a PDF file on disk.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// PdfToText extracts text using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText runs pdftotext -layout on the given PDF and returns stdout.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "parser: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return stdout.String(), nil
}

// parsePDF writes the bytes to a temp file, extracts layout text, and splits
// it into pages on form feeds.
func (p *Parser) parsePDF(ctx context.Context, data []byte) (*Parsed, error) {
	if p.pdf == nil {
		return nil, &ParseError{Detail: "no pdf text extractor configured"}
	}

	tmp, err := os.CreateTemp("", "propfin-*.pdf")
	if err != nil {
		return nil, &ParseError{Detail: "create temp pdf", Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, &ParseError{Detail: "write temp pdf", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &ParseError{Detail: "close temp pdf", Err: err}
	}

	text, err := p.pdf.ExtractText(ctx, tmpPath)
	if err != nil {
		return nil, &ParseError{Detail: "extract pdf text " + filepath.Base(tmpPath), Err: err}
	}

	return &Parsed{Format: FormatPDF, Pages: splitPages(text)}, nil
}

// parseText treats plain text as a paginated document.
func parseText(data []byte) (*Parsed, error) {
	return &Parsed{Format: FormatText, Pages: splitPages(string(data))}, nil
}

// splitPages breaks text on form feeds, dropping blank pages.
func splitPages(text string) []string {
	var pages []string
	for _, page := range strings.Split(text, "\f") {
		if strings.TrimSpace(page) == "" {
			continue
		}
		pages = append(pages, page)
	}
	return pages
}
