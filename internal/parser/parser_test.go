package parser

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func buildWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().Value = v
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParse_XLSX(t *testing.T) {
	data := buildWorkbook(t, [][]string{
		{"Unit", "Tenant", "SqFt"},
		{"101", "Acme Deli", "1200"},
	})

	p := New(nil)
	parsed, err := p.Parse(context.Background(), "rentroll.xlsx", data)
	require.NoError(t, err)

	assert.Equal(t, FormatXLSX, parsed.Format)
	require.Len(t, parsed.Tables, 1)
	require.Len(t, parsed.Tables[0].Rows, 2)
	assert.Equal(t, []string{"101", "Acme Deli", "1200"}, parsed.Tables[0].Rows[1])
}

func TestParse_XLSXByMagicBytes(t *testing.T) {
	data := buildWorkbook(t, [][]string{{"Unit", "Tenant"}})

	p := New(nil)
	parsed, err := p.Parse(context.Background(), "upload-without-extension", data)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, parsed.Format)
}

func TestParse_CSV(t *testing.T) {
	data := []byte("Unit,Tenant,SqFt\n101, Acme Deli ,1200\n102,,900\n")

	p := New(nil)
	parsed, err := p.Parse(context.Background(), "export.csv", data)
	require.NoError(t, err)

	require.Len(t, parsed.Tables, 1)
	rows := parsed.Tables[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, "Acme Deli", rows[1][1]) // fields trimmed
}

func TestParse_TextPages(t *testing.T) {
	data := []byte("Page one content\fPage two content\f\f")

	p := New(nil)
	parsed, err := p.Parse(context.Background(), "statement.txt", data)
	require.NoError(t, err)

	assert.Equal(t, FormatText, parsed.Format)
	assert.Equal(t, []string{"Page one content", "Page two content"}, parsed.Pages)
}

func TestParse_EmptyBytes(t *testing.T) {
	p := New(nil)
	_, err := p.Parse(context.Background(), "doc.csv", nil)

	var empty *EmptyDocumentError
	require.ErrorAs(t, err, &empty)
}

func TestParse_BlankContent(t *testing.T) {
	p := New(nil)
	_, err := p.Parse(context.Background(), "doc.txt", []byte("   \n\f  \n"))

	var empty *EmptyDocumentError
	require.ErrorAs(t, err, &empty)
}

func TestParse_CorruptXLSX(t *testing.T) {
	p := New(nil)
	_, err := p.Parse(context.Background(), "doc.xlsx", []byte("PK\x03\x04 not a real workbook"))

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) ExtractText(_ context.Context, _ string) (string, error) {
	return s.text, s.err
}

func TestParse_PDFUsesExtractor(t *testing.T) {
	p := New(&stubExtractor{text: "RENT ROLL\fTotals: 37"})
	parsed, err := p.Parse(context.Background(), "scan.pdf", []byte("%PDF-1.7 payload"))
	require.NoError(t, err)

	assert.Equal(t, FormatPDF, parsed.Format)
	assert.Len(t, parsed.Pages, 2)
}

func TestParse_PDFExtractorFailureIsParseError(t *testing.T) {
	p := New(&stubExtractor{err: errors.New("binary not found")})
	_, err := p.Parse(context.Background(), "scan.pdf", []byte("%PDF-1.7 payload"))

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestSniffFormat_Fallbacks(t *testing.T) {
	assert.Equal(t, FormatCSV, sniffFormat("blob", []byte("a,b,c\nd,e,f\ng,h,i\n")))
	assert.Equal(t, FormatPDF, sniffFormat("blob", []byte("%PDF-1.4")))
	assert.Equal(t, FormatText, sniffFormat("blob", []byte("just words\nno commas here\n")))
}
