// Package tabular encodes and decodes the spreadsheet containers accepted by
// the student import and produced by exports.
package tabular

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format names a spreadsheet container.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

const (
	MIMEXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MIMECSV  = "text/csv"
	MIMEPDF  = "application/pdf"
)

var (
	// ErrUnsupportedFormat signals a container the decoder cannot read.
	ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")
	// ErrUnreadable signals a recognised container with corrupt content.
	ErrUnreadable = errors.New("unreadable spreadsheet")
)

// Dataset defines tabular export content.
type Dataset struct {
	Title   string
	Headers []string
	Rows    []map[string]string
}

// ParseFormat resolves a user supplied format name, falling back when empty.
func ParseFormat(raw string, fallback Format) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return fallback, nil
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatPDF:
		return FormatPDF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return MIMEXLSX
	case FormatPDF:
		return MIMEPDF
	default:
		return MIMECSV + "; charset=utf-8"
	}
}

// Detect sniffs the container of data and returns the readable format together
// with the detected MIME type (without parameters).
func Detect(data []byte) (Format, string, error) {
	mtype := mimetype.Detect(data)
	base := strings.TrimSpace(strings.SplitN(mtype.String(), ";", 2)[0])
	switch {
	case mtype.Is(MIMEXLSX):
		return FormatXLSX, base, nil
	case mtype.Is(MIMECSV), mtype.Is("text/plain"):
		return FormatCSV, base, nil
	}
	return "", base, fmt.Errorf("%w: %s", ErrUnsupportedFormat, base)
}

// Decode reads the first sheet of an xlsx workbook or a CSV document into rows
// of raw cell text. The header row, if any, is returned as rows[0].
func Decode(data []byte) ([][]string, Format, error) {
	format, _, err := Detect(data)
	if err != nil {
		return nil, "", err
	}
	var rows [][]string
	switch format {
	case FormatXLSX:
		rows, err = decodeXLSX(data)
	default:
		rows, err = decodeCSV(data)
	}
	if err != nil {
		return nil, format, err
	}
	return rows, format, nil
}

// Encode renders the dataset in the requested format.
func Encode(format Format, data Dataset) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return NewXLSXExporter().Render(data)
	case FormatCSV:
		return NewCSVExporter().Render(data)
	case FormatPDF:
		return NewPDFExporter().Render(data, data.Title)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}
