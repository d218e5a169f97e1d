package tabular

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Alumnos",
		Headers: []string{"nombre", "curp", "telefono"},
		Rows: []map[string]string{
			{"nombre": "Juan", "curp": "GOMJ100515HDFRRN09", "telefono": "0445512345678"},
			{"nombre": "María José", "curp": "LOPM110203MDFPRR01", "telefono": ""},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("", FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat(" CSV ", FormatXLSX)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("xls", FormatXLSX)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCSVRoundTrip(t *testing.T) {
	payload, err := Encode(FormatCSV, sampleDataset())
	require.NoError(t, err)

	rows, format, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"nombre", "curp", "telefono"}, rows[0])
	assert.Equal(t, "María José", rows[2][0])
	assert.Equal(t, "0445512345678", rows[1][2])
}

func TestDecodeCSVSemicolonAndBOM(t *testing.T) {
	payload := append([]byte{0xEF, 0xBB, 0xBF}, []byte("nombre;curp\nAna;ABC\n")...)

	rows, _, err := Decode(payload)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"nombre", "curp"}, rows[0])
	assert.Equal(t, []string{"Ana", "ABC"}, rows[1])
}

func TestDecodeCSVWindows1252(t *testing.T) {
	payload := []byte("nombre;apellido_paterno;grupo\nJos\xe9;G\xf3mez;A\nIv\xe1n;Pe\xf1a;B\n")

	rows, _, err := Decode(payload)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"José", "Gómez", "A"}, rows[1])
	assert.Equal(t, []string{"Iván", "Peña", "B"}, rows[2])
	for _, row := range rows {
		for _, cell := range row {
			assert.NotContains(t, cell, "\ufffd")
		}
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	payload, err := Encode(FormatXLSX, sampleDataset())
	require.NoError(t, err)

	format, mime, err := Detect(payload)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, format)
	assert.Equal(t, MIMEXLSX, mime)

	rows, _, err := Decode(payload)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "GOMJ100515HDFRRN09", rows[1][1])
	assert.Equal(t, "0445512345678", rows[1][2])
	assert.Equal(t, "María José", rows[2][0])
}

func TestPDFRender(t *testing.T) {
	payload, err := Encode(FormatPDF, sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(payload, []byte("%PDF")))
}

func TestDetectRejectsUnsupported(t *testing.T) {
	pdf, err := Encode(FormatPDF, sampleDataset())
	require.NoError(t, err)

	_, mime, err := Detect(pdf)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, MIMEPDF, mime)

	_, _, err = Decode([]byte{0x00, 0x01, 0x02, 0xFF, 0xFE})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeCorruptWorkbook(t *testing.T) {
	payload, err := Encode(FormatXLSX, sampleDataset())
	require.NoError(t, err)

	_, _, err = Decode(payload[:len(payload)/2])
	assert.Error(t, err)
}

func TestRenderRequiresHeaders(t *testing.T) {
	for _, f := range []Format{FormatCSV, FormatXLSX, FormatPDF} {
		_, err := Encode(f, Dataset{})
		assert.Error(t, err, string(f))
	}
}

func TestSerialDate(t *testing.T) {
	got, ok := SerialDate("40313")
	require.True(t, ok)
	assert.Equal(t, time.Date(2010, 5, 15, 0, 0, 0, 0, time.UTC), got)

	_, ok = SerialDate("15/05/2010")
	assert.False(t, ok)
	_, ok = SerialDate("-3")
	assert.False(t, ok)
}
