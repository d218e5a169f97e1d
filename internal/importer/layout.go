package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/student-registry-api/internal/models"
)

// Sheet columns understood by the importer, in template order.
const (
	ColGivenName       = "nombre"
	ColPaternalSurname = "apellido_paterno"
	ColMaternalSurname = "apellido_materno"
	ColBirthDate       = "fecha_nacimiento"
	ColCURP            = "curp"
	ColLevel           = "nivel_educativo"
	ColGrade           = "grado"
	ColSection         = "grupo"
	ColStatus          = "estado"

	// Informational export columns ignored on import.
	ColRegistrationCode = "matricula"
	ColEnrolledAt       = "fecha_inscripcion"
)

const (
	contactName         = "nombre"
	contactPhone        = "telefono"
	contactRelationship = "relacion"
)

// ErrEmptySheet is returned when a sheet carries no data rows.
var ErrEmptySheet = errors.New("sheet has no data rows")

// MissingColumnsError lists every required header absent from a sheet.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// ContactColumn names the column holding field for the contact at position (1-based).
func ContactColumn(position int, field string) string {
	return fmt.Sprintf("contacto_emergencia_%d_%s", position, field)
}

// RequiredColumns must all be present in the header row.
func RequiredColumns() []string {
	return []string{ColGivenName, ColPaternalSurname, ColBirthDate, ColCURP, ColLevel, ColGrade, ColSection}
}

// Columns returns the import layout. Templates are rendered with exactly these headers.
func Columns() []string {
	cols := []string{
		ColGivenName, ColPaternalSurname, ColMaternalSurname, ColBirthDate, ColCURP,
		ColLevel, ColGrade, ColSection, ColStatus,
	}
	for i := 1; i <= models.MaxEmergencyContacts; i++ {
		cols = append(cols,
			ContactColumn(i, contactName),
			ContactColumn(i, contactPhone),
			ContactColumn(i, contactRelationship),
		)
	}
	return cols
}

// ExportColumns is the import layout followed by the system-assigned columns.
func ExportColumns() []string {
	return append(Columns(), ColRegistrationCode, ColEnrolledAt)
}

// HeaderIndex maps normalised header names to their column position.
type HeaderIndex map[string]int

// NewHeaderIndex indexes header cells. Names are trimmed and lowercased; the
// first occurrence of a repeated name wins.
func NewHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, name := range header {
		key := normalizeHeader(name)
		if key == "" {
			continue
		}
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

// Missing returns the columns absent from the index, preserving input order.
func (h HeaderIndex) Missing(columns []string) []string {
	var missing []string
	for _, col := range columns {
		if _, ok := h[col]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

func normalizeHeader(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ToLower(strings.TrimSpace(name))
}

// Row is one data line of a sheet.
type Row struct {
	// Line is the 1-based spreadsheet line; the header occupies line 1.
	Line   int
	Values map[string]string
}

// Get returns the trimmed cell for column, or "" when absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// Blank reports whether every cell in the row is empty.
func (r Row) Blank() bool {
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseRows turns decoded sheet cells (header first) into rows keyed by column
// name. It fails when required headers are missing or no data row is present.
func ParseRows(cells [][]string) ([]Row, error) {
	if len(cells) == 0 {
		return nil, ErrEmptySheet
	}
	header := NewHeaderIndex(cells[0])
	if missing := header.Missing(RequiredColumns()); len(missing) > 0 {
		return nil, &MissingColumnsError{Columns: missing}
	}

	rows := make([]Row, 0, len(cells)-1)
	nonBlank := 0
	for i, record := range cells[1:] {
		row := Row{Line: i + 2, Values: make(map[string]string, len(header))}
		for name, pos := range header {
			if pos < len(record) {
				row.Values[name] = record[pos]
			}
		}
		if !row.Blank() {
			nonBlank++
		}
		rows = append(rows, row)
	}
	if nonBlank == 0 {
		return nil, ErrEmptySheet
	}
	return rows, nil
}
