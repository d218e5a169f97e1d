package importer

import (
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/student-registry-api/internal/models"
	"github.com/noah-isme/student-registry-api/internal/validation"
	"github.com/noah-isme/student-registry-api/pkg/tabular"
)

// DateLayouts are the textual birth date forms accepted besides spreadsheet serials.
var DateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Candidate is a row in canonical shape, not yet validated.
type Candidate struct {
	Line            int
	GivenName       string
	PaternalSurname string
	MaternalSurname string
	BirthDateRaw    string
	BirthDate       time.Time
	BirthDateParsed bool
	CURP            string
	Level           string
	Grade           string
	Section         string
	Status          string
	Contacts        []ContactCandidate
}

// ContactCandidate holds the cells of one contact slot.
type ContactCandidate struct {
	Position     int
	FullName     string
	Phone        string
	Relationship string
}

// Empty reports whether no cell of the slot is filled.
func (c ContactCandidate) Empty() bool {
	return c.FullName == "" && c.Phone == "" && c.Relationship == ""
}

// Complete reports whether every cell of the slot is filled.
func (c ContactCandidate) Complete() bool {
	return c.FullName != "" && c.Phone != "" && c.Relationship != ""
}

// Normalize trims every cell, uppercases the CURP, parses the birth date and
// canonicalises the letter case of vocabulary values. Values outside a
// vocabulary are kept verbatim so validation can reject them.
func Normalize(row Row) Candidate {
	c := Candidate{
		Line:            row.Line,
		GivenName:       row.Get(ColGivenName),
		PaternalSurname: row.Get(ColPaternalSurname),
		MaternalSurname: row.Get(ColMaternalSurname),
		BirthDateRaw:    row.Get(ColBirthDate),
		CURP:            strings.ToUpper(row.Get(ColCURP)),
		Level:           canonical(row.Get(ColLevel), levelLabels()),
		Grade:           integral(row.Get(ColGrade)),
		Section:         strings.ToUpper(row.Get(ColSection)),
		Status:          canonical(row.Get(ColStatus), statusLabels()),
	}
	// A single family name may be supplied in either column.
	if c.PaternalSurname == "" && c.MaternalSurname != "" {
		c.PaternalSurname, c.MaternalSurname = c.MaternalSurname, ""
	}
	if c.Status == "" {
		c.Status = string(models.StatusActive)
	}
	if c.BirthDateRaw != "" {
		c.BirthDate, c.BirthDateParsed = ParseDate(c.BirthDateRaw)
	}

	for i := 1; i <= models.MaxEmergencyContacts; i++ {
		contact := ContactCandidate{
			Position:     i,
			FullName:     row.Get(ContactColumn(i, contactName)),
			Phone:        validation.CleanPhone(integral(row.Get(ContactColumn(i, contactPhone)))),
			Relationship: canonical(row.Get(ContactColumn(i, contactRelationship)), relationshipLabels()),
		}
		c.Contacts = append(c.Contacts, contact)
	}
	return c
}

// ParseDate reads a calendar date from text or a spreadsheet serial number.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return validation.DateOnly(t), true
		}
	}
	if t, ok := tabular.SerialDate(raw); ok {
		return validation.DateOnly(t), true
	}
	return time.Time{}, false
}

// FormatDate renders a date the way exports write it.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// integral collapses numeric cells such as "2.0" to "2".
func integral(raw string) string {
	if !strings.ContainsAny(raw, ".eE") {
		return raw
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int64(f)) || f < 0 {
		return raw
	}
	return strconv.FormatInt(int64(f), 10)
}

func canonical(raw string, labels []string) string {
	for _, label := range labels {
		if strings.EqualFold(raw, label) {
			return label
		}
	}
	return raw
}

func levelLabels() []string {
	out := make([]string, 0, 4)
	for _, l := range models.EducationLevels() {
		out = append(out, string(l))
	}
	return out
}

func statusLabels() []string {
	out := make([]string, 0, 3)
	for _, s := range models.StudentStatuses() {
		out = append(out, string(s))
	}
	return out
}

func relationshipLabels() []string {
	out := make([]string, 0, 10)
	for _, r := range models.Relationships() {
		out = append(out, string(r))
	}
	return out
}

// Cells renders a stored student as one sheet row keyed by ExportColumns. It
// is the inverse of Normalize: re-importing the cells yields the same record
// apart from the system-assigned columns.
func Cells(student models.Student) map[string]string {
	cells := map[string]string{
		ColGivenName:        student.GivenName,
		ColPaternalSurname:  student.PaternalSurname,
		ColBirthDate:        FormatDate(student.BirthDate),
		ColCURP:             student.CURP,
		ColLevel:            string(student.Level),
		ColGrade:            string(student.Grade),
		ColSection:          string(student.Section),
		ColStatus:           string(student.Status),
		ColRegistrationCode: student.RegistrationCode,
		ColEnrolledAt:       FormatDate(student.EnrolledAt),
	}
	if student.MaternalSurname != nil {
		cells[ColMaternalSurname] = *student.MaternalSurname
	}
	for i, contact := range student.Contacts {
		if i >= models.MaxEmergencyContacts {
			break
		}
		cells[ContactColumn(i+1, contactName)] = contact.FullName
		cells[ContactColumn(i+1, contactPhone)] = contact.Phone
		cells[ContactColumn(i+1, contactRelationship)] = string(contact.Relationship)
	}
	return cells
}
