package importer

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/student-registry-api/internal/models"
	"github.com/noah-isme/student-registry-api/internal/validation"
)

// Outcome is the verdict for one row: exactly one of Student and Reason is set.
type Outcome struct {
	Line    int
	Student *models.Student
	Reason  *Reason
}

// Accepted reports whether the row passed validation.
func (o Outcome) Accepted() bool { return o.Student != nil }

// RowValidator classifies rows. Checks run in a fixed order and the first
// failure wins.
type RowValidator struct {
	now func() time.Time
}

// NewRowValidator builds a validator that measures ages against now.
func NewRowValidator(now func() time.Time) *RowValidator {
	if now == nil {
		now = time.Now
	}
	return &RowValidator{now: now}
}

// Validate normalises row and checks it against idx. It never mutates idx.
func (v *RowValidator) Validate(row Row, idx *Index) Outcome {
	c := Normalize(row)
	reject := func(r Reason) Outcome {
		r.Row = c.Line
		return Outcome{Line: c.Line, Reason: &r}
	}

	for _, req := range []struct{ field, value string }{
		{ColGivenName, c.GivenName},
		{ColPaternalSurname, c.PaternalSurname},
		{ColBirthDate, c.BirthDateRaw},
		{ColCURP, c.CURP},
		{ColLevel, c.Level},
		{ColGrade, c.Grade},
		{ColSection, c.Section},
	} {
		if req.value == "" {
			return reject(Reason{Field: req.field, Rule: RuleRequired, Message: "value is required"})
		}
	}
	for _, name := range []struct{ field, value string }{
		{ColGivenName, c.GivenName},
		{ColPaternalSurname, c.PaternalSurname},
		{ColMaternalSurname, c.MaternalSurname},
	} {
		if !validation.WithinLength(name.value, validation.MaxNameLength) {
			return reject(tooLong(name.field, 0, validation.MaxNameLength))
		}
	}

	if !validation.IdentityDocument(c.CURP) {
		return reject(Reason{Field: ColCURP, Rule: RuleIdentityDocument, Value: c.CURP, Message: fmt.Sprintf("invalid CURP format %q", c.CURP)})
	}

	if !c.BirthDateParsed {
		return reject(Reason{Field: ColBirthDate, Rule: RuleDateFormat, Value: c.BirthDateRaw, Message: fmt.Sprintf("unrecognised date %q", c.BirthDateRaw)})
	}
	if err := validation.BirthDate(c.BirthDate, v.now()); err != nil {
		msg := err.Error()
		if errors.Is(err, validation.ErrAgeOutOfRange) {
			msg = fmt.Sprintf("%s (got %d)", msg, validation.AgeOn(c.BirthDate, v.now()))
		}
		return reject(Reason{Field: ColBirthDate, Rule: RuleBirthDate, Value: FormatDate(c.BirthDate), Message: msg})
	}

	level := models.EducationLevel(c.Level)
	if !level.Valid() {
		return reject(vocabularyReason(ColLevel, c.Level))
	}
	grade := models.Grade(c.Grade)
	if !grade.Valid() {
		return reject(vocabularyReason(ColGrade, c.Grade))
	}
	if !grade.OfferedBy(level) {
		return reject(Reason{Field: ColGrade, Rule: RuleGradeLevel, Value: c.Grade, Message: fmt.Sprintf("grade %s is not offered in %s (1-%s)", c.Grade, level, level.MaxGrade())})
	}
	section := models.Section(c.Section)
	if !section.Valid() {
		return reject(vocabularyReason(ColSection, c.Section))
	}
	status := models.StudentStatus(c.Status)
	if !status.Valid() {
		return reject(vocabularyReason(ColStatus, c.Status))
	}

	if first, dup := idx.Duplicate(c.CURP); dup {
		msg := "CURP is already registered"
		if first > 0 {
			msg = fmt.Sprintf("CURP duplicates row %d of this file", first)
		}
		return reject(Reason{Field: ColCURP, Rule: RuleDuplicate, Value: c.CURP, Message: msg})
	}

	contacts := make([]models.EmergencyContact, 0, len(c.Contacts))
	for _, contact := range c.Contacts {
		if contact.Empty() {
			continue
		}
		if !contact.Complete() {
			return reject(Reason{Field: missingContactField(contact), Rule: RuleContactIncomplete, Contact: contact.Position, Message: "name, phone and relationship are all required"})
		}
		if !validation.WithinLength(contact.FullName, validation.MaxContactNameLength) {
			return reject(tooLong(ContactColumn(contact.Position, contactName), contact.Position, validation.MaxContactNameLength))
		}
		if !validation.Phone(contact.Phone) {
			return reject(Reason{Field: ContactColumn(contact.Position, contactPhone), Rule: RuleContactPhone, Contact: contact.Position, Value: contact.Phone, Message: fmt.Sprintf("invalid phone number %q", contact.Phone)})
		}
		relationship := models.Relationship(contact.Relationship)
		if !relationship.Valid() {
			return reject(Reason{Field: ContactColumn(contact.Position, contactRelationship), Rule: RuleContactRelation, Contact: contact.Position, Value: contact.Relationship, Message: fmt.Sprintf("unknown relationship %q", contact.Relationship)})
		}
		contacts = append(contacts, models.EmergencyContact{
			Position:     len(contacts) + 1,
			FullName:     contact.FullName,
			Phone:        contact.Phone,
			Relationship: relationship,
		})
	}

	student := &models.Student{
		GivenName:       c.GivenName,
		PaternalSurname: c.PaternalSurname,
		BirthDate:       c.BirthDate,
		CURP:            c.CURP,
		Level:           level,
		Grade:           grade,
		Section:         section,
		Status:          status,
		Contacts:        contacts,
	}
	if c.MaternalSurname != "" {
		maternal := c.MaternalSurname
		student.MaternalSurname = &maternal
	}
	return Outcome{Line: c.Line, Student: student}
}

func vocabularyReason(field, value string) Reason {
	return Reason{Field: field, Rule: RuleVocabulary, Value: value, Message: fmt.Sprintf("%q is not an allowed value", value)}
}

func tooLong(field string, contact, max int) Reason {
	return Reason{Field: field, Rule: RuleMaxLength, Contact: contact, Message: fmt.Sprintf("must be at most %d characters", max)}
}

func missingContactField(c ContactCandidate) string {
	switch {
	case c.FullName == "":
		return ContactColumn(c.Position, contactName)
	case c.Phone == "":
		return ContactColumn(c.Position, contactPhone)
	default:
		return ContactColumn(c.Position, contactRelationship)
	}
}
