package models

import (
	"fmt"
	"time"
)

// MaxEmergencyContacts bounds the contacts kept per student.
const MaxEmergencyContacts = 3

// RegistrationCode formats the institution code for the given enrolment year
// and sequence, e.g. UNI2024007.
func RegistrationCode(prefix string, year, seq int) string {
	return fmt.Sprintf("%s%d%03d", prefix, year, seq)
}

// Student represents a learner registered in the institution.
type Student struct {
	ID               string             `db:"id" json:"id"`
	RegistrationCode string             `db:"registration_code" json:"registration_code"`
	GivenName        string             `db:"given_name" json:"given_name"`
	PaternalSurname  string             `db:"paternal_surname" json:"paternal_surname"`
	MaternalSurname  *string            `db:"maternal_surname" json:"maternal_surname,omitempty"`
	BirthDate        time.Time          `db:"birth_date" json:"birth_date"`
	CURP             string             `db:"curp" json:"curp"`
	Level            EducationLevel     `db:"education_level" json:"education_level"`
	Grade            Grade              `db:"grade" json:"grade"`
	Section          Section            `db:"section" json:"section"`
	Status           StudentStatus      `db:"status" json:"status"`
	EnrolledAt       time.Time          `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
	Contacts         []EmergencyContact `db:"-" json:"emergency_contacts"`
}

// FullName joins given name and surnames for display.
func (s Student) FullName() string {
	name := s.GivenName + " " + s.PaternalSurname
	if s.MaternalSurname != nil && *s.MaternalSurname != "" {
		name += " " + *s.MaternalSurname
	}
	return name
}

// EmergencyContact is owned by exactly one student and deleted with it.
type EmergencyContact struct {
	ID           string       `db:"id" json:"id"`
	StudentID    string       `db:"student_id" json:"student_id"`
	Position     int          `db:"position" json:"position"`
	FullName     string       `db:"full_name" json:"full_name"`
	Phone        string       `db:"phone" json:"phone"`
	Relationship Relationship `db:"relationship" json:"relationship"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
// All populated constraints are combined with AND; Search matches any of the
// name, registration code and CURP columns.
type StudentFilter struct {
	Search   string
	Level    EducationLevel
	Grade    Grade
	Section  Section
	Status   StudentStatus
	Page     int
	PageSize int
}

// StudentStats aggregates roster counts for dashboards.
type StudentStats struct {
	Total      int                    `json:"total"`
	ByStatus   map[StudentStatus]int  `json:"by_status"`
	ByLevel    map[EducationLevel]int `json:"by_level"`
	ComputedAt time.Time              `json:"computed_at"`
}
