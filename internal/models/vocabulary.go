package models

import "strconv"

// EducationLevel is the closed set of school levels a student can be enrolled in.
type EducationLevel string

const (
	LevelPreescolar   EducationLevel = "Preescolar"
	LevelPrimaria     EducationLevel = "Primaria"
	LevelSecundaria   EducationLevel = "Secundaria"
	LevelPreparatoria EducationLevel = "Preparatoria"
)

// EducationLevels returns the level vocabulary in display order.
func EducationLevels() []EducationLevel {
	return []EducationLevel{LevelPreescolar, LevelPrimaria, LevelSecundaria, LevelPreparatoria}
}

// Valid reports whether the level belongs to the vocabulary.
func (l EducationLevel) Valid() bool {
	switch l {
	case LevelPreescolar, LevelPrimaria, LevelSecundaria, LevelPreparatoria:
		return true
	}
	return false
}

// MaxGrade returns the highest grade offered by the level.
func (l EducationLevel) MaxGrade() Grade {
	switch l {
	case LevelPreescolar, LevelSecundaria:
		return "3"
	case LevelPrimaria, LevelPreparatoria:
		return "6"
	}
	return ""
}

// Grade is a school year within a level, "1" through "6".
type Grade string

// Grades returns the grade vocabulary.
func Grades() []Grade {
	return []Grade{"1", "2", "3", "4", "5", "6"}
}

// Valid reports whether the grade belongs to the vocabulary.
func (g Grade) Valid() bool {
	return len(g) == 1 && g[0] >= '1' && g[0] <= '6'
}

// OfferedBy reports whether the level teaches this grade.
func (g Grade) OfferedBy(level EducationLevel) bool {
	if !g.Valid() || !level.Valid() {
		return false
	}
	n, _ := strconv.Atoi(string(g))
	max, _ := strconv.Atoi(string(level.MaxGrade()))
	return n <= max
}

// Section is the class group letter, "A" through "F".
type Section string

// Sections returns the section vocabulary.
func Sections() []Section {
	return []Section{"A", "B", "C", "D", "E", "F"}
}

// Valid reports whether the section belongs to the vocabulary.
func (s Section) Valid() bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'F'
}

// StudentStatus tracks where a student is in their enrollment lifecycle.
type StudentStatus string

const (
	StatusActive    StudentStatus = "Activo"
	StatusInactive  StudentStatus = "Inactivo"
	StatusGraduated StudentStatus = "Egresado"
)

// StudentStatuses returns the status vocabulary.
func StudentStatuses() []StudentStatus {
	return []StudentStatus{StatusActive, StatusInactive, StatusGraduated}
}

// Valid reports whether the status belongs to the vocabulary.
func (s StudentStatus) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusGraduated:
		return true
	}
	return false
}

// Relationship describes how an emergency contact relates to the student.
type Relationship string

const (
	RelationshipFather      Relationship = "Padre"
	RelationshipMother      Relationship = "Madre"
	RelationshipGuardian    Relationship = "Tutor"
	RelationshipGrandfather Relationship = "Abuelo"
	RelationshipGrandmother Relationship = "Abuela"
	RelationshipUncle       Relationship = "Tío"
	RelationshipAunt        Relationship = "Tía"
	RelationshipBrother     Relationship = "Hermano"
	RelationshipSister      Relationship = "Hermana"
	RelationshipOther       Relationship = "Otro"
)

// Relationships returns the relationship vocabulary.
func Relationships() []Relationship {
	return []Relationship{
		RelationshipFather, RelationshipMother, RelationshipGuardian,
		RelationshipGrandfather, RelationshipGrandmother,
		RelationshipUncle, RelationshipAunt,
		RelationshipBrother, RelationshipSister, RelationshipOther,
	}
}

// Valid reports whether the relationship belongs to the vocabulary.
func (r Relationship) Valid() bool {
	for _, known := range Relationships() {
		if r == known {
			return true
		}
	}
	return false
}
