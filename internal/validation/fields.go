// Package validation holds the field-level predicates shared by the import
// engine and the edit-form payload validator.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	// IdentityDocumentLength is the fixed CURP length.
	IdentityDocumentLength = 18

	MinAge = 3
	MaxAge = 25

	// Column widths of the students schema, in characters.
	MaxNameLength        = 100
	MaxContactNameLength = 150
)

var (
	identityDocumentPattern = regexp.MustCompile(`^[A-Z]{4}[0-9]{6}[HM][A-Z]{5}[0-9]{2}$`)

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^[0-9]{10}$`),
		regexp.MustCompile(`^04[45][0-9]{10}$`),
		regexp.MustCompile(`^\+52[0-9]{10}$`),
	}
)

var (
	ErrBirthDateNotPast = errors.New("birth date must be before today")
	ErrAgeOutOfRange    = errors.New("age must be between 3 and 25 years")
)

// IdentityDocument reports whether code is a well-formed CURP. The check is
// case-insensitive; callers store the uppercased form.
func IdentityDocument(code string) bool {
	if len(code) != IdentityDocumentLength {
		return false
	}
	return identityDocumentPattern.MatchString(strings.ToUpper(code))
}

// CleanPhone strips whitespace (including no-break spaces and line breaks),
// hyphens and parentheses.
func CleanPhone(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '(' || r == ')' {
			return -1
		}
		return r
	}, raw)
}

// WithinLength reports whether value fits in max characters.
func WithinLength(value string, max int) bool {
	return utf8.RuneCountInString(value) <= max
}

// Phone accepts 10-digit national numbers, 044/045 mobile prefixes and the
// +52 international form.
func Phone(raw string) bool {
	cleaned := CleanPhone(raw)
	if cleaned == "" {
		return false
	}
	for _, pattern := range phonePatterns {
		if pattern.MatchString(cleaned) {
			return true
		}
	}
	return false
}

// AgeOn returns the age in whole years on the given day. A birthday not yet
// reached in today's year does not count.
func AgeOn(birth, today time.Time) int {
	by, bm, bd := birth.Date()
	ty, tm, td := today.Date()
	age := ty - by
	if tm < bm || (tm == bm && td < bd) {
		age--
	}
	return age
}

// BirthDate checks that birth is strictly before today and that the age is
// within [MinAge, MaxAge].
func BirthDate(birth, today time.Time) error {
	if !DateOnly(birth).Before(DateOnly(today)) {
		return ErrBirthDateNotPast
	}
	age := AgeOn(birth, today)
	if age < MinAge || age > MaxAge {
		return ErrAgeOutOfRange
	}
	return nil
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
