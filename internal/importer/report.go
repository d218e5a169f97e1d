package importer

import (
	"fmt"
	"strings"

	"github.com/noah-isme/student-registry-api/internal/models"
)

// Rule identifies the check a rejected row failed.
type Rule string

const (
	RuleRequired           Rule = "required"
	RuleMaxLength          Rule = "max_length"
	RuleIdentityDocument   Rule = "identity_document_format"
	RuleDateFormat         Rule = "date_format"
	RuleBirthDate          Rule = "birth_date_bounds"
	RuleVocabulary         Rule = "vocabulary"
	RuleGradeLevel         Rule = "grade_not_offered"
	RuleDuplicate          Rule = "duplicate"
	RuleContactIncomplete  Rule = "contact_incomplete"
	RuleContactPhone       Rule = "contact_phone_format"
	RuleContactRelation    Rule = "contact_relationship"
	RulePersistenceClash   Rule = "persistence_conflict"
	RuleStorageUnavailable Rule = "storage_failure"
)

// Reason explains why a row was rejected.
type Reason struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Rule    Rule   `json:"rule"`
	Value   string `json:"value,omitempty"`
	Contact int    `json:"contact,omitempty"`
	Message string `json:"message"`
}

// String renders the reason for people, e.g. "row 4: curp: invalid CURP format".
func (r Reason) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "row %d: ", r.Row)
	if r.Contact > 0 {
		fmt.Fprintf(&b, "emergency contact %d: ", r.Contact)
	}
	if r.Field != "" {
		b.WriteString(r.Field)
		b.WriteString(": ")
	}
	b.WriteString(r.Message)
	return b.String()
}

// Report is the outcome of one import call. Accepted records and reasons keep
// sheet order. A Report is not modified after Run returns it.
type Report struct {
	accepted []models.Student
	rejected []Reason
	skipped  []int
}

// Accepted returns the persisted records in sheet order.
func (r *Report) Accepted() []models.Student {
	return append([]models.Student(nil), r.accepted...)
}

// Rejected returns the rejection reasons in sheet order.
func (r *Report) Rejected() []Reason {
	return append([]Reason(nil), r.rejected...)
}

// Skipped returns the lines of blank rows.
func (r *Report) Skipped() []int {
	return append([]int(nil), r.skipped...)
}

func (r *Report) AcceptedCount() int { return len(r.accepted) }
func (r *Report) RejectedCount() int { return len(r.rejected) }

// Processed counts non-blank rows that reached a verdict.
func (r *Report) Processed() int { return len(r.accepted) + len(r.rejected) }

// Messages renders every rejection for display, in sheet order.
func (r *Report) Messages() []string {
	out := make([]string, len(r.rejected))
	for i, reason := range r.rejected {
		out[i] = reason.String()
	}
	return out
}
