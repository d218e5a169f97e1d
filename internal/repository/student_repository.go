package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/student-registry-api/internal/models"
)

const uniqueViolation = "23505"

// Unique constraint names declared in the students migration.
const (
	constraintCURP             = "students_curp_key"
	constraintRegistrationCode = "students_registration_code_key"
)

const studentColumns = `s.id, s.registration_code, s.given_name, s.paternal_surname, s.maternal_surname, s.birth_date, s.curp,
        s.education_level, s.grade, s.section, s.status, s.enrolled_at, s.updated_at`

// DuplicateError reports a unique-key violation raised by PostgreSQL.
type DuplicateError struct {
	Constraint string
	Err        error
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate key on %s: %v", e.Constraint, e.Err)
}

// Unwrap exposes the domain sentinel matching the violated constraint.
func (e *DuplicateError) Unwrap() error {
	switch e.Constraint {
	case constraintCURP:
		return models.ErrDuplicateCURP
	case constraintRegistrationCode:
		return models.ErrDuplicateRegistrationCode
	}
	return e.Err
}

func asDuplicate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &DuplicateError{Constraint: pqErr.Constraint, Err: err}
	}
	return err
}

// StudentRepository manages persistence for student records and their emergency contacts.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns one page of students matching filter and the total match count.
// A non-positive PageSize returns every match.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	where, args := buildStudentWhere(filter)

	query := fmt.Sprintf("SELECT %s FROM students s%s ORDER BY s.paternal_surname, s.maternal_surname, s.given_name, s.registration_code", studentColumns, where)
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = fmt.Sprintf("%s LIMIT %d OFFSET %d", query, filter.PageSize, (page-1)*filter.PageSize)
	}

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM students s"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}

	if err := r.attachContacts(ctx, students); err != nil {
		return nil, 0, err
	}
	return students, total, nil
}

func buildStudentWhere(filter models.StudentFilter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		p := len(args)
		conditions = append(conditions, fmt.Sprintf("(s.given_name ILIKE $%d OR s.paternal_surname ILIKE $%d OR s.maternal_surname ILIKE $%d OR s.registration_code ILIKE $%d OR s.curp ILIKE $%d)", p, p, p, p, p))
	}
	if filter.Level != "" {
		args = append(args, filter.Level)
		conditions = append(conditions, fmt.Sprintf("s.education_level = $%d", len(args)))
	}
	if filter.Grade != "" {
		args = append(args, filter.Grade)
		conditions = append(conditions, fmt.Sprintf("s.grade = $%d", len(args)))
	}
	if filter.Section != "" {
		args = append(args, filter.Section)
		conditions = append(conditions, fmt.Sprintf("s.section = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// FindByID fetches a student with contacts. Returns sql.ErrNoRows when absent.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return r.findOne(ctx, "s.id = $1", id)
}

// FindByRegistrationCode fetches a student by its registration code.
func (r *StudentRepository) FindByRegistrationCode(ctx context.Context, code string) (*models.Student, error) {
	return r.findOne(ctx, "s.registration_code = $1", code)
}

func (r *StudentRepository) findOne(ctx context.Context, condition string, arg interface{}) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students s WHERE %s", studentColumns, condition)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, arg); err != nil {
		return nil, err
	}
	students := []models.Student{student}
	if err := r.attachContacts(ctx, students); err != nil {
		return nil, err
	}
	return &students[0], nil
}

func (r *StudentRepository) attachContacts(ctx context.Context, students []models.Student) error {
	if len(students) == 0 {
		return nil
	}
	ids := make([]string, len(students))
	byID := make(map[string]int, len(students))
	for i := range students {
		ids[i] = students[i].ID
		byID[students[i].ID] = i
		students[i].Contacts = []models.EmergencyContact{}
	}

	const query = `SELECT id, student_id, position, full_name, phone, relationship
        FROM emergency_contacts WHERE student_id = ANY($1) ORDER BY student_id, position`
	var contacts []models.EmergencyContact
	if err := r.db.SelectContext(ctx, &contacts, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("load emergency contacts: %w", err)
	}
	for _, contact := range contacts {
		if i, ok := byID[contact.StudentID]; ok {
			students[i].Contacts = append(students[i].Contacts, contact)
		}
	}
	return nil
}

// ExistsByCURP checks whether a CURP is registered, optionally excluding one student.
func (r *StudentRepository) ExistsByCURP(ctx context.Context, curp, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE curp = $1"
	args := []interface{}{curp}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check curp: %w", err)
	}
	return true, nil
}

// ListCURPs returns every stored CURP.
func (r *StudentRepository) ListCURPs(ctx context.Context) ([]string, error) {
	var curps []string
	if err := r.db.SelectContext(ctx, &curps, "SELECT curp FROM students"); err != nil {
		return nil, fmt.Errorf("list curps: %w", err)
	}
	return curps, nil
}

// LastRegistrationSequence returns the highest numeric suffix of codes issued
// with prefix in year, or 0 when none exist.
func (r *StudentRepository) LastRegistrationSequence(ctx context.Context, prefix string, year int) (int, error) {
	stem := fmt.Sprintf("%s%d", prefix, year)
	const query = `SELECT COALESCE(MAX(CAST(SUBSTRING(registration_code FROM $1::int) AS INTEGER)), 0)
        FROM students WHERE registration_code LIKE $2 AND SUBSTRING(registration_code FROM $1::int) ~ '^[0-9]+$'`
	var last int
	if err := r.db.GetContext(ctx, &last, query, len(stem)+1, escapeLike(stem)+"%"); err != nil {
		return 0, fmt.Errorf("last registration sequence: %w", err)
	}
	return last, nil
}

// Create inserts a student and its contacts in one transaction.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.createTx(ctx, tx, student); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit student: %w", asDuplicate(err))
	}
	return nil
}

func (r *StudentRepository) createTx(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.EnrolledAt.IsZero() {
		student.EnrolledAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, registration_code, given_name, paternal_surname, maternal_surname, birth_date, curp, education_level, grade, section, status, enrolled_at, updated_at)
        VALUES (:id, :registration_code, :given_name, :paternal_surname, :maternal_surname, :birth_date, :curp, :education_level, :grade, :section, :status, :enrolled_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", asDuplicate(err))
	}
	return r.replaceContactsTx(ctx, tx, student)
}

// Update replaces the editable fields and contacts of a student. The
// registration code and enrolment date are never changed.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET given_name = :given_name, paternal_surname = :paternal_surname, maternal_surname = :maternal_surname,
        birth_date = :birth_date, curp = :curp, education_level = :education_level, grade = :grade, section = :section, status = :status, updated_at = :updated_at
        WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, query, student)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("update student: %w", asDuplicate(err))
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		tx.Rollback() //nolint:errcheck
		return sql.ErrNoRows
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM emergency_contacts WHERE student_id = $1", student.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear emergency contacts: %w", err)
	}
	if err := r.replaceContactsTx(ctx, tx, student); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit student: %w", err)
	}
	return nil
}

func (r *StudentRepository) replaceContactsTx(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	const query = `INSERT INTO emergency_contacts (id, student_id, position, full_name, phone, relationship)
        VALUES (:id, :student_id, :position, :full_name, :phone, :relationship)`
	for i := range student.Contacts {
		contact := &student.Contacts[i]
		if contact.ID == "" {
			contact.ID = uuid.NewString()
		}
		contact.StudentID = student.ID
		contact.Position = i + 1
		if _, err := tx.NamedExecContext(ctx, query, contact); err != nil {
			return fmt.Errorf("insert emergency contact: %w", err)
		}
	}
	return nil
}

// Delete removes a student; contacts are removed by the foreign key cascade.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type countRow struct {
	Key   string `db:"key"`
	Count int    `db:"count"`
}

// Stats counts students by status and active students by education level.
func (r *StudentRepository) Stats(ctx context.Context) (*models.StudentStats, error) {
	stats := &models.StudentStats{
		ByStatus: make(map[models.StudentStatus]int),
		ByLevel:  make(map[models.EducationLevel]int),
	}

	var byStatus []countRow
	if err := r.db.SelectContext(ctx, &byStatus, "SELECT status AS key, COUNT(*) AS count FROM students GROUP BY status"); err != nil {
		return nil, fmt.Errorf("count students by status: %w", err)
	}
	for _, row := range byStatus {
		stats.ByStatus[models.StudentStatus(row.Key)] = row.Count
		stats.Total += row.Count
	}

	var byLevel []countRow
	if err := r.db.SelectContext(ctx, &byLevel, "SELECT education_level AS key, COUNT(*) AS count FROM students WHERE status = $1 GROUP BY education_level", models.StatusActive); err != nil {
		return nil, fmt.Errorf("count students by level: %w", err)
	}
	for _, row := range byLevel {
		stats.ByLevel[models.EducationLevel(row.Key)] = row.Count
	}
	stats.ComputedAt = time.Now().UTC()
	return stats, nil
}
