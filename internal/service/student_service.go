package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/student-registry-api/internal/models"
	"github.com/noah-isme/student-registry-api/internal/validation"
	appErrors "github.com/noah-isme/student-registry-api/pkg/errors"
)

// Paging bounds for roster listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 500

	defaultRegistrationPrefix = "UNI"
	registrationRetries       = 3
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByRegistrationCode(ctx context.Context, code string) (*models.Student, error)
	ExistsByCURP(ctx context.Context, curp, excludeID string) (bool, error)
	LastRegistrationSequence(ctx context.Context, prefix string, year int) (int, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.StudentStats, error)
}

// EmergencyContactRequest is one contact in a create or update payload.
type EmergencyContactRequest struct {
	FullName     string              `json:"full_name" validate:"required,max=150"`
	Phone        string              `json:"phone" validate:"required,mxphone"`
	Relationship models.Relationship `json:"relationship" validate:"required,relationship"`
}

// CreateStudentRequest holds payload for creating students. BirthDate uses YYYY-MM-DD.
type CreateStudentRequest struct {
	GivenName       string                    `json:"given_name" validate:"required,max=100"`
	PaternalSurname string                    `json:"paternal_surname" validate:"required,max=100"`
	MaternalSurname string                    `json:"maternal_surname" validate:"max=100"`
	BirthDate       string                    `json:"birth_date" validate:"required,birthdate"`
	CURP            string                    `json:"curp" validate:"required,curp"`
	Level           models.EducationLevel     `json:"education_level" validate:"required,level"`
	Grade           models.Grade              `json:"grade" validate:"required,grade"`
	Section         models.Section            `json:"section" validate:"required,section"`
	Status          models.StudentStatus      `json:"status" validate:"omitempty,status"`
	Contacts        []EmergencyContactRequest `json:"emergency_contacts" validate:"required,min=1,max=3,dive"`
}

// UpdateStudentRequest replaces every editable field of a student. The
// registration code and enrolment date cannot be changed.
type UpdateStudentRequest struct {
	GivenName       string                    `json:"given_name" validate:"required,max=100"`
	PaternalSurname string                    `json:"paternal_surname" validate:"required,max=100"`
	MaternalSurname string                    `json:"maternal_surname" validate:"max=100"`
	BirthDate       string                    `json:"birth_date" validate:"required,birthdate"`
	CURP            string                    `json:"curp" validate:"required,curp"`
	Level           models.EducationLevel     `json:"education_level" validate:"required,level"`
	Grade           models.Grade              `json:"grade" validate:"required,grade"`
	Section         models.Section            `json:"section" validate:"required,section"`
	Status          models.StudentStatus      `json:"status" validate:"required,status"`
	Contacts        []EmergencyContactRequest `json:"emergency_contacts" validate:"required,min=1,max=3,dive"`
}

// StudentServiceConfig carries the tunables of StudentService.
type StudentServiceConfig struct {
	RegistrationPrefix string
	StatsTTL           time.Duration
	Now                func() time.Time
}

// StudentService handles roster use-cases at the edit boundary.
type StudentService struct {
	repo      studentRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       StudentServiceConfig
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg StudentServiceConfig) *StudentService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RegistrationPrefix == "" {
		cfg.RegistrationPrefix = defaultRegistrationPrefix
	}
	if validate == nil {
		validate = validation.New(cfg.Now)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, cache: cache, validator: validate, logger: logger, cfg: cfg}
}

// NormalizeFilter trims the filter, checks its enum values and applies paging defaults.
func NormalizeFilter(filter models.StudentFilter) (models.StudentFilter, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Level != "" && !filter.Level.Valid() {
		return filter, appErrors.Clone(appErrors.ErrValidation, "unknown education level")
	}
	if filter.Grade != "" && !filter.Grade.Valid() {
		return filter, appErrors.Clone(appErrors.ErrValidation, "unknown grade")
	}
	filter.Section = models.Section(strings.ToUpper(string(filter.Section)))
	if filter.Section != "" && !filter.Section.Valid() {
		return filter, appErrors.Clone(appErrors.ErrValidation, "unknown section")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return filter, appErrors.Clone(appErrors.ErrValidation, "unknown status")
	}
	if filter.Page == 0 {
		filter.Page = 1
	}
	if filter.PageSize == 0 {
		filter.PageSize = DefaultPageSize
	}
	if filter.Page < 1 {
		return filter, appErrors.Clone(appErrors.ErrValidation, "page must be at least 1")
	}
	if filter.PageSize < 1 || filter.PageSize > MaxPageSize {
		return filter, appErrors.Clone(appErrors.ErrValidation, "page_size must be between 1 and 500")
	}
	return filter, nil
}

// List returns one page of students and pagination metadata. A page past
// the last one is empty, not an error.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	filter, err := NormalizeFilter(filter)
	if err != nil {
		return nil, nil, err
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a student with contacts.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	if err := checkStudentID(id); err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to load student")
	}
	return student, nil
}

// GetByRegistrationCode returns the student holding the code.
func (s *StudentService) GetByRegistrationCode(ctx context.Context, code string) (*models.Student, error) {
	student, err := s.repo.FindByRegistrationCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, notFoundOr(err, "failed to load student")
	}
	return student, nil
}

// Create registers a new student and assigns the next registration code of
// the current year.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	birth, _ := time.Parse(validation.DateLayout, req.BirthDate)
	status := req.Status
	if status == "" {
		status = models.StatusActive
	}
	student := &models.Student{
		GivenName:       strings.TrimSpace(req.GivenName),
		PaternalSurname: strings.TrimSpace(req.PaternalSurname),
		MaternalSurname: optional(req.MaternalSurname),
		BirthDate:       birth,
		CURP:            strings.ToUpper(strings.TrimSpace(req.CURP)),
		Level:           req.Level,
		Grade:           req.Grade,
		Section:         req.Section,
		Status:          status,
		Contacts:        contactsFromRequest(req.Contacts),
	}
	if !student.Grade.OfferedBy(student.Level) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade not offered by education level")
	}
	if err := s.ensureCURPAvailable(ctx, student.CURP, ""); err != nil {
		return nil, err
	}

	now := s.cfg.Now()
	for attempt := 0; ; attempt++ {
		last, err := s.repo.LastRegistrationSequence(ctx, s.cfg.RegistrationPrefix, now.Year())
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate registration code")
		}
		student.ID = ""
		student.RegistrationCode = models.RegistrationCode(s.cfg.RegistrationPrefix, now.Year(), last+1)
		student.EnrolledAt = now.UTC()
		err = s.repo.Create(ctx, student)
		if err == nil {
			break
		}
		switch {
		case errors.Is(err, models.ErrDuplicateRegistrationCode) && attempt < registrationRetries:
			s.logger.Warn("registration code taken, retrying", zap.String("code", student.RegistrationCode))
			continue
		case errors.Is(err, models.ErrDuplicateCURP):
			return nil, appErrors.Clone(appErrors.ErrConflict, "curp already registered")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
		}
	}

	s.invalidateStats(ctx)
	s.logger.Info("student created", zap.String("id", student.ID), zap.String("registration_code", student.RegistrationCode))
	return student, nil
}

// Update replaces the editable fields and contacts of a student.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if err := checkStudentID(id); err != nil {
		return nil, err
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "failed to load student")
	}
	birth, _ := time.Parse(validation.DateLayout, req.BirthDate)
	student.GivenName = strings.TrimSpace(req.GivenName)
	student.PaternalSurname = strings.TrimSpace(req.PaternalSurname)
	student.MaternalSurname = optional(req.MaternalSurname)
	student.BirthDate = birth
	student.CURP = strings.ToUpper(strings.TrimSpace(req.CURP))
	student.Level = req.Level
	student.Grade = req.Grade
	student.Section = req.Section
	student.Status = req.Status
	student.Contacts = contactsFromRequest(req.Contacts)
	if !student.Grade.OfferedBy(student.Level) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade not offered by education level")
	}
	if err := s.ensureCURPAvailable(ctx, student.CURP, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, student); err != nil {
		if errors.Is(err, models.ErrDuplicateCURP) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "curp already registered")
		}
		return nil, notFoundOr(err, "failed to update student")
	}
	s.invalidateStats(ctx)
	return student, nil
}

// Delete removes a student together with its emergency contacts.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if err := checkStudentID(id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "failed to delete student")
	}
	s.invalidateStats(ctx)
	s.logger.Info("student deleted", zap.String("id", id))
	return nil
}

// Stats returns roster counts. cached reports whether they came from the cache.
func (s *StudentService) Stats(ctx context.Context) (stats *models.StudentStats, cached bool, err error) {
	var hit models.StudentStats
	if ok, _ := s.cache.Get(ctx, cacheKeyStudentStats, &hit); ok {
		return &hit, true, nil
	}
	stats, err = s.repo.Stats(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute statistics")
	}
	_ = s.cache.Set(ctx, cacheKeyStudentStats, stats, s.cfg.StatsTTL)
	return stats, false, nil
}

// InvalidateStats drops every cached roster aggregate after a bulk change.
func (s *StudentService) InvalidateStats(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, cachePatternStudents)
}

func (s *StudentService) invalidateStats(ctx context.Context) {
	_ = s.cache.Evict(ctx, cacheKeyStudentStats)
}

func (s *StudentService) ensureCURPAvailable(ctx context.Context, curp, excludeID string) error {
	exists, err := s.repo.ExistsByCURP(ctx, curp, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate curp")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "curp already registered")
	}
	return nil
}

// checkStudentID maps ids that cannot be a stored key to not found.
func checkStudentID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return nil
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func contactsFromRequest(reqs []EmergencyContactRequest) []models.EmergencyContact {
	contacts := make([]models.EmergencyContact, len(reqs))
	for i, req := range reqs {
		contacts[i] = models.EmergencyContact{
			Position:     i + 1,
			FullName:     strings.TrimSpace(req.FullName),
			Phone:        validation.CleanPhone(req.Phone),
			Relationship: req.Relationship,
		}
	}
	return contacts
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
