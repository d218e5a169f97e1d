package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/student-registry-api/internal/models"
)

// ErrAborted is returned with the partial report when the context ends mid-import.
var ErrAborted = errors.New("import aborted")

const defaultCodeRetries = 3

// Store is the persistence the engine writes accepted rows to.
type Store interface {
	ListCURPs(ctx context.Context) ([]string, error)
	LastRegistrationSequence(ctx context.Context, prefix string, year int) (int, error)
	// Create persists the student and its contacts atomically, assigning IDs.
	Create(ctx context.Context, student *models.Student) error
}

// Options tunes an Engine.
type Options struct {
	RegistrationPrefix string
	CodeRetries        int
	Now                func() time.Time
	Logger             *zap.Logger
}

// Engine imports sheets row by row. Each accepted row is persisted before the
// next row is judged, so rows are isolated and a later duplicate sees it.
type Engine struct {
	store     Store
	validator *RowValidator
	prefix    string
	retries   int
	now       func() time.Time
	logger    *zap.Logger
}

// NewEngine constructs an import engine.
func NewEngine(store Store, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CodeRetries <= 0 {
		opts.CodeRetries = defaultCodeRetries
	}
	if opts.RegistrationPrefix == "" {
		opts.RegistrationPrefix = "UNI"
	}
	return &Engine{
		store:     store,
		validator: NewRowValidator(opts.Now),
		prefix:    opts.RegistrationPrefix,
		retries:   opts.CodeRetries,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// Run validates and persists rows in sheet order. Row problems end up in the
// report; an error is returned only when the stored state cannot be loaded or
// ctx ends, in which case the report covers the rows handled so far.
func (e *Engine) Run(ctx context.Context, rows []Row) (*Report, error) {
	report := &Report{}

	curps, err := e.store.ListCURPs(ctx)
	if err != nil {
		return report, preloadError(ctx, "load stored curps", err)
	}
	year := e.now().Year()
	lastSeq, err := e.store.LastRegistrationSequence(ctx, e.prefix, year)
	if err != nil {
		return report, preloadError(ctx, "load registration sequence", err)
	}
	idx := NewIndex(curps, e.prefix, year, lastSeq)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w at line %d: %v", ErrAborted, row.Line, err)
		}
		if row.Blank() {
			report.skipped = append(report.skipped, row.Line)
			continue
		}

		outcome := e.validator.Validate(row, idx)
		if !outcome.Accepted() {
			report.rejected = append(report.rejected, *outcome.Reason)
			continue
		}

		student := outcome.Student
		reason, err := e.persist(ctx, idx, year, student, row.Line)
		if err != nil {
			return report, fmt.Errorf("%w at line %d: %v", ErrAborted, row.Line, err)
		}
		if reason != nil {
			report.rejected = append(report.rejected, *reason)
			continue
		}
		idx.Commit(student.CURP, row.Line)
		report.accepted = append(report.accepted, *student)
	}
	return report, nil
}

// persist assigns a registration code and stores student. Storage failures are
// turned into a Reason; only context cancellation is returned as an error.
func (e *Engine) persist(ctx context.Context, idx *Index, year int, student *models.Student, line int) (*Reason, error) {
	for attempt := 0; ; attempt++ {
		student.RegistrationCode = idx.Reserve()
		student.EnrolledAt = e.now().UTC()

		err := e.store.Create(ctx, student)
		if err == nil {
			return nil, nil
		}
		idx.Release()
		code := student.RegistrationCode
		student.RegistrationCode = ""
		student.ID = ""
		for i := range student.Contacts {
			student.Contacts[i].ID = ""
			student.Contacts[i].StudentID = ""
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		switch {
		case errors.Is(err, models.ErrDuplicateCURP):
			e.logger.Warn("curp registered concurrently", zap.Int("line", line), zap.String("curp", student.CURP))
			idx.MarkPersisted(student.CURP)
			return &Reason{Row: line, Field: ColCURP, Rule: RulePersistenceClash, Value: student.CURP, Message: "CURP was registered by another writer during the import"}, nil
		case errors.Is(err, models.ErrDuplicateRegistrationCode):
			e.logger.Warn("registration code taken concurrently", zap.Int("line", line), zap.String("code", code), zap.Int("attempt", attempt+1))
			if attempt+1 >= e.retries {
				return &Reason{Row: line, Field: ColRegistrationCode, Rule: RulePersistenceClash, Message: "could not assign a free registration code"}, nil
			}
			if seq, serr := e.store.LastRegistrationSequence(ctx, e.prefix, year); serr == nil {
				idx.Resync(seq)
			}
		default:
			e.logger.Error("store student", zap.Int("line", line), zap.Error(err))
			return &Reason{Row: line, Rule: RuleStorageUnavailable, Message: "record could not be stored"}, nil
		}
	}
}

// preloadError reports a failed preload as an abort when ctx ended first.
func preloadError(ctx context.Context, step string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w before the first row: %v", ErrAborted, ctxErr)
	}
	return fmt.Errorf("%s: %w", step, err)
}
