package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/student-registry-api/internal/importer"
	"github.com/noah-isme/student-registry-api/internal/models"
	appErrors "github.com/noah-isme/student-registry-api/pkg/errors"
	"github.com/noah-isme/student-registry-api/pkg/tabular"
)

const defaultMaxImportSize = 10 * 1024 * 1024

// ImportServiceConfig bounds spreadsheet uploads.
type ImportServiceConfig struct {
	MaxFileSize        int64
	Timeout            time.Duration
	AllowedMIMEs       []string
	RegistrationPrefix string
	Now                func() time.Time
}

// ImportedRecord summarises one accepted row.
type ImportedRecord struct {
	ID               string                `json:"id"`
	RegistrationCode string                `json:"registration_code"`
	GivenName        string                `json:"given_name"`
	PaternalSurname  string                `json:"paternal_surname"`
	MaternalSurname  *string               `json:"maternal_surname,omitempty"`
	CURP             string                `json:"curp"`
	Level            models.EducationLevel `json:"education_level"`
	Grade            models.Grade          `json:"grade"`
	Section          models.Section        `json:"section"`
}

// ImportResult is the report returned to callers of an import.
type ImportResult struct {
	SuccessCount    int               `json:"success_count"`
	ErrorCount      int               `json:"error_count"`
	SkippedCount    int               `json:"skipped_count"`
	ImportedRecords []ImportedRecord  `json:"imported_records"`
	Errors          []string          `json:"errors"`
	Rejections      []importer.Reason `json:"rejections"`
	Format          tabular.Format    `json:"format"`
	DurationMs      int64             `json:"duration_ms"`
}

// statsInvalidator drops cached aggregates once rows were written.
type statsInvalidator interface {
	InvalidateStats(ctx context.Context)
}

// ImportService runs spreadsheet imports: file-level checks, the row engine,
// metrics and logging.
type ImportService struct {
	store   importer.Store
	stats   statsInvalidator
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ImportServiceConfig
}

// NewImportService constructs the import service.
func NewImportService(store importer.Store, stats statsInvalidator, metrics *MetricsService, logger *zap.Logger, cfg ImportServiceConfig) *ImportService {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxImportSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RegistrationPrefix == "" {
		cfg.RegistrationPrefix = defaultRegistrationPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{store: store, stats: stats, metrics: metrics, logger: logger, cfg: cfg}
}

// Import decodes data and imports every row. File-level problems are returned
// as the sole error. When the import is cut short by ctx or the configured
// timeout, the partial result is returned together with ErrImportAborted.
func (s *ImportService) Import(ctx context.Context, filename string, data []byte) (*ImportResult, error) {
	start := time.Now()
	rows, format, err := s.decode(data)
	if err != nil {
		s.logger.Info("import rejected", zap.String("file", filename), zap.Error(err))
		return nil, err
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	engine := importer.NewEngine(s.store, importer.Options{
		RegistrationPrefix: s.cfg.RegistrationPrefix,
		Now:                s.cfg.Now,
		Logger:             s.logger,
	})
	report, runErr := engine.Run(ctx, rows)
	duration := time.Since(start)

	result := buildImportResult(report, format, duration)
	if result.SuccessCount > 0 && s.stats != nil {
		s.stats.InvalidateStats(context.WithoutCancel(ctx))
	}
	s.metrics.ObserveImport(result.SuccessCount, result.ErrorCount, result.SkippedCount, duration)

	fields := []zap.Field{
		zap.String("file", filename),
		zap.String("format", string(format)),
		zap.Int("rows", len(rows)),
		zap.Int("accepted", result.SuccessCount),
		zap.Int("rejected", result.ErrorCount),
		zap.Int("skipped", result.SkippedCount),
		zap.Duration("duration", duration),
	}
	for _, reason := range result.Rejections {
		if reason.Rule == importer.RulePersistenceClash || reason.Rule == importer.RuleStorageUnavailable {
			s.logger.Warn("import row lost to storage", zap.Int("row", reason.Row), zap.String("rule", string(reason.Rule)), zap.String("message", reason.Message))
		}
	}

	if runErr != nil {
		if errors.Is(runErr, importer.ErrAborted) {
			s.logger.Warn("import aborted", append(fields, zap.Error(runErr))...)
			return result, appErrors.Wrap(runErr, appErrors.ErrImportAborted.Code, appErrors.ErrImportAborted.Status,
				fmt.Sprintf("import aborted after %d rows; committed rows were kept", result.SuccessCount+result.ErrorCount))
		}
		s.logger.Error("import failed", append(fields, zap.Error(runErr))...)
		return nil, appErrors.Wrap(runErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load stored students")
	}
	s.logger.Info("import finished", fields...)
	return result, nil
}

func (s *ImportService) decode(data []byte) ([]importer.Row, tabular.Format, error) {
	if len(data) == 0 {
		return nil, "", appErrors.Clone(appErrors.ErrEmptySheet, "file is empty")
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, "", appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("file exceeds maximum size of %d bytes", s.cfg.MaxFileSize))
	}
	_, detected, err := tabular.Detect(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnsupportedFile.Code, appErrors.ErrUnsupportedFile.Status,
			fmt.Sprintf("%s (detected %s)", appErrors.ErrUnsupportedFile.Message, detected))
	}
	if !s.mimeAllowed(detected) {
		return nil, "", appErrors.Clone(appErrors.ErrUnsupportedFile, fmt.Sprintf("file type %s is not allowed", detected))
	}

	cells, format, err := tabular.Decode(data)
	if err != nil {
		if errors.Is(err, tabular.ErrUnsupportedFormat) {
			return nil, "", appErrors.Wrap(err, appErrors.ErrUnsupportedFile.Code, appErrors.ErrUnsupportedFile.Status, appErrors.ErrUnsupportedFile.Message)
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnreadableFile.Code, appErrors.ErrUnreadableFile.Status, appErrors.ErrUnreadableFile.Message)
	}

	rows, err := importer.ParseRows(cells)
	if err != nil {
		var missing *importer.MissingColumnsError
		switch {
		case errors.As(err, &missing):
			return nil, format, appErrors.Wrap(err, appErrors.ErrMissingColumns.Code, appErrors.ErrMissingColumns.Status,
				"sheet is missing required columns: "+strings.Join(missing.Columns, ", "))
		case errors.Is(err, importer.ErrEmptySheet):
			return nil, format, appErrors.Wrap(err, appErrors.ErrEmptySheet.Code, appErrors.ErrEmptySheet.Status, appErrors.ErrEmptySheet.Message)
		}
		return nil, format, appErrors.Wrap(err, appErrors.ErrUnreadableFile.Code, appErrors.ErrUnreadableFile.Status, appErrors.ErrUnreadableFile.Message)
	}
	return rows, format, nil
}

func (s *ImportService) mimeAllowed(detected string) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedMIMEs {
		if strings.EqualFold(strings.TrimSpace(allowed), detected) {
			return true
		}
	}
	return false
}

func buildImportResult(report *importer.Report, format tabular.Format, duration time.Duration) *ImportResult {
	result := &ImportResult{
		ImportedRecords: []ImportedRecord{},
		Errors:          []string{},
		Rejections:      []importer.Reason{},
		Format:          format,
		DurationMs:      duration.Milliseconds(),
	}
	if report == nil {
		return result
	}
	for _, student := range report.Accepted() {
		result.ImportedRecords = append(result.ImportedRecords, ImportedRecord{
			ID:               student.ID,
			RegistrationCode: student.RegistrationCode,
			GivenName:        student.GivenName,
			PaternalSurname:  student.PaternalSurname,
			MaternalSurname:  student.MaternalSurname,
			CURP:             student.CURP,
			Level:            student.Level,
			Grade:            student.Grade,
			Section:          student.Section,
		})
	}
	result.Rejections = append(result.Rejections, report.Rejected()...)
	result.Errors = append(result.Errors, report.Messages()...)
	result.SuccessCount = report.AcceptedCount()
	result.ErrorCount = report.RejectedCount()
	result.SkippedCount = len(report.Skipped())
	return result
}
