package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/student-registry-api/internal/importer"
	"github.com/noah-isme/student-registry-api/internal/models"
	appErrors "github.com/noah-isme/student-registry-api/pkg/errors"
	"github.com/noah-isme/student-registry-api/pkg/storage"
	"github.com/noah-isme/student-registry-api/pkg/tabular"
)

const exportTitle = "Padrón de alumnos"

type rosterReader interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
	Now       func() time.Time
}

// ExportFile is a rendered sheet ready to be served.
type ExportFile struct {
	Filename    string
	ContentType string
	Format      tabular.Format
	Rows        int
	Data        []byte
}

// ExportResult captures a generated artifact stored for later download.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       tabular.Format
	Rows         int
	ExpiresAt    time.Time
}

// ExportService renders templates and roster exports in the import layout,
// and stores exports produced by background jobs.
type ExportService struct {
	roster  rosterReader
	storage fileStorage
	signer  *storage.SignedURLSigner
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService. storage and signer may be nil
// when export jobs are disabled.
func NewExportService(roster rosterReader, storage fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ExportService{
		roster:  roster,
		storage: storage,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Template renders the empty import layout. Only spreadsheet formats are offered.
func (s *ExportService) Template(format string) (*ExportFile, error) {
	f, err := tabular.ParseFormat(format, tabular.FormatXLSX)
	if err != nil || f == tabular.FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "template format must be xlsx or csv")
	}
	data, err := tabular.Encode(f, tabular.Dataset{Title: exportTitle, Headers: importer.Columns()})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render template")
	}
	s.metrics.ObserveExport("template", string(f))
	return &ExportFile{
		Filename:    "plantilla_alumnos." + string(f),
		ContentType: f.ContentType(),
		Format:      f,
		Data:        data,
	}, nil
}

// Export renders every student matching filter. Paging fields are ignored.
func (s *ExportService) Export(ctx context.Context, filter models.StudentFilter, format string) (*ExportFile, error) {
	f, err := tabular.ParseFormat(format, tabular.FormatXLSX)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "export format must be xlsx, csv or pdf")
	}
	filter.Page, filter.PageSize = 0, 0
	filter, err = NormalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	filter.Page, filter.PageSize = 0, 0

	start := time.Now()
	students, _, err := s.roster.List(ctx, filter)
	s.metrics.ObserveDBQuery("export_roster", time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	data, err := tabular.Encode(f, RosterDataset(students))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.metrics.ObserveExport("roster", string(f))
	return &ExportFile{
		Filename:    fmt.Sprintf("alumnos_%s.%s", s.cfg.Now().UTC().Format("20060102_150405"), f),
		ContentType: f.ContentType(),
		Format:      f,
		Rows:        len(students),
		Data:        data,
	}, nil
}

// RosterDataset lays students out in the export columns, one row each.
func RosterDataset(students []models.Student) tabular.Dataset {
	rows := make([]map[string]string, 0, len(students))
	for _, student := range students {
		rows = append(rows, importer.Cells(student))
	}
	return tabular.Dataset{Title: exportTitle, Headers: importer.ExportColumns(), Rows: rows}
}

// Generate renders the export described by job and stores it under a signed token.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	if s.storage == nil || s.signer == nil {
		return nil, errors.New("export storage not configured")
	}
	file, err := s.Export(ctx, job.Params.Filter(), job.Params.Format)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(fmt.Sprintf("%s/%s", job.ID, file.Filename), file.Data)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("export stored", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("rows", file.Rows))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       file.Format,
		Rows:         file.Rows,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	if s.signer == nil {
		return "", "", time.Time{}, errors.New("export signer not configured")
	}
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}
