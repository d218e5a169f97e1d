package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-registry-api/internal/dto"
	"github.com/noah-isme/student-registry-api/internal/models"
	"github.com/noah-isme/student-registry-api/internal/repository"
	appErrors "github.com/noah-isme/student-registry-api/pkg/errors"
	"github.com/noah-isme/student-registry-api/pkg/jobs"
)

type exportJobRepoStub struct {
	mu      sync.Mutex
	jobs    map[string]*models.ExportJob
	deleted []string
}

func newExportJobRepoStub(seed ...*models.ExportJob) *exportJobRepoStub {
	r := &exportJobRepoStub{jobs: map[string]*models.ExportJob{}}
	for _, job := range seed {
		r.jobs[job.ID] = job
	}
	return r
}

func (r *exportJobRepoStub) Create(ctx context.Context, job *models.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *exportJobRepoStub) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *job
	return &clone, nil
}

func (r *exportJobRepoStub) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.RowCount != nil {
		job.RowCount = *params.RowCount
	}
	if params.FilePath != nil {
		job.FilePath = params.FilePath
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *exportJobRepoStub) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var queued []models.ExportJob
	for _, job := range r.jobs {
		if job.Status == models.ExportStatusQueued {
			queued = append(queued, *job)
		}
	}
	return queued, nil
}

func (r *exportJobRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ExportJob
	for _, job := range r.jobs {
		if job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *exportJobRepoStub) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	r.deleted = append(r.deleted, id)
	return nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func newExportJobServiceForTest(t *testing.T, repo *exportJobRepoStub, queue *queueStub) (*ExportJobService, *ExportService) {
	t.Helper()
	exportSvc, _ := newExportServiceForTest(t, seededRoster(t))
	svc := NewExportJobService(repo, queue, exportSvc, zap.NewNop(), ExportJobServiceConfig{ResultTTL: time.Hour, CleanupInterval: time.Hour})
	return svc, exportSvc
}

func TestExportJobServiceCreateJob(t *testing.T) {
	repo := newExportJobRepoStub()
	queue := &queueStub{}
	svc, _ := newExportJobServiceForTest(t, repo, queue)

	resp, err := svc.CreateJob(context.Background(), dto.ExportJobRequest{Format: "CSV", Level: "Primaria", Section: "b"}, "admin-1")
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, ExportJobType, queue.jobs[0].Type)

	stored := repo.jobs[resp.ID]
	require.NotNil(t, stored)
	assert.Equal(t, "csv", stored.Params.Format)
	assert.Equal(t, models.Section("B"), stored.Params.Section)
	assert.Equal(t, "admin-1", stored.CreatedBy)
}

func TestExportJobServiceCreateJobValidation(t *testing.T) {
	svc, _ := newExportJobServiceForTest(t, newExportJobRepoStub(), &queueStub{})

	_, err := svc.CreateJob(context.Background(), dto.ExportJobRequest{Format: "doc"}, "admin")
	requireAppError(t, err, appErrors.ErrValidation.Code)
	_, err = svc.CreateJob(context.Background(), dto.ExportJobRequest{Grade: "9"}, "admin")
	requireAppError(t, err, appErrors.ErrValidation.Code)
}

func TestExportJobServiceCreateJobQueueFailure(t *testing.T) {
	repo := newExportJobRepoStub()
	svc, _ := newExportJobServiceForTest(t, repo, &queueStub{err: jobs.ErrQueueFull})

	_, err := svc.CreateJob(context.Background(), dto.ExportJobRequest{}, "admin")
	requireAppError(t, err, appErrors.ErrServiceUnavailable.Code)
	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ExportStatusFailed, job.Status)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestExportJobServiceGetStatus(t *testing.T) {
	msg := ""
	repo := newExportJobRepoStub(&models.ExportJob{
		ID:           "job-1",
		Params:       models.ExportJobParams{Format: "xlsx"},
		Status:       models.ExportStatusFinished,
		RowCount:     12,
		ErrorMessage: &msg,
	})
	svc, _ := newExportJobServiceForTest(t, repo, &queueStub{})

	resp, err := svc.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, resp.Status)
	assert.Equal(t, 12, resp.RowCount)
	assert.Equal(t, "xlsx", resp.Format)
	assert.Nil(t, resp.Error)

	_, err = svc.GetStatus(context.Background(), "missing")
	requireAppError(t, err, appErrors.ErrNotFound.Code)
}

func TestExportJobServiceResolveDownload(t *testing.T) {
	job := &models.ExportJob{ID: "job-download", Params: models.ExportJobParams{Format: "csv"}, Status: models.ExportStatusQueued}
	repo := newExportJobRepoStub(job)
	svc, exportSvc := newExportJobServiceForTest(t, repo, &queueStub{})

	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	requireAppError(t, err, appErrors.ErrForbidden.Code)

	job.Status = models.ExportStatusFinished
	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "alumnos_20240615_100000.csv", download.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", download.ContentType)
	data, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "GORJ140310HDFMRN01")

	_, err = svc.ResolveDownload(context.Background(), result.Token+"x")
	requireAppError(t, err, appErrors.ErrForbidden.Code)
}

func TestExportJobServiceRecoverPendingJobs(t *testing.T) {
	repo := newExportJobRepoStub(
		&models.ExportJob{ID: "queued", Status: models.ExportStatusQueued},
		&models.ExportJob{ID: "done", Status: models.ExportStatusFinished},
	)
	queue := &queueStub{}
	svc, _ := newExportJobServiceForTest(t, repo, queue)

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "queued", queue.jobs[0].ID)
}

func TestExportJobServiceCleanupExpired(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()
	expired := &models.ExportJob{ID: "expired", Params: models.ExportJobParams{Format: "csv"}, Status: models.ExportStatusFinished}
	fresh := &models.ExportJob{ID: "fresh", Params: models.ExportJobParams{Format: "csv"}, Status: models.ExportStatusFinished}
	repo := newExportJobRepoStub(expired, fresh)
	svc, exportSvc := newExportJobServiceForTest(t, repo, &queueStub{})

	for _, job := range []*models.ExportJob{expired, fresh} {
		result, err := exportSvc.Generate(context.Background(), job)
		require.NoError(t, err)
		path := result.RelativePath
		job.FilePath = &path
	}
	expired.FinishedAt = &old
	fresh.FinishedAt = &recent

	svc.CleanupExpired(context.Background())
	assert.Equal(t, []string{"expired"}, repo.deleted)
	assert.NotContains(t, repo.jobs, "expired")
	assert.Contains(t, repo.jobs, "fresh")

	_, err := exportSvc.Open(*expired.FilePath)
	assert.Error(t, err)
	file, err := exportSvc.Open(*fresh.FilePath)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func TestExportWorkerHandleSuccess(t *testing.T) {
	repo := newExportJobRepoStub(&models.ExportJob{ID: "job-1", Params: models.ExportJobParams{Format: "csv"}, Status: models.ExportStatusQueued})
	exporter := exportStub{result: &ExportResult{URL: "/api/v1/exports/token", RelativePath: "job-1/a.csv", Rows: 7}}
	worker := NewExportWorker(repo, exporter, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.NoError(t, err)
	job := repo.jobs["job-1"]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 7, job.RowCount)
	require.NotNil(t, job.FilePath)
	assert.Equal(t, "job-1/a.csv", *job.FilePath)
	require.NotNil(t, job.FinishedAt)
}

func TestExportWorkerHandleFailureRetries(t *testing.T) {
	repo := newExportJobRepoStub(&models.ExportJob{ID: "job-1", Status: models.ExportStatusQueued})
	worker := NewExportWorker(repo, exportStub{err: errors.New("boom")}, 2, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusQueued, repo.jobs["job-1"].Status)
	assert.Nil(t, repo.jobs["job-1"].FinishedAt)

	err = worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusFailed, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].ErrorMessage)
	assert.Equal(t, "boom", *repo.jobs["job-1"].ErrorMessage)
}

func TestExportWorkerUnknownJob(t *testing.T) {
	worker := NewExportWorker(newExportJobRepoStub(), exportStub{}, 1, nil)
	err := worker.Handle(context.Background(), jobs.Job{ID: "missing"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
