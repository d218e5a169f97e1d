package dto

import (
	"time"

	"github.com/noah-isme/student-registry-api/internal/models"
)

// ExportJobRequest captures the POST /students/export/jobs payload.
type ExportJobRequest struct {
	Format  string                `json:"format"`
	Search  string                `json:"search,omitempty"`
	Level   models.EducationLevel `json:"level,omitempty"`
	Grade   models.Grade          `json:"grade,omitempty"`
	Section models.Section        `json:"section,omitempty"`
	Status  models.StudentStatus  `json:"status,omitempty"`
}

// Filter returns the roster criteria carried by the request.
func (r ExportJobRequest) Filter() models.StudentFilter {
	return models.StudentFilter{
		Search:  r.Search,
		Level:   r.Level,
		Grade:   r.Grade,
		Section: r.Section,
		Status:  r.Status,
	}
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ExportStatus `json:"status"`
}

// ExportJobStatusResponse exposes job progress metadata.
type ExportJobStatusResponse struct {
	ID         string              `json:"id"`
	Status     models.ExportStatus `json:"status"`
	Format     string              `json:"format"`
	RowCount   int                 `json:"row_count"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
