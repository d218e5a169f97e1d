package handler

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-registry-api/internal/dto"
	"github.com/noah-isme/student-registry-api/internal/models"
	"github.com/noah-isme/student-registry-api/internal/service"
	appErrors "github.com/noah-isme/student-registry-api/pkg/errors"
	"github.com/noah-isme/student-registry-api/pkg/response"
)

type exportService interface {
	Template(format string) (*service.ExportFile, error)
	Export(ctx context.Context, filter models.StudentFilter, format string) (*service.ExportFile, error)
}

type exportJobService interface {
	CreateJob(ctx context.Context, req dto.ExportJobRequest, actorID string) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.ExportJobStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler serves templates, synchronous exports and export jobs.
type ExportHandler struct {
	exports exportService
	jobs    exportJobService
}

// NewExportHandler constructs ExportHandler. jobs may be nil when export jobs are disabled.
func NewExportHandler(exports exportService, jobs exportJobService) *ExportHandler {
	return &ExportHandler{exports: exports, jobs: jobs}
}

// Template godoc
// @Summary Download the import template
// @Tags Exports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param format query string false "xlsx (default) or csv"
// @Success 200 {file} file
// @Router /students/template [get]
func (h *ExportHandler) Template(c *gin.Context) {
	file, err := h.exports.Template(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// Export godoc
// @Summary Export the roster
// @Description Exports every student matching the filters in the import layout.
// @Tags Exports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param format query string false "xlsx (default), csv or pdf"
// @Param search query string false "Search"
// @Param level query string false "Educational level"
// @Param grade query string false "Grade"
// @Param section query string false "Section"
// @Param status query string false "Status"
// @Success 200 {file} file
// @Router /students/export [get]
func (h *ExportHandler) Export(c *gin.Context) {
	filter, err := filterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Export(c.Request.Context(), filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	sendFile(c, file)
}

// CreateJob godoc
// @Summary Queue an export job
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportJobRequest true "Export parameters"
// @Success 202 {object} response.Envelope{data=dto.ExportJobResponse}
// @Router /students/export/jobs [post]
func (h *ExportHandler) CreateJob(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "export jobs are disabled"))
		return
	}
	var req dto.ExportJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	actorID := "anonymous"
	if claims := claimsFromContext(c); claims != nil {
		actorID = claims.UserID
	}
	resp, err := h.jobs.CreateJob(c.Request.Context(), req, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// JobStatus godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope{data=dto.ExportJobStatusResponse}
// @Router /students/export/jobs/{id} [get]
func (h *ExportHandler) JobStatus(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "export jobs are disabled"))
		return
	}
	resp, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Download godoc
// @Summary Download a finished export
// @Tags Exports
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	if h.jobs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "export jobs are disabled"))
		return
	}
	download, err := h.jobs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	size := int64(-1)
	if info, err := download.File.Stat(); err == nil {
		size = info.Size()
	}
	response.Attachment(c, download.Filename, download.ContentType, size, download.File)
}

func sendFile(c *gin.Context, file *service.ExportFile) {
	response.Attachment(c, file.Filename, file.ContentType, int64(len(file.Data)), bytes.NewReader(file.Data))
}
