package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-registry-api/internal/service"
	appErrors "github.com/noah-isme/student-registry-api/pkg/errors"
	"github.com/noah-isme/student-registry-api/pkg/response"
)

// multipartAllowance covers the boundaries and part headers around the file.
const multipartAllowance = 64 << 10

type importService interface {
	Import(ctx context.Context, filename string, data []byte) (*service.ImportResult, error)
}

// ImportHandler accepts spreadsheet uploads.
type ImportHandler struct {
	imports     importService
	maxFileSize int64
}

// NewImportHandler constructs ImportHandler. Request bodies are capped at
// maxFileSize plus multipart framing, so oversized uploads are cut off while
// streaming instead of being buffered.
func NewImportHandler(imports importService, maxFileSize int64) *ImportHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	return &ImportHandler{imports: imports, maxFileSize: maxFileSize}
}

// Import godoc
// @Summary Bulk import students from a spreadsheet
// @Description Every row is validated and stored independently. Rejected rows are reported with their line number and reason.
// @Tags Students
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "xlsx or csv file"
// @Success 200 {object} response.Envelope{data=service.ImportResult}
// @Failure 408 {object} response.Envelope{data=service.ImportResult}
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/import [post]
func (h *ImportHandler) Import(c *gin.Context) {
	limit := h.maxFileSize + multipartAllowance
	if c.Request.ContentLength > limit {
		h.tooLarge(c)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.tooLarge(c)
			return
		}
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart field \"file\" is required"))
		return
	}
	if header.Size > h.maxFileSize {
		h.tooLarge(c)
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnreadableFile.Code, appErrors.ErrUnreadableFile.Status, appErrors.ErrUnreadableFile.Message))
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnreadableFile.Code, appErrors.ErrUnreadableFile.Status, appErrors.ErrUnreadableFile.Message))
		return
	}

	result, err := h.imports.Import(c.Request.Context(), header.Filename, data)
	if err != nil {
		if result != nil && errors.Is(err, appErrors.ErrImportAborted) {
			response.Partial(c, result, err)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func (h *ImportHandler) tooLarge(c *gin.Context) {
	response.Error(c, appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxFileSize)))
}
