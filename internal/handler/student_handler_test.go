package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-registry-api/internal/middleware"
	"github.com/noah-isme/student-registry-api/internal/models"
	"github.com/noah-isme/student-registry-api/internal/service"
	appErrors "github.com/noah-isme/student-registry-api/pkg/errors"
)

type studentServiceMock struct {
	listResp   []models.Student
	pagination *models.Pagination
	student    *models.Student
	stats      *models.StudentStats
	cached     bool
	err        error

	lastFilter models.StudentFilter
	lastID     string
	lastCode   string
	lastCreate service.CreateStudentRequest
	lastUpdate service.UpdateStudentRequest
}

func (m *studentServiceMock) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	m.lastFilter = filter
	return m.listResp, m.pagination, m.err
}

func (m *studentServiceMock) Get(ctx context.Context, id string) (*models.Student, error) {
	m.lastID = id
	return m.student, m.err
}

func (m *studentServiceMock) GetByRegistrationCode(ctx context.Context, code string) (*models.Student, error) {
	m.lastCode = code
	return m.student, m.err
}

func (m *studentServiceMock) Create(ctx context.Context, req service.CreateStudentRequest) (*models.Student, error) {
	m.lastCreate = req
	return m.student, m.err
}

func (m *studentServiceMock) Update(ctx context.Context, id string, req service.UpdateStudentRequest) (*models.Student, error) {
	m.lastID = id
	m.lastUpdate = req
	return m.student, m.err
}

func (m *studentServiceMock) Delete(ctx context.Context, id string) error {
	m.lastID = id
	return m.err
}

func (m *studentServiceMock) Stats(ctx context.Context) (*models.StudentStats, bool, error) {
	return m.stats, m.cached, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestStudentHandlerListParsesFilters(t *testing.T) {
	mockSvc := &studentServiceMock{
		listResp:   []models.Student{{ID: "s1", GivenName: "Ana"}},
		pagination: &models.Pagination{Page: 2, PageSize: 10, TotalCount: 11, TotalPages: 2},
	}
	handler := NewStudentHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/students?search=ana&level=Primaria&grade=4&section=b&status=Activo&page=2&page_size=10", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StudentFilter{
		Search:   "ana",
		Level:    models.LevelPrimaria,
		Grade:    "4",
		Section:  "b",
		Status:   models.StatusActive,
		Page:     2,
		PageSize: 10,
	}, mockSvc.lastFilter)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 2, env.Pagination.TotalPages)
}

func TestStudentHandlerListRejectsNonNumericPaging(t *testing.T) {
	handler := NewStudentHandler(&studentServiceMock{})
	c, w := newGinContext(http.MethodGet, "/students?page=two", nil)
	handler.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, w).Error.Code)
}

func TestStudentHandlerCreate(t *testing.T) {
	mockSvc := &studentServiceMock{student: &models.Student{ID: "s1", RegistrationCode: "UNI2024001"}}
	handler := NewStudentHandler(mockSvc)

	payload, _ := json.Marshal(map[string]interface{}{
		"given_name":       "Juan",
		"paternal_surname": "Gómez",
		"birth_date":       "2014-03-10",
		"curp":             "GORJ140310HDFMRN01",
		"education_level":  "Primaria",
		"grade":            "4",
		"section":          "B",
		"emergency_contacts": []map[string]string{
			{"full_name": "María Ruiz", "phone": "5512345678", "relationship": "Madre"},
		},
	})
	c, w := newGinContext(http.MethodPost, "/students", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "GORJ140310HDFMRN01", mockSvc.lastCreate.CURP)
	assert.Equal(t, "2014-03-10", mockSvc.lastCreate.BirthDate)
	require.Len(t, mockSvc.lastCreate.Contacts, 1)
	assert.Equal(t, models.RelationshipMother, mockSvc.lastCreate.Contacts[0].Relationship)
}

func TestStudentHandlerCreateInvalidBody(t *testing.T) {
	handler := NewStudentHandler(&studentServiceMock{})
	c, w := newGinContext(http.MethodPost, "/students", []byte(`{"given_name":`))
	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentHandlerConflictAndNotFound(t *testing.T) {
	mockSvc := &studentServiceMock{err: appErrors.Clone(appErrors.ErrConflict, "CURP already registered")}
	handler := NewStudentHandler(mockSvc)

	c, w := newGinContext(http.MethodPut, "/students/s1", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	handler.Update(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "s1", mockSvc.lastID)

	mockSvc.err = appErrors.Clone(appErrors.ErrNotFound, "student not found")
	c, w = newGinContext(http.MethodDelete, "/students/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Delete(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "student not found", decodeEnvelope(t, w).Error.Message)
}

func TestStudentHandlerDeleteAndLookup(t *testing.T) {
	mockSvc := &studentServiceMock{student: &models.Student{ID: "s1", RegistrationCode: "UNI2024001"}}
	handler := NewStudentHandler(mockSvc)

	c, w := newGinContext(http.MethodDelete, "/students/s1", nil)
	c.Params = gin.Params{{Key: "id", Value: "s1"}}
	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)

	c, w = newGinContext(http.MethodGet, "/students/registration/uni2024001", nil)
	c.Params = gin.Params{{Key: "code", Value: "uni2024001"}}
	handler.GetByRegistrationCode(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "uni2024001", mockSvc.lastCode)
}

func TestStudentHandlerStatsReportsCacheHit(t *testing.T) {
	mockSvc := &studentServiceMock{
		stats:  &models.StudentStats{Total: 3, ByStatus: map[models.StudentStatus]int{models.StatusActive: 3}},
		cached: true,
	}
	handler := NewStudentHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/students/stats", nil)
	c.Set("response_meta", map[string]interface{}{})
	handler.Stats(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	var stats models.StudentStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 3, stats.Total)
}
