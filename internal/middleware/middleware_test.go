package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-registry-api/internal/models"
	appErrors "github.com/noah-isme/student-registry-api/pkg/errors"
)

type tokenStub map[string]*models.JWTClaims

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/students/:id", append(handlers, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})...)
	return r
}

func do(r http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/students/1", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestJWTRequiresBearerToken(t *testing.T) {
	tokens := tokenStub{"good": {UserID: "u1", Role: models.RoleStaff}}
	r := newRouter(JWT(tokens))

	for _, header := range []string{"", "good", "Basic good", "Bearer ", "Bearer bad"} {
		w := do(r, header)
		assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, errorCode(t, w))
	}
	assert.Equal(t, http.StatusOK, do(r, "Bearer good").Code)
	assert.Equal(t, http.StatusOK, do(r, "bearer good").Code)
}

func TestRequireRoles(t *testing.T) {
	tokens := tokenStub{
		"admin":   {UserID: "a", Role: models.RoleAdmin},
		"teacher": {UserID: "t", Role: models.RoleTeacher},
	}
	r := newRouter(JWT(tokens), RequireRoles(models.RoleAdmin, models.RoleStaff))

	assert.Equal(t, http.StatusOK, do(r, "Bearer admin").Code)
	w := do(r, "Bearer teacher")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, w))

	bare := newRouter(RequireRoles(models.RoleAdmin))
	assert.Equal(t, http.StatusUnauthorized, do(bare, "").Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	tokens := tokenStub{"good": {UserID: "u1", Role: models.RoleStaff}}
	var seen *models.JWTClaims
	r := newRouter(OptionalJWT(tokens), func(c *gin.Context) {
		if v, ok := c.Get(ContextUserKey); ok {
			seen = v.(*models.JWTClaims)
		}
	})

	assert.Equal(t, http.StatusOK, do(r, "Bearer bad").Code)
	assert.Nil(t, seen)
	assert.Equal(t, http.StatusOK, do(r, "Bearer good").Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	var meta map[string]interface{}
	r.GET("/stats", func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.NotNil(t, meta)
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Contains(t, meta, processingTimeMs)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, ExtractMeta(c))
}
