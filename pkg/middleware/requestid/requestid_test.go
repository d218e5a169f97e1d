package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewarePropagatesOrAssigns(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	var seen string
	r.GET("/", func(c *gin.Context) { seen = Value(c) })

	cases := map[string]bool{
		"abc-123":                true,
		"":                       false,
		strings.Repeat("x", 200): false,
		"has space":              false,
	}
	for inbound, kept := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if inbound != "" {
			req.Header.Set(HeaderKey, inbound)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, seen, w.Header().Get(HeaderKey))
		if kept {
			assert.Equal(t, inbound, seen)
			continue
		}
		_, err := uuid.Parse(seen)
		require.NoError(t, err, inbound)
	}
}
