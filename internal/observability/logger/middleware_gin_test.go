package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/formmetrics/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGinMiddlewareCorrelationIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	var requestID, submissionID string
	r.POST("/api/submissions/:id/metrics/populate", func(c *gin.Context) {
		requestID = obscontext.RequestIDFromContext(c.Request.Context())
		submissionID = obscontext.SubmissionIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/submissions/42/metrics/populate", nil)
	req.Header.Set(requestIDHeader, "req-7")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-7", requestID)
	assert.Equal(t, "42", submissionID)
	assert.Equal(t, "req-7", rec.Header().Get(requestIDHeader))
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/metrics/:id", func(c *gin.Context) {
		assert.Empty(t, obscontext.SubmissionIDFromContext(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/9", nil))

	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", 200, ""))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/metrics", 500, "internal_error"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/api/mappings/:id/test", 400, "validation_error"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/mappings/:id", 404, "not_found"))
}
