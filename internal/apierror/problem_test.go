package apierror

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Set gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

func TestProblemDetailsJSON(t *testing.T) {
	retryAfter := 60
	problem := &ProblemDetails{
		Type:       TypeValidation,
		Title:      TitleValidation,
		Status:     http.StatusBadRequest,
		Detail:     "Field validation failed",
		Instance:   "/run",
		RequestID:  "req-abc123",
		BatchID:    "batch_20240501_020000_abcdef01",
		RetryAfter: &retryAfter,
		Errors: []FieldError{
			{Field: "user_id", Message: "must be positive", Code: "gt"},
		},
	}

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, TypeValidation, result["type"])
	assert.Equal(t, TitleValidation, result["title"])
	assert.Equal(t, float64(http.StatusBadRequest), result["status"])
	assert.Equal(t, "Field validation failed", result["detail"])
	assert.Equal(t, "/run", result["instance"])
	assert.Equal(t, "req-abc123", result["request_id"])
	assert.Equal(t, "batch_20240501_020000_abcdef01", result["batch_id"])
	assert.Equal(t, float64(60), result["retry_after"])
	assert.Len(t, result["errors"], 1)
}

func TestProblemDetailsJSONOmitsEmpty(t *testing.T) {
	problem := &ProblemDetails{
		Type:   TypeInternal,
		Title:  TitleInternal,
		Status: http.StatusInternalServerError,
	}

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(data, &result))

	for _, field := range []string{"detail", "instance", "request_id", "batch_id", "retry_after", "errors"} {
		assert.NotContains(t, result, field)
	}
	for _, field := range []string{"type", "title", "status"} {
		assert.Contains(t, result, field)
	}
}

func TestWriteProblemContentType(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	WriteProblem(c, NewInternalError("req-123", ""))

	assert.Equal(t, ContentTypeProblemJSON, w.Header().Get("Content-Type"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestWriteProblemRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	WriteProblem(c, NewRunInProgressError("req-456", 30))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var result map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, TypeRunInProgress, result["type"])
	assert.Equal(t, float64(30), result["retry_after"])
}

func TestNewConfigurationError(t *testing.T) {
	problem := NewConfigurationError("req-1", "DATABASE_URL is required")
	assert.Equal(t, http.StatusInternalServerError, problem.Status)
	assert.Equal(t, TypeConfiguration, problem.Type)
	assert.Equal(t, "DATABASE_URL is required", problem.Error())
}

func TestNewInternalErrorHidesDetails(t *testing.T) {
	problem := NewInternalError("req-xyz", "batch_1")
	assert.Equal(t, "An unexpected error occurred", problem.Detail)
	assert.Equal(t, "batch_1", problem.BatchID)
}

func TestProblemDetailsErrorFallsBackToTitle(t *testing.T) {
	problem := &ProblemDetails{Title: TitleUnauthorized}
	assert.Equal(t, TitleUnauthorized, problem.Error())
}

func TestGetRequestID(t *testing.T) {
	t.Run("from context", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Set("request_id", "ctx-id")
		assert.Equal(t, "ctx-id", GetRequestID(c))
	})
	t.Run("from header", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set("X-Request-ID", "hdr-id")
		assert.Equal(t, "hdr-id", GetRequestID(c))
	})
}
