package apierror

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ContentTypeProblemJSON is the MIME type for RFC 9457 Problem Details.
const ContentTypeProblemJSON = "application/problem+json"

// WriteProblem writes a ProblemDetails response to the gin context.
// It sets the correct Content-Type header and, if RetryAfter is set,
// also sets the Retry-After header.
func WriteProblem(c *gin.Context, problem *ProblemDetails) {
	c.Header("Content-Type", ContentTypeProblemJSON)

	if problem.RetryAfter != nil {
		c.Header("Retry-After", strconv.Itoa(*problem.RetryAfter))
	}

	c.JSON(problem.Status, problem)
}

// GetRequestID extracts the request ID from the gin context.
// Returns empty string if not found.
func GetRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Request-ID")
}

// NewValidationError creates a 400 Bad Request response for validation failures.
// Multiple field errors can be included to report all validation issues at once.
func NewValidationError(requestID string, errors []FieldError) *ProblemDetails {
	return &ProblemDetails{
		Type:      TypeValidation,
		Title:     TitleValidation,
		Status:    http.StatusBadRequest,
		Detail:    "One or more fields failed validation",
		RequestID: requestID,
		Errors:    errors,
	}
}

// NewBadRequestError creates a 400 Bad Request response for malformed requests.
func NewBadRequestError(requestID, detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:      TypeBadRequest,
		Title:     TitleBadRequest,
		Status:    http.StatusBadRequest,
		Detail:    detail,
		RequestID: requestID,
	}
}

// NewUnauthorizedError creates a 401 Unauthorized response.
func NewUnauthorizedError(requestID string) *ProblemDetails {
	return &ProblemDetails{
		Type:      TypeUnauthorized,
		Title:     TitleUnauthorized,
		Status:    http.StatusUnauthorized,
		Detail:    "A valid bearer trigger key is required",
		RequestID: requestID,
	}
}

// NewRunInProgressError creates a 409 Conflict response for an overlapping trigger.
func NewRunInProgressError(requestID string, retryAfter int) *ProblemDetails {
	return &ProblemDetails{
		Type:       TypeRunInProgress,
		Title:      TitleRunInProgress,
		Status:     http.StatusConflict,
		Detail:     "An analytics run is already in progress",
		RequestID:  requestID,
		RetryAfter: &retryAfter,
	}
}

// NewConfigurationError creates a 500 response naming the missing setting.
// detail must not contain secret values.
func NewConfigurationError(requestID, detail string) *ProblemDetails {
	return &ProblemDetails{
		Type:      TypeConfiguration,
		Title:     TitleConfiguration,
		Status:    http.StatusInternalServerError,
		Detail:    detail,
		RequestID: requestID,
	}
}

// NewInternalError creates a 500 Internal Server Error response.
// IMPORTANT: This intentionally hides internal error details from the client.
// The actual error should be logged server-side for debugging.
func NewInternalError(requestID, batchID string) *ProblemDetails {
	return &ProblemDetails{
		Type:      TypeInternal,
		Title:     TitleInternal,
		Status:    http.StatusInternalServerError,
		Detail:    "An unexpected error occurred",
		RequestID: requestID,
		BatchID:   batchID,
	}
}
