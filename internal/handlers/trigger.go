package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/JonnyWalker81/healthlytics/internal/apierror"
	"github.com/JonnyWalker81/healthlytics/internal/config"
	"github.com/JonnyWalker81/healthlytics/internal/logger"
	"github.com/JonnyWalker81/healthlytics/internal/service"
)

// busyRetryAfter is the Retry-After hint, in seconds, for an overlapping trigger.
const busyRetryAfter = 60

// RunRequest is the optional body of POST /run.
type RunRequest struct {
	UserID *int64 `json:"user_id" validate:"omitempty,gt=0"`
}

type TriggerHandler struct {
	pipeline service.PipelineService
	validate *validator.Validate
}

// NewTriggerHandler creates a new trigger handler
func NewTriggerHandler(pipeline service.PipelineService) *TriggerHandler {
	return &TriggerHandler{
		pipeline: pipeline,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Run handles POST /run
func (h *TriggerHandler) Run(c *gin.Context) {
	requestID := apierror.GetRequestID(c)
	log := logger.Ctx(c.Request.Context())

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		apierror.WriteProblem(c, apierror.NewBadRequestError(requestID, "request body must be a JSON object"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apierror.WriteProblem(c, apierror.NewValidationError(requestID, fieldErrors(err)))
		return
	}

	// A started batch runs to completion even if the caller disconnects.
	ctx := context.WithoutCancel(c.Request.Context())
	result, err := h.pipeline.Run(ctx, service.RunOptions{UserID: req.UserID})
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		log.Info("trigger rejected: run in progress")
		apierror.WriteProblem(c, apierror.NewRunInProgressError(requestID, busyRetryAfter))
		return
	case config.IsMissing(err):
		log.Error("trigger failed: configuration", logger.Err(err))
		apierror.WriteProblem(c, apierror.NewConfigurationError(requestID, err.Error()))
		return
	case err != nil:
		batchID := ""
		if result != nil {
			batchID = result.BatchID
		}
		log.Error("trigger failed", logger.Err(err), logger.String("batch_id", batchID))
		apierror.WriteProblem(c, apierror.NewInternalError(requestID, batchID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"batchId":      result.BatchID,
		"runStatus":    result.Status,
		"failedStages": result.FailedStages,
		"artifacts":    len(result.Artifacts),
		"uploaded":     result.Uploaded,
	})
}

func fieldErrors(err error) []apierror.FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []apierror.FieldError{{Field: "body", Message: err.Error(), Code: "invalid"}}
	}
	out := make([]apierror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if field == "UserID" {
			field = "user_id"
		}
		out = append(out, apierror.FieldError{
			Field:   field,
			Message: "failed the '" + fe.Tag() + "' rule",
			Code:    fe.Tag(),
		})
	}
	return out
}
