package service

import (
	"context"
	"errors"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

// ErrRunInProgress is returned when a run is requested while another is active.
var ErrRunInProgress = errors.New("an analytics run is already in progress")

// RunOptions narrows a single run.
type RunOptions struct {
	// UserID restricts every raw table to one user. Nil uses the configured
	// filter, if any.
	UserID *int64
}

// PipelineService defines the interface for running an analytics batch
type PipelineService interface {
	Run(ctx context.Context, opts RunOptions) (*models.RunResult, error)
}
