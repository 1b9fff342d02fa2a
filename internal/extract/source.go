// Package extract pulls the raw health-tracking tables for a batch and
// checks them before aggregation.
package extract

import (
	"context"
	"time"

	"github.com/JonnyWalker81/healthlytics/internal/artifact"
	"github.com/JonnyWalker81/healthlytics/internal/models"
)

// Source produces the raw rows of one batch.
type Source interface {
	Fetch(ctx context.Context) (models.Extract, error)
}

// StagedSource replays an extract written by artifact.WriteStaging.
type StagedSource struct {
	Dir string
}

// Fetch implements Source.
func (s StagedSource) Fetch(ctx context.Context) (models.Extract, error) {
	if err := ctx.Err(); err != nil {
		return models.Extract{}, err
	}
	return artifact.ReadStaging(s.Dir)
}

// activityMinutes derives a session length from its start and end. Sessions
// that end before they start are treated as unmeasured.
func activityMinutes(start, end *time.Time) *float64 {
	if start == nil || end == nil {
		return nil
	}
	d := end.Sub(*start).Minutes()
	if d < 0 {
		return nil
	}
	return models.F64(d)
}
