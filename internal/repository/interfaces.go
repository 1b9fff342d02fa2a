package repository

import (
	"context"
	"errors"

	"github.com/JonnyWalker81/healthlytics/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Table names shared by every backend.
const (
	TableRuns          = "analytics_runs"
	TableSummary       = "analytics_summary"
	TableRelationships = "analytics_relationships"
)

// RunRepository defines the interface for batch run bookkeeping
type RunRepository interface {
	Create(ctx context.Context, run *models.RunLog) error
	Finish(ctx context.Context, run *models.RunLog) error
	GetByBatchID(ctx context.Context, batchID string) (*models.RunLog, error)
}

// SummaryRepository defines the interface for per-user batch summaries
type SummaryRepository interface {
	Upsert(ctx context.Context, batchID string, userID int64, summary models.UserSummary, insights *string) error
	GetByBatchID(ctx context.Context, batchID string) ([]models.SummaryRecord, error)
}

// RelationshipRepository defines the interface for persisted relationship measurements
type RelationshipRepository interface {
	BulkInsert(ctx context.Context, batchID string, rows []models.Relationship) error
	GetByBatchID(ctx context.Context, batchID string) ([]models.Relationship, error)
}

// Repositories bundles the stores a pipeline run writes to.
type Repositories struct {
	Runs          RunRepository
	Summaries     SummaryRepository
	Relationships RelationshipRepository
	closeFn       func() error
}

// NewRepositories bundles the three stores. closeFn releases the backing
// connection and may be nil.
func NewRepositories(runs RunRepository, summaries SummaryRepository, rels RelationshipRepository, closeFn func() error) *Repositories {
	return &Repositories{Runs: runs, Summaries: summaries, Relationships: rels, closeFn: closeFn}
}

// Close releases the backing connection.
func (r *Repositories) Close() error {
	if r == nil || r.closeFn == nil {
		return nil
	}
	return r.closeFn()
}
