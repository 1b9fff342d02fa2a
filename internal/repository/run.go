package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/pkg/supabase"
)

type runRepository struct {
	client *supabase.Client
}

// NewRunRepository creates a new run repository backed by PostgREST
func NewRunRepository(client *supabase.Client) RunRepository {
	return &runRepository{client: client}
}

func (r *runRepository) Create(ctx context.Context, run *models.RunLog) error {
	data := map[string]interface{}{
		"batch_id":   run.BatchID,
		"started_at": run.StartedAt,
		"status":     run.Status,
	}

	if _, err := r.client.Upsert(ctx, TableRuns, data, "batch_id"); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *runRepository) Finish(ctx context.Context, run *models.RunLog) error {
	stages := run.FailedStages
	if stages == nil {
		stages = []string{}
	}
	data := map[string]interface{}{
		"finished_at":    run.FinishedAt,
		"status":         run.Status,
		"rows_processed": run.RowsProcessed,
		"error":          run.Error,
		"failed_stages":  stages,
	}

	body, err := r.client.UpdateWhere(ctx, TableRuns, map[string]string{"batch_id": "eq." + run.BatchID}, data)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	var runs []models.RunLog
	if err := json.Unmarshal(body, &runs); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(runs) == 0 {
		return fmt.Errorf("failed to finish run %s: %w", run.BatchID, ErrNotFound)
	}
	return nil
}

func (r *runRepository) GetByBatchID(ctx context.Context, batchID string) (*models.RunLog, error) {
	body, err := r.client.Query(ctx, TableRuns, map[string]string{
		"select":   "*",
		"batch_id": "eq." + batchID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var runs []models.RunLog
	if err := json.Unmarshal(body, &runs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return &runs[0], nil
}
