package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/pkg/supabase"
)

type summaryRepository struct {
	client *supabase.Client
}

// NewSummaryRepository creates a new summary repository backed by PostgREST
func NewSummaryRepository(client *supabase.Client) SummaryRepository {
	return &summaryRepository{client: client}
}

func (r *summaryRepository) Upsert(ctx context.Context, batchID string, userID int64, summary models.UserSummary, insights *string) error {
	data := map[string]interface{}{
		"batch_id": batchID,
		"user_id":  userID,
		"summary":  summary,
		"insights": insights,
	}

	if _, err := r.client.Upsert(ctx, TableSummary, data, "batch_id,user_id"); err != nil {
		return fmt.Errorf("failed to upsert summary for user %d: %w", userID, err)
	}
	return nil
}

func (r *summaryRepository) GetByBatchID(ctx context.Context, batchID string) ([]models.SummaryRecord, error) {
	body, err := r.client.Query(ctx, TableSummary, map[string]string{
		"select":   "batch_id,user_id,summary,insights",
		"batch_id": "eq." + batchID,
		"order":    "user_id.asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get summaries: %w", err)
	}

	var records []models.SummaryRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return records, nil
}
