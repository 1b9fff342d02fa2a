package repository

import (
	"context"
	"fmt"

	"github.com/JonnyWalker81/healthlytics/internal/models"
	"github.com/JonnyWalker81/healthlytics/pkg/supabase"
)

// insertChunk bounds the rows sent in one PostgREST request.
const insertChunk = 500

type relationshipRepository struct {
	client *supabase.Client
}

// NewRelationshipRepository creates a new relationship repository backed by PostgREST
func NewRelationshipRepository(client *supabase.Client) RelationshipRepository {
	return &relationshipRepository{client: client}
}

func (r *relationshipRepository) BulkInsert(ctx context.Context, batchID string, rows []models.Relationship) error {
	if len(rows) == 0 {
		return nil
	}

	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))

		// PostgREST requires all objects to have the same keys for bulk insert
		data := make([]map[string]interface{}, 0, end-start)
		for _, rel := range rows[start:end] {
			data = append(data, map[string]interface{}{
				"batch_id": batchID,
				"user_id":  rel.UserID,
				"var_x":    rel.VarX,
				"var_y":    rel.VarY,
				"metric":   rel.Metric,
				"value":    rel.Value,
				"lag":      rel.Lag,
			})
		}

		if _, err := r.client.Insert(ctx, TableRelationships, data); err != nil {
			return fmt.Errorf("failed to bulk insert relationships: %w", err)
		}
	}
	return nil
}

func (r *relationshipRepository) GetByBatchID(ctx context.Context, batchID string) ([]models.Relationship, error) {
	rows, err := supabase.QueryAll[models.Relationship](ctx, r.client, TableRelationships, map[string]string{
		"select":   "user_id,var_x,var_y,metric,value,lag",
		"batch_id": "eq." + batchID,
	}, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to get relationships: %w", err)
	}
	return rows, nil
}

// NewSupabaseRepositories wires the PostgREST-backed stores.
func NewSupabaseRepositories(client *supabase.Client) *Repositories {
	return NewRepositories(
		NewRunRepository(client),
		NewSummaryRepository(client),
		NewRelationshipRepository(client),
		nil,
	)
}
