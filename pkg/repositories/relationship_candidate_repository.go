package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lemur-data/lemur-engine/pkg/database"
	"github.com/lemur-data/lemur-engine/pkg/models"
)

type relationshipCandidateRepository struct {
	db *database.DB
}

// NewRelationshipCandidateRepository creates a PostgreSQL relationship repository.
func NewRelationshipCandidateRepository(db *database.DB) RelationshipRepository {
	return &relationshipCandidateRepository{db: db}
}

var _ RelationshipRepository = (*relationshipCandidateRepository)(nil)

const insertRelationshipQuery = `
	INSERT INTO lemur_relationships (
		project_id, id, source_dataset_id, source_column, target_dataset_id, target_column,
		confidence, matching_count, source_unmatched, target_unmatched, provenance, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (project_id, id) DO UPDATE
	SET confidence = EXCLUDED.confidence,
	    matching_count = EXCLUDED.matching_count,
	    source_unmatched = EXCLUDED.source_unmatched,
	    target_unmatched = EXCLUDED.target_unmatched,
	    provenance = EXCLUDED.provenance,
	    created_at = EXCLUDED.created_at`

func relationshipArgs(projectID uuid.UUID, c *models.RelationshipCandidate) []any {
	return []any{
		projectID, c.ID, c.SourceDatasetID, c.SourceColumn, c.TargetDatasetID, c.TargetColumn,
		c.Confidence, c.MatchingCount, c.SourceUnmatched, c.TargetUnmatched, string(c.Provenance), c.CreatedAt,
	}
}

func (r *relationshipCandidateRepository) List(ctx context.Context, projectID uuid.UUID) ([]models.RelationshipCandidate, error) {
	query := `
		SELECT id, source_dataset_id, source_column, target_dataset_id, target_column,
		       confidence, matching_count, source_unmatched, target_unmatched, provenance, created_at
		FROM lemur_relationships
		WHERE project_id = $1
		ORDER BY created_at, id`

	var out []models.RelationshipCandidate
	err := withTenantConn(ctx, r.db, projectID, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, projectID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c models.RelationshipCandidate
			var provenance string
			if err := rows.Scan(
				&c.ID, &c.SourceDatasetID, &c.SourceColumn, &c.TargetDatasetID, &c.TargetColumn,
				&c.Confidence, &c.MatchingCount, &c.SourceUnmatched, &c.TargetUnmatched, &provenance, &c.CreatedAt,
			); err != nil {
				return err
			}
			c.Provenance = models.Provenance(provenance)
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	return out, nil
}

func (r *relationshipCandidateRepository) ReplaceDetected(ctx context.Context, projectID uuid.UUID, datasetA, datasetB string, candidates []models.RelationshipCandidate) error {
	deleteQuery := `
		DELETE FROM lemur_relationships
		WHERE project_id = $1 AND provenance = 'detected'
		  AND ((source_dataset_id = $2 AND target_dataset_id = $3)
		    OR (source_dataset_id = $3 AND target_dataset_id = $2))`

	return withTenantConn(ctx, r.db, projectID, func(conn *pgxpool.Conn) error {
		return inTx(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, deleteQuery, projectID, datasetA, datasetB); err != nil {
				return fmt.Errorf("failed to clear detected relationships: %w", err)
			}

			batch := &pgx.Batch{}
			for i := range candidates {
				batch.Queue(insertRelationshipQuery, relationshipArgs(projectID, &candidates[i])...)
			}
			if batch.Len() == 0 {
				return nil
			}
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert detected relationships: %w", err)
			}
			return nil
		})
	})
}

func (r *relationshipCandidateRepository) SaveDeclared(ctx context.Context, projectID uuid.UUID, candidate *models.RelationshipCandidate) error {
	return withTenantConn(ctx, r.db, projectID, func(conn *pgxpool.Conn) error {
		if _, err := conn.Exec(ctx, insertRelationshipQuery, relationshipArgs(projectID, candidate)...); err != nil {
			return fmt.Errorf("failed to save relationship: %w", err)
		}
		return nil
	})
}

func (r *relationshipCandidateRepository) DeleteTouching(ctx context.Context, projectID uuid.UUID, datasetID string) error {
	query := `
		DELETE FROM lemur_relationships
		WHERE project_id = $1 AND (source_dataset_id = $2 OR target_dataset_id = $2)`

	return withTenantConn(ctx, r.db, projectID, func(conn *pgxpool.Conn) error {
		if _, err := conn.Exec(ctx, query, projectID, datasetID); err != nil {
			return fmt.Errorf("failed to delete relationships: %w", err)
		}
		return nil
	})
}
