package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/database"
	"github.com/lemur-data/lemur-engine/pkg/models"
)

type datasetRepository struct {
	db *database.DB
}

// NewDatasetRepository creates a PostgreSQL dataset repository.
// Column data is stored as one JSONB payload per dataset.
func NewDatasetRepository(db *database.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

var _ DatasetRepository = (*datasetRepository)(nil)

func (r *datasetRepository) Save(ctx context.Context, ds *models.Dataset) error {
	payload, err := encodeDataset(ds)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}

	query := `
		INSERT INTO lemur_datasets (project_id, id, display_name, row_count, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    row_count = EXCLUDED.row_count,
		    payload = EXCLUDED.payload`

	return withTenantConn(ctx, r.db, ds.ProjectID, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, query, ds.ProjectID, ds.ID, ds.DisplayName, ds.RowCount, payload, ds.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save dataset: %w", err)
		}
		return nil
	})
}

func (r *datasetRepository) Get(ctx context.Context, projectID uuid.UUID, id string) (*models.Dataset, error) {
	query := `
		SELECT display_name, payload, created_at
		FROM lemur_datasets
		WHERE project_id = $1 AND id = $2`

	ds := &models.Dataset{ID: id, ProjectID: projectID}
	var payload []byte
	err := withTenantConn(ctx, r.db, projectID, func(conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, query, projectID, id).Scan(&ds.DisplayName, &payload, &ds.CreatedAt)
	})
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	if err := decodeDataset(payload, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (r *datasetRepository) List(ctx context.Context, projectID uuid.UUID) ([]*models.Dataset, error) {
	query := `
		SELECT id, display_name, payload, created_at
		FROM lemur_datasets
		WHERE project_id = $1
		ORDER BY created_at, id`

	var datasets []*models.Dataset
	err := withTenantConn(ctx, r.db, projectID, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, projectID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			ds := &models.Dataset{ProjectID: projectID}
			var payload []byte
			if err := rows.Scan(&ds.ID, &ds.DisplayName, &payload, &ds.CreatedAt); err != nil {
				return err
			}
			if err := decodeDataset(payload, ds); err != nil {
				return err
			}
			datasets = append(datasets, ds)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return datasets, nil
}

func (r *datasetRepository) Delete(ctx context.Context, projectID uuid.UUID, id string) error {
	return withTenantConn(ctx, r.db, projectID, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM lemur_datasets WHERE project_id = $1 AND id = $2`, projectID, id)
		if err != nil {
			return fmt.Errorf("failed to delete dataset: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}
