package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/database"
	"github.com/lemur-data/lemur-engine/pkg/models"
)

// projectRepository implements ProjectRepository using PostgreSQL.
type projectRepository struct {
	db *database.DB
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db *database.DB) ProjectRepository {
	return &projectRepository{db: db}
}

var _ ProjectRepository = (*projectRepository)(nil)

func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	if project.CreatedAt.IsZero() {
		now := time.Now().UTC()
		project.CreatedAt = now
		project.UpdatedAt = now
	}

	query := `
		INSERT INTO lemur_projects (id, name, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	return withConn(ctx, r.db, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, query,
			project.ID,
			project.Name,
			project.Context,
			project.CreatedAt,
			project.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return apperrors.ErrConflict
		}
		if err != nil {
			return fmt.Errorf("failed to create project: %w", err)
		}
		return nil
	})
}

func (r *projectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `
		SELECT id, name, context, created_at, updated_at
		FROM lemur_projects
		WHERE id = $1`

	var project models.Project
	err := withConn(ctx, r.db, func(conn *pgxpool.Conn) error {
		return conn.QueryRow(ctx, query, id).Scan(
			&project.ID,
			&project.Name,
			&project.Context,
			&project.CreatedAt,
			&project.UpdatedAt,
		)
	})
	if err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

func (r *projectRepository) List(ctx context.Context) ([]*models.Project, error) {
	query := `
		SELECT id, name, context, created_at, updated_at
		FROM lemur_projects
		ORDER BY created_at, id`

	var projects []*models.Project
	err := withConn(ctx, r.db, func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p models.Project
			if err := rows.Scan(&p.ID, &p.Name, &p.Context, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return err
			}
			projects = append(projects, &p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

func (r *projectRepository) Update(ctx context.Context, project *models.Project) error {
	query := `
		UPDATE lemur_projects
		SET name = $2, context = $3, updated_at = $4
		WHERE id = $1`

	return withConn(ctx, r.db, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, query, project.ID, project.Name, project.Context, project.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update project: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}

// Delete removes the project; datasets, relationships and messages cascade.
func (r *projectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return withConn(ctx, r.db, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM lemur_projects WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}
