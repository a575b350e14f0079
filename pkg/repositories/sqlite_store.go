package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/lemur-data/lemur-engine/pkg/apperrors"
	"github.com/lemur-data/lemur-engine/pkg/models"
)

// NewSQLiteStore creates a Store on a migrated SQLite database (see database.OpenSQLite).
// Timestamps are stored as RFC 3339 text.
func NewSQLiteStore(db *sql.DB) *Store {
	return &Store{
		Projects:      &sqliteProjects{db},
		Datasets:      &sqliteDatasets{db},
		Relationships: &sqliteRelationships{db},
		Conversations: &sqliteConversations{db},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// ============================================================================
// Projects
// ============================================================================

type sqliteProjects struct{ db *sql.DB }

var _ ProjectRepository = (*sqliteProjects)(nil)

func (r *sqliteProjects) Create(ctx context.Context, project *models.Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lemur_projects (id, name, context, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		project.ID.String(), project.Name, project.Context, formatTime(project.CreatedAt), formatTime(project.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func scanProject(scan func(dest ...any) error) (*models.Project, error) {
	var p models.Project
	var id, created, updated string
	if err := scan(&id, &p.Name, &p.Context, &created, &updated); err != nil {
		return nil, err
	}

	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *sqliteProjects) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, context, created_at, updated_at FROM lemur_projects WHERE id = ?`, id.String())
	p, err := scanProject(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (r *sqliteProjects) List(ctx context.Context) ([]*models.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, context, created_at, updated_at FROM lemur_projects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *sqliteProjects) Update(ctx context.Context, project *models.Project) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE lemur_projects SET name = ?, context = ?, updated_at = ? WHERE id = ?`,
		project.Name, project.Context, formatTime(project.UpdatedAt), project.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return requireAffected(res)
}

func (r *sqliteProjects) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM lemur_projects WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// ============================================================================
// Datasets
// ============================================================================

type sqliteDatasets struct{ db *sql.DB }

var _ DatasetRepository = (*sqliteDatasets)(nil)

func (r *sqliteDatasets) Save(ctx context.Context, ds *models.Dataset) error {
	payload, err := encodeDataset(ds)
	if err != nil {
		return fmt.Errorf("failed to marshal dataset: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO lemur_datasets (project_id, id, display_name, row_count, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, id) DO UPDATE
		SET display_name = excluded.display_name,
		    row_count = excluded.row_count,
		    payload = excluded.payload`,
		ds.ProjectID.String(), ds.ID, ds.DisplayName, ds.RowCount, payload, formatTime(ds.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}
	return nil
}

func scanDataset(projectID uuid.UUID, scan func(dest ...any) error) (*models.Dataset, error) {
	ds := &models.Dataset{ProjectID: projectID}
	var payload []byte
	var created string
	if err := scan(&ds.ID, &ds.DisplayName, &payload, &created); err != nil {
		return nil, err
	}

	var err error
	if ds.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if err := decodeDataset(payload, ds); err != nil {
		return nil, err
	}
	return ds, nil
}

func (r *sqliteDatasets) Get(ctx context.Context, projectID uuid.UUID, id string) (*models.Dataset, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, payload, created_at
		FROM lemur_datasets
		WHERE project_id = ? AND id = ?`, projectID.String(), id)
	ds, err := scanDataset(projectID, row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return ds, nil
}

func (r *sqliteDatasets) List(ctx context.Context, projectID uuid.UUID) ([]*models.Dataset, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, display_name, payload, created_at
		FROM lemur_datasets
		WHERE project_id = ?
		ORDER BY created_at, id`, projectID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var datasets []*models.Dataset
	for rows.Next() {
		ds, err := scanDataset(projectID, rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, ds)
	}
	return datasets, rows.Err()
}

func (r *sqliteDatasets) Delete(ctx context.Context, projectID uuid.UUID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM lemur_datasets WHERE project_id = ? AND id = ?`, projectID.String(), id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return requireAffected(res)
}

// ============================================================================
// Relationships
// ============================================================================

type sqliteRelationships struct{ db *sql.DB }

var _ RelationshipRepository = (*sqliteRelationships)(nil)

const sqliteUpsertRelationship = `
	INSERT INTO lemur_relationships (
		project_id, id, source_dataset_id, source_column, target_dataset_id, target_column,
		confidence, matching_count, source_unmatched, target_unmatched, provenance, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (project_id, id) DO UPDATE
	SET confidence = excluded.confidence,
	    matching_count = excluded.matching_count,
	    source_unmatched = excluded.source_unmatched,
	    target_unmatched = excluded.target_unmatched,
	    provenance = excluded.provenance,
	    created_at = excluded.created_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertRelationship(ctx context.Context, db execer, projectID uuid.UUID, c *models.RelationshipCandidate) error {
	_, err := db.ExecContext(ctx, sqliteUpsertRelationship,
		projectID.String(), c.ID, c.SourceDatasetID, c.SourceColumn, c.TargetDatasetID, c.TargetColumn,
		c.Confidence, c.MatchingCount, c.SourceUnmatched, c.TargetUnmatched, string(c.Provenance), formatTime(c.CreatedAt))
	return err
}

func (r *sqliteRelationships) List(ctx context.Context, projectID uuid.UUID) ([]models.RelationshipCandidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_dataset_id, source_column, target_dataset_id, target_column,
		       confidence, matching_count, source_unmatched, target_unmatched, provenance, created_at
		FROM lemur_relationships
		WHERE project_id = ?
		ORDER BY created_at, id`, projectID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list relationships: %w", err)
	}
	defer rows.Close()

	var out []models.RelationshipCandidate
	for rows.Next() {
		var c models.RelationshipCandidate
		var provenance, created string
		if err := rows.Scan(
			&c.ID, &c.SourceDatasetID, &c.SourceColumn, &c.TargetDatasetID, &c.TargetColumn,
			&c.Confidence, &c.MatchingCount, &c.SourceUnmatched, &c.TargetUnmatched, &provenance, &created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		c.Provenance = models.Provenance(provenance)
		if c.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("failed to parse relationship timestamp: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *sqliteRelationships) ReplaceDetected(ctx context.Context, projectID uuid.UUID, datasetA, datasetB string, candidates []models.RelationshipCandidate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM lemur_relationships
		WHERE project_id = ? AND provenance = 'detected'
		  AND ((source_dataset_id = ? AND target_dataset_id = ?)
		    OR (source_dataset_id = ? AND target_dataset_id = ?))`,
		projectID.String(), datasetA, datasetB, datasetB, datasetA)
	if err != nil {
		return fmt.Errorf("failed to clear detected relationships: %w", err)
	}

	for i := range candidates {
		if err := upsertRelationship(ctx, tx, projectID, &candidates[i]); err != nil {
			return fmt.Errorf("failed to insert detected relationship: %w", err)
		}
	}
	return tx.Commit()
}

func (r *sqliteRelationships) SaveDeclared(ctx context.Context, projectID uuid.UUID, candidate *models.RelationshipCandidate) error {
	if err := upsertRelationship(ctx, r.db, projectID, candidate); err != nil {
		return fmt.Errorf("failed to save relationship: %w", err)
	}
	return nil
}

func (r *sqliteRelationships) DeleteTouching(ctx context.Context, projectID uuid.UUID, datasetID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM lemur_relationships
		WHERE project_id = ? AND (source_dataset_id = ? OR target_dataset_id = ?)`,
		projectID.String(), datasetID, datasetID)
	if err != nil {
		return fmt.Errorf("failed to delete relationships: %w", err)
	}
	return nil
}

// ============================================================================
// Conversations
// ============================================================================

type sqliteConversations struct{ db *sql.DB }

var _ ConversationRepository = (*sqliteConversations)(nil)

func (r *sqliteConversations) Append(ctx context.Context, projectID uuid.UUID, msg *models.ChatMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lemur_chat_messages (project_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		projectID.String(), string(msg.Role), msg.Content, formatTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save chat message: %w", err)
	}
	return nil
}

func (r *sqliteConversations) List(ctx context.Context, projectID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = maxHistory
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT role, content, created_at
		FROM lemur_chat_messages
		WHERE project_id = ?
		ORDER BY seq DESC
		LIMIT ?`, projectID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var role, created string
		if err := rows.Scan(&role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.Role = models.ChatRole(role)
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("failed to parse chat timestamp: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(msgs)
	return msgs, nil
}
