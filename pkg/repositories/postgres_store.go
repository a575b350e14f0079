package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lemur-data/lemur-engine/pkg/database"
)

// NewPostgresStore creates a Store backed by PostgreSQL.
// Repositories use the tenant scope found in the context and acquire one from db otherwise.
func NewPostgresStore(db *database.DB) *Store {
	return &Store{
		Projects:      NewProjectRepository(db),
		Datasets:      NewDatasetRepository(db),
		Relationships: NewRelationshipCandidateRepository(db),
		Conversations: NewConversationRepository(db),
	}
}

// withTenantConn runs fn on the tenant connection carried by ctx, or on a freshly
// acquired connection scoped to projectID.
func withTenantConn(ctx context.Context, db *database.DB, projectID uuid.UUID, fn func(conn *pgxpool.Conn) error) error {
	if scope, ok := database.GetTenantScope(ctx); ok {
		if scope.ProjectID != uuid.Nil && scope.ProjectID != projectID {
			return fmt.Errorf("tenant scope is for project %s, not %s", scope.ProjectID, projectID)
		}
		return fn(scope.Conn)
	}
	if db == nil {
		return fmt.Errorf("no tenant scope in context")
	}

	scope, err := db.WithTenant(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to acquire tenant connection: %w", err)
	}
	defer scope.Close()
	return fn(scope.Conn)
}

// withConn runs fn on any connection; project rows are not tenant scoped.
func withConn(ctx context.Context, db *database.DB, fn func(conn *pgxpool.Conn) error) error {
	if scope, ok := database.GetTenantScope(ctx); ok {
		return fn(scope.Conn)
	}
	if db == nil {
		return fmt.Errorf("no tenant scope in context")
	}

	scope, err := db.WithoutTenant(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer scope.Close()
	return fn(scope.Conn)
}

// inTx runs fn inside a transaction on conn.
func inTx(ctx context.Context, conn *pgxpool.Conn, fn func(tx pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isUniqueViolation reports SQLSTATE 23505 (unique_violation).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
