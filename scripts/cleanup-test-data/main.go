// cleanup-test-data removes test-like datasets, and the relationships that touch
// them, from a project in the postgres store.
//
// Dataset display names matched (case-insensitive):
// - ^test (starts with "test")
// - test$ (ends with "test")
// - ^tmp (scratch uploads)
// - ^dummy (dummy prefix)
// - ^sample (sample prefix)
// - ^example (example prefix)
// - _copy$ (duplicated uploads)
//
// Usage: go run ./scripts/cleanup-test-data <project-id>
//
// Database connection: Uses standard PG* environment variables
//
// Cached profiles are keyed by dataset id and expire on their own; flush Redis
// if the cache TTL is long.
//
// Flags:
//
//	-dry-run   Show what would be deleted without actually deleting (default: true)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// testDatasetPatterns are used with PostgreSQL's ~* (case-insensitive regex) operator.
var testDatasetPatterns = []string{
	`^test`,
	`test$`,
	`^tmp`,
	`^dummy`,
	`^sample`,
	`^example`,
	`_copy$`,
}

func main() {
	dryRun := flag.Bool("dry-run", true, "Show what would be deleted without actually deleting")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-dry-run=false] <project-id>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nFlags:\n")
		fmt.Fprintf(os.Stderr, "  -dry-run  Show what would be deleted without deleting (default: true)\n")
		os.Exit(1)
	}

	projectID, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid project ID: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	conn, err := pgx.Connect(ctx, buildConnString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	// Set RLS context for project
	if _, err := conn.Exec(ctx, "SELECT set_config('app.current_project_id', $1, false)", projectID.String()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set RLS context: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		fmt.Println("DRY RUN - no changes will be made")
		fmt.Println("Run with -dry-run=false to actually delete datasets")
		fmt.Println()
	}

	totalDeleted := 0
	for _, pattern := range testDatasetPatterns {
		count, err := cleanupTestDatasets(ctx, conn, projectID, pattern, *dryRun)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error cleaning pattern %q: %v\n", pattern, err)
			os.Exit(1)
		}
		totalDeleted += count
	}

	if *dryRun {
		fmt.Printf("\nTotal datasets that would be deleted: %d\n", totalDeleted)
	} else {
		fmt.Printf("\nTotal datasets deleted: %d\n", totalDeleted)
	}
}

// cleanupTestDatasets deletes datasets whose display name matches pattern.
// Relationships referencing a deleted dataset on either side go with it.
func cleanupTestDatasets(ctx context.Context, conn *pgx.Conn, projectID uuid.UUID, pattern string, dryRun bool) (int, error) {
	rows, err := conn.Query(ctx, `
		SELECT id, display_name, row_count
		FROM lemur_datasets
		WHERE project_id = $1
		  AND display_name ~* $2
		ORDER BY id
	`, projectID, pattern)
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id, name string
		var rowCount int
		if err := rows.Scan(&id, &name, &rowCount); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan failed: %w", err)
		}
		ids = append(ids, id)
		fmt.Printf("  [%s] %s %q (%d rows)\n", pattern, truncate(id, 24), name, rowCount)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows iteration failed: %w", err)
	}

	if len(ids) == 0 {
		fmt.Printf("  [%s] No matching datasets\n", pattern)
		return 0, nil
	}
	if dryRun {
		return len(ids), nil
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rels, err := tx.Exec(ctx, `
		DELETE FROM lemur_relationships
		WHERE project_id = $1
		  AND (source_dataset_id = ANY($2) OR target_dataset_id = ANY($2))
	`, projectID, ids)
	if err != nil {
		return 0, fmt.Errorf("relationship delete failed: %w", err)
	}

	result, err := tx.Exec(ctx, `
		DELETE FROM lemur_datasets
		WHERE project_id = $1
		  AND id = ANY($2)
	`, projectID, ids)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit failed: %w", err)
	}

	count := int(result.RowsAffected())
	fmt.Printf("Deleted %d datasets and %d relationships matching pattern: %s\n", count, rels.RowsAffected(), pattern)
	return count, nil
}

func buildConnString() string {
	host := getEnvOrDefault("PGHOST", "localhost")
	port := getEnvOrDefault("PGPORT", "5432")
	user := getEnvOrDefault("PGUSER", "lemur")
	password := os.Getenv("PGPASSWORD")
	dbname := getEnvOrDefault("PGDATABASE", "lemur")

	connStr := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		host, port, user, dbname)
	if password != "" {
		connStr += fmt.Sprintf(" password=%s", password)
	}
	return connStr
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// truncate shortens a string to maxLen characters, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
