package database

import (
	"database/sql"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// OpenSQLite opens (creating if needed) the SQLite database at path and applies migrations.
// Use ":memory:" for a throwaway database.
func OpenSQLite(path string, logger *zap.Logger) (*sql.DB, error) {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY, and keeps one ":memory:" database alive.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := RunSQLiteMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened sqlite store", zap.String("path", path))
	return db, nil
}
