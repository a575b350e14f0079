package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/migrations"
)

// RunMigrations applies pending Postgres migrations embedded in the binary.
// It is idempotent and safe to call multiple times - only pending migrations will be executed.
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	return applyMigrations(driver, migrations.Postgres, "postgres", logger)
}

// RunSQLiteMigrations applies pending SQLite migrations embedded in the binary.
func RunSQLiteMigrations(db *sql.DB, logger *zap.Logger) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	return applyMigrations(driver, migrations.SQLite, "sqlite", logger)
}

func applyMigrations(driver migratedb.Driver, fsys fs.FS, dbName string, logger *zap.Logger) error {
	source, err := iofs.New(fsys, dbName)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Closing would also close the caller's *sql.DB, so only the source is released.
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warn("Failed to close migration source", zap.Error(err))
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("No migrations to apply (database up-to-date)", zap.String("backend", dbName))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	logger.Info("Applied migrations successfully",
		zap.String("backend", dbName),
		zap.Uint("version", newVersion))
	return nil
}
