package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// schemaVersion is the migration version this build writes and requires
const schemaVersion uint = 4

//go:embed migrations/*.sql
var migrationFiles embed.FS

// ErrSchemaVersion marks a database whose schema this build cannot serve.
// The ingester refuses to start on it (exit code 2).
var ErrSchemaVersion = errors.New("database schema version mismatch")

// migrate applies pending migrations and verifies the resulting version
func (s *Store) migrate() error {
	driver, err := migratepg.WithInstance(s.db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w: version %d is dirty", ErrSchemaVersion, version)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: have %d, need %d", ErrSchemaVersion, version, schemaVersion)
	}

	s.logger.Info("Database schema up to date", "version", version)
	return nil
}

// VerifySchema checks the schema version without applying migrations.
// The read API uses it so only the ingester ever issues DDL.
func (s *Store) VerifySchema() error {
	driver, err := migratepg.WithInstance(s.db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}

	version, dirty, err := driver.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version < 0 {
		return fmt.Errorf("%w: no migrations applied, run the ingester first", ErrSchemaVersion)
	}
	if dirty {
		return fmt.Errorf("%w: version %d is dirty", ErrSchemaVersion, version)
	}
	if uint(version) != schemaVersion {
		return fmt.Errorf("%w: have %d, need %d", ErrSchemaVersion, version, schemaVersion)
	}
	return nil
}
