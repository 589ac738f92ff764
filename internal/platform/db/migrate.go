package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/go-extras/go-kit/must"
	"github.com/stokaro/ptah/dbschema"
	"github.com/stokaro/ptah/migration/migrator"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations exposes the embedded schema migrations rooted at the migrations directory.
func Migrations() fs.FS {
	return must.Must(fs.Sub(migrationFiles, "migrations"))
}

// MigrationStatus mirrors the ptah status report.
type MigrationStatus = migrator.MigrationStatus

// Migrate applies every pending schema migration against dsn.
func Migrate(ctx context.Context, dsn string, logger *slog.Logger) error {
	return withMigrator(dsn, logger, func(m *migrator.Migrator) error {
		if err := m.MigrateUp(ctx); err != nil {
			return fmt.Errorf("platform/db: migrate up: %w", err)
		}
		return nil
	})
}

// Status reports the applied and pending migrations against dsn.
func Status(ctx context.Context, dsn string, logger *slog.Logger) (*MigrationStatus, error) {
	var status *MigrationStatus
	err := withMigrator(dsn, logger, func(m *migrator.Migrator) error {
		var err error
		status, err = m.GetMigrationStatus(ctx)
		return err
	})
	return status, err
}

func withMigrator(dsn string, logger *slog.Logger, fn func(*migrator.Migrator) error) error {
	conn, err := dbschema.ConnectToDatabase(dsn)
	if err != nil {
		return fmt.Errorf("platform/db: connect for migrations: %w", err)
	}
	defer conn.Close()

	m, err := migrator.NewFSMigrator(conn, Migrations())
	if err != nil {
		return fmt.Errorf("platform/db: load migrations: %w", err)
	}
	if logger != nil {
		m = m.WithLogger(logger)
	}
	return fn(m)
}
