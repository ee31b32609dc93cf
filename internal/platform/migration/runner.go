// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package migration applies the identity schema with golang-migrate.
//
// Migrations are compiled into the binary from data/migrations. A directory
// on disk can replace them for local schema work.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	// file source reads .sql files from disk when Options.Dir is set.
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/taibuivan/yomira-cms/data/migrations"
)

// Options configures a migration run.
type Options struct {
	// DatabaseURL is a postgres:// or postgresql:// URL.
	DatabaseURL string

	// Dir replaces the embedded migrations with a directory on disk.
	Dir string

	// Verbose forwards golang-migrate's per-file progress to the logger.
	Verbose bool
}

/*
RunUp applies all pending UP migrations.

Description: Cancelling ctx asks golang-migrate to stop after the migration
in progress, leaving the schema at a clean version.

Returns:
  - error: Initialization, dirty-state or apply failures
*/
func RunUp(ctx context.Context, opts Options, logger *slog.Logger) error {
	migrator, err := open(opts)
	if err != nil {
		return err
	}
	defer func() {
		sourceError, dbError := migrator.Close()
		if sourceError != nil {
			logger.Error("migration_source_close_failed", slog.Any("error", sourceError))
		}
		if dbError != nil {
			logger.Error("migration_db_close_failed", slog.Any("error", dbError))
		}
	}()

	migrator.Log = &migrateLogger{logger: logger, verbose: opts.Verbose}

	currentVersion, isDirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migration: failed to get current version: %w", err)
	}
	if isDirty {
		return fmt.Errorf("migration: database is in a dirty state at version %d (manual intervention required)", currentVersion)
	}

	logger.Info("migration_started",
		slog.Int("current_version", int(currentVersion)),
		slog.String("source", sourceName(opts)),
	)

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			migrator.GracefulStop <- true
		case <-finished:
		}
	}()

	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("migration_already_up_to_date")
			return nil
		}
		return fmt.Errorf("migration: up failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migration: interrupted: %w", err)
	}

	newVersion, _, _ := migrator.Version()
	logger.Info("migration_successful",
		slog.Int("from_version", int(currentVersion)),
		slog.Int("to_version", int(newVersion)),
	)

	return nil
}

func open(opts Options) (*migrate.Migrate, error) {
	databaseURL := pgx5URL(opts.DatabaseURL)

	if opts.Dir != "" {
		migrator, err := migrate.New("file://"+opts.Dir, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("migration: failed to initialize: %w", err)
		}
		return migrator, nil
	}

	embedded, err := embeddedSource()
	if err != nil {
		return nil, err
	}
	migrator, err := migrate.NewWithSourceInstance("iofs", embedded, databaseURL)
	if err != nil {
		_ = embedded.Close()
		return nil, fmt.Errorf("migration: failed to initialize: %w", err)
	}
	return migrator, nil
}

func embeddedSource() (source.Driver, error) {
	driver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration: failed to read embedded migrations: %w", err)
	}
	return driver, nil
}

func sourceName(opts Options) string {
	if opts.Dir != "" {
		return opts.Dir
	}
	return "embedded"
}

// pgx5URL rewrites postgres:// and postgresql:// to the pgx5:// scheme the
// golang-migrate pgx/v5 driver registers.
func pgx5URL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, found := strings.CutPrefix(databaseURL, scheme); found {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// migrateLogger adapts golang-migrate's logger interface to slog.
type migrateLogger struct {
	logger  *slog.Logger
	verbose bool
}

// Printf implements migrate.Logger.
func (l *migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug("migration_progress", slog.String("detail", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

// Verbose implements migrate.Logger.
func (l *migrateLogger) Verbose() bool {
	return l.verbose
}
