package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/phrazzld/reelgen/internal/config"
	"github.com/phrazzld/reelgen/internal/platform/postgres"
)

// slogGooseLogger adapts goose's logger interface to slog.
type slogGooseLogger struct{}

// Printf forwards goose progress messages to slog.Info.
func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	slog.Info(fmt.Sprintf(format, v...), "component", "migrations")
}

// Fatalf forwards goose fatal messages to slog.Error. Goose calls this on
// unrecoverable errors; the surrounding command decides whether to exit.
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...), "component", "migrations")
}

// runMigrations applies all pending schema migrations from the embedded
// migration files. It is safe to call on every startup; goose skips
// migrations already recorded in the schema_migrations table.
func runMigrations(db *sql.DB, appLogger *slog.Logger) error {
	if err := configureGoose(); err != nil {
		return err
	}

	appLogger.Info("Applying database migrations")
	if err := goose.Up(db, postgres.MigrationsDir); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	appLogger.Info("Database migrations applied", "version", version)
	return nil
}

// handleMigrations runs one explicit migration command and returns. It is
// invoked by the -migrate flag for operational use outside the normal
// startup path.
func handleMigrations(cfg *config.Config, appLogger *slog.Logger, command string) error {
	db, err := setupAppDatabase(cfg, appLogger)
	if err != nil {
		return err
	}
	defer closeDatabase(db, appLogger)

	if err := configureGoose(); err != nil {
		return err
	}

	appLogger.Info("Executing migration command", "command", command)
	switch command {
	case "up":
		err = goose.Up(db, postgres.MigrationsDir)
	case "down":
		err = goose.Down(db, postgres.MigrationsDir)
	case "status":
		err = goose.Status(db, postgres.MigrationsDir)
	default:
		return fmt.Errorf("unknown migration command %q (want up, down, or status)", command)
	}
	if err != nil {
		return fmt.Errorf("goose %s failed: %w", command, err)
	}
	return nil
}

func configureGoose() error {
	goose.SetLogger(&slogGooseLogger{})
	goose.SetBaseFS(postgres.MigrationsFS)
	goose.SetTableName(postgres.MigrationTableName)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	return nil
}
