package postgres

import "embed"

// MigrationTableName is the table goose uses to track applied migrations.
const MigrationTableName = "schema_migrations"

// MigrationsDir is the path of the embedded migration files within
// MigrationsFS.
const MigrationsDir = "migrations"

// MigrationsFS holds the schema migrations compiled into the binary, so a
// deployed server never depends on finding SQL files on disk.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
