package db

import "embed"

// MigrationFS embeds the SQL migrations under internal/db/migrations for the
// migrate runner, so cmd/migrate needs no files on disk.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
