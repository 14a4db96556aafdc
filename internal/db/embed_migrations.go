package db

import "embed"

// MigrationFS embeds the SQL migrations for both drivers, under migrations/postgres and migrations/sqlite.
// Used by the migrate runner (cmd/migrate, cmd/server and tests).
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS

// MigrationDir returns the directory in MigrationFS holding driver's migrations.
func MigrationDir(driver string) string {
	return "migrations/" + driver
}
