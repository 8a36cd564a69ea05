package db

import "embed"

// migrationsFS holds one migration directory per SQL dialect.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS
