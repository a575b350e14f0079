// Package migrations embeds the schema migrations of the SQL stores.
package migrations

import "embed"

// Postgres holds the migrations applied by the postgres store backend.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite holds the migrations applied by the sqlite store backend.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
