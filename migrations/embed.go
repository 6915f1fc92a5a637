// Package migrations embeds the ordered schema migrations for every store backend.
package migrations

import "embed"

// SQLite holds the migrations for the embedded store
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres holds the migrations for the server store
//
//go:embed postgres/*.sql
var Postgres embed.FS
