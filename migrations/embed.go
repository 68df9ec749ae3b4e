// Package migrations embeds the PostgreSQL schema applied by cmd/migrator.
package migrations

import "embed"

// FS holds the *.up.sql files at its root
//
//go:embed *.up.sql
var FS embed.FS
