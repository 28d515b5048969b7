// Package migrations embeds the SQL schema migrations applied at startup.
package migrations

import "embed"

// FS exposes the embedded migration files to golang-migrate.
//
//go:embed *.sql
var FS embed.FS
