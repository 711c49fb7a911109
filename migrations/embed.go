// Package migrations embeds the goose SQL migrations so the server can apply
// them on start (MIGRATE_ON_START) and integration tests can build a schema.
package migrations

import "embed"

// FS holds all *.sql migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
