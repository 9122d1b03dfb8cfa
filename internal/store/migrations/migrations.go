// ABOUTME: Embedded goose migrations for the grimoire schema
// ABOUTME: Files are ordered by numeric prefix and applied at store open

package migrations

import "embed"

// Migrations holds the SQL migration files goose applies at store open.
//
//go:embed *.sql
var Migrations embed.FS
