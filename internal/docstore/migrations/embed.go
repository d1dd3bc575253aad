// Package migrations embeds the goose SQL migrations for the Postgres
// document store adapter.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
