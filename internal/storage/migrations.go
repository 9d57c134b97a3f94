package storage

import "embed"

// Migrations holds the goose SQL migrations for the ClickHouse schema,
// under the "migrations" directory.
//
//go:embed migrations/*.sql
var Migrations embed.FS
