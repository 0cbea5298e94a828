package migrations

import "embed"

// FS holds the SQL migrations applied by infra.Migrate.
//
//go:embed *.sql
var FS embed.FS
