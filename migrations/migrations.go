// Package migrations embeds the Postgres schema files applied by platform/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
