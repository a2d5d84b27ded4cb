// Package migrations embeds the SQL schema applied by cmd/migrate.
//
// Incremental files are named NNN_description.up.sql and applied in name
// order. 000_drop_all.sql and 000_consolidated.sql back the reset command.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
