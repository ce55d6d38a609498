// Package migrations embeds the ledger schema.
package migrations

import "embed"

// Files holds the ordered SQL migrations.
//
//go:embed *.sql
var Files embed.FS
