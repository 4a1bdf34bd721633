// Package migrations embeds the PostgreSQL schema of the ledger store.
package migrations

import "embed"

// FS holds the numbered up/down migration pairs.
//
//go:embed *.sql
var FS embed.FS
