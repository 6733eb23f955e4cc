package migrations

import "embed"

// FS embeds the ordered SQL migrations for the SQLite storage layer.
//
//go:embed *.sql
var FS embed.FS
