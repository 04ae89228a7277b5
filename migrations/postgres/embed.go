// Package migrations embeds SQL migration files.
package migrations

import "embed"

// LocalFS contains the migrations of the local account directory.
//
//go:embed local/*.sql
var LocalFS embed.FS

// LocalDir is the directory within LocalFS where migrations live.
const LocalDir = "local"
