package appfs

import "embed"

// FS holds the database migrations.
//go:embed migrations/*.sql
var FS embed.FS
