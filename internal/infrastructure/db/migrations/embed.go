package migrations

import "embed"

// FS holds the schema, one directory per driver.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
