// Package migrations embeds the SQL schema for every supported database.
package migrations

import "embed"

// FS holds one directory per dialect: postgres/ and sqlite/.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
