// Package migrations embeds the SQL schema so binaries can migrate without
// shipping the migrations directory.
package migrations

import "embed"

// FS holds the versioned *.sql files
//
//go:embed *.sql
var FS embed.FS
