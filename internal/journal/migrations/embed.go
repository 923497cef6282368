// Package migrations embeds the execution journal schema.
package migrations

import "embed"

// Files holds the golang-migrate SQL files.
//
//go:embed *.sql
var Files embed.FS
