// Package migrations embeds the secure-store schema migrations.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
