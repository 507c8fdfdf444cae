// Package migrations embeds the incident archive schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
