// Package migrations contains embedded SQL migrations for the PostgreSQL stores.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
