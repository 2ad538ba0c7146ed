// Package migrations embeds the SQL schema files so the server binary can
// initialize its store without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
