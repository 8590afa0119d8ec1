// Package migrations holds the embedded database schemas and applies the
// versions a database has not seen yet.
package migrations

import "embed"

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// Directories inside the embedded filesystems.
const (
	postgresDir   = "postgres"
	clickhouseDir = "clickhouse"
)
