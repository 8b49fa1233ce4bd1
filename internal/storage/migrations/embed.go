// Package migrations applies the embedded schema for the persistent stores.
package migrations

import "embed"

// PostgresFS holds the trade journal and event log schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the balance history schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
