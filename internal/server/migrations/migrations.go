// Package migrations embeds the record store schema for each supported
// database. Files are applied by goose on server start.
package migrations

import "embed"

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS
