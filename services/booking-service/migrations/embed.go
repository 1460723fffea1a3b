// Package migrations embeds the booking-service schema for golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
