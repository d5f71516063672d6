// Package appfs exposes embedded static assets to the rest of the app.
package appfs

import "embed"

// FS embeds the database migrations.
//go:embed migrations
var FS embed.FS
