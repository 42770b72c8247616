// Package appfs exposes embedded application assets.
package appfs

import "embed"

//go:embed migrations/*.sql
var FS embed.FS
