// Package web embeds the single-page frontend served by the API.
package web

import (
	"embed"
	"io/fs"
)

//go:embed index.html app.js styles.css
var assets embed.FS

// FS returns the embedded frontend filesystem.
func FS() fs.FS {
	return assets
}
