// Package web embeds the single-page chat front-end.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var static embed.FS

// IndexFile is served for every path that does not name an asset
const IndexFile = "index.html"

// Assets returns the front-end files rooted at the static directory
func Assets() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err) // The directory is embedded at build time
	}
	return sub
}
