// Package uistatic serves the embedded browser chat page.
package uistatic

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"
)

//go:embed all:app
var assets embed.FS

// Handler serves the page assets. Paths that do not name an asset get
// index.html so the page can own its own routing. /v1/ stays a 404 because
// it belongs to the API.
func Handler() http.Handler {
	root, err := fs.Sub(assets, "app")
	if err != nil {
		return http.NotFoundHandler()
	}
	index, err := fs.ReadFile(root, "index.html")
	if err != nil {
		return http.NotFoundHandler()
	}
	files := http.FileServerFS(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") {
			http.NotFound(w, r)
			return
		}
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name != "" && name != "index.html" {
			if info, err := fs.Stat(root, name); err == nil && !info.IsDir() {
				w.Header().Set("Cache-Control", "public, max-age=300")
				files.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeContent(w, r, "index.html", time.Time{}, bytes.NewReader(index))
	})
}
