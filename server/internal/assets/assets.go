// Package assets serves the viewer bundle over plain HTTP: GET by path, index.html
// for "/", 404 for anything missing. With no directory configured the small
// bundle embedded in the binary is served.
package assets

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
)

//go:embed web
var embedded embed.FS

// Handler returns a file server rooted at dir, or at the embedded bundle when
// dir is empty.
func Handler(dir string) (http.Handler, error) {
	if dir == "" {
		sub, err := fs.Sub(embedded, "web")
		if err != nil {
			return nil, fmt.Errorf("assets: embedded bundle: %w", err)
		}
		return http.FileServer(http.FS(sub)), nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("assets: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("assets: %q is not a directory", dir)
	}
	return http.FileServer(http.Dir(dir)), nil
}
