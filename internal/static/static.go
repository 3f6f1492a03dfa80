// Package static serves a built front-end from disk as the default upstream
// when no asset server is running.
package static

import (
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// Handler serves files from a directory. With SPA fallback enabled, any
// extensionless path that doesn't match a file is answered with index.html
// so client-side routes survive a reload. Missing paths with an extension
// always get 404.
type Handler struct {
	fileServer http.Handler
	filesystem fs.FS
	spa        bool
}

// New creates a Handler rooted at dir.
func New(dir string, spa bool) (*Handler, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static dir %q is not a directory", dir)
	}
	return NewFS(os.DirFS(dir), spa), nil
}

// NewFS creates a Handler over an arbitrary filesystem.
func NewFS(fsys fs.FS, spa bool) *Handler {
	return &Handler{
		fileServer: http.FileServer(http.FS(fsys)),
		filesystem: fsys,
		spa:        spa,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.spa || r.URL.Path == "/" {
		h.fileServer.ServeHTTP(w, r)
		return
	}

	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" {
		name = "."
	}
	if _, err := fs.Stat(h.filesystem, name); err == nil {
		h.fileServer.ServeHTTP(w, r)
		return
	}

	// r.URL.Path is already decoded, so %2Ecss counts as an extension.
	if path.Ext(r.URL.Path) != "" {
		http.NotFound(w, r)
		return
	}

	r2 := r.Clone(r.Context())
	r2.URL.Path = "/"
	r2.URL.RawPath = ""
	h.fileServer.ServeHTTP(w, r2)
}
