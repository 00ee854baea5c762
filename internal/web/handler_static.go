package web

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/vbonduro/segnalazioni/internal/photostore"
)

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	reader, mimeType, err := s.photoStore.Get(r.Context(), key)
	if err != nil {
		if !errors.Is(err, photostore.ErrNotFound) {
			s.logger.Warn("photo lookup failed", "key", key, "error", err)
		}
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	defer closeWithLog(reader, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	// Keys embed a timestamp and are never rewritten.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("write photo failed", "key", key, "error", err)
	}
}

// clientHandler serves the pre-built client bundle in dir. Paths that do not
// name a file get index.html so client-side routes survive a reload.
func clientHandler(dir string) (http.Handler, bool) {
	if dir == "" {
		return nil, false
	}
	if _, err := os.Stat(path.Join(dir, "index.html")); err != nil {
		return nil, false
	}

	root := os.DirFS(dir)
	files := http.FileServerFS(root)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name != "" {
			if fi, err := fs.Stat(root, name); err == nil && !fi.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFileFS(w, r, root, "index.html")
	}), true
}
