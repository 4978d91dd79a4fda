package panel

import (
	"embed"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

//go:embed web/*
var content embed.FS

// indexPage is served for "/" and for unknown page routes.
const indexPage = "index.html"

// Handler returns an http.Handler that serves the dashboard.
//
// When dir names an existing directory, assets are served from it, so the
// page can be edited without rebuilding. Otherwise the embedded copy is used.
func Handler(dir string) http.Handler {
	return &site{files: assets(dir)}
}

func assets(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	web, err := fs.Sub(content, "web")
	if err != nil {
		// Only possible if the embed directive above is broken.
		panic("panel: embedded web assets missing: " + err.Error())
	}
	return web
}

type site struct {
	files fs.FS
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, must-revalidate")

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = indexPage
	}

	if info, err := fs.Stat(s.files, name); err != nil || info.IsDir() {
		// A missing asset is a 404; any other path is a page route.
		if path.Ext(name) != "" {
			http.NotFound(w, r)
			return
		}
		name = indexPage
	}

	s.serve(w, r, name)
}

func (s *site) serve(w http.ResponseWriter, r *http.Request, name string) {
	f, err := s.files.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close() //nolint:errcheck // Read-only

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "asset unreadable", http.StatusInternalServerError)
		return
	}
	rs, ok := f.(io.ReadSeeker)
	if !ok {
		http.Error(w, "asset unreadable", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), rs)
}
