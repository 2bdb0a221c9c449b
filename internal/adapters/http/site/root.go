// Package site serves the embedded reading practice page.
package site

import (
	"context"
	"net/http"
)

// Register mounts the practice page under /practice/ and redirects the
// bare root to it.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.Handle("/practice/", http.StripPrefix("/practice/", http.FileServer(FS())))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/practice/", http.StatusFound)
	})
}
