package handler

import (
	"net/http"
	"path"
	"strings"

	"github.com/hszk-dev/hlspublish/internal/usecase"
)

// HLSFiles serves packages written under root by the local publisher.
// Directory listings are not exposed.
func HLSFiles(root string) http.Handler {
	files := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		switch path.Ext(r.URL.Path) {
		case ".m3u8", ".ts":
			w.Header().Set("Content-Type", usecase.ContentTypeFor(r.URL.Path))
		}
		files.ServeHTTP(w, r)
	})
}
