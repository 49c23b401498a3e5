package api

import (
	"net/http"
	"path"
	"strings"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"
	segmentContentType  = "video/mp2t"
)

// MediaHandler serves the transcoder output below root, so that
// /live/<key>/index.m3u8 maps to <root>/live/<key>/index.m3u8. Directory
// listings are not served.
func MediaHandler(root string) http.Handler {
	files := http.FileServer(http.Dir(root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			MethodNotAllowed(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			NotFound(w, r)
			return
		}

		switch path.Ext(r.URL.Path) {
		case ".m3u8":
			w.Header().Set("Content-Type", playlistContentType)
			// The live playlist is rewritten every segment.
			w.Header().Set("Cache-Control", "no-cache")
		case ".ts":
			w.Header().Set("Content-Type", segmentContentType)
		default:
			NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
