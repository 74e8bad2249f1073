package httpapi

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzhttp"
)

// StaticHandler serves the panel asset directory with content-encoding
// negotiation. Precompressed sidecar files win (name.br, then name.gz,
// matching Accept-Encoding); anything served identity-encoded goes through
// on-the-fly gzip for clients that accept it.
func StaticHandler(dir string) http.Handler {
	inner := &precompressedHandler{dir: dir, next: http.FileServer(http.Dir(dir))}
	return gzhttp.GzipHandler(inner)
}

type precompressedHandler struct {
	dir  string
	next http.Handler
}

func (h *precompressedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := path.Clean(r.URL.Path)
	if name == "/" {
		name = "/index.html"
	}
	if !strings.HasPrefix(name, "/") || strings.Contains(name, "..") {
		http.NotFound(w, r)
		return
	}

	accepted := r.Header.Get("Accept-Encoding")
	for _, enc := range []string{"br", "gzip"} {
		if !strings.Contains(accepted, enc) {
			continue
		}
		sidecar := filepath.Join(h.dir, filepath.FromSlash(name)) + sidecarExt(enc)
		if h.serveSidecar(w, r, name, sidecar, enc) {
			return
		}
	}

	h.next.ServeHTTP(w, r)
}

func sidecarExt(encoding string) string {
	if encoding == "br" {
		return ".br"
	}
	return ".gz"
}

// serveSidecar serves the precompressed file if it exists. The Content-Type
// comes from the original name so .br/.gz does not leak into type sniffing.
func (h *precompressedHandler) serveSidecar(w http.ResponseWriter, r *http.Request, name, sidecar, encoding string) bool {
	f, err := os.Open(sidecar)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	w.Header().Set("Content-Encoding", encoding)
	w.Header().Add("Vary", "Accept-Encoding")
	http.ServeContent(w, r, path.Base(name), info.ModTime(), f)
	return true
}
