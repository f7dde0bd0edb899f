package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// spaServer serves the built frontend from a local directory. Paths
// that resolve to no file fall back to index.html so client-side
// routing keeps working on deep links.
type spaServer struct {
	log  logrus.FieldLogger
	root string
}

func newSPAServer(log logrus.FieldLogger, dir string) *spaServer {
	return &spaServer{
		log:  log.WithField("component", "spa-server"),
		root: filepath.Clean(dir),
	}
}

func (s *spaServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqPath := strings.TrimPrefix(r.URL.Path, "/")
	if reqPath == "" {
		reqPath = "index.html"
	}

	if !s.isAllowedPath(reqPath) {
		http.NotFound(w, r)

		return
	}

	full := filepath.Join(s.root, filepath.FromSlash(reqPath))

	// Ensure the resolved path stays under the root.
	if full != s.root &&
		!strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		http.NotFound(w, r)

		return
	}

	if info, err := os.Stat(full); err != nil || info.IsDir() {
		full = filepath.Join(s.root, "index.html")
	}

	http.ServeFile(w, r, full)
}

// isAllowedPath rejects absolute, traversal, and unclean request paths.
func (s *spaServer) isAllowedPath(reqPath string) bool {
	if strings.Contains(reqPath, "..") {
		return false
	}

	if filepath.IsAbs(reqPath) {
		return false
	}

	return path.Clean(reqPath) == reqPath
}
