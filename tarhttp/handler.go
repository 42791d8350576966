// Package tarhttp serves directory trees as tar archives over HTTP.
//
// A Handler maps the request path to a subdirectory of its source root
// and streams that subtree as a tar archive, packing straight to the
// response writer. The exact archive size is precomputed from metadata
// so responses carry a Content-Length even though nothing is buffered.
package tarhttp

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/meigma/tarx"
)

// Handler streams subtrees of a source directory as tar archives.
//
// The request path selects the subtree: GET /foo/bar responds with an
// archive of <dir>/foo/bar. The empty path serves the whole directory.
type Handler struct {
	dir    string
	logger *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger enables structured request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler returns a Handler serving archives of dir.
func NewHandler(dir string, opts ...Option) *Handler {
	h := &Handler{dir: dir}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sub := tarx.NormalizePath(r.URL.Path)
	if sub != "." && !fs.ValidPath(sub) {
		http.Error(w, "invalid path", http.StatusBadRequest)
		return
	}

	target := filepath.Join(h.dir, filepath.FromSlash(sub))
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		http.NotFound(w, r)
		return
	}

	size, err := tarx.PackSize(r.Context(), target)
	if err != nil {
		h.log().Error("sizing archive failed", "path", sub, "error", err)
		http.Error(w, "cannot archive directory", http.StatusInternalServerError)
		return
	}

	name := path.Base(sub)
	if name == "." || name == "/" {
		name = filepath.Base(h.dir)
	}
	w.Header().Set("Content-Type", "application/x-tar")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`.tar"`)
	if r.Method == http.MethodHead {
		return
	}

	if err := tarx.Pack(r.Context(), target, w); err != nil {
		// Headers are gone; all that is left is to cut the stream short
		// so the client sees the truncation.
		if r.Context().Err() == nil {
			h.log().Error("streaming archive failed", "path", sub, "error", err)
		}
		return
	}
	h.log().Info("served archive", "path", sub, "bytes", size)
}

// log returns the logger, falling back to a discard logger if nil.
func (h *Handler) log() *slog.Logger {
	if h.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return h.logger
}
