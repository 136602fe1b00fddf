package static

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// File serves a single file regardless of the request path. Useful for
// single-page application fallbacks.
type File struct {
	path    string
	logger  *slog.Logger
	metrics *Metrics
}

// NewFile builds a handler that always serves path.
func NewFile(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{
		path:    filepath.Clean(path),
		logger:  logger.With("component", "static"),
		metrics: GetMetrics(),
	}
}

// ServeHTTP implements http.Handler.
func (f *File) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		f.metrics.RecordRequest(http.StatusMethodNotAllowed)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	file, err := os.Open(f.path)
	if err != nil {
		status := http.StatusInternalServerError
		if os.IsNotExist(err) {
			status = http.StatusNotFound
		} else if os.IsPermission(err) {
			status = http.StatusForbidden
		}
		f.logger.Warn("static file open failed", "path", f.path, "error", err)
		f.metrics.RecordRequest(status)
		http.Error(w, http.StatusText(status), status)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		f.metrics.RecordRequest(http.StatusInternalServerError)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	f.metrics.RecordRequest(http.StatusOK)
	f.metrics.RecordBytes(info.Size())
	http.ServeContent(w, r, filepath.Base(f.path), info.ModTime(), file)
}
