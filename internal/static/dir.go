package static

import (
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Options controls directory serving behaviour.
type Options struct {
	// Defaults lists file names tried when a directory is requested,
	// e.g. index.html.
	Defaults []string
	// Listing enables directory listings when no default file matches.
	Listing bool
	// DotFiles allows paths containing dot-prefixed segments.
	DotFiles bool
}

// Dir serves files from an ordered list of root directories. Roots are tried
// in order; the first that contains the requested path wins.
type Dir struct {
	roots   []string
	opts    Options
	logger  *slog.Logger
	metrics *Metrics
}

// NewDir builds a directory handler over the given roots.
func NewDir(roots []string, opts Options, logger *slog.Logger) *Dir {
	if logger == nil {
		logger = slog.Default()
	}
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		cleaned = append(cleaned, filepath.Clean(r))
	}
	return &Dir{
		roots:   cleaned,
		opts:    opts,
		logger:  logger.With("component", "static"),
		metrics: GetMetrics(),
	}
}

type listEntry struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified"`
}

// ServeHTTP implements http.Handler.
func (d *Dir) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		d.fail(w, r, http.StatusMethodNotAllowed)
		return
	}

	rel := normalizePath(decodePathSafely(r.URL.Path))
	if !d.opts.DotFiles && hasDotSegment(rel) {
		d.fail(w, r, http.StatusNotFound)
		return
	}

	for _, root := range d.roots {
		full := root
		if rel != "" {
			full = filepath.Join(root, filepath.FromSlash(rel))
		}
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if info.IsDir() {
			// Listing hrefs are relative; they only resolve under the
			// directory's own path.
			if !strings.HasSuffix(r.URL.Path, "/") {
				d.metrics.RecordRequest(http.StatusMovedPermanently)
				http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
				return
			}
			if d.serveDir(w, r, full, rel) {
				return
			}
			continue
		}
		d.serveFile(w, r, full)
		return
	}

	d.fail(w, r, http.StatusNotFound)
}

// serveDir tries the default files, then a listing. It reports whether the
// response was written so the caller can fall through to the next root.
func (d *Dir) serveDir(w http.ResponseWriter, r *http.Request, dir, rel string) bool {
	for _, name := range d.opts.Defaults {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			d.serveFile(w, r, candidate)
			return true
		}
	}
	if !d.opts.Listing {
		return false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		d.logger.Warn("directory read failed", "dir", dir, "error", err)
		d.fail(w, r, http.StatusInternalServerError)
		return true
	}

	list := make([]listEntry, 0, len(entries))
	for _, e := range entries {
		if !d.opts.DotFiles && strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		list = append(list, listEntry{
			Name:    e.Name(),
			IsDir:   e.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].IsDir != list[j].IsDir {
			return list[i].IsDir
		}
		return list[i].Name < list[j].Name
	})

	d.renderListing(w, r, rel, list)
	return true
}

func (d *Dir) renderListing(w http.ResponseWriter, r *http.Request, rel string, list []listEntry) {
	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "application/json"):
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		d.metrics.RecordRequest(http.StatusOK)
		_ = json.NewEncoder(w).Encode(list)
	case strings.Contains(accept, "text/html"):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		d.metrics.RecordRequest(http.StatusOK)
		var b strings.Builder
		title := "/" + rel
		fmt.Fprintf(&b, "<html><head><title>Index of %s</title></head><body>", html.EscapeString(title))
		fmt.Fprintf(&b, "<h1>Index of %s</h1><ul>", html.EscapeString(title))
		for _, e := range list {
			name := e.Name
			if e.IsDir {
				name += "/"
			}
			fmt.Fprintf(&b, `<li><a href="%s">%s</a></li>`,
				html.EscapeString(encodePathSegment(name)), html.EscapeString(name))
		}
		b.WriteString("</ul></body></html>")
		_, _ = w.Write([]byte(b.String()))
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		d.metrics.RecordRequest(http.StatusOK)
		for _, e := range list {
			name := e.Name
			if e.IsDir {
				name += "/"
			}
			fmt.Fprintln(w, name)
		}
	}
}

func (d *Dir) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		status := http.StatusInternalServerError
		if os.IsNotExist(err) {
			status = http.StatusNotFound
		} else if os.IsPermission(err) {
			status = http.StatusForbidden
		}
		d.fail(w, r, status)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		d.fail(w, r, http.StatusInternalServerError)
		return
	}

	d.metrics.RecordRequest(http.StatusOK)
	d.metrics.RecordBytes(info.Size())
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}

func (d *Dir) fail(w http.ResponseWriter, r *http.Request, status int) {
	d.metrics.RecordRequest(status)
	http.Error(w, http.StatusText(status), status)
}

// encodePathSegment escapes a listing entry name for use in a relative href,
// keeping a trailing directory slash intact.
func encodePathSegment(name string) string {
	if dir := strings.HasSuffix(name, "/"); dir {
		return url.PathEscape(strings.TrimSuffix(name, "/")) + "/"
	}
	return url.PathEscape(name)
}
