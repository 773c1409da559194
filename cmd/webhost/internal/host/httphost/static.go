package httphost

import (
	"bytes"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/cache"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
)

// DefaultDocuments are tried, in order, when a directory is requested.
var DefaultDocuments = []string{"default.htm", "default.html", "index.htm", "index.html"}

// restrictedDirs are never served, at any depth.
var restrictedDirs = map[string]bool{
	"bin":                 true,
	"app_browsers":        true,
	"app_code":            true,
	"app_data":            true,
	"app_globalresources": true,
	"app_localresources":  true,
	"app_webreferences":   true,
}

// staticHandler serves files below root for URLs below virtualPath.
type staticHandler struct {
	virtualPath string
	root        string
	files       *cache.FileCache
	listing     bool
}

func newStaticHandler(virtualPath, root string, files *cache.FileCache, listing bool) *staticHandler {
	return &staticHandler{
		virtualPath: strings.TrimSuffix(virtualPath, "/"),
		root:        root,
		files:       files,
		listing:     listing,
	}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	urlPath := r.URL.Path
	rel, ok := h.relativePath(urlPath)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if rel == "" {
		redirectToDir(w, r)
		return
	}
	if isBadPath(rel) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if isRestricted(rel) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	full := filepath.Join(h.root, filepath.FromSlash(path.Clean(rel)))
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		logger.Error("Stat failed", "path", full, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if !info.IsDir() {
		h.serveFile(w, r, full, info)
		return
	}

	if !strings.HasSuffix(urlPath, "/") {
		redirectToDir(w, r)
		return
	}

	for _, doc := range DefaultDocuments {
		docPath := filepath.Join(full, doc)
		if docInfo, err := os.Stat(docPath); err == nil && !docInfo.IsDir() {
			h.serveFile(w, r, docPath, docInfo)
			return
		}
	}

	if !h.listing {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	h.serveListing(w, r, full, urlPath)
}

// relativePath strips the virtual path prefix, case-insensitively. The
// result keeps its leading slash; "" means the bare virtual path.
func (h *staticHandler) relativePath(urlPath string) (string, bool) {
	if h.virtualPath == "" {
		return urlPath, true
	}
	n := len(h.virtualPath)
	if len(urlPath) < n || !strings.EqualFold(urlPath[:n], h.virtualPath) {
		return "", false
	}
	rest := urlPath[n:]
	if rest == "" {
		return "", true
	}
	if rest[0] != '/' {
		return "", false
	}
	return rest, true
}

func (h *staticHandler) serveFile(w http.ResponseWriter, r *http.Request, full string, info os.FileInfo) {
	data, err := h.files.ReadFile(full, info)
	if err != nil {
		logger.Error("Read failed", "path", full, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), bytes.NewReader(data))
}

type listingEntry struct {
	Name    string
	Href    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

var listingTemplate = template.Must(template.New("listing").Parse(`<html>
<head><title>Directory Listing -- {{.Path}}</title></head>
<body>
<h2>Directory Listing -- {{.Path}}</h2>
<hr>
<pre>
{{if .Parent}}<a href="{{.Parent}}">[To Parent Directory]</a>
{{end}}{{range .Entries}}{{.ModTime.Format "2006-01-02 15:04"}} {{if .IsDir}}&lt;dir&gt;{{else}}{{printf "%12d" .Size}}{{end}} <a href="{{.Href}}">{{.Name}}</a>
{{end}}</pre>
<hr>
</body>
</html>
`))

func (h *staticHandler) serveListing(w http.ResponseWriter, r *http.Request, dir, urlPath string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Error("Read dir failed", "path", dir, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	items := make([]listingEntry, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || (e.IsDir() && restrictedDirs[strings.ToLower(name)]) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		href := urlPath + name
		if e.IsDir() {
			href += "/"
		}
		items = append(items, listingEntry{
			Name:    name,
			Href:    href,
			IsDir:   e.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})

	parent := ""
	if trimmed := strings.TrimSuffix(urlPath, "/"); len(trimmed) > len(h.virtualPath) {
		parent = trimmed[:strings.LastIndex(trimmed, "/")+1]
	}

	var buf bytes.Buffer
	if err := listingTemplate.Execute(&buf, map[string]any{
		"Path":    urlPath,
		"Parent":  parent,
		"Entries": items,
	}); err != nil {
		logger.Error("Render listing failed", "path", dir, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(buf.Bytes())
}

func redirectToDir(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path + "/"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// isBadPath rejects traversal and characters that have no business in a
// content path.
func isBadPath(rel string) bool {
	if strings.ContainsAny(rel, "\\:\x00") {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

func isRestricted(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if restrictedDirs[strings.ToLower(seg)] {
			return true
		}
	}
	return false
}
