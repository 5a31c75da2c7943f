package gateway

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// staticOptions selects the fallbacks of a static site.
type staticOptions struct {
	// HTMLExtension resolves "/page" to "/page.html" when the former is missing.
	HTMLExtension bool
	// SPA serves the root index.html for unknown GET/HEAD paths.
	SPA bool
}

// staticHandler serves files from a directory. Hidden and backup files are
// never exposed and directory listings are disabled.
type staticHandler struct {
	fsys staticFileSystem
	opts staticOptions
}

func newStaticHandler(root string, opts staticOptions) *staticHandler {
	return &staticHandler{fsys: staticFileSystem{root: http.Dir(root)}, opts: opts}
}

func (h *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cleanPath := staticCleanPath(r.URL.Path)
	if h.serveResolvedPath(w, r, cleanPath) {
		return
	}
	if h.opts.HTMLExtension && path.Ext(cleanPath) == "" && cleanPath != "/" {
		if h.serveFile(w, r, cleanPath+".html") {
			return
		}
	}
	if h.opts.SPA && staticSPAMethodAllowed(r.Method) && cleanPath != "/index.html" && h.serveFile(w, r, "/index.html") {
		return
	}
	http.NotFound(w, r)
}

func (h *staticHandler) serveResolvedPath(w http.ResponseWriter, r *http.Request, cleanPath string) bool {
	file, info, ok := h.open(cleanPath)
	if !ok {
		return false
	}
	if !info.IsDir() {
		defer func() { _ = file.Close() }()
		http.ServeContent(w, r, info.Name(), info.ModTime(), file)
		return true
	}
	_ = file.Close()

	indexPath := path.Join(cleanPath, "index.html")
	index, indexInfo, ok := h.open(indexPath)
	if !ok || indexInfo.IsDir() {
		if ok {
			_ = index.Close()
		}
		return false
	}
	defer func() { _ = index.Close() }()
	if staticNeedsDirRedirect(r.URL.Path) {
		redirectStaticDirectory(w, r)
		return true
	}
	http.ServeContent(w, r, indexPath, indexInfo.ModTime(), index)
	return true
}

func (h *staticHandler) serveFile(w http.ResponseWriter, r *http.Request, name string) bool {
	file, info, ok := h.open(name)
	if !ok {
		return false
	}
	defer func() { _ = file.Close() }()
	if info.IsDir() {
		return false
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
	return true
}

func (h *staticHandler) open(name string) (http.File, os.FileInfo, bool) {
	file, err := h.fsys.Open(name)
	if err != nil {
		return nil, nil, false
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, false
	}
	return file, info, true
}

type staticFileSystem struct {
	root http.FileSystem
}

func (fsys staticFileSystem) Open(name string) (http.File, error) {
	cleanName := staticCleanPath(name)
	rel := strings.TrimPrefix(cleanName, "/")
	if rel != "" && staticBlocked(rel) {
		return nil, fs.ErrNotExist
	}
	return fsys.root.Open(cleanName)
}

// staticBlocked hides dotfiles, dot-directories and editor/backup leftovers.
func staticBlocked(rel string) bool {
	segments := strings.Split(rel, "/")
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." || strings.HasPrefix(segment, ".") {
			return true
		}
	}
	name := strings.ToLower(segments[len(segments)-1])
	for _, suffix := range []string{"~", ".bak", ".backup", ".old", ".orig", ".swp", ".tmp"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func staticSPAMethodAllowed(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func staticNeedsDirRedirect(requestPath string) bool {
	requestPath = strings.TrimSpace(requestPath)
	return requestPath != "" && !strings.HasSuffix(requestPath, "/")
}

func redirectStaticDirectory(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path
	if target == "" {
		target = "/"
	}
	if !strings.HasSuffix(target, "/") {
		target += "/"
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

func staticCleanPath(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	if name == "" {
		return "/"
	}
	clean := path.Clean("/" + strings.TrimPrefix(name, "/"))
	if clean == "." {
		return "/"
	}
	return clean
}
