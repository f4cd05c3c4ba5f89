// ABOUTME: Embedded application shell and the rendered offline page
// ABOUTME: Serves the shell with explicit MIME types and renders offline.md through goldmark

// Package assets embeds the application shell served by `snipsync sink`
// and the offline page the cache router falls back to.
package assets

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
)

//go:embed all:shell
var shellFS embed.FS

// OfflinePath is where the rendered offline page is served.
const OfflinePath = "/offline.html"

func init() {
	// Register MIME types that may not be in the default database.
	// Errors are ignored: these only fail if extension format is invalid,
	// and our literals are known-good.
	_ = mime.AddExtensionType(".woff2", "font/woff2")
	_ = mime.AddExtensionType(".map", "application/json")
}

// mimeFromExt returns the MIME type for a file extension.
// Falls back to the Go standard library's MIME type database,
// then to "application/octet-stream" if unknown.
func mimeFromExt(ext string) string {
	switch ext {
	case ".js", ".mjs":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	case ".html":
		return "text/html; charset=utf-8"
	case ".woff2":
		return "font/woff2"
	case ".svg":
		return "image/svg+xml"
	case ".map":
		return "application/json"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

const offlineTemplate = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Offline - snipsync</title>
<link rel="stylesheet" href="/styles/main.css">
</head>
<body>
%s</body>
</html>
`

var (
	offlineOnce sync.Once
	offlineHTML []byte
	offlineErr  error
)

// OfflinePage returns offline.md rendered to a standalone HTML page.
func OfflinePage() ([]byte, error) {
	offlineOnce.Do(func() {
		src, err := fs.ReadFile(shellFS, "shell/offline.md")
		if err != nil {
			offlineErr = fmt.Errorf("reading offline page: %w", err)
			return
		}
		var body bytes.Buffer
		if err := goldmark.Convert(src, &body); err != nil {
			offlineErr = fmt.Errorf("rendering offline page: %w", err)
			return
		}
		offlineHTML = []byte(fmt.Sprintf(offlineTemplate, body.String()))
	})
	return offlineHTML, offlineErr
}

// AppShell lists the URL paths the embedded shell serves, "/" and the
// offline page included, sorted.
func AppShell() []string {
	paths := []string{"/", OfflinePath}
	_ = fs.WalkDir(shellFS, "shell", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(p, ".md") {
			return err
		}
		paths = append(paths, strings.TrimPrefix(p, "shell"))
		return nil
	})
	sort.Strings(paths)
	return paths
}

// FileServer returns an http.Handler that serves the embedded shell.
// Nothing in the shell is content-hashed, so every response is no-cache;
// offline copies are the cache router's job.
func FileServer() http.Handler {
	sub, err := fs.Sub(shellFS, "shell")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")

		if r.URL.Path == OfflinePath {
			page, err := OfflinePage()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", mimeFromExt(".html"))
			_, _ = w.Write(page)
			return
		}
		if r.URL.Path == "/index.html" {
			// http.FileServer redirects index.html to the directory
			r = r.Clone(r.Context())
			r.URL.Path = "/"
			w.Header().Set("Content-Type", mimeFromExt(".html"))
		}
		if strings.HasSuffix(r.URL.Path, ".md") {
			http.NotFound(w, r)
			return
		}

		// Set content type explicitly for known extensions
		ext := strings.ToLower(path.Ext(r.URL.Path))
		if ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}
		fileServer.ServeHTTP(w, r)
	})
}
