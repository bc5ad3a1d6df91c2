// Package static serves files and directory listings from the
// document root, plus the upload and delete operations a Location with
// an upload_store or write access exposes. Kept in the plain-function
// style the router package uses.
package static

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yourusername/ember/pkg/ember/config"
	"github.com/yourusername/ember/pkg/ember/wire"
)

// ServeFile opens fsPath and builds a 200 response streaming its
// contents. ENOENT maps to 404, EACCES to 403, other I/O to 500.
func ServeFile(fsPath string) (*wire.Response, wire.ErrKind) {
	f, err := os.Open(fsPath)
	if err != nil {
		return nil, classifyOSError(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wire.ErrIoError
	}
	if info.IsDir() {
		f.Close()
		return nil, wire.ErrForbidden
	}

	resp := wire.NewResponse(200)
	resp.Header.Set("Content-Type", ContentTypeFor(fsPath))
	resp.Body = wire.NewFileBody(f, info.Size())
	return resp, wire.ErrNone
}

// HandleDirectory serves loc.Index if present, else an autoindex
// listing if enabled, else 403.
func HandleDirectory(fsPath string, loc *config.Location) (*wire.Response, wire.ErrKind) {
	if loc.Index != "" {
		indexPath := filepath.Join(fsPath, loc.Index)
		if info, err := os.Stat(indexPath); err == nil && !info.IsDir() {
			return ServeFile(indexPath)
		}
	}
	if loc.Autoindex {
		return autoindexResponse(fsPath)
	}
	return nil, wire.ErrForbidden
}

// autoindexResponse renders an HTML directory listing, directories
// first then lexicographic.
func autoindexResponse(fsPath string) (*wire.Response, wire.ErrKind) {
	entries, err := os.ReadDir(fsPath)
	if err != nil {
		return nil, classifyOSError(err)
	}
	sort.Slice(entries, func(i, j int) bool {
		di, dj := entries[i].IsDir(), entries[j].IsDir()
		if di != dj {
			return di
		}
		return entries[i].Name() < entries[j].Name()
	})

	var b strings.Builder
	b.WriteString("<html><body><h1>Index</h1><ul>\n")
	for _, e := range entries {
		name := e.Name()
		suffix := ""
		if e.IsDir() {
			suffix = "/"
		}
		var size int64
		var mtime time.Time
		if info, err := e.Info(); err == nil {
			size = info.Size()
			mtime = info.ModTime()
		}
		fmt.Fprintf(&b, "<li><a href=\"%s%s\">%s%s</a> %d %s</li>\n",
			name, suffix, name, suffix, size, mtime.UTC().Format(time.RFC1123))
	}
	b.WriteString("</ul></body></html>")

	resp := wire.NewResponse(200)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	resp.Body = wire.NewBufferedBody([]byte(b.String()))
	return resp, wire.ErrNone
}

// HandleDelete removes fsPath and acknowledges with a small JSON body.
func HandleDelete(fsPath string) (*wire.Response, wire.ErrKind) {
	if err := os.Remove(fsPath); err != nil {
		return nil, classifyOSError(err)
	}
	resp := wire.NewResponse(200)
	resp.Header.Set("Content-Type", "application/json")
	resp.Body = wire.NewBufferedBody([]byte(`{"status":"ok"}`))
	return resp, wire.ErrNone
}

func classifyOSError(err error) wire.ErrKind {
	switch {
	case os.IsNotExist(err):
		return wire.ErrNotFound
	case os.IsPermission(err):
		return wire.ErrForbidden
	default:
		return wire.ErrIoError
	}
}
