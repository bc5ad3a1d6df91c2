package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yourusername/ember/pkg/ember/config"
	"github.com/yourusername/ember/pkg/ember/wire"
)

func testServer(root string) *config.ServerConfig {
	return &config.ServerConfig{
		BindAddress: "127.0.0.1",
		Ports:       []int{8080},
		ServerNames: []string{"localhost"},
		Root:        root,
		Locations: []config.Location{
			{Prefix: "/", Methods: map[string]bool{"GET": true, "HEAD": true}, Index: "index.html"},
			{Prefix: "/cgi-bin/", Methods: map[string]bool{"GET": true, "POST": true}, CGI: map[string]string{".py": "/usr/bin/python3"}},
			{Prefix: "/upload", Methods: map[string]bool{"POST": true}, UploadDir: "uploads"},
		},
	}
}

func TestSelectServerFallsBackToFirstOnHostMismatch(t *testing.T) {
	a := testServer(".")
	a.ServerNames = []string{"a.local"}
	b := testServer(".")
	b.ServerNames = []string{"b.local"}
	servers := []*config.ServerConfig{a, b}

	got := SelectServer(servers, "127.0.0.1", 8080, "b.local")
	require.Same(t, b, got)

	got = SelectServer(servers, "127.0.0.1", 8080, "unknown.example")
	require.Same(t, a, got)
}

func TestRouteLongestPrefixWins(t *testing.T) {
	sc := testServer(t.TempDir())
	d := Route(sc, "GET", "/cgi-bin/script.py")
	require.Equal(t, KindCGI, d.Kind)
	require.Equal(t, "/usr/bin/python3", d.Interpreter)
}

func TestRouteMethodNotAllowed(t *testing.T) {
	sc := testServer(t.TempDir())
	d := Route(sc, "DELETE", "/cgi-bin/script.py")
	require.Equal(t, KindError, d.Kind)
	require.Equal(t, wire.ErrMethodNotAllowed, d.ErrKind)
	require.Contains(t, d.Allowed, "GET")
}

func TestRouteNoLocationMatch404(t *testing.T) {
	sc := &config.ServerConfig{Root: ".", Locations: nil}
	d := Route(sc, "GET", "/anything")
	require.Equal(t, wire.ErrNotFound, d.ErrKind)
}

func TestResolvePathRejectsEscape(t *testing.T) {
	root := t.TempDir()
	loc := &config.Location{Prefix: "/"}
	_, _, escaped := ResolvePath(root, loc, "/../../etc/passwd")
	require.True(t, escaped)
}

func TestResolvePathWithinRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("hi"), 0o644))
	loc := &config.Location{Prefix: "/"}
	path, isDir, escaped := ResolvePath(root, loc, "/index.html")
	require.False(t, escaped)
	require.False(t, isDir)
	require.Equal(t, filepath.Join(root, "index.html"), path)
}

func TestResolvePathDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	loc := &config.Location{Prefix: "/"}
	_, isDir, escaped := ResolvePath(root, loc, "/sub")
	require.False(t, escaped)
	require.True(t, isDir)
}

func TestRouteStaticDispatch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("hi"), 0o644))
	sc := testServer(root)
	d := Route(sc, "GET", "/index.html")
	require.Equal(t, KindStatic, d.Kind)
	require.Equal(t, filepath.Join(root, "index.html"), d.FSPath)
}
