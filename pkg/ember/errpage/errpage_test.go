package errpage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadServesConfiguredPage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "404.html")
	require.NoError(t, os.WriteFile(path, []byte("<h1>custom 404</h1>"), 0o644))

	s, err := Load(map[int]string{404: path})
	require.NoError(t, err)
	require.Equal(t, "<h1>custom 404</h1>", string(s.Body(404)))
}

func TestBodyFallsBackWhenUnconfigured(t *testing.T) {
	s, err := Load(nil)
	require.NoError(t, err)
	require.Contains(t, string(s.Body(500)), "500 Internal Server Error")
}

func TestBodyFallsBackWhenFileUnreadable(t *testing.T) {
	s, err := Load(map[int]string{403: "/nonexistent/path/403.html"})
	require.NoError(t, err)
	require.Contains(t, string(s.Body(403)), "403 Forbidden")
}

func TestBodyOnNilSetFallsBack(t *testing.T) {
	var s *Set
	require.Contains(t, string(s.Body(404)), "404 Not Found")
}
