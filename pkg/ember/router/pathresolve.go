package router

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/yourusername/ember/pkg/ember/config"
)

// ResolvePath resolves a request target to a filesystem path: join
// root with the request path (stripping the location prefix only when
// the location is configured to do so), reject anything that escapes
// root after normalizing "." and ".." (including through a symlink),
// and report whether the final path is a directory.
func ResolvePath(root string, loc *config.Location, reqPath string) (fsPath string, isDir bool, escaped bool) {
	rest := reqPath
	if loc.StripPrefix {
		rest = strings.TrimPrefix(reqPath, loc.Prefix)
	}
	if !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}

	cleanRoot := filepath.Clean(root)
	joined := filepath.Join(cleanRoot, rest)

	if escapesRoot(cleanRoot, joined) {
		return "", false, true
	}

	resolved := joined
	if real, err := filepath.EvalSymlinks(joined); err == nil {
		rootReal, rerr := filepath.EvalSymlinks(cleanRoot)
		if rerr == nil && escapesRoot(rootReal, real) {
			return "", false, true
		}
		resolved = real
	}

	info, err := os.Stat(resolved)
	if err == nil && info.IsDir() {
		return resolved, true, false
	}
	return resolved, false, false
}

func escapesRoot(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}
	return false
}
