// Package errpage provides configurable per-status error page bodies,
// read once at startup and cached in memory, with a minimal built-in
// fallback when a configured file is missing or unreadable.
package errpage

import (
	"fmt"
	"os"

	"github.com/yourusername/ember/pkg/ember/wire"
)

// Set is a cache of rendered error page bodies, one entry loaded per
// configured status code.
type Set struct {
	bodies map[int][]byte
}

// Load reads every configured error page file once at startup.
// Files that fail to read are silently skipped; Body falls back to the
// built-in template for any status not present in the returned Set.
func Load(pages map[int]string) (*Set, error) {
	s := &Set{bodies: make(map[int][]byte, len(pages))}
	for code, path := range pages {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		s.bodies[code] = data
	}
	return s, nil
}

// Body returns the cached page for code, or the built-in fallback
// HTML if none was configured or loaded successfully.
func (s *Set) Body(code int) []byte {
	if s != nil {
		if b, ok := s.bodies[code]; ok {
			return b
		}
	}
	return fallback(code)
}

func fallback(code int) []byte {
	return []byte(fmt.Sprintf(
		"<html><body><h1>%d %s</h1></body></html>",
		code, wire.StatusText(code),
	))
}
