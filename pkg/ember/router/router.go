// Package router implements request dispatch: server block selection
// by Host, longest-prefix location match, method check, and the
// redirect > CGI > directory > static dispatch order. Matching is
// plain functions over the config tree, no interfaces beyond what
// Route returns.
package router

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/yourusername/ember/pkg/ember/config"
	"github.com/yourusername/ember/pkg/ember/wire"
)

// Kind classifies how a matched request should be handled.
type Kind int

const (
	KindError Kind = iota
	KindRedirect
	KindCGI
	KindDirectory
	KindStatic
)

// Decision is the outcome of routing one request.
type Decision struct {
	Kind Kind

	Server   *config.ServerConfig
	Location *config.Location

	// Populated when Kind == KindError.
	ErrKind wire.ErrKind
	// Allowed is set alongside a KindError/ErrMethodNotAllowed decision
	// so the caller can emit the Allow header.
	Allowed []string

	// Populated when Kind == KindRedirect.
	Redirect *config.Redirect

	// Populated when Kind == KindCGI.
	Interpreter string
	ScriptPath  string
	PathInfo    string

	// Populated when Kind == KindDirectory or KindStatic.
	FSPath string
}

// SelectServer picks the server block for a connection accepted on
// (bindAddr, port) with the given Host header value (already without
// the optional ":port" suffix). The first block whose server_name list
// contains the host wins; fallback is the first block for the pair.
func SelectServer(servers []*config.ServerConfig, bindAddr string, port int, host string) *config.ServerConfig {
	host = strings.ToLower(host)
	var candidates []*config.ServerConfig
	for _, sc := range servers {
		if !hasPort(sc, port) {
			continue
		}
		if sc.BindAddress != "" && bindAddr != "" && sc.BindAddress != bindAddr {
			continue
		}
		candidates = append(candidates, sc)
	}
	for _, sc := range candidates {
		if sc.ServerNameMatches(host) {
			return sc
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}

func hasPort(sc *config.ServerConfig, port int) bool {
	for _, p := range sc.Ports {
		if p == port {
			return true
		}
	}
	return false
}

// selectLocation picks the longest matching prefix, ties broken by
// declaration order.
func selectLocation(sc *config.ServerConfig, path string) (*config.Location, bool) {
	best := -1
	for i := range sc.Locations {
		prefix := sc.Locations[i].Prefix
		if strings.HasPrefix(path, prefix) {
			if best == -1 || len(prefix) > len(sc.Locations[best].Prefix) {
				best = i
			}
		}
	}
	if best == -1 {
		return nil, false
	}
	return &sc.Locations[best], true
}

// Route implements the full dispatch decision for one request. path is
// the request target's path component only (no query string).
func Route(sc *config.ServerConfig, method, path string) Decision {
	loc, ok := selectLocation(sc, path)
	if !ok {
		return Decision{Kind: KindError, ErrKind: wire.ErrNotFound}
	}

	if !loc.AllowsMethod(method) {
		return Decision{Kind: KindError, ErrKind: wire.ErrMethodNotAllowed, Location: loc, Allowed: allowedList(loc)}
	}

	if loc.Redirect != nil {
		return Decision{Kind: KindRedirect, Server: sc, Location: loc, Redirect: loc.Redirect}
	}

	if len(loc.CGI) > 0 {
		if interp, cgiPath, pathInfo, ok := matchCGI(loc, path); ok {
			scriptPath, _, escErr := ResolvePath(sc.Root, loc, cgiPath)
			if escErr {
				return Decision{Kind: KindError, ErrKind: wire.ErrForbidden, Location: loc}
			}
			return Decision{
				Kind:        KindCGI,
				Server:      sc,
				Location:    loc,
				Interpreter: interp,
				ScriptPath:  scriptPath,
				PathInfo:    pathInfo,
			}
		}
	}

	fsPath, isDir, escErr := ResolvePath(sc.Root, loc, path)
	if escErr {
		return Decision{Kind: KindError, ErrKind: wire.ErrForbidden, Location: loc}
	}

	if isDir {
		return Decision{Kind: KindDirectory, Server: sc, Location: loc, FSPath: fsPath}
	}

	return Decision{Kind: KindStatic, Server: sc, Location: loc, FSPath: fsPath}
}

// matchCGI walks reqPath's segments looking for one ending in a
// registered CGI extension, returning the interpreter, the request
// path up to and including that segment (the script), and anything
// after it as PATH_INFO.
func matchCGI(loc *config.Location, reqPath string) (interp, scriptReqPath, pathInfo string, ok bool) {
	segments := strings.Split(reqPath, "/")
	cum := ""
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		cum += "/" + seg
		ext := filepath.Ext(seg)
		if in, found := loc.CGI[ext]; found {
			rest := strings.Join(segments[i+1:], "/")
			if rest != "" {
				rest = "/" + rest
			}
			return in, cum, rest, true
		}
	}
	return "", "", "", false
}

func allowedList(loc *config.Location) []string {
	if len(loc.Methods) == 0 {
		return []string{"GET", "HEAD", "POST", "DELETE"}
	}
	out := make([]string, 0, len(loc.Methods))
	for m := range loc.Methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
