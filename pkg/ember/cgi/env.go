// Package cgi spawns a CGI interpreter per request, bridges its
// stdin/stdout to the connection's non-blocking I/O, and translates
// its output into a wire.Response. The child's pipes are raw,
// poller-registered fds like every other fd this engine owns; no
// goroutine ever blocks on the child.
package cgi

import (
	"strconv"
	"strings"

	"github.com/yourusername/ember/pkg/ember/wire"
)

// BuildEnv constructs the CGI/1.1 environment for one request.
func BuildEnv(req *wire.Request, scriptPath, pathInfo, serverName string, serverPort int) []string {
	env := []string{
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_PROTOCOL=HTTP/1.1",
		"SERVER_SOFTWARE=emberd",
		"REQUEST_METHOD=" + req.MethodRaw,
		"SCRIPT_FILENAME=" + scriptPath,
		"PATH_INFO=" + pathInfo,
		"QUERY_STRING=" + req.RawQuery,
		"SERVER_NAME=" + serverName,
		"SERVER_PORT=" + strconv.Itoa(serverPort),
	}

	if req.ContentLength > 0 {
		env = append(env, "CONTENT_LENGTH="+strconv.FormatInt(req.ContentLength, 10))
	}
	if ct := req.Header.Get("Content-Type"); ct != "" {
		env = append(env, "CONTENT_TYPE="+ct)
	}

	req.Header.VisitAll(func(name, value string) {
		lower := strings.ToLower(name)
		if lower == "content-type" || lower == "content-length" {
			return
		}
		env = append(env, "HTTP_"+headerEnvName(name)+"="+value)
	})

	return env
}

// headerEnvName converts a header name like "Accept-Language" into the
// CGI variable suffix "ACCEPT_LANGUAGE".
func headerEnvName(name string) string {
	b := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '-':
			b[i] = '_'
		case c >= 'a' && c <= 'z':
			b[i] = c - ('a' - 'A')
		default:
			b[i] = c
		}
	}
	return string(b)
}
