package session

import (
	"strconv"
	"strings"

	"github.com/yourusername/ember/pkg/ember/wire"
)

const cookieName = "sessionid"

// TokenFromRequest extracts the sessionid cookie value from a
// request's Cookie header. Cookie is a single semicolon-separated
// header, unlike Set-Cookie which may repeat.
func TokenFromRequest(req *wire.Request) (string, bool) {
	raw := req.Header.Get("Cookie")
	if raw == "" {
		return "", false
	}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(name) == cookieName {
			return strings.TrimSpace(value), true
		}
	}
	return "", false
}

// SetCookieHeader builds the Set-Cookie value for a freshly issued
// session.
func SetCookieHeader(sess *Session, maxAgeSeconds int) string {
	return cookieName + "=" + sess.ID +
		"; HttpOnly; Path=/; Max-Age=" + strconv.Itoa(maxAgeSeconds)
}
