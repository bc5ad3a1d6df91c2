package session

import (
	"time"

	"github.com/yourusername/ember/pkg/ember/wire"
)

// Resolve performs per-request session handling: if
// the Cookie header names a live session, touch and return it; else
// issue a new one. isNew tells the caller whether to append a
// Set-Cookie header to the outgoing response.
func Resolve(st *Store, req *wire.Request, now time.Time) (sess *Session, isNew bool, err error) {
	if token, ok := TokenFromRequest(req); ok {
		if sess, ok := st.Lookup(token, now); ok {
			return sess, false, nil
		}
	}
	sess, err = st.New(now)
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

// Apply attaches the Set-Cookie header to resp if the session was
// freshly issued.
func Apply(st *Store, resp *wire.Response, sess *Session, isNew bool) {
	if !isNew {
		return
	}
	resp.Header.Add("Set-Cookie", SetCookieHeader(sess, st.MaxAgeSeconds()))
}
