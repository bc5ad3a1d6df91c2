package wire

import "strings"

// Request is the parsed form of an HTTP/1.1 request. A Request only
// reaches routing with method, target, host and a complete body
// populated.
type Request struct {
	Method    Method
	MethodRaw string // preserved so an unknown verb can still drive a 501
	Target    string // raw request-target, path+query, unsplit
	Path      string
	RawQuery  string
	Version   string // "HTTP/1.1" or "HTTP/1.0"
	Header    Header

	Host string

	ContentLength int64 // -1 when chunked/unknown, else exact byte count
	Chunked       bool
	Close         bool // "Connection: close" seen, or HTTP/1.0 w/o keep-alive

	Body *Body

	// RemoteAddr is filled in by the connection, not the parser.
	RemoteAddr string
}

// Reset clears a Request for reuse from a pool.
func (r *Request) Reset() {
	r.Method = MethodUnknown
	r.MethodRaw = ""
	r.Target = ""
	r.Path = ""
	r.RawQuery = ""
	r.Version = ""
	r.Header.Reset()
	r.Host = ""
	r.ContentLength = 0
	r.Chunked = false
	r.Close = false
	r.Body = nil
	r.RemoteAddr = ""
}

// HostWithoutPort strips a trailing ":port" from the Host header for
// server_name matching.
func (r *Request) HostWithoutPort() string {
	h := r.Host
	if idx := strings.LastIndexByte(h, ':'); idx >= 0 {
		// A colon inside a bracketed IPv6 literal such as "[::1]" is not
		// taken as a port separator. An unbracketed IPv6 literal is not
		// recognised and loses its last segment.
		if !strings.Contains(h[idx:], "]") {
			return h[:idx]
		}
	}
	return h
}
