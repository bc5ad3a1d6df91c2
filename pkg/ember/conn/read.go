package conn

import (
	"time"

	"github.com/yourusername/ember/pkg/ember/router"
	"github.com/yourusername/ember/pkg/ember/socket"
	"github.com/yourusername/ember/pkg/ember/wire"
)

// OnReadable handles a read-readiness event on the client socket:
// read up to ReadChunkSize bytes, feed the parser, and advance to
// Processing once a request is complete.
func (c *Conn) OnReadable(now time.Time) error {
	c.touch(now)

	buf := make([]byte, wire.ReadChunkSize)
	n, err := socket.Read(c.Fd, buf)
	if err != nil {
		if socket.IsWouldBlock(err) {
			return nil
		}
		return errConnReset
	}
	if n == 0 {
		// EOF: client closed before completing a request.
		c.phase = Closing
		return nil
	}

	maxRead := c.maxBodySize() + wire.HeaderSlack
	if maxRead > 0 && int64(len(c.readBuf)+n) > maxRead {
		c.failRequest(wire.ErrBodyTooLarge)
		return nil
	}

	if perr := c.parser.Feed(buf[:n]); perr != nil {
		c.failRequest(wire.KindOf(perr))
		return nil
	}

	if !c.parser.Done() {
		return nil
	}

	c.req = c.parser.Request()
	c.req.RemoteAddr = c.RemoteAddr
	c.pendingLeftover = append([]byte(nil), c.parser.Leftover()...)
	c.phase = Processing
	return c.process(now)
}

func (c *Conn) maxBodySize() int64 {
	var max int64
	for _, sc := range c.deps.Servers {
		if sc.ClientMaxBodySize > max {
			max = sc.ClientMaxBodySize
		}
	}
	return max
}

// failRequest synthesizes an error Response for a parse failure and
// moves straight to Writing without ever reaching Processing; a
// request-scoped error becomes an error Response, it doesn't terminate
// the connection.
func (c *Conn) failRequest(kind wire.ErrKind) {
	resp := wire.NewErrorResponse(kind, c.deps.ErrorPages.Body(wire.StatusFor(kind)))
	c.keep = false // a parse error always forces close
	c.enqueue(resp)
}

// process runs synchronous routing for a completed request,
// dispatching to a Response directly or spawning CGI.
func (c *Conn) process(now time.Time) error {
	host := c.req.HostWithoutPort()
	sc := router.SelectServer(c.deps.Servers, c.deps.BindAddress, c.deps.Port, host)
	if sc == nil {
		c.failRequest(wire.ErrNotFound)
		return nil
	}
	c.server = sc
	c.timeout = sc.Timeout

	if c.req.Method == wire.MethodUnknown {
		c.respondUnimplemented()
		return nil
	}

	decision := router.Route(sc, c.req.MethodRaw, c.req.Path)
	return c.dispatch(decision, now)
}

func (c *Conn) respondUnimplemented() {
	resp := wire.NewErrorResponse(wire.ErrMalformedRequest, c.deps.ErrorPages.Body(501))
	resp.Status = 501
	c.enqueue(resp)
}

var errConnReset = errConn("connection reset")

type errConn string

func (e errConn) Error() string { return string(e) }
