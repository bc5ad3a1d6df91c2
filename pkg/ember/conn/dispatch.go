package conn

import (
	"strconv"
	"time"

	"github.com/yourusername/ember/pkg/ember/router"
	"github.com/yourusername/ember/pkg/ember/session"
	"github.com/yourusername/ember/pkg/ember/static"
	"github.com/yourusername/ember/pkg/ember/wire"
)

// dispatch acts on the router's decision: redirect, CGI, directory, or
// static file; CGI is the only branch that doesn't resolve to an
// immediate Response.
func (c *Conn) dispatch(d router.Decision, now time.Time) error {
	c.keep = !c.req.Close

	switch d.Kind {
	case router.KindError:
		c.respondError(d)
		return nil
	case router.KindRedirect:
		c.respondRedirect(d)
		return nil
	case router.KindCGI:
		return c.startCGI(d, now)
	default:
		c.respondFile(d)
		return nil
	}
}

func (c *Conn) respondError(d router.Decision) {
	resp := wire.NewErrorResponse(d.ErrKind, c.deps.ErrorPages.Body(wire.StatusFor(d.ErrKind)))
	if d.ErrKind == wire.ErrMethodNotAllowed && len(d.Allowed) > 0 {
		allow := d.Allowed[0]
		for _, m := range d.Allowed[1:] {
			allow += ", " + m
		}
		resp.Header.Set("Allow", allow)
	}
	c.enqueue(resp)
}

func (c *Conn) respondRedirect(d router.Decision) {
	code := d.Redirect.Code
	if code == 0 {
		code = 302
	}
	resp := wire.NewResponse(code)
	resp.Header.Set("Location", d.Redirect.Target)
	resp.Body = wire.NewBufferedBody(nil)
	c.enqueue(resp)
}

// respondFile handles both KindDirectory and KindStatic: the request
// method picks upload, delete, or serve.
func (c *Conn) respondFile(d router.Decision) {
	var resp *wire.Response
	var errKind wire.ErrKind

	switch c.req.Method {
	case wire.MethodDELETE:
		if d.Kind == router.KindDirectory {
			errKind = wire.ErrForbidden
		} else {
			resp, errKind = static.HandleDelete(d.FSPath)
		}
	case wire.MethodPOST:
		if d.Location.UploadDir != "" {
			resp, errKind = static.HandleUpload(c.req, d.Location.UploadDir)
		} else {
			errKind = wire.ErrForbidden
		}
	default:
		if d.Kind == router.KindDirectory {
			resp, errKind = static.HandleDirectory(d.FSPath, d.Location)
		} else {
			resp, errKind = static.ServeFile(d.FSPath)
		}
	}

	if errKind != wire.ErrNone {
		resp = wire.NewErrorResponse(errKind, c.deps.ErrorPages.Body(wire.StatusFor(errKind)))
	}
	c.enqueue(resp)
}

// enqueue attaches the session cookie, collapses the
// body for HEAD requests while preserving Content-Length, finalizes
// the response's ambient headers, serializes it into the write
// buffer, and moves the connection into Writing.
func (c *Conn) enqueue(resp *wire.Response) {
	if c.req != nil && c.deps.Sessions != nil {
		sess, isNew, err := session.Resolve(c.deps.Sessions, c.req, time.Now())
		if err == nil {
			session.Apply(c.deps.Sessions, resp, sess, isNew)
		}
	}

	if c.req != nil && c.req.Method == wire.MethodHEAD && resp.Body.Size() > 0 {
		resp.Header.Set("Content-Length", strconv.FormatInt(resp.Body.Size(), 10))
		_ = resp.Body.Close()
		resp.Body = wire.NewBufferedBody(nil)
	}

	serverIdent := c.deps.ServerIdent
	resp.Finalize(serverIdent, c.keep)

	var buf growBuffer
	_, werr := resp.WriteTo(&buf)
	_ = resp.Body.Close()
	if werr != nil {
		c.phase = Closing
		return
	}
	c.writeBuf = buf.b
	c.writeCursor = 0
	c.responseStarted = true
	c.phase = Writing

	method, path := "", ""
	if c.req != nil {
		method, path = c.req.MethodRaw, c.req.Path
	}
	c.deps.Registrar.RequestServed(method, path, resp.Status)
}

// growBuffer is a minimal io.Writer sink for Response.WriteTo; a
// plain append-only byte slice, since the whole response (other than
// a streaming CGI body, built incrementally in cgi.go) is assembled
// once per request, not streamed through here.
type growBuffer struct{ b []byte }

func (g *growBuffer) Write(p []byte) (int, error) {
	g.b = append(g.b, p...)
	return len(p), nil
}
