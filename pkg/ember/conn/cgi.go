package conn

import (
	"io"
	"strconv"
	"time"

	"github.com/yourusername/ember/pkg/ember/cgi"
	"github.com/yourusername/ember/pkg/ember/poller"
	"github.com/yourusername/ember/pkg/ember/router"
	"github.com/yourusername/ember/pkg/ember/session"
	"github.com/yourusername/ember/pkg/ember/wire"
)

// cgiExec holds the per-connection CGI bridge state: the child
// process, the stdin write cursor, and the incremental OutputParser
// driving the header/body split of its stdout.
type cgiExec struct {
	proc *cgi.Process
	out  *cgi.OutputParser

	bodyReader   io.ReadSeeker
	pendingChunk []byte
	bodySent     bool

	stdoutEOF    bool
	stdoutPaused bool
	exited       bool
	exitCode     int

	headersBuilt bool
	chunkedBody  bool
	sawAnyBytes  bool

	deadline     time.Time
	termSent     bool
	termDeadline time.Time
}

// startCGI spawns the interpreter and registers its pipes with the
// poller, moving the connection into RunningCgi.
func (c *Conn) startCGI(d router.Decision, now time.Time) error {
	serverName := c.deps.BindAddress
	if c.server != nil && len(c.server.ServerNames) > 0 {
		serverName = c.server.ServerNames[0]
	}

	env := cgi.BuildEnv(c.req, d.ScriptPath, d.PathInfo, serverName, c.deps.Port)
	proc, err := cgi.Start(d.Interpreter, d.ScriptPath, env)
	if err != nil {
		c.enqueue(wire.NewErrorResponse(wire.ErrCgiFailure, c.deps.ErrorPages.Body(502)))
		return nil
	}

	cg := &cgiExec{
		proc:     proc,
		out:      cgi.NewOutputParser(),
		deadline: now.Add(c.deps.CGITimeout),
	}
	if c.req.Body != nil && c.req.Body.Size() > 0 {
		br, berr := c.req.Body.Reader()
		if berr == nil {
			cg.bodyReader = br
		}
	}

	reg := c.deps.Registrar
	if cg.bodyReader != nil {
		reg.Track(proc.StdinFd(), c.ID, FdCgiStdin)
		_ = reg.Poller().Add(proc.StdinFd(), poller.EventWritable)
	} else {
		cg.bodySent = true
		_ = proc.CloseStdin()
	}
	reg.Track(proc.StdoutFd(), c.ID, FdCgiStdout)
	_ = reg.Poller().Add(proc.StdoutFd(), poller.EventReadable)

	c.cg = cg
	c.phase = RunningCgi
	reg.CGISpawned()
	return nil
}

// OnCGIStdinWritable feeds the next chunk of the request body to the
// child, closing stdin once the body is fully written.
func (c *Conn) OnCGIStdinWritable(now time.Time) error {
	c.touch(now)
	cg := c.cg
	if cg == nil || cg.bodySent {
		return nil
	}

	if len(cg.pendingChunk) == 0 {
		buf := make([]byte, 32*1024)
		n, rerr := cg.bodyReader.Read(buf)
		if n > 0 {
			cg.pendingChunk = buf[:n]
		}
		if rerr != nil && rerr != io.EOF {
			c.cgiFail(wire.ErrCgiFailure)
			return nil
		}
		if n == 0 && rerr == io.EOF {
			c.closeCgiStdin()
			return nil
		}
	}

	if len(cg.pendingChunk) > 0 {
		n, werr := cg.proc.WriteStdin(cg.pendingChunk)
		if werr != nil {
			c.cgiFail(wire.ErrCgiFailure)
			return nil
		}
		cg.pendingChunk = cg.pendingChunk[n:]
	}
	return nil
}

func (c *Conn) closeCgiStdin() {
	cg := c.cg
	if cg == nil || cg.bodySent {
		return
	}
	cg.bodySent = true
	// Deregister before closing: StdinFd is gone once the pipe closes.
	c.deps.Registrar.Untrack(cg.proc.StdinFd())
	_ = c.deps.Registrar.Poller().Remove(cg.proc.StdinFd())
	_ = cg.proc.CloseStdin()
}

// OnCGIStdoutReadable drains the child's stdout, splitting headers
// from body and streaming body bytes straight into the connection's
// write buffer as they arrive.
func (c *Conn) OnCGIStdoutReadable(now time.Time) error {
	c.touch(now)
	cg := c.cg
	if cg == nil {
		return nil
	}

	buf := make([]byte, 64*1024)
	n, rerr := cg.proc.ReadStdout(buf)
	if rerr != nil {
		c.cgiFail(wire.ErrCgiFailure)
		return nil
	}
	if n == 0 {
		cg.stdoutEOF = true
	} else {
		body, ready, ferr := cg.out.Feed(buf[:n])
		if ferr != nil {
			c.cgiFail(wire.ErrCgiFailure)
			return nil
		}
		if ready {
			if !cg.headersBuilt {
				c.buildCgiHeaders()
			}
			c.writeCgiBodyChunk(body)
		}
	}

	c.reapCGI(now)
	return nil
}

func (c *Conn) buildCgiHeaders() {
	cg := c.cg
	cg.headersBuilt = true
	cg.sawAnyBytes = true

	resp := wire.NewResponse(cg.out.Status())
	resp.Header = cg.out.Header().Clone()
	cg.chunkedBody = !resp.Header.Has("Content-Length")
	resp.Chunked = cg.chunkedBody

	if c.req != nil && c.deps.Sessions != nil {
		sess, isNew, err := session.Resolve(c.deps.Sessions, c.req, time.Now())
		if err == nil {
			session.Apply(c.deps.Sessions, resp, sess, isNew)
		}
	}
	resp.Finalize(c.deps.ServerIdent, c.keep)

	var head growBuffer
	_, _ = resp.WriteTo(&head)
	c.appendWrite(head.b)
	c.phase = Writing
	c.responseStarted = true

	method, path := "", ""
	if c.req != nil {
		method, path = c.req.MethodRaw, c.req.Path
	}
	c.deps.Registrar.RequestServed(method, path, resp.Status)
}

func (c *Conn) writeCgiBodyChunk(b []byte) {
	if len(b) == 0 {
		return
	}
	cg := c.cg
	if cg.chunkedBody {
		c.appendWrite([]byte(strconv.FormatInt(int64(len(b)), 16) + "\r\n"))
		c.appendWrite(b)
		c.appendWrite([]byte("\r\n"))
	} else {
		c.appendWrite(b)
	}
	c.checkCgiBackpressure()
}

// checkCgiBackpressure bounds memory against a slow client: once the
// client write buffer exceeds 256 KiB pending, stop reading the CGI
// child's stdout until it drains below 128 KiB
// (maybeReleaseCgiBackpressure, called from OnWritable).
func (c *Conn) checkCgiBackpressure() {
	cg := c.cg
	if cg == nil || cg.stdoutPaused {
		return
	}
	if c.pendingWrite() > backpressureHigh {
		cg.stdoutPaused = true
		_ = c.deps.Registrar.Poller().Modify(cg.proc.StdoutFd(), 0)
	}
}

func (c *Conn) maybeReleaseCgiBackpressure() {
	cg := c.cg
	if cg == nil || !cg.stdoutPaused {
		return
	}
	if c.pendingWrite() < backpressureLow {
		cg.stdoutPaused = false
		_ = c.deps.Registrar.Poller().Modify(cg.proc.StdoutFd(), poller.EventReadable)
	}
}

// reapCGI performs a non-blocking wait for the child and, once both
// stdout is drained and the child has exited, finalizes the response.
func (c *Conn) reapCGI(now time.Time) {
	cg := c.cg
	if cg == nil || cg.exited {
		return
	}
	exited, code, err := cg.proc.TryWait()
	if err != nil || !exited {
		return
	}
	cg.exited = true
	cg.exitCode = code
	if cg.stdoutEOF {
		c.finishCGI(now)
	}
}

// TickCGI is called by the engine on its periodic sweep for any
// connection with a live CGI child, to enforce the CGI deadline
// (SIGTERM, then SIGKILL after a grace period) and to catch an exit
// that happened without a further stdout readiness event.
func (c *Conn) TickCGI(now time.Time) {
	cg := c.cg
	if cg == nil {
		return
	}
	if !cg.termSent && now.After(cg.deadline) {
		_ = cg.proc.Terminate()
		cg.termSent = true
		cg.termDeadline = now.Add(c.deps.CGIGraceTimeout)
		return
	}
	if cg.termSent && now.After(cg.termDeadline) && !cg.exited {
		_ = cg.proc.Kill()
		c.cgiFail(wire.ErrUpstreamTimeout)
		return
	}
	c.reapCGI(now)
}

// finishCGI runs once the child has exited and stdout hit EOF: flush
// remaining stdout (already streamed as it arrived), close out chunked
// framing, and either hand a malformed-header case to cgiFail or move
// to Writing.
func (c *Conn) finishCGI(now time.Time) {
	cg := c.cg
	if !cg.headersBuilt {
		kind := wire.ErrCgiFailure
		c.cgiFail(kind)
		return
	}
	if cg.exitCode != 0 && !cg.sawAnyBytes {
		c.cgiFail(wire.ErrCgiFailure)
		return
	}
	if cg.chunkedBody {
		c.appendWrite([]byte("0\r\n\r\n"))
	}
	c.teardownCGI()
	c.phase = Writing
	_ = c.OnWritable(now)
}

// cgiFail kills whatever remains of the child, tears down its fds, and
// emits the mapped error response (502 for a bad gateway, 504 for a
// timeout); a malformed or unresponsive CGI script never terminates
// the connection outright.
func (c *Conn) cgiFail(kind wire.ErrKind) {
	cg := c.cg
	if cg != nil {
		_ = cg.proc.Terminate()
		_, _, _ = cg.proc.TryWait()
	}
	c.teardownCGI()
	c.deps.Registrar.CGIFailed()
	if c.responseStarted {
		// Headers already flushed to the client; there's no way to
		// retroactively change them, so just close once drained.
		c.keep = false
		c.closeRequested = true
		return
	}
	c.enqueue(wire.NewErrorResponse(kind, c.deps.ErrorPages.Body(wire.StatusFor(kind))))
}

func (c *Conn) teardownCGI() {
	cg := c.cg
	if cg == nil {
		return
	}
	reg := c.deps.Registrar
	reg.Untrack(cg.proc.StdinFd())
	reg.Untrack(cg.proc.StdoutFd())
	_ = reg.Poller().Remove(cg.proc.StdinFd())
	_ = reg.Poller().Remove(cg.proc.StdoutFd())
	_ = cg.proc.CloseStdin()
	_ = cg.proc.CloseStdout()
	c.cg = nil
}
