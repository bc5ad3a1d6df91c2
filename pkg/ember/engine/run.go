package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/ember/pkg/ember/conn"
	"github.com/yourusername/ember/pkg/ember/poller"
	"github.com/yourusername/ember/pkg/ember/socket"
)

// pollTimeout caps how long Wait blocks per iteration: even an idle
// server must keep sweeping for timed-out connections and CGI
// children.
const pollTimeout = 500 * time.Millisecond

// sweepInterval is how often Run runs the full timeout sweep, rather
// than doing it every single iteration of a potentially very busy loop.
const sweepInterval = 250 * time.Millisecond

// Run drives the event loop until stop is closed or an unrecoverable
// poller error occurs. It never returns nil and non-nil simultaneously
// with connections still open; callers that want a bounded shutdown
// should close stop and then call Run, which itself performs the
// drain-then-force-close sequence.
func (e *Engine) Run(stop <-chan struct{}) error {
	lastSweep := time.Now()

	for {
		select {
		case <-stop:
			if !e.shuttingDown {
				e.beginShutdown()
			}
		default:
		}

		if e.shuttingDown && e.drained() {
			return e.finishShutdown()
		}

		timeout := pollTimeout
		if e.shuttingDown {
			if remaining := e.drainDeadline - time.Since(e.shutdownAt); remaining < timeout {
				timeout = remaining
			}
		}
		if timeout < 0 {
			return e.finishShutdown()
		}

		events, err := e.poller.Wait(timeout)
		if err != nil {
			return err
		}

		now := time.Now()
		for _, ev := range events {
			e.dispatchEvent(ev, now)
		}

		if now.Sub(lastSweep) >= sweepInterval {
			e.sweep(now)
			lastSweep = now
		}
	}
}

// dispatchEvent routes one readiness event to a listener accept or to
// the owning connection's handler, based purely on the fd it fired on.
func (e *Engine) dispatchEvent(ev poller.Event, now time.Time) {
	if l, ok := e.listenFds[ev.Fd]; ok {
		e.acceptLoop(l, now)
		return
	}

	entry, ok := e.fds[ev.Fd]
	if !ok {
		// Stale event for an fd already torn down this iteration.
		return
	}
	c, ok := e.conns[entry.connID]
	if !ok {
		return
	}

	if entry.kind == conn.FdClient && ev.Mask&(poller.EventError|poller.EventHangup) != 0 && ev.Mask&poller.EventReadable == 0 {
		e.closeConn(c, "hangup")
		return
	}

	var err error
	switch entry.kind {
	case conn.FdClient:
		if ev.Mask&poller.EventReadable != 0 && c.Phase() == conn.Reading {
			err = c.OnReadable(now)
		}
		if err == nil && ev.Mask&(poller.EventWritable) != 0 {
			err = c.OnWritable(now)
		}
	case conn.FdCgiStdin:
		err = c.OnCGIStdinWritable(now)
	case conn.FdCgiStdout:
		err = c.OnCGIStdoutReadable(now)
	}

	if err != nil {
		e.stats.ConnectionErrors.Add(1)
		e.closeConn(c, "io error")
		return
	}

	e.syncClientInterest(c)
	if c.IsClosing() {
		e.closeConn(c, "closed")
	}
}

// acceptLoop drains every pending connection on a ready listener in
// one go, since edge cases aside the poller is level-triggered and a
// burst of SYNs can arrive between iterations.
func (e *Engine) acceptLoop(l *socket.Listener, now time.Time) {
	for {
		fd, remote, ok, err := l.Accept()
		if err != nil {
			e.log.Warn("accept failed", zap.String("listener", l.Host()), zap.Error(err))
			return
		}
		if !ok {
			return
		}
		if e.shuttingDown {
			_ = socket.CloseFd(fd)
			continue
		}
		e.acceptOne(l, fd, remote, now)
	}
}

func (e *Engine) acceptOne(l *socket.Listener, fd int, remote string, now time.Time) {
	if err := socket.ApplyConn(fd, e.socketCfg); err != nil {
		e.log.Warn("tune accepted conn", zap.Error(err))
	}

	e.nextID++
	id := e.nextID

	deps := &conn.Deps{
		Servers:         e.servers,
		BindAddress:     l.Host(),
		Port:            l.Port(),
		Sessions:        e.sessions,
		ErrorPages:      e.errorPages,
		Registrar:       e,
		ServerIdent:     e.serverIdent,
		TempDir:         e.tempDir,
		CGIGraceTimeout: e.cgiGraceTimeout,
		CGITimeout:      e.cgiTimeout,
	}

	c := conn.New(id, fd, remote, deps, now)
	e.conns[id] = c
	e.fds[fd] = fdEntry{connID: id, kind: conn.FdClient}

	if err := e.poller.Add(fd, poller.EventReadable); err != nil {
		e.log.Warn("register conn fd", zap.Error(err))
		e.closeConn(c, "register failed")
		return
	}

	e.stats.TotalConnections.Add(1)
	e.stats.ActiveConnections.Add(1)
	e.log.Debug("accepted", zap.Uint64("conn", id), zap.String("remote", remote))
}

// syncClientInterest re-registers the client fd's poller interest to
// match what the connection needs right now; Conn.ClientEvents()
// changes after essentially every call into it (a completed request
// moves Reading to Processing to Writing, a drained write buffer may
// move back to Reading), so the engine re-syncs after every event
// rather than trying to track the transition itself.
func (e *Engine) syncClientInterest(c *conn.Conn) {
	if c.IsClosing() {
		return
	}
	mask := c.ClientEvents()
	if err := e.poller.Modify(c.Fd, mask); err != nil {
		e.log.Debug("modify conn interest failed", zap.Uint64("conn", c.ID), zap.Error(err))
	}
}

// sweep runs the periodic checks: per-connection idle timeout, and
// per-CGI-child deadline/grace enforcement. Run at a
// fixed cadence rather than once per Wait return so a busy loop
// doesn't skip it indefinitely (the poller timeout alone only bounds
// the *idle* case).
func (e *Engine) sweep(now time.Time) {
	for _, c := range e.conns {
		if c.Phase() == conn.RunningCgi {
			c.TickCGI(now)
		}
		c.CheckTimeout(now)
		e.syncClientInterest(c)
		if c.IsClosing() {
			e.closeConn(c, "timeout")
		}
	}
	e.reapSessions(now)
}

func (e *Engine) closeConn(c *conn.Conn, reason string) {
	c.Teardown()
	if c.Fd >= 0 {
		_ = e.poller.Remove(c.Fd)
		_ = socket.CloseFd(c.Fd)
	}
	delete(e.fds, c.Fd)
	delete(e.conns, c.ID)
	e.stats.ActiveConnections.Add(-1)
	e.log.Debug("closed", zap.Uint64("conn", c.ID), zap.String("reason", reason))
}
