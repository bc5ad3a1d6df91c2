package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/ember/pkg/ember/socket"
)

// beginShutdown starts the graceful stop: listeners
// close immediately so no new connection is accepted, while existing
// connections are given drainDeadline to finish in flight before being
// force-closed.
func (e *Engine) beginShutdown() {
	e.shuttingDown = true
	e.shutdownAt = time.Now()
	e.log.Info("shutting down", zap.Int("active", len(e.conns)))

	for _, l := range e.listeners {
		_ = e.poller.Remove(l.Fd())
		_ = l.Close()
	}
	e.listenFds = map[int]*socket.Listener{}
}

// drained reports whether every connection has finished and closed on
// its own during the grace period.
func (e *Engine) drained() bool {
	return len(e.conns) == 0
}

// finishShutdown force-closes anything still open once the drain
// deadline passes, then tears down the poller itself.
func (e *Engine) finishShutdown() error {
	for _, c := range e.conns {
		e.closeConn(c, "shutdown")
	}
	e.log.Info("shutdown complete")
	return e.poller.Close()
}

// reapSessions covers the idle half of the session sweep triggers: the
// every-1000th-request trigger fires through RequestServed and
// Store.Tick, while this unconditional sweep on the engine's fixed
// cadence is a superset of the idle-loop trigger.
func (e *Engine) reapSessions(now time.Time) {
	if e.sessions == nil {
		return
	}
	e.sessions.Sweep(now)
}
