package conn

import (
	"time"

	"github.com/yourusername/ember/pkg/ember/wire"
)

// CheckTimeout enforces the per-connection idle timeout: once idle
// longer than the configured timeout, force a close, sending a 408
// first if no response has started yet.
func (c *Conn) CheckTimeout(now time.Time) {
	if c.phase == Closing {
		return
	}
	if now.Before(c.Deadline()) {
		return
	}
	if !c.responseStarted {
		resp := wire.NewErrorResponse(wire.ErrNone, c.deps.ErrorPages.Body(408))
		resp.Status = 408
		c.keep = false
		c.enqueue(resp)
		c.closeRequested = true
		return
	}
	c.phase = Closing
}

// IsClosing reports whether the connection has decided to close and
// is ready for the engine to tear it down; either immediately
// (nothing left to write) or once its write buffer drains.
func (c *Conn) IsClosing() bool {
	return c.phase == Closing && c.writeCursor >= len(c.writeBuf)
}
