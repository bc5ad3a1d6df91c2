package conn

import (
	"time"

	"github.com/yourusername/ember/pkg/ember/socket"
	"github.com/yourusername/ember/pkg/ember/wire"
)

// backpressureHigh/backpressureLow are the hysteresis thresholds for
// de-registering a streaming CGI child's stdout read interest once the
// client write buffer backs up, and re-registering once it drains.
const (
	backpressureHigh = 256 * 1024
	backpressureLow  = 128 * 1024
)

// OnWritable drains the write buffer to the client socket. It is
// phase-agnostic in the sense that it may
// be called while a CGI child is still streaming output into the same
// buffer (RunningCgi); only once the buffer is fully drained AND no
// CGI child remains live does it decide whether to reset for the next
// request or close.
func (c *Conn) OnWritable(now time.Time) error {
	c.touch(now)

	for c.writeCursor < len(c.writeBuf) {
		n, err := socket.Write(c.Fd, c.writeBuf[c.writeCursor:])
		if err != nil {
			if socket.IsWouldBlock(err) {
				break
			}
			// Partial-write failures mid-response close the connection
			// without retrying.
			c.phase = Closing
			return nil
		}
		if n == 0 {
			break
		}
		c.writeCursor += n
	}

	c.maybeReleaseCgiBackpressure()

	if c.writeCursor < len(c.writeBuf) {
		return nil // still draining; stay registered for writability
	}

	// Buffer fully drained. If a CGI child is still producing output,
	// stay in a writing-capable state but don't reset the connection
	// yet; more bytes may still arrive via OnCGIStdoutReadable.
	if c.cg != nil {
		c.writeBuf = c.writeBuf[:0]
		c.writeCursor = 0
		return nil
	}

	if c.phase != Writing {
		return nil
	}

	if c.keep && !c.closeRequested {
		c.resetForNextRequest()
	} else {
		c.phase = Closing
	}
	return nil
}

// resetForNextRequest handles the writing-to-reading transition for a
// kept-alive connection: the parser and buffers reset, and any bytes the parser
// had already buffered past the end of this request (pipelined data)
// are re-fed rather than lost.
func (c *Conn) resetForNextRequest() {
	if c.req != nil && c.req.Body != nil {
		_ = c.req.Body.Close()
	}
	c.parser.Reset()
	c.req = nil
	c.resp = nil
	c.writeBuf = nil
	c.writeCursor = 0
	c.responseStarted = false
	c.phase = Reading

	leftover := c.pendingLeftover
	c.pendingLeftover = nil
	if len(leftover) > 0 {
		if err := c.parser.Feed(leftover); err != nil {
			c.failRequest(wire.KindOf(err))
			return
		}
		if c.parser.Done() {
			c.req = c.parser.Request()
			c.req.RemoteAddr = c.RemoteAddr
			c.pendingLeftover = append([]byte(nil), c.parser.Leftover()...)
			c.phase = Processing
			_ = c.process(time.Now())
		}
	}
}

// appendWrite feeds additional bytes (CGI body chunks) into the write
// buffer for the engine to drain on the next writability event.
func (c *Conn) appendWrite(b []byte) {
	c.writeBuf = append(c.writeBuf, b...)
}

// pendingWrite reports how many bytes are still queued to the client,
// the signal the CGI backpressure thresholds watch.
func (c *Conn) pendingWrite() int { return len(c.writeBuf) - c.writeCursor }
