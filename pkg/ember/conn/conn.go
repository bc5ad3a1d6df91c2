// Package conn implements the per-connection state machine. A single
// event-loop goroutine owns every Conn, so connection state lives in
// plain fields (see phase below) and reading/writing/CGI-streaming are
// driven explicitly by pkg/ember/engine rather than implicitly by
// blocking reads in a per-connection goroutine.
package conn

import (
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/ember/pkg/ember/config"
	"github.com/yourusername/ember/pkg/ember/errpage"
	"github.com/yourusername/ember/pkg/ember/poller"
	"github.com/yourusername/ember/pkg/ember/session"
	"github.com/yourusername/ember/pkg/ember/wire"
)

// Phase is one of a connection's five states.
type Phase int

const (
	Reading Phase = iota
	Processing
	RunningCgi
	Writing
	Closing
)

func (p Phase) String() string {
	switch p {
	case Reading:
		return "reading"
	case Processing:
		return "processing"
	case RunningCgi:
		return "running_cgi"
	case Writing:
		return "writing"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// FdKind distinguishes which of a connection's (possibly several) file
// descriptors an event belongs to: the client socket, or one side of
// a CGI child's pipes. A Conn never has more than one CGI child at a
// time, so this plus the connection id is enough for the engine's flat
// fd-to-owner table.
type FdKind int

const (
	FdClient FdKind = iota
	FdCgiStdin
	FdCgiStdout
)

// Registrar is the engine's half of the fd/connection bookkeeping: a
// Conn registers and deregisters its own fds (client socket, CGI
// pipes) through it without needing to know how the engine's global
// table or poller.Poller are laid out. Implemented by *engine.Engine.
type Registrar interface {
	Poller() poller.Poller
	Track(fd int, connID uint64, kind FdKind)
	Untrack(fd int)
	Logger() *zap.Logger

	// RequestServed is called once per response queued for writing, so
	// the engine can keep its request counters, run the session store's
	// every-1000th-request sweep trigger, and emit the access log line.
	RequestServed(method, path string, status int)
	CGISpawned()
	CGIFailed()
}

// Deps are the shared, read-mostly collaborators every Conn on a given
// listener needs: the server blocks bound to that (address, port), the
// process-wide session store, the cached error pages, and identifying
// information for building CGI environments and response headers.
// Constructed once at startup (see engine.New), never mutated by a Conn.
type Deps struct {
	Servers     []*config.ServerConfig
	BindAddress string
	Port        int

	Sessions   *session.Store
	ErrorPages *errpage.Set

	Registrar Registrar

	ServerIdent string // Response "Server" header value
	TempDir     string

	IdleCheckPeriod time.Duration // how often Sweep should be considered, informational only
	CGIGraceTimeout time.Duration // grace between SIGTERM and SIGKILL
	CGITimeout      time.Duration // overall CGI deadline before SIGTERM
}

// Conn is one accepted client connection. Exactly one Conn owns its
// socket fd and (if running) its CGI child; there are no back-pointers
// to the engine beyond Deps.Registrar.
type Conn struct {
	ID         uint64
	Fd         int
	RemoteAddr string

	deps *Deps

	phase Phase

	// readBuf is not appended to: the parser keeps its own buffer of
	// unconsumed bytes, so OnReadable's client_max_body_size+HeaderSlack
	// check only bounds the bytes of a single read.
	readBuf []byte
	parser  *wire.Parser

	// pendingLeftover holds bytes the parser reported past the end of
	// the just-completed request (wire.Parser.Leftover), re-fed once
	// the connection is ready to read the next request.
	pendingLeftover []byte

	req  *wire.Request
	resp *wire.Response

	server *config.ServerConfig // chosen once Host is known
	keep   bool                 // whether this response keeps the connection alive

	writeBuf    []byte
	writeCursor int

	cg *cgiExec // non-nil while a CGI child is live (RunningCgi, or Writing-while-streaming)

	lastActivity time.Time
	timeout      time.Duration

	closeRequested  bool // set once a parse error, write failure, or EOF decides this connection must close
	responseStarted bool
}

// New returns a freshly accepted connection ready to read its first
// request.
func New(id uint64, fd int, remoteAddr string, deps *Deps, now time.Time) *Conn {
	timeout := 60 * time.Second
	if len(deps.Servers) > 0 && deps.Servers[0].Timeout > 0 {
		timeout = deps.Servers[0].Timeout
	}
	c := &Conn{
		ID:           id,
		Fd:           fd,
		RemoteAddr:   remoteAddr,
		deps:         deps,
		phase:        Reading,
		parser:       wire.NewParser(maxBodySizeHint(deps), deps.TempDir),
		lastActivity: now,
		timeout:      timeout,
	}
	return c
}

func maxBodySizeHint(deps *Deps) int64 {
	var max int64
	for _, sc := range deps.Servers {
		if sc.ClientMaxBodySize > max {
			max = sc.ClientMaxBodySize
		}
	}
	return max
}

// Phase reports the connection's current state.
func (c *Conn) Phase() Phase { return c.phase }

// ClientEvents reports the readiness interest the engine should
// register for this connection's client socket fd right now: readable
// while parsing a request, writable whenever bytes are queued to send.
// A connection stays registered for exactly the events it currently
// needs. The engine re-syncs this after every state-affecting call.
func (c *Conn) ClientEvents() poller.EventMask {
	var mask poller.EventMask
	if c.phase == Reading {
		mask |= poller.EventReadable
	}
	if c.pendingWrite() > 0 {
		mask |= poller.EventWritable
	}
	return mask
}

// Deadline is when this connection will be force-closed if no
// activity occurs first.
func (c *Conn) Deadline() time.Time { return c.lastActivity.Add(c.timeout) }

func (c *Conn) touch(now time.Time) { c.lastActivity = now }

// Teardown releases everything the connection still owns besides its
// client socket fd, which the engine closes itself: a live CGI child
// (killed outright; a client gone mid-CGI takes the child with it),
// the request body's spill file, and any parser scratch state. Called
// by the engine on every close path, graceful or not.
func (c *Conn) Teardown() {
	if c.cg != nil {
		_ = c.cg.proc.Kill()
		_, _, _ = c.cg.proc.TryWait()
		c.teardownCGI()
	}
	if c.req != nil && c.req.Body != nil {
		_ = c.req.Body.Close()
		c.req.Body = nil
	}
	c.parser.Close()
}
