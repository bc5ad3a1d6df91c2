// Package engine implements the single-threaded event loop that owns
// every listener, every connection, and the one poller.Poller instance
// driving them all. There is exactly one goroutine, and Engine itself
// implements conn.Registrar so every pkg/ember/conn.Conn can register
// and deregister its own fds without reaching back into the loop's
// internals.
package engine

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/ember/pkg/ember/config"
	"github.com/yourusername/ember/pkg/ember/conn"
	"github.com/yourusername/ember/pkg/ember/errpage"
	"github.com/yourusername/ember/pkg/ember/poller"
	"github.com/yourusername/ember/pkg/ember/session"
	"github.com/yourusername/ember/pkg/ember/socket"
)

// fdEntry is one row of the flat fd-to-owner table: no connection
// holds a pointer to another, and no connection holds a pointer back
// to the Engine beyond the Registrar interface.
type fdEntry struct {
	connID uint64
	kind   conn.FdKind
}

// Engine owns the poller, every listener, and every live connection.
// There is deliberately no mutex anywhere in this struct: only the
// goroutine running Run ever touches it.
type Engine struct {
	poller    poller.Poller
	listeners []*socket.Listener
	listenFds map[int]*socket.Listener

	conns   map[uint64]*conn.Conn
	fds     map[int]fdEntry
	nextID  uint64

	servers     []*config.ServerConfig
	sessions    *session.Store
	errorPages  *errpage.Set
	socketCfg   *socket.Config
	serverIdent string
	tempDir     string

	cgiTimeout      time.Duration
	cgiGraceTimeout time.Duration

	log *zap.Logger

	stats Stats

	shuttingDown  bool
	shutdownAt    time.Time
	drainDeadline time.Duration
}

// Config bundles everything New needs beyond the parsed server blocks.
type Config struct {
	ServerIdent     string
	TempDir         string
	SessionTTL      time.Duration
	CGITimeout      time.Duration
	CGIGraceTimeout time.Duration
	DrainTimeout    time.Duration
	Socket          *socket.Config
}

// New builds an Engine bound to every (address, port) pair named
// across servers' blocks, with one listener per unique pair;
// listeners are shared across server blocks that bind the same address
// and port, selected afterward by Host.
func New(servers []*config.ServerConfig, errorPages *errpage.Set, cfg Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Socket == nil {
		cfg.Socket = socket.DefaultConfig()
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.CGITimeout == 0 {
		cfg.CGITimeout = 30 * time.Second
	}
	if cfg.CGIGraceTimeout == 0 {
		cfg.CGIGraceTimeout = time.Second
	}

	p, err := poller.New()
	if err != nil {
		return nil, fmt.Errorf("poller init: %w", err)
	}

	e := &Engine{
		poller:          p,
		listenFds:       make(map[int]*socket.Listener),
		conns:           make(map[uint64]*conn.Conn),
		fds:             make(map[int]fdEntry),
		servers:         servers,
		sessions:        session.NewStore(cfg.SessionTTL),
		errorPages:      errorPages,
		socketCfg:       cfg.Socket,
		serverIdent:     cfg.ServerIdent,
		tempDir:         cfg.TempDir,
		cgiTimeout:      cfg.CGITimeout,
		cgiGraceTimeout: cfg.CGIGraceTimeout,
		drainDeadline:   cfg.DrainTimeout,
		log:             log,
	}

	e.stats.StartTime = time.Now()

	if err := e.bindListeners(); err != nil {
		_ = p.Close()
		return nil, err
	}
	return e, nil
}

// bindListeners opens one listener per distinct (bind address, port)
// named by the config tree.
func (e *Engine) bindListeners() error {
	type key struct {
		addr string
		port int
	}
	seen := make(map[key]bool)

	for _, sc := range e.servers {
		for _, port := range sc.Ports {
			k := key{sc.BindAddress, port}
			if seen[k] {
				continue
			}
			seen[k] = true

			l, err := socket.NewListener(sc.BindAddress, port, e.socketCfg)
			if err != nil {
				return fmt.Errorf("bind %s:%d: %w", sc.BindAddress, port, err)
			}
			if err := e.poller.Add(l.Fd(), poller.EventReadable); err != nil {
				_ = l.Close()
				return fmt.Errorf("register listener %s:%d: %w", sc.BindAddress, port, err)
			}
			e.listeners = append(e.listeners, l)
			e.listenFds[l.Fd()] = l
			e.log.Info("listening", zap.String("address", sc.BindAddress), zap.Int("port", port))
		}
	}

	// Deterministic iteration order for logging only; dispatch itself
	// is keyed by fd map lookups.
	sort.Slice(e.listeners, func(i, j int) bool { return e.listeners[i].Fd() < e.listeners[j].Fd() })
	return nil
}

// --- conn.Registrar ---

func (e *Engine) Poller() poller.Poller { return e.poller }

func (e *Engine) Track(fd int, connID uint64, kind conn.FdKind) {
	e.fds[fd] = fdEntry{connID: connID, kind: kind}
}

func (e *Engine) Untrack(fd int) {
	delete(e.fds, fd)
}

func (e *Engine) Logger() *zap.Logger { return e.log }

// RequestServed bumps the request counter, runs the session store's
// every-1000th-request sweep trigger, and emits the access log line;
// one call per response a connection queues for writing.
func (e *Engine) RequestServed(method, path string, status int) {
	e.stats.TotalRequests.Add(1)
	if e.sessions != nil && e.sessions.Tick() {
		e.sessions.Sweep(time.Now())
	}
	if method == "" {
		method = "-"
	}
	if path == "" {
		path = "-"
	}
	e.log.Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status))
}

func (e *Engine) CGISpawned() { e.stats.CGIInvocations.Add(1) }
func (e *Engine) CGIFailed()  { e.stats.CGIFailures.Add(1) }

// Stats returns a point-in-time snapshot: load the atomics, copy out,
// no locking required since the counters are already safe for
// concurrent reads.
func (e *Engine) Stats() Stats { return e.stats.snapshot() }
