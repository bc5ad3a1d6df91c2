// Package poller wraps the OS's readiness-polling primitive (epoll on
// Linux, kqueue on Darwin, poll(2) elsewhere) behind one interface
// so the event loop in pkg/ember/engine never branches on platform. Built directly on golang.org/x/sys/unix.
package poller

import "time"

// EventMask is a bitset of readiness conditions.
type EventMask uint32

const (
	EventReadable EventMask = 1 << iota
	EventWritable
	EventError
	EventHangup
)

// Event reports which conditions fired for a registered fd.
type Event struct {
	Fd   int
	Mask EventMask
}

// Poller is a level-triggered readiness multiplexer over file
// descriptors: listener sockets, accepted connections, and CGI pipes
// all register with the same Poller instance.
type Poller interface {
	// Add registers fd for the given interest mask.
	Add(fd int, mask EventMask) error
	// Modify changes fd's interest mask (e.g. adding EventWritable once
	// a connection has buffered output to flush).
	Modify(fd int, mask EventMask) error
	// Remove deregisters fd. Safe to call even if fd was already closed.
	Remove(fd int) error
	// Wait blocks up to timeout for at least one event, returning
	// whatever fired. A zero timeout means return immediately; a
	// negative timeout blocks until an event arrives. The event loop
	// caps it at 500ms so periodic
	// timeout sweeps still run on an idle server.
	Wait(timeout time.Duration) ([]Event, error)
	Close() error
}
