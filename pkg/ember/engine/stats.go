package engine

import (
	"sync/atomic"
	"time"
)

// Stats tracks process-wide counters: connection and request totals,
// error counts, and CGI activity, each an atomic so Run can update
// them without a mutex and a future admin/metrics handler could read
// them from another goroutine without racing.
type Stats struct {
	StartTime time.Time

	TotalConnections  atomic.Uint64
	ActiveConnections atomic.Int64
	TotalRequests     atomic.Uint64
	ConnectionErrors  atomic.Uint64
	CGIInvocations    atomic.Uint64
	CGIFailures       atomic.Uint64
}

// snapshot copies the counters into a plain value safe to hand to a
// caller outside the event loop goroutine.
func (s *Stats) snapshot() Stats {
	var out Stats
	out.StartTime = s.StartTime
	out.TotalConnections.Store(s.TotalConnections.Load())
	out.ActiveConnections.Store(s.ActiveConnections.Load())
	out.TotalRequests.Store(s.TotalRequests.Load())
	out.ConnectionErrors.Store(s.ConnectionErrors.Load())
	out.CGIInvocations.Store(s.CGIInvocations.Load())
	out.CGIFailures.Store(s.CGIFailures.Load())
	return out
}

// Uptime reports how long the engine has been running.
func (s *Stats) Uptime() time.Duration { return time.Since(s.StartTime) }
