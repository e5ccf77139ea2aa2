// Package heartbeat holds the single lock-free liveness timestamp shared
// between the messenger's long-poll loop (which updates it) and the
// watchdog (which reads it) — spec §4.8, §9: "Heartbeat timestamp is a
// single atomic.Int64 (unix nanos)... lock-free by construction". Kept as
// its own tiny package (rather than living in internal/messenger or
// internal/health) so neither of those two packages needs to import the
// other just to share one counter.
package heartbeat

import (
	"sync/atomic"
	"time"
)

// Heartbeat is a single lock-free liveness timestamp.
type Heartbeat struct {
	nanos atomic.Int64
}

// New returns a Heartbeat already touched at construction time, so a
// watchdog started before the first successful fetch doesn't immediately
// see a stale zero value.
func New() *Heartbeat {
	h := &Heartbeat{}
	h.Touch()
	return h
}

// Touch records now as the last successful liveness event.
func (h *Heartbeat) Touch() {
	h.nanos.Store(time.Now().UnixNano())
}

// Since reports how long it has been since the last Touch.
func (h *Heartbeat) Since() time.Duration {
	return time.Since(time.Unix(0, h.nanos.Load()))
}
