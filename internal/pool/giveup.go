package pool

import "sync/atomic"

// GiveupLatch is the Go analogue of blosc's thread_giveup_code: the first
// worker to hit a fatal error latches it so every other worker observes it
// at the top of its next block iteration and stops claiming new work
// (spec.md §4.3 "Error codes", §5 "Cancellation").
type GiveupLatch struct {
	code atomic.Int32
}

// NewGiveupLatch returns a latch initialized to "ok" (positive, per the
// original C convention where thread_giveup_code > 0 means "keep going").
func NewGiveupLatch() *GiveupLatch {
	g := &GiveupLatch{}
	g.code.Store(1)
	return g
}

// Give latches code if it is the first failure recorded (code <= 0).
// Safe to call from multiple goroutines; only the first call sticks.
func (g *GiveupLatch) Give(code int32) {
	if code > 0 {
		return
	}
	g.code.CompareAndSwap(1, code)
}

// OK reports whether no worker has latched a failure yet.
func (g *GiveupLatch) OK() bool {
	return g.code.Load() > 0
}

// Code returns the latched code (positive if none latched yet).
func (g *GiveupLatch) Code() int32 {
	return g.code.Load()
}
