package pool

import "sync"

// DeltaGate enforces spec.md's delta ordering rule (§4.3, §5 O4): block 0's
// delta decode must finish before any other block's delta step begins.
// Modeled as the design notes (§9) suggest, "a one-shot signal that block 0
// has finished its delta inverse" — generalized from a plain sync.Once by
// always firing even when block 0 errored (spec.md §9 open question: "the
// specification treats this as a liveness bug to fix in the rewrite -
// always signal under an error latch as well"), so waiters never deadlock.
type DeltaGate struct {
	mu   sync.Mutex
	done bool
	cond *sync.Cond
}

// NewDeltaGate returns a gate not yet released.
func NewDeltaGate() *DeltaGate {
	g := &DeltaGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// Release signals that block 0 has finished (successfully or not).
// Idempotent: only the first call has effect.
func (g *DeltaGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return
	}
	g.done = true
	g.cond.Broadcast()
}

// Wait blocks non-zero-indexed workers until Release has been called.
func (g *DeltaGate) Wait() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for !g.done {
		g.cond.Wait()
	}
}
