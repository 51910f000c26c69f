// Package pool implements the worker dispatch and output-ordering machinery
// of spec.md §4.4/§5: claim blocks off a shared counter, compress them
// concurrently, but commit compressed output to the destination frame in
// strict block-index order so the layout is byte-identical regardless of
// how many threads ran (spec.md P3) while still letting the actual
// compression work happen out of order across goroutines.
package pool

import (
	"sync"
	"sync/atomic"
)

// CompressBlockFunc computes block blockIndex on behalf of workerID and
// returns its staged compressed bytes (owned by the caller until the next
// call with the same workerID — the committer copies them out before
// returning).
type CompressBlockFunc func(workerID, blockIndex int) ([]byte, error)

// RunCompress dispatches nblocks blocks across nthreads goroutines (or
// runs serially when nthreads <= 1 or nblocks <= 1, spec.md §4.4 "Serial
// path"). Output is written into dst starting at offset 0, strictly in
// block-index order (O1), even though compute() calls for different blocks
// may finish in any order. bstarts[i] records the offset at which block i
// landed (O2: each entry written exactly once).
func RunCompress(nthreads, nblocks int, dst []byte, giveup *GiveupLatch, compute CompressBlockFunc) (bstarts []uint32, total int, err error) {
	bstarts = make([]uint32, nblocks)
	if nblocks == 0 {
		return bstarts, 0, nil
	}

	var counter atomic.Int64
	var commitMu sync.Mutex
	commitCond := sync.NewCond(&commitMu)
	nextCommit := 0
	cursor := 0

	var errOnce sync.Once
	var firstErr error

	worker := func(workerID int) {
		for {
			if !giveup.OK() {
				return
			}
			idx := int(counter.Add(1)) - 1
			if idx >= nblocks {
				return
			}

			staged, cerr := compute(workerID, idx)

			commitMu.Lock()
			for nextCommit != idx {
				commitCond.Wait()
			}
			switch {
			case cerr != nil:
				giveup.Give(-1)
				errOnce.Do(func() { firstErr = cerr })
			case !giveup.OK():
				// Another worker gave up while we were computing; drop our
				// result but still advance the ticket so nobody deadlocks.
			case cursor+len(staged) > len(dst):
				giveup.Give(-1)
				errOnce.Do(func() { firstErr = ErrFrameOverflow })
			default:
				bstarts[idx] = uint32(cursor)
				copy(dst[cursor:], staged)
				cursor += len(staged)
			}
			nextCommit++
			commitCond.Broadcast()
			commitMu.Unlock()
		}
	}

	n := nthreads
	if n < 1 {
		n = 1
	}
	if n > nblocks {
		n = nblocks
	}
	if n == 1 {
		worker(0)
	} else {
		var wg sync.WaitGroup
		for w := 0; w < n; w++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				worker(id)
			}(w)
		}
		wg.Wait()
	}

	return bstarts, cursor, firstErr
}

// DecompressBlockFunc decompresses block blockIndex directly into its
// pre-sized destination slot.
type DecompressBlockFunc func(workerID, blockIndex int) error

// RunDecompress dispatches nblocks blocks across nthreads goroutines.
// Decompression is order-free (spec.md O3): each block already knows its
// destination slot, so no commit ordering is needed; the only cross-block
// dependency (delta's block-0-first rule) is enforced by the caller's
// process function via a DeltaGate.
func RunDecompress(nthreads, nblocks int, giveup *GiveupLatch, process DecompressBlockFunc) error {
	if nblocks == 0 {
		return nil
	}

	var counter atomic.Int64
	var errOnce sync.Once
	var firstErr error

	worker := func(workerID int) {
		for {
			if !giveup.OK() {
				return
			}
			idx := int(counter.Add(1)) - 1
			if idx >= nblocks {
				return
			}
			if err := process(workerID, idx); err != nil {
				giveup.Give(-1)
				errOnce.Do(func() { firstErr = err })
				return
			}
		}
	}

	n := nthreads
	if n < 1 {
		n = 1
	}
	if n > nblocks {
		n = nblocks
	}
	if n == 1 {
		worker(0)
	} else {
		var wg sync.WaitGroup
		for w := 0; w < n; w++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				worker(id)
			}(w)
		}
		wg.Wait()
	}

	return firstErr
}
