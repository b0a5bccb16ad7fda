// Package bufpool implements TeaVPN's fixed-size frame buffer arena: a
// bounded array of reference-counted cells reused for the lifetime of
// the process, avoiding a heap allocation per frame (§3 BufferSlot,
// §4.2).
//
// Grounded on the shape of github.com/xtaci/kcp-go/v5's bufferpool.go,
// which also hands out fixed-capacity byte slices from a bounded pool —
// adapted here from a sync.Pool (unbounded, GC-reclaimed) to an indexed
// array with explicit reference counts, because TeaVPN's fan-out
// semantics need a slot to stay pinned until every writer targeting it
// has finished, not merely until the GC feels like collecting it.
package bufpool

import (
	"sync/atomic"
	"time"
)

// DefaultSize is the pool size named in §4.2: sufficient given worker parallelism.
const DefaultSize = 24

// spinThreshold is the number of consecutive failed full-pool scans
// after which a caller enters the sleep backoff state.
const spinThreshold = 30

// wakeThreshold is the failure-streak value below which a sleeping
// caller returns to busy-spinning.
const wakeThreshold = 20

// backoffInterval is how long a caller sleeps between scans while backed off.
const backoffInterval = 10 * time.Millisecond

type slot struct {
	refCount atomic.Uint32
	length   atomic.Int32
	buf      []byte
}

// Pool is a bounded array of fixed-capacity frame buffers with
// reference counts. A slot is free iff its reference count is zero.
type Pool struct {
	slots      []slot
	failStreak atomic.Int32
}

// New creates a Pool of size cells, each capable of holding one frame
// of cellSize bytes.
func New(size, cellSize int) *Pool {
	p := &Pool{slots: make([]slot, size)}
	for i := range p.slots {
		p.slots[i].buf = make([]byte, cellSize)
	}
	return p
}

// Size returns the number of cells in the pool.
func (p *Pool) Size() int {
	return len(p.slots)
}

// Acquire returns the index of a free slot, claiming it with refcount 1.
// If no slot is free, Acquire spins: after spinThreshold consecutive
// failed full scans it starts sleeping backoffInterval between scans,
// and keeps sleeping until the shared failure streak drops back below
// wakeThreshold (which happens as soon as some acquire, anywhere,
// succeeds) — this preserves responsiveness under transient bursts
// without burning a core indefinitely.
func (p *Pool) Acquire() int {
	sleeping := false
	for {
		for i := range p.slots {
			if p.slots[i].refCount.CompareAndSwap(0, 1) {
				p.slots[i].length.Store(0)
				p.failStreak.Store(0)
				return i
			}
		}

		streak := p.failStreak.Add(1)
		if streak >= spinThreshold {
			sleeping = true
		}
		if sleeping {
			time.Sleep(backoffInterval)
		}
		if streak < wakeThreshold {
			sleeping = false
		}
	}
}

// Retain atomically adds n to the slot's reference count, used by the
// fan-out producer before enqueueing n send jobs referencing the slot.
func (p *Pool) Retain(idx int, n uint32) {
	p.slots[idx].refCount.Add(n)
}

// Release atomically decrements the slot's reference count. Releasing
// a slot already at zero is a programming error and panics, matching
// the spec's "releasing from zero is a programming error".
func (p *Pool) Release(idx int) {
	for {
		cur := p.slots[idx].refCount.Load()
		if cur == 0 {
			panic("bufpool: release of a slot with zero refcount")
		}
		if p.slots[idx].refCount.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// RefCount returns the current reference count of a slot, for tests and introspection.
func (p *Pool) RefCount(idx int) uint32 {
	return p.slots[idx].refCount.Load()
}

// Buffer returns the backing byte slice for a slot. Callers must not
// retain it past the slot's release, and must not assume it has been
// zeroed — the codec never clears payload bytes between frames.
func (p *Pool) Buffer(idx int) []byte {
	return p.slots[idx].buf
}

// SetLength records how many bytes of Buffer(idx) are the live frame.
func (p *Pool) SetLength(idx, n int) {
	p.slots[idx].length.Store(int32(n))
}

// Length returns the previously recorded live length for a slot.
func (p *Pool) Length(idx int) int {
	return int(p.slots[idx].length.Load())
}

// Quiescent reports whether every slot in the pool currently has a
// zero reference count — true only when there are no in-flight sends
// and no reader currently holds a slot for processing.
func (p *Pool) Quiescent() bool {
	for i := range p.slots {
		if p.slots[i].refCount.Load() != 0 {
			return false
		}
	}
	return true
}
