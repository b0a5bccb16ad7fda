// Package connpool implements TeaVPN's connection table: a bounded
// array of per-client slots shared between the acceptor, the event
// loop, and the writer workers (§3 ConnectionSlot, §4.3).
package connpool

import (
	"net"
	"sync"
)

// DefaultSize is the connection table capacity named in §4.3.
const DefaultSize = 24

// Slot holds one client's connection state. All mutable fields are
// guarded by mu, which also serializes Reset against concurrent reads
// and writes from the event loop and writer workers — the single lock
// per slot that §5 calls for, covering
// {connected, fd, error, seq} together so reset is atomic and
// idempotent.
type Slot struct {
	mu sync.Mutex

	conn       net.Conn
	remoteAddr net.Addr
	privIP     net.IP

	// expectedSeq is the last client sequence number accounted for on
	// this connection; the next inbound frame must present expectedSeq+1.
	expectedSeq uint64
	// outboundSeq is the last sequence number this connection emitted;
	// NextOutboundSeq increments it before handing it out.
	outboundSeq uint64

	errorCount int
	connected  bool
}

// Table is the bounded ordered collection of ConnectionSlots.
type Table struct {
	slots []Slot
}

// New creates a Table with the given capacity.
func New(size int) *Table {
	return &Table{slots: make([]Slot, size)}
}

// Size returns the table's capacity.
func (t *Table) Size() int {
	return len(t.slots)
}

// Claim returns the index of the first free slot (not connected and
// holding no socket) and reserves it by binding conn/remoteAddr, or reports ok=false if
// the table is full. The slot is NOT marked connected by Claim — that
// is MarkConnected's job, once the handshake completes — so a claimed
// slot that fails handshake can be returned to FREE via Reset without
// ever having been observed as connected by the relay core.
func (t *Table) Claim(conn net.Conn, remoteAddr net.Addr) (int, bool) {
	for i := range t.slots {
		s := &t.slots[i]
		s.mu.Lock()
		if !s.connected && s.conn == nil {
			s.conn = conn
			s.remoteAddr = remoteAddr
			s.mu.Unlock()
			return i, true
		}
		s.mu.Unlock()
	}
	return -1, false
}

// SetPrivateIP records the address leased to this client during handshake.
func (t *Table) SetPrivateIP(idx int, ip net.IP) {
	s := &t.slots[idx]
	s.mu.Lock()
	s.privIP = ip
	s.mu.Unlock()
}

// InitSequences sets the expected-inbound and next-outbound sequence
// counters once the handshake completes (§4.4: both initialized to 4,
// the last value exchanged during the four-step handshake).
func (t *Table) InitSequences(idx int, expectedIn, nextOut uint64) {
	s := &t.slots[idx]
	s.mu.Lock()
	s.expectedSeq = expectedIn
	s.outboundSeq = nextOut
	s.mu.Unlock()
}

// MarkConnected transitions a claimed slot to ESTABLISHED.
func (t *Table) MarkConnected(idx int) {
	s := &t.slots[idx]
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
}

// Connected reports whether the slot is currently established.
func (t *Table) Connected(idx int) bool {
	s := &t.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Conn returns the slot's socket, or nil if the slot is free.
func (t *Table) Conn(idx int) net.Conn {
	s := &t.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// RemoteAddr returns the slot's remote peer address.
func (t *Table) RemoteAddr(idx int) net.Addr {
	s := &t.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteAddr
}

// PrivateIP returns the slot's leased private address.
func (t *Table) PrivateIP(idx int) net.IP {
	s := &t.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.privIP
}

// NextExpectedSeq returns the last inbound sequence number accounted
// for on this connection; the next inbound frame must carry this value
// plus one.
func (t *Table) NextExpectedSeq(idx int) uint64 {
	s := &t.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expectedSeq
}

// AdvanceExpectedSeq increments the expected-inbound counter
// unconditionally (a mismatch is logged by the caller but, outside the
// handshake, does not by itself terminate the connection — §4.5).
func (t *Table) AdvanceExpectedSeq(idx int) {
	s := &t.slots[idx]
	s.mu.Lock()
	s.expectedSeq++
	s.mu.Unlock()
}

// NextOutboundSeq atomically increments and returns the next sequence
// number to stamp on an outbound frame; it takes the connection slot's
// lock itself, since the backing field is shared with Reset. Workers
// call this while stamping a frame before sending it.
func (t *Table) NextOutboundSeq(idx int) uint64 {
	s := &t.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outboundSeq++
	return s.outboundSeq
}

// IncrementErrors bumps the slot's consecutive-error counter and
// reports whether it has now exceeded max, the error-threshold-reset
// trigger from §4.5/§7/§8.
func (t *Table) IncrementErrors(idx int, max int) bool {
	s := &t.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	return s.errorCount > max
}

// ResetErrors clears the slot's consecutive-error counter (called after
// a successful DATA read or a successful write).
func (t *Table) ResetErrors(idx int) {
	s := &t.slots[idx]
	s.mu.Lock()
	s.errorCount = 0
	s.mu.Unlock()
}

// Reset closes the slot's socket if open and zeroes the slot, releasing
// it back to FREE. Reset is idempotent and safe to call concurrently
// from the event loop and from a writer worker — exactly one of the
// concurrent callers observes an open socket and closes it.
func (t *Table) Reset(idx int) {
	s := &t.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.remoteAddr = nil
	s.privIP = nil
	s.expectedSeq = 0
	s.outboundSeq = 0
	s.errorCount = 0
	s.connected = false
}

// IterConnected calls fn with the index of every currently connected slot.
func (t *Table) IterConnected(fn func(idx int)) {
	for i := range t.slots {
		if t.Connected(i) {
			fn(i)
		}
	}
}
