package connpool

import (
	"net"
	"testing"
)

type fakeConn struct {
	net.Conn
	closed bool
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestClaimFirstFreeSlot(t *testing.T) {
	tb := New(4)
	c := &fakeConn{}
	idx, ok := tb.Claim(c, nil)
	if !ok || idx != 0 {
		t.Fatalf("expected first claim to land on slot 0, got %d ok=%v", idx, ok)
	}
	if tb.Connected(idx) {
		t.Fatalf("a freshly claimed slot must not be connected until MarkConnected")
	}
}

func TestClaimSkipsOccupiedSlots(t *testing.T) {
	tb := New(2)
	c1, c2 := &fakeConn{}, &fakeConn{}
	i1, _ := tb.Claim(c1, nil)
	i2, ok := tb.Claim(c2, nil)
	if !ok || i2 == i1 {
		t.Fatalf("second claim should land on a different slot, got i1=%d i2=%d", i1, i2)
	}
	if _, ok := tb.Claim(&fakeConn{}, nil); ok {
		t.Fatalf("expected claim to fail once table is full")
	}
}

func TestResetReturnsSlotToFree(t *testing.T) {
	tb := New(1)
	c := &fakeConn{}
	idx, _ := tb.Claim(c, nil)
	tb.MarkConnected(idx)
	tb.Reset(idx)

	if !c.closed {
		t.Fatalf("expected Reset to close the slot's socket")
	}
	if tb.Connected(idx) {
		t.Fatalf("expected slot to be disconnected after Reset")
	}
	if _, ok := tb.Claim(&fakeConn{}, nil); !ok {
		t.Fatalf("expected slot to be claimable again after Reset")
	}
}

func TestResetOnFreeSlotIsIdempotent(t *testing.T) {
	tb := New(1)
	tb.Reset(0)
	tb.Reset(0)
	if tb.Conn(0) != nil {
		t.Fatalf("expected Reset on an already-free slot to remain a no-op")
	}
}

func TestSequenceCounters(t *testing.T) {
	tb := New(1)
	idx, _ := tb.Claim(&fakeConn{}, nil)
	tb.InitSequences(idx, 4, 4)
	if got := tb.NextExpectedSeq(idx); got != 4 {
		t.Fatalf("expected expected-seq 4, got %d", got)
	}
	tb.AdvanceExpectedSeq(idx)
	if got := tb.NextExpectedSeq(idx); got != 5 {
		t.Fatalf("expected expected-seq 5 after advance, got %d", got)
	}
	if got := tb.NextOutboundSeq(idx); got != 5 {
		t.Fatalf("expected next outbound seq 5, got %d", got)
	}
	if got := tb.NextOutboundSeq(idx); got != 6 {
		t.Fatalf("expected next outbound seq 6, got %d", got)
	}
}

func TestErrorThreshold(t *testing.T) {
	tb := New(1)
	idx, _ := tb.Claim(&fakeConn{}, nil)
	const max = 3
	var tripped bool
	for i := 0; i < max+1; i++ {
		tripped = tb.IncrementErrors(idx, max)
	}
	if !tripped {
		t.Fatalf("expected error threshold to trip after %d increments", max+1)
	}
	tb.ResetErrors(idx)
	if tb.IncrementErrors(idx, max) {
		t.Fatalf("expected threshold not to trip immediately after reset")
	}
}

func TestIterConnectedOnlyVisitsEstablishedSlots(t *testing.T) {
	tb := New(3)
	idxA, _ := tb.Claim(&fakeConn{}, nil)
	_, _ = tb.Claim(&fakeConn{}, nil) // claimed but never marked connected
	tb.MarkConnected(idxA)

	var seen []int
	tb.IterConnected(func(idx int) { seen = append(seen, idx) })
	if len(seen) != 1 || seen[0] != idxA {
		t.Fatalf("expected only slot %d to be visited, got %v", idxA, seen)
	}
}
