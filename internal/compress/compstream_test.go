package compress

import (
	"net"
	"testing"
)

func TestWrapDisabledReturnsOriginalConn(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	wrapped := Wrap(c1, false)
	if wrapped != net.Conn(c1) {
		t.Fatalf("expected Wrap(enabled=false) to return the original conn unchanged")
	}
}

func TestWrapRoundTripsThroughSnappy(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	a := Wrap(c1, true)
	b := Wrap(c2, true)

	msg := []byte("a stream of bytes worth compressing, repeated, repeated, repeated")
	done := make(chan error, 1)
	go func() {
		_, err := a.Write(msg)
		done <- err
	}()

	buf := make([]byte, len(msg))
	n, err := b.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Write: %v", err)
	}
	if string(buf[:n]) != string(msg) {
		t.Fatalf("round trip mismatch: got %q", buf[:n])
	}
}
