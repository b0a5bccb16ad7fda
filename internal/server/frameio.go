package server

import (
	"errors"
	"io"
	"net"

	"teavpn/internal/wire"
)

// readFrame reads one complete frame from conn into buf, reassembling
// a DATA frame across as many reads as its declared length requires
// (§4.5's "loop re-reading until the declared length is assembled").
// io.ReadFull already performs exactly that continuation-read loop.
func readFrame(conn net.Conn, buf []byte) (wire.Frame, int, error) {
	if _, err := io.ReadFull(conn, buf[:wire.HeaderSize]); err != nil {
		return wire.Frame{}, 0, err
	}
	h, err := wire.PeekHeader(buf[:wire.HeaderSize])
	if err != nil {
		return wire.Frame{}, 0, err
	}
	n := int(h.Length)
	if n > wire.HeaderSize {
		if _, err := io.ReadFull(conn, buf[wire.HeaderSize:n]); err != nil {
			return wire.Frame{}, 0, err
		}
	}
	f, err := wire.Decode(buf, n)
	return f, n, err
}

// writeFrame performs the single logical write of a frame to conn,
// matching §4.4/§4.5's "one TCP write per frame". net.Conn.Write
// already blocks until the whole buffer is written or an error
// occurs, which is the Go-native equivalent of the original's one-shot
// blocking write() call.
func writeFrame(conn net.Conn, buf []byte, n int) error {
	_, err := conn.Write(buf[:n])
	return err
}

// isPeerClosed reports whether err indicates the peer is gone outright
// (EOF, a closed pipe, or an operation on an already-closed socket,
// including when wrapped in a *net.OpError), as opposed to a transient
// write error that should merely count against the slot's
// error-threshold. This stands in for the original implementation's
// distinct "write returned exactly 0" signal, which has no equivalent
// in Go's all-or-error net.Conn.Write contract.
func isPeerClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed)
}
