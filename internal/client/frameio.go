package client

import (
	"io"
	"net"

	"teavpn/internal/wire"
)

// readHeaderThenPayload reads one frame's header, then reassembles its
// payload across as many reads as the declared length requires,
// returning the total on-wire length. Mirrors the header-then-payload
// reads of the server's readFrame in internal/server/frameio.go.
func readHeaderThenPayload(conn net.Conn, buf []byte) (int, error) {
	if _, err := io.ReadFull(conn, buf[:wire.HeaderSize]); err != nil {
		return 0, err
	}
	h, err := wire.PeekHeader(buf[:wire.HeaderSize])
	if err != nil {
		return 0, err
	}
	n := int(h.Length)
	if n > wire.HeaderSize {
		if _, err := io.ReadFull(conn, buf[wire.HeaderSize:n]); err != nil {
			return 0, err
		}
	}
	return n, nil
}
