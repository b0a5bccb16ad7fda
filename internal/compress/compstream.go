// Package compress optionally wraps an established TeaVPN connection in
// a transparent snappy compression layer, adapted from the teacher's
// std.NewCompStream. The frame codec in internal/wire encodes and
// decodes against the logical byte stream identically whether or not
// a CompStream sits underneath — steady-state DATA payloads are raw IP
// packets either way (§3), so compression is purely a transport-level
// toggle (--compress, default off) and never changes frame semantics.
package compress

import (
	"net"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Stream is a net.Conn wrapper that compresses writes and decompresses
// reads using snappy.
type Stream struct {
	conn net.Conn
	w    *snappy.Writer
	r    *snappy.Reader
}

// Wrap returns conn transparently compressed with snappy, or conn
// itself unchanged if enabled is false.
func Wrap(conn net.Conn, enabled bool) net.Conn {
	if !enabled {
		return conn
	}
	return &Stream{
		conn: conn,
		w:    snappy.NewBufferedWriter(conn),
		r:    snappy.NewReader(conn),
	}
}

func (s *Stream) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *Stream) Write(p []byte) (int, error) {
	if _, err := s.w.Write(p); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := s.w.Flush(); err != nil {
		return 0, errors.WithStack(err)
	}
	return len(p), nil
}

func (s *Stream) Close() error {
	return s.conn.Close()
}

func (s *Stream) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *Stream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *Stream) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

func (s *Stream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *Stream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}
