package server

import (
	"log"
	"net"
	"time"

	"teavpn/internal/userstore"
	"teavpn/internal/wire"
)

func deadline(d time.Duration) time.Time {
	return time.Now().Add(d)
}

// noDeadline clears a previously set deadline, matching net.Conn's
// SetDeadline(zero time) convention.
var noDeadline time.Time

// serveAcceptor is the dedicated handshake thread (§4.4): it accepts
// sockets sequentially and runs the four-step authentication exchange
// on each one before handing the connection off to its own steady-
// state reader goroutine. Go's blocking net.Listener.Accept already
// parks this goroutine until the listener is readable, the same
// suspension point the original models with a condvar signaled by the
// event loop.
func (s *Server) serveAcceptor() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			log.Printf("%+v", err)
			continue
		}
		s.handleHandshake(conn)
	}
}

func (s *Server) handleHandshake(conn net.Conn) {
	idx, ok := s.table.Claim(conn, conn.RemoteAddr())
	if !ok {
		log.Printf("server: connection table full, dropping %s", conn.RemoteAddr())
		conn.Close()
		return
	}

	if err := conn.SetDeadline(deadline(HandshakeTimeout)); err != nil {
		log.Printf("server: set handshake deadline: %v", err)
		s.table.Reset(idx)
		return
	}

	if !s.runHandshake(conn, idx) {
		s.table.Reset(idx)
		s.counters.HandshakeFailures.Add(1)
		return
	}

	// Steady state has no application-level timeout (§5).
	if err := conn.SetDeadline(noDeadline); err != nil {
		log.Printf("server: clear deadline: %v", err)
		s.table.Reset(idx)
		return
	}

	s.table.MarkConnected(idx)
	s.counters.HandshakeSuccesses.Add(1)
	s.counters.ConnectionsAccepted.Add(1)
	go s.serveClient(idx, conn)
}

// runHandshake performs the four-step exchange from §4.4's table. It
// returns false on any failure, in which case the caller resets the
// slot; no retries happen inside the handshake.
func (s *Server) runHandshake(conn net.Conn, idx int) bool {
	buf := make([]byte, wire.FrameCapacity)

	// Step 1: C -> S, AUTH, seq must equal 1.
	f, _, err := readFrame(conn, buf)
	if err != nil {
		log.Printf("server: handshake read AUTH: %v", err)
		return false
	}
	if f.Kind != wire.KindAuth || f.Seq != 1 {
		log.Printf("server: handshake: expected AUTH seq=1, got kind=%s seq=%d", f.Kind, f.Seq)
		return false
	}

	ok, lease, rejectReason := s.authenticate(f.Auth.Username, f.Auth.Password)

	// Step 2: S -> C, SIG=AUTH_OK or AUTH_REJECT, seq=2.
	sig := wire.SigAuthReject
	if ok {
		sig = wire.SigAuthOK
	}
	n, err := wire.EncodeSig(buf, 2, sig)
	if err != nil {
		log.Printf("server: encode SIG: %v", err)
		return false
	}
	if err := writeFrame(conn, buf, n); err != nil {
		log.Printf("server: write SIG: %v", err)
		return false
	}
	if !ok {
		log.Printf("server: handshake rejected for %s: %s", conn.RemoteAddr(), rejectReason)
		return false
	}

	// Step 3: C -> S, SIG=ACK, seq must equal 3.
	f, _, err = readFrame(conn, buf)
	if err != nil {
		log.Printf("server: handshake read ACK: %v", err)
		return false
	}
	if f.Kind != wire.KindSig || f.Sig != wire.SigAck || f.Seq != 3 {
		log.Printf("server: handshake: expected SIG=ACK seq=3, got kind=%s seq=%d sig=%s", f.Kind, f.Seq, f.Sig)
		return false
	}

	// Step 4: S -> C, CONF, seq=4.
	conf := wire.ConfPayload{
		Inet4:          lease.Addr,
		Inet4Broadcast: lease.Broadcast,
		Inet4Route:     lease.Broadcast,
	}
	n, err = wire.EncodeConf(buf, 4, conf)
	if err != nil {
		log.Printf("server: encode CONF: %v", err)
		return false
	}
	if err := writeFrame(conn, buf, n); err != nil {
		log.Printf("server: write CONF: %v", err)
		return false
	}

	privIP, _, err := net.ParseCIDR(lease.Addr)
	if err != nil {
		log.Printf("server: parse leased address %q: %v", lease.Addr, err)
		return false
	}
	s.table.SetPrivateIP(idx, privIP)
	s.table.InitSequences(idx, 4, 4)
	return true
}

// authenticate hands the credentials to the user store and reports
// acceptance plus the lease to send back in CONF on success (§4.4
// step 4).
func (s *Server) authenticate(username, password string) (bool, userstore.Lease, string) {
	match, err := s.users.CheckPassword(username, password)
	if err != nil || !match {
		return false, userstore.Lease{}, "no such user or wrong password"
	}
	lease, err := s.users.Lease(username)
	if err != nil {
		return false, userstore.Lease{}, "malformed ip record"
	}
	if len(lease.Addr) > wire.Inet4Cap-1 || len(lease.Broadcast) > wire.Inet4AddrCap-1 {
		return false, userstore.Lease{}, "lease exceeds CONF capacity"
	}
	return true, userstore.Lease{Addr: lease.Addr, Broadcast: lease.Broadcast}, ""
}
