package server

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"teavpn/internal/bufpool"
	"teavpn/internal/connpool"
	"teavpn/internal/snmp"
	"teavpn/internal/userstore"
	"teavpn/internal/wire"
)

func newTestUserStore(t *testing.T, username, password, ip string) *userstore.Store {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "users", username)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "password"), []byte(password+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ip"), []byte(ip+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return userstore.New(root)
}

func newTestServer(users *userstore.Store) *Server {
	return &Server{
		table:    connpool.New(4),
		queue:    newQueue(8),
		pool:     bufpool.New(4, wire.FrameCapacity),
		users:    users,
		wake:     []chan struct{}{make(chan struct{}, 1)},
		stop:     make(chan struct{}),
		counters: &snmp.Counters{},
	}
}

func TestHandshakeHappyPath(t *testing.T) {
	s := newTestServer(newTestUserStore(t, "alice", "s3cretpass", "10.9.0.5/24 10.9.0.255"))
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	idx, ok := s.table.Claim(srv, nil)
	if !ok {
		t.Fatalf("claim failed")
	}

	result := make(chan bool, 1)
	go func() { result <- s.runHandshake(srv, idx) }()

	buf := make([]byte, wire.FrameCapacity)
	n, err := wire.EncodeAuth(buf, 1, "alice", "s3cretpass")
	if err != nil {
		t.Fatalf("EncodeAuth: %v", err)
	}
	if _, err := client.Write(buf[:n]); err != nil {
		t.Fatalf("write AUTH: %v", err)
	}

	f, _, err := readFrame(client, buf)
	if err != nil {
		t.Fatalf("read SIG: %v", err)
	}
	if f.Kind != wire.KindSig || f.Sig != wire.SigAuthOK || f.Seq != 2 {
		t.Fatalf("expected SIG=AUTH_OK seq=2, got %+v", f)
	}

	n, err = wire.EncodeSig(buf, 3, wire.SigAck)
	if err != nil {
		t.Fatalf("EncodeSig: %v", err)
	}
	if _, err := client.Write(buf[:n]); err != nil {
		t.Fatalf("write ACK: %v", err)
	}

	f, _, err = readFrame(client, buf)
	if err != nil {
		t.Fatalf("read CONF: %v", err)
	}
	if f.Kind != wire.KindConf || f.Seq != 4 {
		t.Fatalf("expected CONF seq=4, got %+v", f)
	}
	if f.Conf.Inet4 != "10.9.0.5/24" || f.Conf.Inet4Broadcast != "10.9.0.255" {
		t.Fatalf("unexpected CONF payload: %+v", f.Conf)
	}

	if ok := <-result; !ok {
		t.Fatalf("expected handshake to succeed")
	}
	if got := s.table.NextExpectedSeq(idx); got != 4 {
		t.Fatalf("expected expected-seq initialized to 4, got %d", got)
	}
}

func TestHandshakeBadPassword(t *testing.T) {
	s := newTestServer(newTestUserStore(t, "alice", "s3cretpass", "10.9.0.5/24 10.9.0.255"))
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	idx, _ := s.table.Claim(srv, nil)
	result := make(chan bool, 1)
	go func() { result <- s.runHandshake(srv, idx) }()

	buf := make([]byte, wire.FrameCapacity)
	n, _ := wire.EncodeAuth(buf, 1, "alice", "wrong")
	client.Write(buf[:n])

	f, _, err := readFrame(client, buf)
	if err != nil {
		t.Fatalf("read SIG: %v", err)
	}
	if f.Sig != wire.SigAuthReject {
		t.Fatalf("expected AUTH_REJECT, got %s", f.Sig)
	}
	if ok := <-result; ok {
		t.Fatalf("expected handshake to fail on bad password")
	}
}

func TestHandshakeSequenceSkewDropsWithoutReply(t *testing.T) {
	s := newTestServer(newTestUserStore(t, "alice", "s3cretpass", "10.9.0.5/24 10.9.0.255"))
	client, srv := net.Pipe()
	defer client.Close()
	defer srv.Close()

	idx, _ := s.table.Claim(srv, nil)
	result := make(chan bool, 1)
	go func() { result <- s.runHandshake(srv, idx) }()

	buf := make([]byte, wire.FrameCapacity)
	n, _ := wire.EncodeAuth(buf, 7, "alice", "s3cretpass")
	client.Write(buf[:n])

	if ok := <-result; ok {
		t.Fatalf("expected handshake to fail on sequence skew")
	}

	client.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := client.Read(buf); err == nil {
		t.Fatalf("expected no reply frame after a sequence-skew drop")
	}
}

func TestFanOutToTwoClientsStampsIndependentSequences(t *testing.T) {
	s := newTestServer(nil)
	go s.worker(0)
	defer close(s.stop)

	clientA, srvA := net.Pipe()
	clientB, srvB := net.Pipe()
	defer clientA.Close()
	defer srvA.Close()
	defer clientB.Close()
	defer srvB.Close()

	idxA, _ := s.table.Claim(srvA, nil)
	idxB, _ := s.table.Claim(srvB, nil)
	s.table.MarkConnected(idxA)
	s.table.MarkConnected(idxB)
	s.table.InitSequences(idxA, 4, 4)
	s.table.InitSequences(idxB, 4, 4)

	bufIdx := s.pool.Acquire()
	n, err := wire.EncodeData(s.pool.Buffer(bufIdx), 0, []byte("hello-tun"))
	if err != nil {
		t.Fatalf("EncodeData: %v", err)
	}
	s.pool.SetLength(bufIdx, n)

	if !s.queue.enqueue(idxA, bufIdx) || !s.queue.enqueue(idxB, bufIdx) {
		t.Fatalf("expected both enqueues to succeed")
	}
	s.pool.Retain(bufIdx, 2)
	s.pool.Release(bufIdx)
	s.wakeWorkers()

	readBuf := make([]byte, wire.FrameCapacity)
	fa, _, err := readFrame(clientA, readBuf)
	if err != nil {
		t.Fatalf("read from A: %v", err)
	}
	fb, _, err := readFrame(clientB, readBuf)
	if err != nil {
		t.Fatalf("read from B: %v", err)
	}
	if fa.Seq != 5 || fb.Seq != 5 {
		t.Fatalf("expected both targets to be stamped with seq 5 (independent per-connection counters), got A=%d B=%d", fa.Seq, fb.Seq)
	}
	if string(fa.Data) != "hello-tun" || string(fb.Data) != "hello-tun" {
		t.Fatalf("unexpected payload: A=%q B=%q", fa.Data, fb.Data)
	}

	deadlineCh := time.After(time.Second)
	for !s.pool.Quiescent() {
		select {
		case <-deadlineCh:
			t.Fatalf("expected buffer pool to return to quiescent after both sends complete")
		default:
		}
	}
}
