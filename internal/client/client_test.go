package client

import (
	"net"
	"testing"

	"teavpn/internal/config"
	"teavpn/internal/snmp"
	"teavpn/internal/wire"
)

func newTestClient(conn net.Conn) *Client {
	return &Client{
		cfg:      &config.Client{Username: "alice", Password: "s3cretpass"},
		conn:     conn,
		counters: &snmp.Counters{},
	}
}

func TestClientHandshakeHappyPath(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	c := newTestClient(clientConn)

	serverDone := make(chan wire.ConfPayload, 1)
	go func() {
		buf := make([]byte, wire.FrameCapacity)
		n, err := readHeaderThenPayload(serverConn, buf)
		if err != nil {
			t.Errorf("server read AUTH: %v", err)
			return
		}
		f, err := wire.Decode(buf, n)
		if err != nil || f.Kind != wire.KindAuth || f.Seq != 1 {
			t.Errorf("unexpected AUTH frame: %+v err=%v", f, err)
			return
		}

		n, _ = wire.EncodeSig(buf, 2, wire.SigAuthOK)
		serverConn.Write(buf[:n])

		n, err = readHeaderThenPayload(serverConn, buf)
		if err != nil {
			t.Errorf("server read ACK: %v", err)
			return
		}
		f, err = wire.Decode(buf, n)
		if err != nil || f.Kind != wire.KindSig || f.Sig != wire.SigAck || f.Seq != 3 {
			t.Errorf("unexpected ACK frame: %+v err=%v", f, err)
			return
		}

		conf := wire.ConfPayload{Inet4: "10.9.0.5/24", Inet4Broadcast: "10.9.0.255", Inet4Route: "10.9.0.255"}
		n, _ = wire.EncodeConf(buf, 4, conf)
		serverConn.Write(buf[:n])
		serverDone <- conf
	}()

	conf, err := c.handshake()
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	want := <-serverDone
	if conf != want {
		t.Fatalf("unexpected conf: got %+v want %+v", conf, want)
	}
	if c.outboundSeq != 4 || c.expectedSeq != 4 {
		t.Fatalf("expected both counters initialized to 4, got out=%d exp=%d", c.outboundSeq, c.expectedSeq)
	}
}

func TestClientHandshakeRejectedAuth(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	c := newTestClient(clientConn)

	go func() {
		buf := make([]byte, wire.FrameCapacity)
		readHeaderThenPayload(serverConn, buf)
		n, _ := wire.EncodeSig(buf, 2, wire.SigAuthReject)
		serverConn.Write(buf[:n])
	}()

	if _, err := c.handshake(); err == nil {
		t.Fatalf("expected handshake to fail on AUTH_REJECT")
	}
}

