// Package client implements TeaVPN's client role: connect, run the
// symmetric side of the four-step handshake, configure the local TUN
// interface and routes, then forward packets between the TUN and the
// server socket (§1, §4.4, §6).
package client

import (
	"log"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"teavpn/internal/compress"
	"teavpn/internal/config"
	"teavpn/internal/ifconfig"
	"teavpn/internal/snmp"
	"teavpn/internal/tundev"
	"teavpn/internal/vlog"
	"teavpn/internal/wire"
)

// HandshakeTimeout mirrors the server's handshake deadline (§4.4/§5).
const HandshakeTimeout = 10 * time.Second

// Client holds the resources and sequence state for one session
// against the server: the TUN device, the server connection, and the
// independent inbound/outbound sequence counters §3(c) requires.
type Client struct {
	cfg  *config.Client
	tun  *tundev.Device
	conn net.Conn

	outboundSeq uint64
	expectedSeq uint64

	counters *snmp.Counters
	stop     chan struct{}
}

// New dials the server and allocates the local TUN device, but does
// not yet run the handshake or configure routes — call Run for that.
func New(cfg *config.Client, enableCompress bool) (*Client, error) {
	dev, err := tundev.Open(cfg.Dev)
	if err != nil {
		return nil, errors.Wrap(err, "client: open tun")
	}

	addr := net.JoinHostPort(cfg.ServerIP, strconv.Itoa(cfg.ServerPort))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		dev.Close()
		return nil, errors.Wrap(err, "client: dial")
	}
	conn = compress.Wrap(conn, enableCompress)

	return &Client{
		cfg:      cfg,
		tun:      dev,
		conn:     conn,
		counters: &snmp.Counters{},
		stop:     make(chan struct{}),
	}, nil
}

// StartSNMPLogger starts the periodic CSV counters logger against this
// client's own counters, stopping when Run returns. A blank path is a
// no-op, matching the teacher's --snmplog/--snmpperiod pairing.
func (c *Client) StartSNMPLogger(path string, period time.Duration) {
	go snmp.Logger(path, period, c.counters, c.stop)
}

// Run performs the handshake, configures the TUN interface and
// routes, and then relays packets until the server connection closes.
func (c *Client) Run() error {
	defer close(c.stop)

	conf, err := c.handshake()
	if err != nil {
		return errors.Wrap(err, "client: handshake")
	}

	if err := ifconfig.BringUp(c.cfg.Dev, c.cfg.MTU); err != nil {
		return errors.Wrap(err, "client: bring up tun")
	}
	if err := ifconfig.AssignAddress(c.cfg.Dev, conf.Inet4, conf.Inet4Broadcast); err != nil {
		return errors.Wrap(err, "client: assign tun address")
	}
	if err := c.installRoutes(conf); err != nil {
		return errors.Wrap(err, "client: install routes")
	}

	go c.relayServerToTun()
	c.relayTunToServer()
	return nil
}

// installRoutes performs the three steps SUPPLEMENTED FEATURES names
// in that order: discover the current default gateway, pin a host
// route to the server's public IP through it, then install the two
// half-default routes through the VPN's own gateway (inet4_route).
func (c *Client) installRoutes(conf wire.ConfPayload) error {
	gw, err := ifconfig.DiscoverGateway(c.cfg.ServerIP)
	if err != nil {
		return errors.Wrap(err, "discover gateway")
	}
	if err := ifconfig.AddHostRoute(c.cfg.ServerIP, gw); err != nil {
		return errors.Wrap(err, "add host route")
	}
	if err := ifconfig.AddHalfDefaultRoutes(c.cfg.Dev, conf.Inet4Route); err != nil {
		return errors.Wrap(err, "add half-default routes")
	}
	return nil
}

// handshake performs the client side of §4.4's four-step exchange.
func (c *Client) handshake() (wire.ConfPayload, error) {
	if err := c.conn.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return wire.ConfPayload{}, err
	}
	defer c.conn.SetDeadline(time.Time{})

	buf := make([]byte, wire.FrameCapacity)

	n, err := wire.EncodeAuth(buf, 1, c.cfg.Username, c.cfg.Password)
	if err != nil {
		return wire.ConfPayload{}, errors.Wrap(err, "encode AUTH")
	}
	if _, err := c.conn.Write(buf[:n]); err != nil {
		return wire.ConfPayload{}, errors.Wrap(err, "write AUTH")
	}

	f, err := c.readHandshakeFrame(buf)
	if err != nil {
		return wire.ConfPayload{}, errors.Wrap(err, "read SIG")
	}
	if f.Kind != wire.KindSig || f.Seq != 2 {
		return wire.ConfPayload{}, errors.Errorf("expected SIG seq=2, got kind=%s seq=%d", f.Kind, f.Seq)
	}
	if f.Sig != wire.SigAuthOK {
		return wire.ConfPayload{}, errors.Errorf("authentication rejected: %s", f.Sig)
	}

	n, err = wire.EncodeSig(buf, 3, wire.SigAck)
	if err != nil {
		return wire.ConfPayload{}, errors.Wrap(err, "encode ACK")
	}
	if _, err := c.conn.Write(buf[:n]); err != nil {
		return wire.ConfPayload{}, errors.Wrap(err, "write ACK")
	}

	f, err = c.readHandshakeFrame(buf)
	if err != nil {
		return wire.ConfPayload{}, errors.Wrap(err, "read CONF")
	}
	if f.Kind != wire.KindConf || f.Seq != 4 {
		return wire.ConfPayload{}, errors.Errorf("expected CONF seq=4, got kind=%s seq=%d", f.Kind, f.Seq)
	}

	c.outboundSeq = 4
	c.expectedSeq = 4
	return f.Conf, nil
}

func (c *Client) readHandshakeFrame(buf []byte) (wire.Frame, error) {
	f, _, err := readFrame(c.conn, buf)
	return f, err
}

// relayTunToServer is the client-side analog of the server's TUN
// reader: read a packet, stamp the next outbound sequence, send.
func (c *Client) relayTunToServer() {
	buf := make([]byte, wire.FrameCapacity)
	for {
		n, err := c.tun.Read(buf[wire.HeaderSize : wire.HeaderSize+3000])
		if err != nil {
			log.Printf("client: tun read: %v", err)
			return
		}
		c.outboundSeq++
		total := wire.HeaderSize + n
		wire.PutHeader(buf, wire.Header{Kind: wire.KindData, Length: uint16(total), Seq: c.outboundSeq})
		if _, err := c.conn.Write(buf[:total]); err != nil {
			log.Printf("client: server write: %v", err)
			return
		}
		c.counters.FramesRelayed.Add(1)
	}
}

// relayServerToTun mirrors the server's per-client reader: reassemble
// frames from the server connection and write DATA payloads to the TUN.
func (c *Client) relayServerToTun() {
	buf := make([]byte, wire.FrameCapacity)
	for {
		f, _, err := readFrame(c.conn, buf)
		if err != nil {
			log.Printf("client: server read: %v", err)
			return
		}
		if f.Kind != wire.KindData {
			continue
		}
		if f.Seq != c.expectedSeq+1 {
			vlog.Debugf(1, "client: sequence mismatch: got %d want %d", f.Seq, c.expectedSeq+1)
		}
		c.expectedSeq++
		if _, err := c.tun.Write(f.Data); err != nil {
			log.Printf("client: tun write: %v", err)
			continue
		}
	}
}

func readFrame(conn net.Conn, buf []byte) (wire.Frame, int, error) {
	n, err := readHeaderThenPayload(conn, buf)
	if err != nil {
		return wire.Frame{}, 0, err
	}
	f, err := wire.Decode(buf, n)
	return f, n, err
}
