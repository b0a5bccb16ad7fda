// Package server implements the TeaVPN relay core: the acceptor's
// handshake engine, the TUN-reading producer, and the writer worker
// pool draining the shared fan-out queue (§4.4, §4.5).
package server

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"teavpn/internal/bufpool"
	"teavpn/internal/config"
	"teavpn/internal/connpool"
	"teavpn/internal/ifconfig"
	"teavpn/internal/snmp"
	"teavpn/internal/tundev"
	"teavpn/internal/userstore"
	"teavpn/internal/wire"
)

// MaxErrors is the consecutive-error threshold named in §7/§8 (≈15).
const MaxErrors = 15

// HandshakeTimeout bounds every read/write during the handshake (§4.4/§5).
const HandshakeTimeout = 10 * time.Second

// TunReadCap is the event loop's per-read cap on TUN payload bytes (§4.5: "~3000 bytes").
const TunReadCap = 3000

// Server owns every long-lived resource the relay core multiplexes:
// the TUN device, the listening socket, the buffer pool, the
// connection table, the fan-out queue, and the writer worker pool.
type Server struct {
	cfg   *config.Server
	tun   *tundev.Device
	pool  *bufpool.Pool
	table *connpool.Table
	queue *queue
	users *userstore.Store

	listener net.Listener
	wake     []chan struct{}
	stop     chan struct{}

	counters *snmp.Counters
}

// New allocates the TUN device, configures it, and opens the
// listening socket, returning a Server ready for Run.
func New(cfg *config.Server) (*Server, error) {
	threads := config.NormalizeThreads(cfg.Threads)

	dev, err := tundev.Open(cfg.Dev)
	if err != nil {
		return nil, errors.Wrap(err, "server: open tun")
	}
	if err := ifconfig.BringUp(dev.Name, cfg.MTU); err != nil {
		dev.Close()
		return nil, errors.Wrap(err, "server: bring up tun")
	}
	if err := ifconfig.AssignAddress(dev.Name, cfg.Inet4, cfg.Inet4Broadcast); err != nil {
		dev.Close()
		return nil, errors.Wrap(err, "server: assign tun address")
	}

	lis, err := net.Listen("tcp", net.JoinHostPort(cfg.BindAddr, strconv.Itoa(cfg.BindPort)))
	if err != nil {
		dev.Close()
		return nil, errors.Wrap(err, "server: listen")
	}

	s := &Server{
		cfg:      cfg,
		tun:      dev,
		pool:     bufpool.New(bufpool.DefaultSize, wire.FrameCapacity),
		table:    connpool.New(connpool.DefaultSize),
		queue:    newQueue(connpool.DefaultSize * 2),
		users:    userstore.New(cfg.DataDir),
		listener: lis,
		wake:     make([]chan struct{}, threads),
		stop:     make(chan struct{}),
		counters: &snmp.Counters{},
	}
	for i := range s.wake {
		s.wake[i] = make(chan struct{}, 1)
	}
	return s, nil
}

// StartSNMPLogger starts the periodic CSV counters logger against this
// server's own counters, stopping when Stop is called. A blank path is
// a no-op, matching the teacher's --snmplog/--snmpperiod pairing.
func (s *Server) StartSNMPLogger(path string, period time.Duration) {
	go snmp.Logger(path, period, s.counters, s.stop)
}

// Run starts the acceptor, the TUN reader, and the writer worker pool,
// and blocks until Stop is called or a fatal resource error occurs.
func (s *Server) Run() error {
	threads := config.NormalizeThreads(s.cfg.Threads)
	for i := 0; i < threads; i++ {
		go s.worker(i)
	}
	go s.serveTun()
	s.serveAcceptor()
	return nil
}

// Stop unwinds the server's resources in reverse order of acquisition
// (§7's "Resource" error-handling taxonomy: unwind partially created
// resources in reverse order applies equally to planned shutdown).
func (s *Server) Stop() {
	close(s.stop)
	s.listener.Close()
	s.tun.Close()
}

func (s *Server) wakeWorkers() {
	for _, ch := range s.wake {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

