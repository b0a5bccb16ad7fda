package server

import (
	"log"
	"net"

	"teavpn/internal/vlog"
	"teavpn/internal/wire"
)

// serveTun is the event loop's TUN-readable branch (§4.5), run as its
// own goroutine: acquire a buffer, read one packet, fan it out as a
// DATA frame to every connected client.
func (s *Server) serveTun() {
	for {
		bufIdx := s.pool.Acquire()
		buf := s.pool.Buffer(bufIdx)

		n, err := s.tun.Read(buf[wire.HeaderSize : wire.HeaderSize+TunReadCap])
		if err != nil {
			s.pool.Release(bufIdx)
			select {
			case <-s.stop:
				return
			default:
			}
			log.Printf("server: tun read: %v", err)
			continue
		}

		total := wire.HeaderSize + n
		wire.PutHeader(buf, wire.Header{Kind: wire.KindData, Length: uint16(total)})
		s.pool.SetLength(bufIdx, total)

		targets := 0
		s.table.IterConnected(func(idx int) {
			if s.queue.enqueue(idx, bufIdx) {
				targets++
			} else {
				s.counters.QueueOverflowDrops.Add(1)
				log.Printf("server: queue overflow, dropping fan-out to slot %d", idx)
			}
		})

		if targets > 0 {
			s.pool.Retain(bufIdx, uint32(targets))
			s.wakeWorkers()
		}
		// Release the event loop's own acquire-hold now that every
		// fan-out target (if any) has its own retained reference.
		s.pool.Release(bufIdx)
	}
}

// serveClient is the event loop's per-client-socket-readable branch,
// generalized from a single multiplexed select loop to one goroutine
// per established connection — Go's scheduler is the multiplexing
// substrate here, the same way net/http serves many connections with
// one goroutine each rather than a hand-rolled epoll loop.
func (s *Server) serveClient(idx int, conn net.Conn) {
	buf := make([]byte, wire.FrameCapacity)
	for {
		f, _, err := readFrame(conn, buf)
		if err != nil {
			if isPeerClosed(err) {
				s.table.Reset(idx)
				return
			}
			s.counters.ReadErrors.Add(1)
			if s.table.IncrementErrors(idx, MaxErrors) {
				s.counters.SlotResets.Add(1)
				s.table.Reset(idx)
				return
			}
			continue
		}

		if f.Kind != wire.KindData {
			// Non-DATA kinds in steady state count against the error threshold (§4.5).
			if s.table.IncrementErrors(idx, MaxErrors) {
				s.counters.SlotResets.Add(1)
				s.table.Reset(idx)
				return
			}
			continue
		}
		s.table.ResetErrors(idx)

		expected := s.table.NextExpectedSeq(idx) + 1
		if f.Seq != expected {
			vlog.Debugf(1, "server: slot %d sequence mismatch: got %d want %d", idx, f.Seq, expected)
		}
		s.table.AdvanceExpectedSeq(idx)

		if _, err := s.tun.Write(f.Data); err != nil {
			log.Printf("server: tun write: %v", err)
			continue
		}
		s.counters.FramesRelayed.Add(1)
	}
}
