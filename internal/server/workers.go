package server

import (
	"teavpn/internal/wire"
)

// worker is one writer worker (§4.5): wakes on its own channel,
// drains every claimable queue entry, then goes back to waiting.
func (s *Server) worker(id int) {
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake[id]:
		}
		for {
			qi, ok := s.queue.claim()
			if !ok {
				break
			}
			s.processEntry(qi)
		}
	}
}

// processEntry stamps the authoritative outbound sequence number and
// performs the single blocking write for one fan-out target, then
// releases both the queue entry and the buffer slot (§4.5 step 3-5).
func (s *Server) processEntry(qi int) {
	connIdx, bufIdx := s.queue.get(qi)
	defer s.queue.release(qi)
	defer s.pool.Release(bufIdx)

	conn := s.table.Conn(connIdx)
	if conn == nil {
		// The slot was reset concurrently; nothing left to send to.
		return
	}

	buf := s.pool.Buffer(bufIdx)
	n := s.pool.Length(bufIdx)

	seq := s.table.NextOutboundSeq(connIdx)
	wire.PutSeq(buf, seq)

	if err := writeFrame(conn, buf, n); err != nil {
		if isPeerClosed(err) {
			s.table.Reset(connIdx)
			return
		}
		s.counters.WriteErrors.Add(1)
		if s.table.IncrementErrors(connIdx, MaxErrors) {
			s.counters.SlotResets.Add(1)
			s.table.Reset(connIdx)
		}
		return
	}
	s.table.ResetErrors(connIdx)
}
