// Package snmp periodically appends a row of relay counters to a CSV
// file, adapted from the teacher's std.SnmpLogger — same ticker-driven
// open/write/flush/close shape, but counting TeaVPN's own events
// (connections, handshakes, frames relayed, read/write errors, slot
// resets, queue overflow drops) instead of kcp.DefaultSnmp's protocol
// counters. The PoolExhaustionStalls column is part of every row, but
// no component increments it, so it always reads 0.
package snmp

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"
)

// Counters are the relay-core statistics tracked for the lifetime of
// the process. All fields are safe for concurrent use.
type Counters struct {
	ConnectionsAccepted  atomic.Uint64
	HandshakeSuccesses   atomic.Uint64
	HandshakeFailures    atomic.Uint64
	FramesRelayed        atomic.Uint64
	ReadErrors           atomic.Uint64
	WriteErrors          atomic.Uint64
	SlotResets           atomic.Uint64
	QueueOverflowDrops   atomic.Uint64
	PoolExhaustionStalls atomic.Uint64
}

// Header names the columns, in the same order ToSlice emits them.
func (c *Counters) Header() []string {
	return []string{
		"ConnectionsAccepted",
		"HandshakeSuccesses",
		"HandshakeFailures",
		"FramesRelayed",
		"ReadErrors",
		"WriteErrors",
		"SlotResets",
		"QueueOverflowDrops",
		"PoolExhaustionStalls",
	}
}

// ToSlice snapshots every counter as a decimal string, matching Header's order.
func (c *Counters) ToSlice() []string {
	vals := []uint64{
		c.ConnectionsAccepted.Load(),
		c.HandshakeSuccesses.Load(),
		c.HandshakeFailures.Load(),
		c.FramesRelayed.Load(),
		c.ReadErrors.Load(),
		c.WriteErrors.Load(),
		c.SlotResets.Load(),
		c.QueueOverflowDrops.Load(),
		c.PoolExhaustionStalls.Load(),
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strconv.FormatUint(v, 10)
	}
	return out
}

// Default is a process-wide counter set. No component records against
// it: the server and the client each carry their own Counters.
var Default = &Counters{}

// Logger appends one CSV row every interval to path, formatting path
// itself with time.Now so log files can roll by day/hour (e.g. a path
// of "stats-20060102.csv"). Logger blocks until stop is closed; it
// returns at once if path is blank or interval is zero, and returns
// after logging the error if the file cannot be opened.
func Logger(path string, interval time.Duration, counters *Counters, stop <-chan struct{}) {
	if path == "" || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			logdir, logfile := filepath.Split(path)
			f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				log.Println(err)
				return
			}
			w := csv.NewWriter(f)
			if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
				if err := w.Write(append([]string{"Unix"}, counters.Header()...)); err != nil {
					log.Println(err)
				}
			}
			if err := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, counters.ToSlice()...)); err != nil {
				log.Println(err)
			}
			w.Flush()
			f.Close()
		}
	}
}
