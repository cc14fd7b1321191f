// File: ethernet/server.go
// Adapted from the teacher's transport/tcp/listener.go accept loop:
// same net.Listen / Accept / per-connection goroutine / panic-recovery
// shape, with the WebSocket handshake replaced by the CAN wire framing
// of protocol.go and a single-concurrent-client policy (spec §6.1 "one
// concurrent client").
// License: Apache-2.0
package ethernet

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"

	"github.com/fleetedge/canbus-core/frame"
	"github.com/fleetedge/canbus-core/logqueue"
	"github.com/fleetedge/canbus-core/pool"
	"github.com/fleetedge/canbus-core/queue"
	"github.com/fleetedge/canbus-core/stats"
)

// PoolLookup resolves the Pool for a logical Ethernet bus, given the
// zero-based index carried on the wire (PCAN records always use index 0;
// APTERA's bus_tag - 2 selects the index).
type PoolLookup func(busIndex int) *pool.Pool

// RateLookup resolves the throughput tracker for a logical Ethernet bus,
// mirroring PoolLookup so each bus's monitor snapshot reflects its own
// traffic rather than one counter shared across every bus the server
// carries.
type RateLookup func(busIndex int) *stats.Rate

// Config configures a Server.
type Config struct {
	Addr    string // e.g. "192.168.7.1:5555"
	Framing Framing
	Pools   PoolLookup
	Queue   *queue.Unified
	Logs    *logqueue.Queue
	RateFor RateLookup
}

// Server accepts exactly one CAN-framing TCP client at a time.
type Server struct {
	cfg Config

	activeConns int32
	malformed   atomic.Int64
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config) *Server { return &Server{cfg: cfg} }

// Malformed returns the cumulative malformed-record count across every
// connection this server has handled.
func (s *Server) Malformed() int64 { return s.malformed.Load() }

// Run listens on cfg.Addr and accepts connections until stop is closed.
// A second connection attempt while one client is active is refused
// immediately (spec §6.1 "one concurrent client").
func (s *Server) Run(stop <-chan struct{}) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("ethernet: listen %s: %w", s.cfg.Addr, err)
	}
	defer ln.Close()

	go func() {
		<-stop
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stop:
				return nil
			default:
				fmt.Fprintf(os.Stderr, "ethernet: accept: %v\n", err)
				continue
			}
		}
		if !atomic.CompareAndSwapInt32(&s.activeConns, 0, 1) {
			conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer atomic.AddInt32(&s.activeConns, -1)
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			if s.cfg.Logs != nil {
				s.cfg.Logs.Enqueuef(logqueue.LevelError, "ethernet: panic in connection: %v", r)
			}
		}
	}()

	parser := NewParser(s.cfg.Framing)
	buf := make([]byte, 4096)
	var lastMalformed int64
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, rec := range parser.Feed(buf[:n]) {
				s.submit(rec)
			}
			if m := parser.Malformed(); m != lastMalformed {
				s.malformed.Add(m - lastMalformed)
				lastMalformed = m
			}
		}
		if err != nil {
			if err != io.EOF && s.cfg.Logs != nil {
				s.cfg.Logs.Enqueuef(logqueue.LevelWarn, "ethernet: connection error: %v", err)
			}
			// spec §4.D.1: connection loss resets parser state; submit
			// either enqueued or freed each record's handle, and a partial
			// record never holds one, so there is nothing to reclaim here.
			parser.Reset()
			return
		}
	}
}

// submit runs the alloc -> fill -> enqueue contract for one decoded
// record, freeing the slot unconditionally on any non-ok enqueue (spec
// §4.D "freeing contract").
func (s *Server) submit(rec Record) {
	busIndex := 0
	if s.cfg.Framing == FramingAPTERA {
		busIndex = int(rec.BusTag) - 2
	}
	p := s.cfg.Pools(busIndex)
	if p == nil {
		return
	}

	h, err := p.Alloc()
	if err != nil {
		return
	}
	f := frame.Frame{
		CanID:       rec.CanID,
		DLC:         rec.DLC,
		Payload:     rec.Payload,
		TimestampUS: int64(rec.TimestampUS),
		SourceBus:   h.Bus,
	}
	p.Write(h, f)

	if err := s.cfg.Queue.Enqueue(h); err != nil {
		_ = p.Free(h)
		p.RecordDrop()
		return
	}
	if s.cfg.RateFor != nil {
		if r := s.cfg.RateFor(busIndex); r != nil {
			r.Add(int(rec.DLC))
		}
	}
}
