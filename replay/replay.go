// File: replay/replay.go
// Package replay implements the frame-replay producer of SPEC_FULL.md
// D.1: a fourth producer variant, alongside socketcan and ethernet,
// that plays back a recorded trace at a configurable rate through the
// same alloc -> fill -> enqueue contract (spec §4.D). Useful for the
// scenario tests in spec §8.4 without real hardware or a TCP peer.
// License: Apache-2.0
package replay

import (
	"bufio"
	"encoding/binary"
	"io"
	"time"

	"github.com/agilira/go-timecache"

	"github.com/fleetedge/canbus-core/frame"
	"github.com/fleetedge/canbus-core/logqueue"
	"github.com/fleetedge/canbus-core/pool"
	"github.com/fleetedge/canbus-core/queue"
	"github.com/fleetedge/canbus-core/stats"
)

// Record is one traced frame: wall-clock-independent fields only, so a
// trace replays deterministically regardless of when it is played back.
type Record struct {
	CanID   uint32
	DLC     uint8
	Payload [frame.MaxPayload]byte
}

// recordWireSize is CanID(4) + DLC(1) + Payload(8), a fixed-size encoding
// chosen for simplicity since traces are a development/test tool, not a
// wire protocol with external consumers.
const recordWireSize = 4 + 1 + frame.MaxPayload

// WriteTrace encodes records to w, for building fixture traces in tests.
func WriteTrace(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	var buf [recordWireSize]byte
	for _, r := range records {
		binary.LittleEndian.PutUint32(buf[0:4], r.CanID)
		buf[4] = r.DLC
		copy(buf[5:13], r.Payload[:])
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadTrace decodes every record from r.
func ReadTrace(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	var out []Record
	var buf [recordWireSize]byte
	for {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		rec := Record{CanID: binary.LittleEndian.Uint32(buf[0:4]), DLC: buf[4]}
		copy(rec.Payload[:], buf[5:13])
		out = append(out, rec)
	}
}

// Producer plays back a fixed slice of Records into a pool/queue pair at
// a configurable inter-frame interval.
type Producer struct {
	bus      frame.BusID
	records  []Record
	interval time.Duration

	pool *pool.Pool
	q    *queue.Unified
	logs *logqueue.Queue
	rate *stats.Rate
}

// Option configures a Producer at construction time.
type Option func(*Producer)

// WithLogQueue routes this producer's drop/error log lines.
func WithLogQueue(q *logqueue.Queue) Option { return func(p *Producer) { p.logs = q } }

// WithRate attaches a rate tracker.
func WithRate(r *stats.Rate) Option { return func(p *Producer) { p.rate = r } }

// New builds a Producer for bus, replaying records at a fixed interval
// between frames.
func New(bus frame.BusID, records []Record, interval time.Duration, pl *pool.Pool, q *queue.Unified, opts ...Option) *Producer {
	p := &Producer{bus: bus, records: records, interval: interval, pool: pl, q: q}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run plays every record once, in order, pausing interval between each,
// until stop is closed or the trace is exhausted.
func (p *Producer) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for _, rec := range p.records {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		p.submit(rec)
	}
}

func (p *Producer) submit(rec Record) {
	h, err := p.pool.Alloc()
	if err != nil {
		return
	}
	f := frame.Frame{CanID: rec.CanID, DLC: rec.DLC, Payload: rec.Payload, SourceBus: p.bus,
		TimestampUS: timecache.DefaultCache().CachedTime().UnixMicro()}
	p.pool.Write(h, f)

	if err := p.q.Enqueue(h); err != nil {
		_ = p.pool.Free(h)
		p.pool.RecordDrop()
		if p.logs != nil {
			p.logs.Enqueuef(logqueue.LevelWarn, "replay[%d]: enqueue failed: %v", p.bus, err)
		}
		return
	}
	if p.rate != nil {
		p.rate.Add(int(rec.DLC))
	}
}
