//go:build linux

// File: socketcan/socketcan_linux.go
// Package socketcan implements the physical CAN0/CAN1 producers of
// spec §4.D.1: raw AF_CAN sockets read in a tight loop, each received
// frame following the alloc -> fill -> enqueue contract with
// unconditional free-on-non-ok-enqueue.
//
// Grounded in the retrieved samsamfire/gocanopen SocketCAN driver
// (socket creation, SockaddrCAN bind, CanFilter setup); the raw
// recvmmsg batching that driver uses is arch-dependent struct layout
// that could not be grounded against a verified golang.org/x/sys/unix
// definition in the retrieved pack, so Producer instead issues one
// blocking Read per frame in a tight loop, which avoids the
// unsafe.Pointer struct-layout risk.
// License: Apache-2.0
package socketcan

import (
	"fmt"
	"net"

	"github.com/agilira/go-timecache"
	"golang.org/x/sys/unix"

	"github.com/fleetedge/canbus-core/errs"
	"github.com/fleetedge/canbus-core/frame"
	"github.com/fleetedge/canbus-core/logqueue"
	"github.com/fleetedge/canbus-core/pool"
	"github.com/fleetedge/canbus-core/queue"
	"github.com/fleetedge/canbus-core/stats"
)

// frameSize is the classic (non-FD) struct can_frame wire size: 4-byte
// ID, 1-byte DLC, 3 bytes padding, 8 bytes data.
const frameSize = 16

// wireFrame matches struct can_frame's memory layout for decoding a raw
// read() buffer without unsafe.Pointer casts.
type wireFrame struct {
	id   uint32
	dlc  uint8
	_    [3]uint8
	data [8]byte
}

func decodeWireFrame(buf []byte) (wireFrame, bool) {
	if len(buf) < frameSize {
		return wireFrame{}, false
	}
	var w wireFrame
	w.id = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	w.dlc = buf[4]
	copy(w.data[:], buf[8:16])
	return w, true
}

// Producer owns one bound CAN_RAW socket and feeds decoded frames into
// the shared pool/queue pair for its bus.
type Producer struct {
	bus   frame.BusID
	iface string
	fd    int

	pool  *pool.Pool
	q     *queue.Unified
	logs  *logqueue.Queue
	rate  *stats.Rate
}

// Option configures a Producer at construction time.
type Option func(*Producer)

// WithLogQueue routes this producer's error/anomaly log lines.
func WithLogQueue(q *logqueue.Queue) Option {
	return func(p *Producer) { p.logs = q }
}

// WithRate attaches a rate tracker so the monitor snapshot reflects this
// bus's throughput.
func WithRate(r *stats.Rate) Option {
	return func(p *Producer) { p.rate = r }
}

// Open binds a CAN_RAW socket to iface (e.g. "can0") and returns a
// Producer ready for Run. The interface must already be up.
func Open(bus frame.BusID, iface string, pl *pool.Pool, q *queue.Unified, filters []Filter, opts ...Option) (*Producer, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan: interface %s: %w", iface, err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socketcan: socket: %w", err)
	}
	if len(filters) > 0 {
		raw := make([]unix.CanFilter, len(filters))
		for i, f := range filters {
			raw[i] = unix.CanFilter{Id: f.ID, Mask: f.Mask}
		}
		if err := unix.SetsockoptCanRawFilter(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FILTER, raw); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("socketcan: set filter: %w", err)
		}
	}
	addr := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind: %w", err)
	}
	p := &Producer{bus: bus, iface: iface, fd: fd, pool: pl, q: q}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Close releases the underlying socket.
func (p *Producer) Close() error { return unix.Close(p.fd) }

// ReceiveOne blocks for one frame, decodes it, and submits it to the
// pool/queue pair, freeing the slot on any non-nil return (spec §4.D
// "freeing contract").
func (p *Producer) ReceiveOne() error {
	var buf [frameSize]byte
	n, err := unix.Read(p.fd, buf[:])
	if err != nil {
		return fmt.Errorf("socketcan[%s]: read: %w", p.iface, err)
	}
	w, ok := decodeWireFrame(buf[:n])
	if !ok {
		if p.logs != nil {
			p.logs.Enqueuef(logqueue.LevelWarn, "socketcan[%s]: short read %d bytes", p.iface, n)
		}
		return errs.ErrMalformedFrame
	}

	h, err := p.pool.Alloc()
	if err != nil {
		return err
	}
	f := frame.Frame{CanID: w.id, DLC: w.dlc, Payload: w.data, SourceBus: p.bus,
		TimestampUS: timecache.DefaultCache().CachedTime().UnixMicro()}
	p.pool.Write(h, f)

	if err := p.q.Enqueue(h); err != nil {
		_ = p.pool.Free(h)
		p.pool.RecordDrop()
		return err
	}
	if p.rate != nil {
		p.rate.Add(int(w.dlc))
	}
	return nil
}

// Run drains the socket until stop is closed, logging (not halting on)
// any per-frame error so one malformed read never brings the producer
// down (spec §7 "errors never halt the pipeline").
func (p *Producer) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := p.ReceiveOne(); err != nil {
			if p.logs != nil {
				p.logs.Enqueuef(logqueue.LevelWarn, "socketcan[%s]: %v", p.iface, err)
			}
		}
	}
}
