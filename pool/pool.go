// File: pool/pool.go
// Package pool implements the fixed-capacity, self-healing ring-buffer slab
// pool described in spec §3.2/§4.B: one Pool per CAN bus, slots addressed
// by frame.Handle, free_count accounting restored on demand instead of
// trusted blindly.
// License: Apache-2.0
package pool

import (
	"sync"

	"github.com/agilira/go-timecache"

	"github.com/fleetedge/canbus-core/errs"
	"github.com/fleetedge/canbus-core/frame"
	"github.com/fleetedge/canbus-core/logqueue"
)

// clock is the shared coarse clock used to stamp high-water-mark events;
// a cached read is cheap enough to take on every successful Alloc (same
// rationale as stats.Rate's use of the same cache).
var clock = timecache.DefaultCache()

// Pool is a fixed-capacity slab of frame.Frame slots for one bus. All
// mutable state (inUse bitmap, freeCount, allocation pointer) lives behind
// a single mutex per spec §5 ("Each ring-buffer pool is owned by its own
// lock"). Capacity never changes after NewPool.
type Pool struct {
	bus    frame.BusID
	logs   *logqueue.Queue
	anomalyLimiter anomalyLimiter

	mu        sync.Mutex
	slots     []frame.Frame
	inUse     []bool
	freeCount int
	allocPtr  int

	stats Stats
}

// anomalyLimiter throttles how often a self-heal anomaly is logged; see
// logqueue.NewAnomalyLimiter. Kept as an interface so tests can inject a
// limiter that always allows.
type anomalyLimiter interface {
	Allow() bool
}

type alwaysAllow struct{}

func (alwaysAllow) Allow() bool { return true }

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithLogQueue routes self-heal anomaly log lines through q instead of
// discarding them.
func WithLogQueue(q *logqueue.Queue) Option {
	return func(p *Pool) { p.logs = q }
}

// WithAnomalyLimiter overrides the default unlimited anomaly logging rate.
func WithAnomalyLimiter(l anomalyLimiter) Option {
	return func(p *Pool) { p.anomalyLimiter = l }
}

// NewPool allocates a pool of capacity slots for the given bus. capacity
// must be >= 1; spec §3.2 recommends >= 4096 for a physical bus sized for
// roughly one second of burst at the target ingestion rate.
func NewPool(bus frame.BusID, capacity int, opts ...Option) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	p := &Pool{
		bus:            bus,
		slots:          make([]frame.Frame, capacity),
		inUse:          make([]bool, capacity),
		freeCount:      capacity,
		anomalyLimiter: alwaysAllow{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Bus returns the bus this pool serves.
func (p *Pool) Bus() frame.BusID { return p.bus }

// Capacity returns the fixed slot count.
func (p *Pool) Capacity() int { return len(p.slots) }

// Alloc reserves a free slot and returns its handle. When the bookkeeping
// freeCount reads zero, Alloc first re-scans inUse before giving up: a
// confirmed-free slot found during that scan means freeCount had drifted,
// which is logged and counted as an AccountingAnomaly (spec §4.B) rather
// than silently "fixed" — the anomaly counter keeps the bug visible even
// though the allocation still succeeds.
func (p *Pool) Alloc() (frame.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freeCount == 0 {
		if idx, ok := p.scanForFreeLocked(); ok {
			p.freeCount = p.countFreeLocked()
			p.stats.AccountingAnomalies++
			p.logAnomaly()
			return p.takeLocked(idx), nil
		}
		p.recordDropLocked()
		return frame.Handle{}, errs.ErrPoolExhausted
	}

	idx, ok := p.scanForFreeLocked()
	if !ok {
		// freeCount lied the other way: believed slots available, found
		// none. Treat as confirmed exhaustion rather than trusting the
		// stale counter forward.
		p.freeCount = 0
		p.stats.AccountingAnomalies++
		p.logAnomaly()
		p.recordDropLocked()
		return frame.Handle{}, errs.ErrPoolExhausted
	}
	return p.takeLocked(idx), nil
}

// scanForFreeLocked scans inUse starting at allocPtr and returns the first
// free index found. Caller holds p.mu.
func (p *Pool) scanForFreeLocked() (int, bool) {
	n := len(p.inUse)
	for i := 0; i < n; i++ {
		idx := (p.allocPtr + i) % n
		if !p.inUse[idx] {
			return idx, true
		}
	}
	return 0, false
}

func (p *Pool) countFreeLocked() int {
	n := 0
	for _, used := range p.inUse {
		if !used {
			n++
		}
	}
	return n
}

// takeLocked marks idx in use, advances the allocation pointer, and
// updates counters. Caller holds p.mu.
func (p *Pool) takeLocked(idx int) frame.Handle {
	p.inUse[idx] = true
	p.freeCount--
	p.allocPtr = (idx + 1) % len(p.inUse)
	p.stats.TotalAllocated++
	p.stats.ConsecutiveDrops = 0

	ratio := 1 - float64(p.freeCount)/float64(len(p.slots))
	if ratio > p.stats.PeakFillRatio {
		p.stats.PeakFillRatio = ratio
		p.stats.PeakFillAt = clock.CachedTime()
	}
	return frame.Handle{Bus: p.bus, Index: uint32(idx)}
}

func (p *Pool) logAnomaly() {
	p.stats.lastAnomaly = true
	if p.logs == nil || !p.anomalyLimiter.Allow() {
		return
	}
	p.logs.Enqueuef(logqueue.LevelWarn, "pool[%d]: accounting anomaly self-healed, free_count corrected", p.bus)
}

// recordDropLocked buckets a drop by the fill ratio observed at the
// moment of exhaustion. Alloc always calls this at 100% fill since it
// only gives up after confirming exhaustion; callers that preemptively
// decline to allocate at high fill record their own bucket via RecordDrop.
func (p *Pool) recordDropLocked() {
	p.stats.DropsAt100 ++
	p.stats.ConsecutiveDrops++
	if p.stats.ConsecutiveDrops > p.stats.MaxConsecutiveDrops {
		p.stats.MaxConsecutiveDrops = p.stats.ConsecutiveDrops
	}
}

// Write copies src into the slot referenced by h. The caller must own h
// (returned by a prior successful Alloc not yet freed).
func (p *Pool) Write(h frame.Handle, src frame.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h.Index) >= len(p.slots) {
		return
	}
	p.slots[h.Index] = src
}

// Read returns a copy of the frame stored at h.
func (p *Pool) Read(h frame.Handle) frame.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h.Index) >= len(p.slots) {
		return frame.Frame{}
	}
	return p.slots[h.Index]
}

// Free returns a slot to the pool. Freeing a handle from a different bus,
// or freeing an index that is not currently in use, is a no-op error —
// never a silent double-decrement of freeCount (spec §8.1 "no double-free").
func (p *Pool) Free(h frame.Handle) error {
	if h.Bus != p.bus {
		return errs.New(errs.KindAccountingAnomaly, "free: bus tag mismatch").
			WithContext("expected", p.bus).WithContext("got", h.Bus)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if int(h.Index) >= len(p.inUse) {
		return errs.New(errs.KindAccountingAnomaly, "free: index out of range")
	}
	if !p.inUse[h.Index] {
		return errs.New(errs.KindAccountingAnomaly, "double free")
	}
	p.inUse[h.Index] = false
	p.freeCount++
	p.stats.TotalFreed++
	return nil
}

// FreeCount returns the current free-slot count under lock.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freeCount
}

// FillRatio returns the fraction of slots currently in use, in [0,1].
func (p *Pool) FillRatio() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return 1 - float64(p.freeCount)/float64(len(p.slots))
}

// RecordDrop lets a caller that preemptively declines to allocate (e.g. the
// unified queue rejected a handle that must now be freed and re-counted as
// a drop) bucket the drop by the fill ratio observed at that moment,
// instead of always assuming 100%.
func (p *Pool) RecordDrop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	ratio := 1 - float64(p.freeCount)/float64(len(p.slots))
	switch {
	case ratio >= 1.0:
		p.stats.DropsAt100++
	case ratio >= 0.95:
		p.stats.DropsAt95++
	case ratio >= 0.90:
		p.stats.DropsAt90++
	}
	p.stats.ConsecutiveDrops++
	if p.stats.ConsecutiveDrops > p.stats.MaxConsecutiveDrops {
		p.stats.MaxConsecutiveDrops = p.stats.ConsecutiveDrops
	}
}

// Stats returns a snapshot of this pool's counters (spec §3.5/§4.G).
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.FreeCount = p.freeCount
	s.Capacity = len(p.slots)
	return s
}

// ResetStats zeroes all counters atomically with respect to Alloc/Free.
func (p *Pool) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = Stats{}
}
