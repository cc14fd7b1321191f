// File: stats/consumer.go
// Package stats implements the performance counters of spec §3.5/§4.G:
// per-bus pool/producer counters plus the consumer's cycle-time and
// mutex-wait histograms, exposed read-only to monitoring.
// License: Apache-2.0
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// CycleStats summarizes the consumer's per-batch processing time (spec
// §3.5 "Processing-cycle time: min/max/avg/count in microseconds").
type CycleStats struct {
	Count   int64
	MinUS   int64
	MaxUS   int64
	TotalUS int64
}

// AvgUS returns the mean cycle time, or 0 if no cycles were recorded.
func (c CycleStats) AvgUS() float64 {
	if c.Count == 0 {
		return 0
	}
	return float64(c.TotalUS) / float64(c.Count)
}

// MutexWaitStats tracks time spent waiting on the per-pool free() lock
// from the consumer's side (spec §3.5 "Mutex wait: count and total
// microseconds").
type MutexWaitStats struct {
	Count   int64
	TotalUS int64
}

// Consumer holds the consumer thread's counters. All writers are the
// consumer thread itself; reads use atomic loads for a short, consistent
// snapshot (spec §5 "Statistics use relaxed atomics").
type Consumer struct {
	mu sync.Mutex // guards min/max which cannot be updated with a single atomic op

	cycleCount   atomic.Int64
	cycleMinUS   atomic.Int64
	cycleMaxUS   atomic.Int64
	cycleTotalUS atomic.Int64

	mutexWaitCount   atomic.Int64
	mutexWaitTotalUS atomic.Int64

	framesUnmapped    atomic.Int64
	muxValueUnmapped  atomic.Int64
	decodeSkipped     atomic.Int64
	storeFull         atomic.Int64
	shutdownDropped   atomic.Int64
}

// NewConsumer creates a zeroed Consumer stats block.
func NewConsumer() *Consumer { return &Consumer{} }

// RecordCycle folds one batch's processing duration into the histogram.
func (c *Consumer) RecordCycle(d time.Duration) {
	us := d.Microseconds()
	c.cycleCount.Add(1)
	c.cycleTotalUS.Add(us)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur := c.cycleMinUS.Load(); c.cycleCount.Load() == 1 || us < cur {
		c.cycleMinUS.Store(us)
	}
	if us > c.cycleMaxUS.Load() {
		c.cycleMaxUS.Store(us)
	}
}

// RecordMutexWait folds one pool-lock wait duration into the histogram.
func (c *Consumer) RecordMutexWait(d time.Duration) {
	c.mutexWaitCount.Add(1)
	c.mutexWaitTotalUS.Add(d.Microseconds())
}

func (c *Consumer) IncFramesUnmapped()   { c.framesUnmapped.Add(1) }
func (c *Consumer) IncMuxValueUnmapped() { c.muxValueUnmapped.Add(1) }
func (c *Consumer) IncDecodeSkipped()    { c.decodeSkipped.Add(1) }
func (c *Consumer) IncStoreFull()        { c.storeFull.Add(1) }
func (c *Consumer) IncShutdownDropped(n int64) { c.shutdownDropped.Add(n) }

// Cycle returns a snapshot of the processing-time histogram.
func (c *Consumer) Cycle() CycleStats {
	return CycleStats{
		Count:   c.cycleCount.Load(),
		MinUS:   c.cycleMinUS.Load(),
		MaxUS:   c.cycleMaxUS.Load(),
		TotalUS: c.cycleTotalUS.Load(),
	}
}

// MutexWait returns a snapshot of the mutex-wait histogram.
func (c *Consumer) MutexWait() MutexWaitStats {
	return MutexWaitStats{
		Count:   c.mutexWaitCount.Load(),
		TotalUS: c.mutexWaitTotalUS.Load(),
	}
}

// Counters is a plain snapshot of the consumer-side event counters.
type Counters struct {
	FramesUnmapped   int64
	MuxValueUnmapped int64
	DecodeSkipped    int64
	StoreFull        int64
	ShutdownDropped  int64
}

// Snapshot returns the current event counters.
func (c *Consumer) Snapshot() Counters {
	return Counters{
		FramesUnmapped:   c.framesUnmapped.Load(),
		MuxValueUnmapped: c.muxValueUnmapped.Load(),
		DecodeSkipped:    c.decodeSkipped.Load(),
		StoreFull:        c.storeFull.Load(),
		ShutdownDropped:  c.shutdownDropped.Load(),
	}
}

// Reset zeroes every counter atomically with respect to readers (each
// field reset independently; a reader racing the reset sees either the
// pre- or post-reset value for a given field, never a torn one).
func (c *Consumer) Reset() {
	c.cycleCount.Store(0)
	c.cycleMinUS.Store(0)
	c.cycleMaxUS.Store(0)
	c.cycleTotalUS.Store(0)
	c.mutexWaitCount.Store(0)
	c.mutexWaitTotalUS.Store(0)
	c.framesUnmapped.Store(0)
	c.muxValueUnmapped.Store(0)
	c.decodeSkipped.Store(0)
	c.storeFull.Store(0)
	c.shutdownDropped.Store(0)
}
