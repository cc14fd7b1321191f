// File: consumer/loop.go
// Package consumer implements the dedicated consumer thread of spec
// §4.E: batch-dequeue from the unified queue, decode via the node
// table, append to the downstream store, and unconditionally return the
// slot to its pool — modeled on the teacher's adaptive-backoff event
// loop (core/concurrency/eventloop.go), specialized to a fixed
// idle/busy sleep pair instead of exponential backoff per spec §4.E.
// License: Apache-2.0
package consumer

import (
	"context"
	"time"

	"github.com/fleetedge/canbus-core/frame"
	"github.com/fleetedge/canbus-core/logqueue"
	"github.com/fleetedge/canbus-core/nodetable"
	"github.com/fleetedge/canbus-core/pool"
	"github.com/fleetedge/canbus-core/queue"
	"github.com/fleetedge/canbus-core/stats"
)

// BatchMax is the maximum number of handles dequeued per cycle (spec
// §4.E dequeue_batch).
const BatchMax = 200

// IdleSleep is slept when a cycle dequeued nothing.
const IdleSleep = 1000 * time.Microsecond

// BusySleep is slept after a cycle that processed at least one handle,
// yielding briefly rather than spinning flat out.
const BusySleep = 100 * time.Microsecond

// DrainDeadline bounds how long Stop waits for in-flight/queued handles
// to drain before giving up (spec §5 default 2s).
const DrainDeadline = 2 * time.Second

// AppendFunc is called once per decoded signal sample. Loop takes a plain
// function instead of an interface bound to store.Sample, so this
// package does not need to import store just to call one method.
type AppendFunc func(ctx context.Context, target nodetable.SensorHandle, value float64, tsUS int64) error

// PoolLookup resolves the Pool owning a given bus.
type PoolLookup func(bus frame.BusID) *pool.Pool

// Loop is the dedicated consumer thread's state. BatchSize/IdleSleep/
// BusySleep/DrainDeadline default to the package constants of the same
// name (spec §6.3 "batch sizes, sleep thresholds ... read from
// configuration") and may be overridden before the first call to Run.
type Loop struct {
	q        *queue.Unified
	pools    PoolLookup
	registry *nodetable.Registry
	append   AppendFunc
	stats    *stats.Consumer
	logs     *logqueue.Queue

	BatchSize     int
	IdleSleep     time.Duration
	BusySleep     time.Duration
	DrainDeadline time.Duration

	quit chan struct{}
	done chan struct{}
}

// New builds a Loop. append is called once per decoded signal sample;
// a non-nil error is treated as the store rejecting the sample (spec
// §6.2 "full") and counted, never retried inline.
func New(q *queue.Unified, pools PoolLookup, registry *nodetable.Registry, appendFn AppendFunc, st *stats.Consumer, logs *logqueue.Queue) *Loop {
	return &Loop{
		q:             q,
		pools:         pools,
		registry:      registry,
		append:        appendFn,
		stats:         st,
		logs:          logs,
		BatchSize:     BatchMax,
		IdleSleep:     IdleSleep,
		BusySleep:     BusySleep,
		DrainDeadline: DrainDeadline,
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Run executes the consumer loop until Stop is called. Intended to run
// on its own goroutine, with PinRealtime applied to that goroutine's
// OS thread by the caller before invoking Run.
func (l *Loop) Run() {
	defer close(l.done)

	batch := make([]frame.Handle, l.BatchSize)
	var samples [nodetable.MaxSignalsPerFrame]nodetable.Sample

	for {
		select {
		case <-l.quit:
			l.drain(batch, samples[:])
			return
		default:
		}

		start := time.Now()
		got := l.q.DequeueBatch(batch)
		if len(got) == 0 {
			time.Sleep(l.IdleSleep)
			continue
		}

		for _, h := range got {
			l.processOne(h, samples[:])
		}
		if l.stats != nil {
			l.stats.RecordCycle(time.Since(start))
		}
		time.Sleep(l.BusySleep)
	}
}

// drain makes a best-effort pass over whatever is still queued once
// shutdown has been requested, bounded by DrainDeadline, so in-flight
// handles are freed rather than leaked (spec §5 "bounded drain").
func (l *Loop) drain(batch []frame.Handle, samples []nodetable.Sample) {
	deadline := time.Now().Add(l.DrainDeadline)
	for time.Now().Before(deadline) {
		got := l.q.DequeueBatch(batch)
		if len(got) == 0 {
			return
		}
		for _, h := range got {
			l.processOne(h, samples)
		}
	}
	// Anything still queued past the deadline is abandoned in place; the
	// pool slots it references leak until process exit, which is bounded
	// by DrainDeadline rather than unbounded per spec §5.
	if remaining := l.q.Depth(); l.stats != nil && remaining > 0 {
		l.stats.IncShutdownDropped(int64(remaining))
	}
}

// processOne decodes and stores the frame referenced by h, then always
// frees h back to its pool — the "freeing contract" applies on the
// consumer side exactly as it does to producers (spec §4.D/§4.E): no
// decode or store outcome ever leaves a slot held.
func (l *Loop) processOne(h frame.Handle, scratch []nodetable.Sample) {
	defer func() {
		if r := recover(); r != nil {
			if l.logs != nil {
				l.logs.Enqueuef(logqueue.LevelError, "consumer: panic decoding bus=%d idx=%d: %v", h.Bus, h.Index, r)
			}
		}
	}()

	p := l.pools(h.Bus)
	if p == nil {
		return
	}
	defer func() {
		mwStart := time.Now()
		_ = p.Free(h)
		if l.stats != nil {
			l.stats.RecordMutexWait(time.Since(mwStart))
		}
	}()

	f := p.Read(h)
	node := l.registry.Lookup(f.SourceBus, f.ID())
	if node == nil {
		if l.stats != nil {
			l.stats.IncFramesUnmapped()
		}
		return
	}

	out, skipped, err := nodetable.Extract(node, f.Payload, f.TimestampUS, scratch[:0])
	if skipped > 0 && l.stats != nil {
		l.stats.IncDecodeSkipped()
	}
	if err != nil {
		if l.stats != nil && err == nodetable.MuxMiss {
			l.stats.IncMuxValueUnmapped()
		}
		return
	}

	ctx := context.Background()
	for _, s := range out {
		if err := l.append(ctx, s.Target, s.Value, s.TimestampUS); err != nil {
			if l.stats != nil {
				l.stats.IncStoreFull()
			}
		}
	}
}

// Stop requests shutdown and waits for Run to return.
func (l *Loop) Stop() {
	select {
	case <-l.quit:
	default:
		close(l.quit)
	}
	<-l.done
}
