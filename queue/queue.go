// File: queue/queue.go
// Package queue implements the unified multi-producer/single-consumer work
// queue of spec §3.3/§4.C: a bounded queue of frame.Handle values shared
// by every producer (CAN0, CAN1, the Ethernet server, replay) and drained
// in batches by the single consumer thread.
//
// The cell/sequence scheme below is the Dmitry Vyukov bounded MPMC
// algorithm, carried over verbatim in spirit from
// core/concurrency/lock_free_queue.go: each cell tracks its own sequence
// number so enqueue and dequeue can both proceed with a single CAS and no
// blocking lock, at the cost of returning Full/empty immediately instead
// of waiting.
// License: Apache-2.0
package queue

import (
	"sync/atomic"

	"github.com/fleetedge/canbus-core/errs"
	"github.com/fleetedge/canbus-core/frame"
)

const cacheLinePad = 64

type cell struct {
	sequence atomic.Uint64
	data     frame.Handle
}

// Unified is the bounded MPSC handle queue. Capacity is rounded up to the
// next power of two, as required by the cell-index masking below.
type Unified struct {
	head uint64
	_    [cacheLinePad]byte
	tail uint64
	_    [cacheLinePad]byte
	mask uint64
	cells []cell
}

// New creates a Unified queue. Spec §3.3 recommends capacity >= 3x the sum
// of pool capacities, so a design-load burst never approaches Full.
func New(capacity int) *Unified {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &Unified{
		mask:  uint64(size - 1),
		cells: make([]cell, size),
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Capacity returns the queue's true (power-of-two-rounded) capacity.
func (q *Unified) Capacity() int { return len(q.cells) }

// Enqueue attempts to add h, returning errs.ErrQueueFull if the queue is
// saturated. On a non-nil return the caller (a producer) must free h back
// to its source pool unconditionally — see spec §4.D "freeing contract".
func (q *Unified) Enqueue(h frame.Handle) error {
	for {
		tail := atomic.LoadUint64(&q.tail)
		idx := tail & q.mask
		c := &q.cells[idx]
		seq := c.sequence.Load()
		diff := int64(seq) - int64(tail)

		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&q.tail, tail, tail+1) {
				c.data = h
				c.sequence.Store(tail + 1)
				return nil
			}
		case diff < 0:
			return errs.ErrQueueFull
		default:
			// another producer moved tail first; retry
		}
	}
}

// Dequeue removes and returns one handle, or ok=false if the queue is
// currently empty.
func (q *Unified) Dequeue() (frame.Handle, bool) {
	for {
		head := atomic.LoadUint64(&q.head)
		idx := head & q.mask
		c := &q.cells[idx]
		seq := c.sequence.Load()
		diff := int64(seq) - int64(head+1)

		switch {
		case diff == 0:
			if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
				item := c.data
				c.sequence.Store(head + q.mask + 1)
				return item, true
			}
		case diff < 0:
			return frame.Handle{}, false
		default:
			// another consumer moved head first; retry
		}
	}
}

// DequeueBatch pulls up to len(dst) handles, returning the slice of dst
// actually filled (spec §4.C dequeue_batch). The unified queue has only
// one consumer in this system, so no CAS race is possible on head beyond
// what Dequeue already handles.
func (q *Unified) DequeueBatch(dst []frame.Handle) []frame.Handle {
	n := 0
	for n < len(dst) {
		h, ok := q.Dequeue()
		if !ok {
			break
		}
		dst[n] = h
		n++
	}
	return dst[:n]
}

// Depth returns an approximate number of queued handles, consistent within
// one producer's view (spec §4.C).
func (q *Unified) Depth() int {
	tail := atomic.LoadUint64(&q.tail)
	head := atomic.LoadUint64(&q.head)
	if tail < head {
		return 0
	}
	return int(tail - head)
}
