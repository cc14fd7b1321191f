// File: queue/queue_test.go
// License: Apache-2.0
package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetedge/canbus-core/errs"
	"github.com/fleetedge/canbus-core/frame"
)

func TestEnqueueDequeueOrder(t *testing.T) {
	q := New(8)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(frame.Handle{Bus: frame.CAN0, Index: uint32(i)}))
	}
	for i := 0; i < 5; i++ {
		h, ok := q.Dequeue()
		require.True(t, ok)
		assert.EqualValues(t, i, h.Index)
	}
	_, ok := q.Dequeue()
	assert.False(t, ok)
}

func TestCapacityRoundedToPowerOfTwo(t *testing.T) {
	q := New(5)
	assert.Equal(t, 8, q.Capacity())
}

func TestEnqueueFullReturnsError(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Enqueue(frame.Handle{Index: 0}))
	require.NoError(t, q.Enqueue(frame.Handle{Index: 1}))
	err := q.Enqueue(frame.Handle{Index: 2})
	require.ErrorIs(t, err, errs.ErrQueueFull)
}

func TestDequeueBatch(t *testing.T) {
	q := New(16)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(frame.Handle{Index: uint32(i)}))
	}
	dst := make([]frame.Handle, 4)
	got := q.DequeueBatch(dst)
	assert.Len(t, got, 4)
	assert.EqualValues(t, 0, got[0].Index)
	assert.EqualValues(t, 3, got[3].Index)
	assert.Equal(t, 6, q.Depth())
}

func TestDepth(t *testing.T) {
	q := New(16)
	assert.Equal(t, 0, q.Depth())
	require.NoError(t, q.Enqueue(frame.Handle{}))
	require.NoError(t, q.Enqueue(frame.Handle{}))
	assert.Equal(t, 2, q.Depth())
	_, _ = q.Dequeue()
	assert.Equal(t, 1, q.Depth())
}

// TestConcurrentProducersSingleConsumer mimics the real usage shape:
// many producer goroutines enqueueing, one consumer draining, with every
// enqueued handle's index observed exactly once at the other end.
func TestConcurrentProducersSingleConsumer(t *testing.T) {
	const producers = 8
	const perProducer = 200
	q := New(4096)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for q.Enqueue(frame.Handle{Bus: frame.BusID(p), Index: uint32(i)}) != nil {
					// full, retry
				}
			}
		}(p)
	}

	seen := make(map[frame.BusID]map[uint32]bool)
	total := producers * perProducer
	got := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	idleSpins := 0
	for got < total && idleSpins < 10_000_000 {
		h, ok := q.Dequeue()
		if !ok {
			select {
			case <-done:
				if q.Depth() == 0 {
					idleSpins++
				}
			default:
			}
			continue
		}
		idleSpins = 0
		if seen[h.Bus] == nil {
			seen[h.Bus] = make(map[uint32]bool)
		}
		require.False(t, seen[h.Bus][h.Index], "duplicate delivery of bus=%d index=%d", h.Bus, h.Index)
		seen[h.Bus][h.Index] = true
		got++
	}
	assert.Equal(t, total, got)
}
