// File: replay/replay_test.go
// License: Apache-2.0
package replay

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetedge/canbus-core/frame"
	"github.com/fleetedge/canbus-core/pool"
	"github.com/fleetedge/canbus-core/queue"
)

func TestWriteReadTraceRoundTrip(t *testing.T) {
	records := []Record{
		{CanID: 0x100, DLC: 3, Payload: [8]byte{1, 2, 3}},
		{CanID: 0x200, DLC: 0},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTrace(&buf, records))

	got, err := ReadTrace(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, records[0].CanID, got[0].CanID)
	assert.Equal(t, records[0].Payload, got[0].Payload)
	assert.Equal(t, records[1].CanID, got[1].CanID)
}

func TestProducerRunSubmitsEveryRecord(t *testing.T) {
	p := pool.NewPool(frame.CAN0, 8)
	q := queue.New(8)
	records := []Record{
		{CanID: 0x1, DLC: 1, Payload: [8]byte{1}},
		{CanID: 0x2, DLC: 1, Payload: [8]byte{2}},
		{CanID: 0x3, DLC: 1, Payload: [8]byte{3}},
	}
	producer := New(frame.CAN0, records, time.Millisecond, p, q)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		producer.Run(stop)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not finish replaying the trace in time")
	}

	assert.Equal(t, 3, q.Depth())
	for i := 0; i < 3; i++ {
		h, ok := q.Dequeue()
		require.True(t, ok)
		f := p.Read(h)
		assert.EqualValues(t, records[i].CanID, f.CanID)
	}
}

// TestProducerFreesSlotsOnQueueFull exercises spec §8.4 Scenario C: the
// unified queue is saturated ahead of time so every subsequent submit
// sees Enqueue fail, and the producer must free each allocated slot back
// to its pool rather than leaking it, with the drop counter advancing
// once per rejected enqueue. Pool capacity is sized to 17 against a
// queue held at exactly 16 so the single remaining free slot recycles
// at a fixed 94% fill ratio on every rejected enqueue, landing
// deterministically in the DropsAt90 bucket.
func TestProducerFreesSlotsOnQueueFull(t *testing.T) {
	const poolCap = 17
	p := pool.NewPool(frame.CAN0, poolCap)
	q := queue.New(16) // already a power of two; Capacity() stays 16

	held := q.Capacity()
	for i := 0; i < held; i++ {
		h, err := p.Alloc()
		require.NoError(t, err)
		require.NoError(t, q.Enqueue(h))
	}

	const n = 5
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{CanID: uint32(0x100 + i), DLC: 8}
	}
	producer := New(frame.CAN0, records, time.Millisecond, p, q)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		producer.Run(stop)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not finish replaying the trace in time")
	}

	assert.Equal(t, poolCap-held, p.FreeCount(), "every rejected enqueue must free its slot back, leaving only the pre-filled queue entries held")
	st := p.Stats()
	assert.EqualValues(t, n, st.DropsAt90, "drop counter must advance once per rejected enqueue")
	assert.EqualValues(t, held+n, st.TotalAllocated)
	assert.EqualValues(t, n, st.TotalFreed)
}

func TestProducerRunStopsEarly(t *testing.T) {
	p := pool.NewPool(frame.CAN0, 8)
	q := queue.New(8)
	records := make([]Record, 100)
	for i := range records {
		records[i] = Record{CanID: uint32(i)}
	}
	producer := New(frame.CAN0, records, 50*time.Millisecond, p, q)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		producer.Run(stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer did not honor stop signal")
	}
	assert.Less(t, q.Depth(), 100)
}
