// File: store/store_test.go
// License: Apache-2.0
package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetedge/canbus-core/nodetable"
)

func TestMemoryAppenderRecordsAndEnforcesCapacity(t *testing.T) {
	m := &Memory{Capacity: 2}
	require.NoError(t, m.Append(Sample{Target: 1, Value: 1.0}))
	require.NoError(t, m.Append(Sample{Target: 2, Value: 2.0}))

	err := m.Append(Sample{Target: 3, Value: 3.0})
	assert.ErrorIs(t, err, ErrFull)
	assert.Equal(t, 2, m.Len())
}

func TestBatchAppenderFlushesToDestination(t *testing.T) {
	dst := &Memory{}
	b := NewBatchAppender(dst, 4, 20*time.Millisecond)
	defer b.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Append(ctx, Sample{Target: nodetable.SensorHandle(i), Value: float64(i)}))
	}
	assert.Equal(t, 4, dst.Len())
}

func TestBatchAppenderCloseFlushesPending(t *testing.T) {
	dst := &Memory{}
	b := NewBatchAppender(dst, 100, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, b.Append(ctx, Sample{Target: 1, Value: 9.0}))

	require.NoError(t, b.Close(context.Background()))
}
