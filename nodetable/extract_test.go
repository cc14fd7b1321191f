// File: nodetable/extract_test.go
// License: Apache-2.0
package nodetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractLittleEndianUnsigned(t *testing.T) {
	node := &NodeDescriptor{
		ID: 0x100,
		Signals: []Signal{
			{StartBit: 0, Width: 8, Order: LittleEndian, Scale: 1, Target: 1},
		},
	}
	payload := [8]byte{42, 0, 0, 0, 0, 0, 0, 0}
	out, skipped, err := Extract(node, payload, 1000, nil)
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, out, 1)
	assert.Equal(t, 42.0, out[0].Value)
	assert.EqualValues(t, 1, out[0].Target)
	assert.EqualValues(t, 1000, out[0].TimestampUS)
}

func TestExtractScaleAndOffset(t *testing.T) {
	node := &NodeDescriptor{
		ID: 0x100,
		Signals: []Signal{
			{StartBit: 0, Width: 8, Order: LittleEndian, Scale: 0.5, Offset: -10, Target: 2},
		},
	}
	payload := [8]byte{100}
	out, _, err := Extract(node, payload, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 40.0, out[0].Value) // 100*0.5 - 10
}

func TestExtractSignedTwosComplement(t *testing.T) {
	node := &NodeDescriptor{
		ID: 0x100,
		Signals: []Signal{
			{StartBit: 0, Width: 8, Order: LittleEndian, Signed: true, Scale: 1, Target: 3},
		},
	}
	payload := [8]byte{0xFF} // -1 in 8-bit two's complement
	out, _, err := Extract(node, payload, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, -1.0, out[0].Value)
}

func TestExtractBigEndianBitNumbering(t *testing.T) {
	node := &NodeDescriptor{
		ID: 0x100,
		Signals: []Signal{
			{StartBit: 0, Width: 8, Order: BigEndian, Scale: 1, Target: 4},
		},
	}
	payload := [8]byte{0x55, 0, 0, 0, 0, 0, 0, 0}
	out, _, err := Extract(node, payload, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 0x55, int(out[0].Value))
}

func TestExtractSkipsOutOfRangeFieldButContinues(t *testing.T) {
	node := &NodeDescriptor{
		ID: 0x100,
		Signals: []Signal{
			{StartBit: 60, Width: 16, Order: LittleEndian, Target: 5}, // out of range
			{StartBit: 0, Width: 8, Order: LittleEndian, Scale: 1, Target: 6},
		},
	}
	payload := [8]byte{7}
	out, skipped, err := Extract(node, payload, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, out, 1)
	assert.Equal(t, 7.0, out[0].Value)
	assert.EqualValues(t, 6, out[0].Target)
}

func TestExtractMultiplexedSelectsSet(t *testing.T) {
	node := &NodeDescriptor{
		ID: 0x200,
		Mux: &MuxSelector{
			StartBit: 0, Width: 8, Order: LittleEndian,
			Sets: map[uint32][]Signal{
				1: {{StartBit: 8, Width: 8, Order: LittleEndian, Scale: 1, Target: 7}},
				2: {{StartBit: 8, Width: 8, Order: LittleEndian, Scale: 2, Target: 8}},
			},
		},
	}
	payload := [8]byte{2, 10}
	out, _, err := Extract(node, payload, 0, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 20.0, out[0].Value)
	assert.EqualValues(t, 8, out[0].Target)
}

func TestExtractMultiplexedMissReturnsMuxMiss(t *testing.T) {
	node := &NodeDescriptor{
		ID: 0x200,
		Mux: &MuxSelector{
			StartBit: 0, Width: 8, Order: LittleEndian,
			Sets: map[uint32][]Signal{1: {{Target: 1}}},
		},
	}
	payload := [8]byte{99}
	_, _, err := Extract(node, payload, 0, nil)
	assert.Equal(t, MuxMiss, err)
}
