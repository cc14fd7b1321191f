// File: nodetable/signal.go
// Package nodetable implements the per-bus CAN-ID -> node/signal hash
// tables and the bit-level signal extraction of spec §3.4/§4.F.
// License: Apache-2.0
package nodetable

// ByteOrder selects how a signal's bit field is laid out inside the 8-byte
// payload.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// SensorHandle is the opaque target the downstream store (spec §6.2)
// associates with a decoded value. Assigned at configuration-build time;
// the core never interprets it beyond passing it through.
type SensorHandle uint32

// Signal describes one bit field inside a frame's payload and how to turn
// it into a physical-unit value.
type Signal struct {
	StartBit uint8
	Width    uint8
	Order    ByteOrder
	Signed   bool
	Scale    float64
	Offset   float64
	Target   SensorHandle
}

// MaxSignalsPerFrame bounds the stack-resident scratch array used during
// extraction (spec §4.F "transient buffers are stack-resident"); the
// node-table builder rejects any node declaring more than this.
const MaxSignalsPerFrame = 32

// MuxSelector describes the bit field that picks which Signal set applies
// to a given instance of a multiplexed frame, and the per-value sets.
type MuxSelector struct {
	StartBit uint8
	Width    uint8
	Order    ByteOrder
	Sets     map[uint32][]Signal
}

// NodeDescriptor is the decode description for one CAN identifier.
type NodeDescriptor struct {
	ID      uint32
	Signals []Signal     // nil/empty when Mux != nil
	Mux     *MuxSelector // nil for non-multiplexed nodes
}

// IsMultiplexed reports whether this node requires a mux-selector read.
func (n *NodeDescriptor) IsMultiplexed() bool { return n.Mux != nil }
