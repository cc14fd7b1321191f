// File: nodetable/extract.go
// License: Apache-2.0
package nodetable

import "github.com/fleetedge/canbus-core/errs"

// Sample is one decoded (sensor, value, timestamp) triple ready for the
// downstream store (spec §6.2). Extract writes into a caller-provided
// array so the hot decode path never allocates.
type Sample struct {
	Target      SensorHandle
	Value       float64
	TimestampUS int64
}

// MuxMiss is returned by Extract when a multiplexed frame's selector value
// has no configured signal set — distinct from an unmapped CAN ID (spec
// §9 open question / SPEC_FULL.md D.3), silently discarded but counted
// under its own stat.
var MuxMiss = errs.New(errs.KindDecodeError, "mux value has no signal set")

// Extract decodes every signal declared for node out of payload, appending
// results to dst (caller-sized, capacity MaxSignalsPerFrame) and returning
// the filled slice. A bit-field that does not fit inside 8 bytes is
// skipped and counted via the returned skipped count; other signals in
// the same frame still decode (spec §4.E "decoding errors ... skip, frame
// continues").
func Extract(node *NodeDescriptor, payload [8]byte, tsUS int64, dst []Sample) (out []Sample, skipped int, err error) {
	if node.IsMultiplexed() {
		muxVal, ok := readBits(payload, node.Mux.StartBit, node.Mux.Width, node.Mux.Order, false)
		if !ok {
			return dst[:0], 0, errs.New(errs.KindDecodeError, "mux selector bit field out of range")
		}
		set, ok := node.Mux.Sets[uint32(muxVal)]
		if !ok {
			return dst[:0], 0, MuxMiss
		}
		return extractSet(set, payload, tsUS, dst)
	}
	return extractSet(node.Signals, payload, tsUS, dst)
}

func extractSet(signals []Signal, payload [8]byte, tsUS int64, dst []Sample) ([]Sample, int, error) {
	out := dst[:0]
	skipped := 0
	for _, sig := range signals {
		raw, ok := readBits(payload, sig.StartBit, sig.Width, sig.Order, sig.Signed)
		if !ok {
			skipped++
			continue
		}
		value := float64(raw)*sig.Scale + sig.Offset
		out = append(out, Sample{Target: sig.Target, Value: value, TimestampUS: tsUS})
	}
	return out, skipped, nil
}

// readBits extracts a width-bit field starting at startBit from an 8-byte
// payload, honoring byte order and sign extension. Returns ok=false if
// the field does not fit within the 64 available bits.
func readBits(payload [8]byte, startBit, width uint8, order ByteOrder, signed bool) (int64, bool) {
	if width == 0 || width > 64 || int(startBit)+int(width) > 64 {
		return 0, false
	}

	var raw uint64
	switch order {
	case LittleEndian:
		var word uint64
		for i := 0; i < 8; i++ {
			word |= uint64(payload[i]) << (8 * i)
		}
		raw = (word >> startBit) & maskFor(width)
	case BigEndian:
		// Standard DBC "big endian" bit numbering: start bit is the MSB of
		// the field, counted from the most significant bit of byte 0.
		var word uint64
		for i := 0; i < 8; i++ {
			word = (word << 8) | uint64(payload[i])
		}
		shift := 64 - int(startBit) - int(width)
		if shift < 0 {
			return 0, false
		}
		raw = (word >> uint(shift)) & maskFor(width)
	default:
		return 0, false
	}

	if !signed {
		return int64(raw), true
	}
	signBit := uint64(1) << (width - 1)
	if raw&signBit != 0 {
		return int64(raw) - int64(signBit<<1), true
	}
	return int64(raw), true
}

func maskFor(width uint8) uint64 {
	if width == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}
