// File: ethernet/protocol.go
// Package ethernet implements the Ethernet CAN TCP server of spec
// §4.D.1/§6.1: a single-client listener parsing either PCAN or APTERA
// wire framing, with byte-by-byte resync on malformed records (spec §9
// open question, resolved in favor of byte-by-byte for safety).
// License: Apache-2.0
package ethernet

import (
	"encoding/binary"

	"github.com/fleetedge/canbus-core/frame"
)

// Framing selects which wire format Parser decodes.
type Framing int

const (
	// FramingPCAN decodes the legacy fixed-layout record:
	// [sync:1][can_id:4 LE][dlc:1][payload:0..8][ts_us:4 LE].
	FramingPCAN Framing = iota
	// FramingAPTERA decodes the length-prefixed, multi-bus record:
	// [len:2 LE][bus_tag:1][dbc_id:1][can_id:4][dlc:1][payload:0..8][ts_us:4].
	FramingAPTERA
)

// pcanSyncByte is the fixed header byte PCAN records begin with. The
// wire protocol calls this out as a "header byte" without naming its
// value; 0xAA is the conventional legacy-PCAN sync byte and doubles as
// the resync anchor byte-by-byte scanning looks for.
const pcanSyncByte = 0xAA

// Record is one decoded wire record, ready to become a frame.Frame once
// a destination bus is assigned by the caller (PCAN records carry no bus
// tag of their own — the server assigns them to logical Ethernet bus
// index 0).
type Record struct {
	CanID       uint32
	DLC         uint8
	Payload     [frame.MaxPayload]byte
	TimestampUS uint32
	BusTag      uint8 // APTERA only; 0 for PCAN
	DBCID       uint8 // APTERA only; informational, not used for routing
}

// Parser incrementally decodes records out of a byte stream, buffering
// partial records across Feed calls and resynchronizing one byte at a
// time whenever a record fails to validate.
type Parser struct {
	framing  Framing
	buf      []byte
	malformed int64
	resyncing bool // true while skipping bytes after a failed record
}

// NewParser creates a Parser for the given wire framing.
func NewParser(f Framing) *Parser {
	return &Parser{framing: f}
}

// Malformed returns the cumulative count of resync events. Each run of
// bytes skipped between two valid records counts once, however many
// bytes it spans.
func (p *Parser) Malformed() int64 { return p.malformed }

// Reset discards any buffered partial record (spec §4.D.1 "connection
// loss triggers a reset of parser state").
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
	p.resyncing = false
}

// Feed appends newly-read bytes and returns every complete record
// decoded so far. Incomplete trailing bytes remain buffered for the
// next call.
func (p *Parser) Feed(data []byte) []Record {
	p.buf = append(p.buf, data...)
	var out []Record
	for {
		rec, consumed, status := p.tryOne()
		switch status {
		case parseOK:
			out = append(out, rec)
			p.buf = p.buf[consumed:]
			p.resyncing = false
		case parseNeedMore:
			return out
		case parseMalformed:
			if !p.resyncing {
				p.malformed++
				p.resyncing = true
			}
			p.buf = p.buf[1:]
		}
		if len(p.buf) == 0 {
			return out
		}
	}
}

type parseStatus int

const (
	parseOK parseStatus = iota
	parseNeedMore
	parseMalformed
)

func (p *Parser) tryOne() (Record, int, parseStatus) {
	switch p.framing {
	case FramingPCAN:
		return p.tryPCAN()
	default:
		return p.tryAPTERA()
	}
}

// tryPCAN attempts to decode one PCAN record starting at buf[0].
func (p *Parser) tryPCAN() (Record, int, parseStatus) {
	const headerLen = 1 + 4 + 1 // sync + can_id + dlc
	if len(p.buf) < headerLen {
		return Record{}, 0, parseNeedMore
	}
	if p.buf[0] != pcanSyncByte {
		return Record{}, 0, parseMalformed
	}
	dlc := p.buf[5]
	if dlc > frame.MaxPayload {
		return Record{}, 0, parseMalformed
	}
	total := headerLen + int(dlc) + 4 // + payload + ts_us
	if len(p.buf) < total {
		return Record{}, 0, parseNeedMore
	}

	rec := Record{
		CanID: binary.LittleEndian.Uint32(p.buf[1:5]),
		DLC:   dlc,
	}
	copy(rec.Payload[:dlc], p.buf[6:6+dlc])
	rec.TimestampUS = binary.LittleEndian.Uint32(p.buf[6+int(dlc) : 10+int(dlc)])
	return rec, total, parseOK
}

// tryAPTERA attempts to decode one APTERA record starting at buf[0].
// len is the record length following the length field itself:
// bus_tag(1) + dbc_id(1) + can_id(4) + dlc(1) + payload(0..8) + ts_us(4).
func (p *Parser) tryAPTERA() (Record, int, parseStatus) {
	const lenFieldSize = 2
	const minBody = 1 + 1 + 4 + 1 + 4 // bus_tag+dbc_id+can_id+dlc+ts_us, 0 payload
	const maxBody = minBody + frame.MaxPayload

	if len(p.buf) < lenFieldSize {
		return Record{}, 0, parseNeedMore
	}
	recLen := int(binary.LittleEndian.Uint16(p.buf[0:2]))
	if recLen < minBody || recLen > maxBody {
		return Record{}, 0, parseMalformed
	}
	total := lenFieldSize + recLen
	if len(p.buf) < total {
		return Record{}, 0, parseNeedMore
	}

	body := p.buf[lenFieldSize:total]
	busTag := body[0]
	dbcID := body[1]
	canID := binary.LittleEndian.Uint32(body[2:6])
	dlc := body[6]
	if dlc > frame.MaxPayload || int(7)+int(dlc)+4 != recLen {
		return Record{}, 0, parseMalformed
	}
	if busTag < 2 {
		return Record{}, 0, parseMalformed
	}

	rec := Record{CanID: canID, DLC: dlc, BusTag: busTag, DBCID: dbcID}
	copy(rec.Payload[:dlc], body[7:7+dlc])
	rec.TimestampUS = binary.LittleEndian.Uint32(body[7+int(dlc) : 11+int(dlc)])
	return rec, total, parseOK
}
