// File: ethernet/protocol_test.go
// License: Apache-2.0
package ethernet

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcanRecord(canID uint32, payload []byte, tsUS uint32) []byte {
	buf := make([]byte, 0, 10+len(payload))
	buf = append(buf, pcanSyncByte)
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], canID)
	buf = append(buf, idBuf[:]...)
	buf = append(buf, byte(len(payload)))
	buf = append(buf, payload...)
	var tsBuf [4]byte
	binary.LittleEndian.PutUint32(tsBuf[:], tsUS)
	buf = append(buf, tsBuf[:]...)
	return buf
}

func apteraRecord(busTag, dbcID uint8, canID uint32, payload []byte, tsUS uint32) []byte {
	body := make([]byte, 0, 11+len(payload))
	body = append(body, busTag, dbcID)
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], canID)
	body = append(body, idBuf[:]...)
	body = append(body, byte(len(payload)))
	body = append(body, payload...)
	var tsBuf [4]byte
	binary.LittleEndian.PutUint32(tsBuf[:], tsUS)
	body = append(body, tsBuf[:]...)

	out := make([]byte, 0, 2+len(body))
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(body)))
	out = append(out, lenBuf[:]...)
	out = append(out, body...)
	return out
}

func TestParsePCANRecord(t *testing.T) {
	p := NewParser(FramingPCAN)
	wire := pcanRecord(0x123, []byte{1, 2, 3}, 99)
	recs := p.Feed(wire)
	require.Len(t, recs, 1)
	assert.EqualValues(t, 0x123, recs[0].CanID)
	assert.EqualValues(t, 3, recs[0].DLC)
	assert.Equal(t, []byte{1, 2, 3}, recs[0].Payload[:3])
	assert.EqualValues(t, 99, recs[0].TimestampUS)
	assert.Zero(t, p.Malformed())
}

func TestParsePCANIncrementalFeed(t *testing.T) {
	p := NewParser(FramingPCAN)
	wire := pcanRecord(0x1, []byte{9}, 1)
	// Feed one byte at a time; only the final call should yield a record.
	var got []Record
	for i := 0; i < len(wire); i++ {
		got = append(got, p.Feed(wire[i:i+1])...)
	}
	require.Len(t, got, 1)
	assert.EqualValues(t, 0x1, got[0].CanID)
}

func TestParsePCANResyncsByteByByte(t *testing.T) {
	p := NewParser(FramingPCAN)
	good := pcanRecord(0x42, []byte{7}, 5)
	wire := append([]byte{0x00, 0x00, 0x00}, good...) // garbage prefix, no sync byte
	recs := p.Feed(wire)
	require.Len(t, recs, 1)
	assert.EqualValues(t, 0x42, recs[0].CanID)
	assert.EqualValues(t, 1, p.Malformed())
}

func TestParseAPTERARecordRoutesBusTag(t *testing.T) {
	p := NewParser(FramingAPTERA)
	wire := apteraRecord(3, 7, 0x77, []byte{1, 2}, 42)
	recs := p.Feed(wire)
	require.Len(t, recs, 1)
	assert.EqualValues(t, 3, recs[0].BusTag)
	assert.EqualValues(t, 7, recs[0].DBCID)
	assert.EqualValues(t, 0x77, recs[0].CanID)
}

func TestParseAPTERARejectsBusTagBelowTwo(t *testing.T) {
	p := NewParser(FramingAPTERA)
	wire := apteraRecord(1, 0, 0x1, nil, 0)
	recs := p.Feed(wire)
	assert.Empty(t, recs)
	assert.EqualValues(t, 1, p.Malformed())
}

func TestParseMultipleRecordsInOneFeed(t *testing.T) {
	p := NewParser(FramingPCAN)
	a := pcanRecord(0x1, []byte{1}, 1)
	b := pcanRecord(0x2, []byte{2}, 2)
	recs := p.Feed(append(a, b...))
	require.Len(t, recs, 2)
	assert.EqualValues(t, 0x1, recs[0].CanID)
	assert.EqualValues(t, 0x2, recs[1].CanID)
}

func TestResetDiscardsPartialRecord(t *testing.T) {
	p := NewParser(FramingPCAN)
	wire := pcanRecord(0x1, []byte{1}, 1)
	p.Feed(wire[:3]) // partial, buffered
	p.Reset()
	recs := p.Feed(wire)
	require.Len(t, recs, 1, "after Reset, a fresh complete record must still decode cleanly")
}
