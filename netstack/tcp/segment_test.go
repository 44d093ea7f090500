package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndDecodeSegmentRoundTrips(t *testing.T) {
	srcIP, dstIP := uint32(0x0A000001), uint32(0x0A000002)
	frame := buildSegment(srcIP, dstIP, 1234, 80, 1000, 2000, FlagSYN|FlagACK, 65535, []byte("hello"), mssOption(1460))

	assert.True(t, verifyChecksum(srcIP, dstIP, frame))

	seg, ok := decodeSegment(frame)
	require.True(t, ok)
	assert.Equal(t, uint16(1234), seg.SrcPort)
	assert.Equal(t, uint16(80), seg.DstPort)
	assert.Equal(t, uint32(1000), seg.Seq)
	assert.Equal(t, uint32(2000), seg.Ack)
	assert.Equal(t, FlagSYN|FlagACK, seg.Flags)
	assert.Equal(t, uint16(65535), seg.Window)
	assert.Equal(t, []byte("hello"), seg.Payload)
	assert.True(t, seg.HasMSS)
	assert.Equal(t, uint16(1460), seg.MSS)
}

func TestVerifyChecksumRejectsCorruptedSegment(t *testing.T) {
	srcIP, dstIP := uint32(0x0A000001), uint32(0x0A000002)
	frame := buildSegment(srcIP, dstIP, 1234, 80, 1000, 2000, FlagACK, 4096, []byte("payload"), nil)
	frame[len(frame)-1] ^= 0xFF
	assert.False(t, verifyChecksum(srcIP, dstIP, frame))
}

func TestDecodeSegmentRejectsShortBuffer(t *testing.T) {
	_, ok := decodeSegment([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestDecodeSegmentSkipsNOPAndStopsAtEnd(t *testing.T) {
	options := []byte{optKindNOP, optKindNOP, optKindMSS, 4, 0x05, 0xB4, optKindEnd, optKindEnd}
	frame := buildSegment(1, 2, 1, 2, 0, 0, FlagSYN, 0, nil, options)
	seg, ok := decodeSegment(frame)
	require.True(t, ok)
	assert.True(t, seg.HasMSS)
	assert.Equal(t, uint16(1460), seg.MSS)
}

func TestSegmentLengthCountsSynAndFin(t *testing.T) {
	assert.Equal(t, uint32(1), SegmentLength(FlagSYN, 0))
	assert.Equal(t, uint32(1), SegmentLength(FlagFIN, 0))
	assert.Equal(t, uint32(5), SegmentLength(FlagACK, 5))
	assert.Equal(t, uint32(2), SegmentLength(FlagSYN|FlagFIN, 0))
}
