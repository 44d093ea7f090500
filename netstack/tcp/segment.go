package tcp

import (
	"encoding/binary"

	"github.com/exos-labs/netkernel/internal/checksum"
	"github.com/exos-labs/netkernel/internal/kdefaults"
)

// Flag bits in the TCP header's flags byte.
const (
	FlagFIN uint8 = 1 << 0
	FlagSYN uint8 = 1 << 1
	FlagRST uint8 = 1 << 2
	FlagPSH uint8 = 1 << 3
	FlagACK uint8 = 1 << 4
)

const (
	headerLength = 20
	protocolTCP  = 6

	optKindEnd       = 0
	optKindNOP       = 1
	optKindMSS       = 2
	optKindWindow    = 3
	optKindTimestamp = 8
)

// Segment is a decoded TCP segment.
type Segment struct {
	SrcPort  uint16
	DstPort  uint16
	Seq      uint32
	Ack      uint32
	Flags    uint8
	Window   uint16
	Checksum uint16
	Payload  []byte

	MSS            uint16
	HasMSS         bool
	WindowScale    uint8
	HasWindowScale bool
}

// buildSegment serializes a segment and fills in the checksum computed
// over the IPv4 pseudo-header + TCP header + payload (spec.md §4.11
// "Checksum").
func buildSegment(srcIP, dstIP uint32, srcPort, dstPort uint16, seq, ack uint32, flags uint8, window uint16, payload []byte, options []byte) []byte {
	dataOffsetWords := uint8((headerLength + len(options)) / 4)
	header := make([]byte, headerLength+len(options))
	binary.BigEndian.PutUint16(header[0:2], srcPort)
	binary.BigEndian.PutUint16(header[2:4], dstPort)
	binary.BigEndian.PutUint32(header[4:8], seq)
	binary.BigEndian.PutUint32(header[8:12], ack)
	header[12] = dataOffsetWords << 4
	header[13] = flags
	binary.BigEndian.PutUint16(header[14:16], window)
	binary.BigEndian.PutUint16(header[16:18], 0) // checksum placeholder
	binary.BigEndian.PutUint16(header[18:20], 0) // urgent pointer, unused
	copy(header[headerLength:], options)

	pseudo := make([]byte, 12)
	binary.BigEndian.PutUint32(pseudo[0:4], srcIP)
	binary.BigEndian.PutUint32(pseudo[4:8], dstIP)
	pseudo[8] = 0
	pseudo[9] = protocolTCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(header)+len(payload)))

	sum := checksum.SumParts(pseudo, header, payload)
	binary.BigEndian.PutUint16(header[16:18], sum)

	out := make([]byte, 0, len(header)+len(payload))
	out = append(out, header...)
	out = append(out, payload...)
	return out
}

// mssOption builds the SYN-segment MSS option.
func mssOption(mss uint16) []byte {
	b := make([]byte, 4)
	b[0] = optKindMSS
	b[1] = 4
	binary.BigEndian.PutUint16(b[2:4], mss)
	return b
}

// verifyChecksum reports whether segment data (full TCP header+payload)
// checksums to zero against the given pseudo-header fields.
func verifyChecksum(srcIP, dstIP uint32, data []byte) bool {
	pseudo := make([]byte, 12)
	binary.BigEndian.PutUint32(pseudo[0:4], srcIP)
	binary.BigEndian.PutUint32(pseudo[4:8], dstIP)
	pseudo[8] = 0
	pseudo[9] = protocolTCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(data)))
	return checksum.SumParts(pseudo, data) == 0
}

// decodeSegment parses b as a TCP segment. It does not verify the
// checksum; callers run verifyChecksum first.
func decodeSegment(b []byte) (Segment, bool) {
	if len(b) < headerLength {
		return Segment{}, false
	}
	dataOffsetWords := int(b[12] >> 4)
	hdrLen := dataOffsetWords * 4
	if hdrLen < headerLength || hdrLen > len(b) {
		return Segment{}, false
	}

	s := Segment{
		SrcPort:  binary.BigEndian.Uint16(b[0:2]),
		DstPort:  binary.BigEndian.Uint16(b[2:4]),
		Seq:      binary.BigEndian.Uint32(b[4:8]),
		Ack:      binary.BigEndian.Uint32(b[8:12]),
		Flags:    b[13],
		Window:   binary.BigEndian.Uint16(b[14:16]),
		Checksum: binary.BigEndian.Uint16(b[16:18]),
		Payload:  b[hdrLen:],
	}
	parseOptions(b[headerLength:hdrLen], &s)
	return s, true
}

// parseOptions reads the MSS and Window Scale options, skipping NOP and
// stopping at END; the values are recorded but not enforced. Every other
// option, Timestamp included, is skipped by its length and not recorded.
func parseOptions(opts []byte, s *Segment) {
	i := 0
	for i < len(opts) {
		kind := opts[i]
		switch kind {
		case optKindEnd:
			return
		case optKindNOP:
			i++
			continue
		}
		if i+1 >= len(opts) {
			return
		}
		length := int(opts[i+1])
		if length < 2 || i+length > len(opts) {
			return
		}
		switch kind {
		case optKindMSS:
			if length == 4 {
				s.MSS = binary.BigEndian.Uint16(opts[i+2 : i+4])
				s.HasMSS = true
			}
		case optKindWindow:
			if length == 3 {
				s.WindowScale = opts[i+2]
				s.HasWindowScale = true
			}
		}
		i += length
	}
}

// SegmentLength is the sequence-space length of a segment: payload bytes
// plus one each for SYN and FIN.
func SegmentLength(flags uint8, payloadLen int) uint32 {
	n := uint32(payloadLen)
	if flags&FlagSYN != 0 {
		n++
	}
	if flags&FlagFIN != 0 {
		n++
	}
	return n
}

// clampToMaxPayload trims payload to the configured segment ceiling.
func clampToMaxPayload(payload []byte) []byte {
	if len(payload) > kdefaults.TCPMaxSegmentPayload {
		return payload[:kdefaults.TCPMaxSegmentPayload]
	}
	return payload
}
