// Package ipv4 implements per-device IPv4 send/receive: route selection,
// ARP-pending queueing, header build/parse, checksum validation, and
// protocol dispatch (spec.md §4.10).
package ipv4

import (
	"encoding/binary"

	"github.com/exos-labs/netkernel/internal/checksum"
)

const (
	// EtherType is the Ethernet frame type for IPv4.
	EtherType = 0x0800

	// HeaderLength is the fixed 20-byte header size (IHL=5, no options).
	HeaderLength = 20

	version4  = 4
	ihl5      = 5
	flagDF    = 0x2
	defaultTTL = 64

	// MaxPayload is the largest payload this stack will build a packet
	// for (spec.md §3 IPv4 context "payload (≤1500)").
	MaxPayload = 1500
)

// Header is a decoded IPv4 header.
type Header struct {
	Version        uint8
	IHL            uint8
	TOS            uint8
	TotalLength    uint16
	Identification uint16
	FlagsFragOff   uint16
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	Src            uint32
	Dst            uint32
}

// buildHeader serializes a header for id/proto/src/dst/payloadLen with the
// checksum field computed over the header with that field zeroed
// (spec.md §4.10 "Egress" step 4).
func buildHeader(id uint16, proto uint8, src, dst uint32, payloadLen int) []byte {
	b := make([]byte, HeaderLength)
	b[0] = version4<<4 | ihl5
	b[1] = 0 // TOS
	binary.BigEndian.PutUint16(b[2:4], uint16(HeaderLength+payloadLen))
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], uint16(flagDF)<<13)
	b[8] = defaultTTL
	b[9] = proto
	binary.BigEndian.PutUint16(b[10:12], 0) // checksum placeholder
	binary.BigEndian.PutUint32(b[12:16], src)
	binary.BigEndian.PutUint32(b[16:20], dst)

	sum := checksum.Sum(b)
	binary.BigEndian.PutUint16(b[10:12], sum)
	return b
}

// decodeHeader parses the fixed 20-byte prefix of b. It does not validate;
// Context.Ingress checks the decoded fields itself.
func decodeHeader(b []byte) Header {
	return Header{
		Version:        b[0] >> 4,
		IHL:            b[0] & 0x0F,
		TOS:            b[1],
		TotalLength:    binary.BigEndian.Uint16(b[2:4]),
		Identification: binary.BigEndian.Uint16(b[4:6]),
		FlagsFragOff:   binary.BigEndian.Uint16(b[6:8]),
		TTL:            b[8],
		Protocol:       b[9],
		Checksum:       binary.BigEndian.Uint16(b[10:12]),
		Src:            binary.BigEndian.Uint32(b[12:16]),
		Dst:            binary.BigEndian.Uint32(b[16:20]),
	}
}

// fragmented reports whether h carries a nonzero fragment offset or the
// More-Fragments flag (spec.md §4.10 "reject fragmented packets").
func (h Header) fragmented() bool {
	const mfBit = 0x2000
	const offsetMask = 0x1FFF
	return h.FlagsFragOff&mfBit != 0 || h.FlagsFragOff&offsetMask != 0
}
