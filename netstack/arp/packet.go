// Package arp implements the per-device ARP cache: adaptive-backoff
// resolution, periodic tick aging, ingress decode/reply, and resolution
// notifications (spec.md §4.9).
package arp

import "encoding/binary"

const (
	htypeEthernet = 1
	ptypeIPv4     = 0x0800
	hlenEthernet  = 6
	plenIPv4      = 4

	// OpRequest and OpReply are the ARP operation codes.
	OpRequest = 1
	OpReply   = 2

	// EtherType is the Ethernet frame type for ARP.
	EtherType = 0x0806

	// PacketLength is the fixed wire size of an ARP packet (no padding
	// options): 8-byte fixed header + 2*(6+4) address fields.
	PacketLength = 28
)

// Packet is a decoded ARP packet.
type Packet struct {
	Op             uint16
	SenderMAC      [6]byte
	SenderIP       uint32
	TargetMAC      [6]byte
	TargetIP       uint32
}

// Decode parses b as an ARP packet, returning false if the fixed header
// fields (htype, ptype, hlen, plen) don't match Ethernet/IPv4 ARP or b is
// too short.
func Decode(b []byte) (Packet, bool) {
	if len(b) < PacketLength {
		return Packet{}, false
	}
	htype := binary.BigEndian.Uint16(b[0:2])
	ptype := binary.BigEndian.Uint16(b[2:4])
	hlen := b[4]
	plen := b[5]
	if htype != htypeEthernet || ptype != ptypeIPv4 || hlen != hlenEthernet || plen != plenIPv4 {
		return Packet{}, false
	}

	p := Packet{Op: binary.BigEndian.Uint16(b[6:8])}
	copy(p.SenderMAC[:], b[8:14])
	p.SenderIP = binary.BigEndian.Uint32(b[14:18])
	copy(p.TargetMAC[:], b[18:24])
	p.TargetIP = binary.BigEndian.Uint32(b[24:28])
	return p, true
}

// Encode serializes p to its wire form.
func (p Packet) Encode() []byte {
	b := make([]byte, PacketLength)
	binary.BigEndian.PutUint16(b[0:2], htypeEthernet)
	binary.BigEndian.PutUint16(b[2:4], ptypeIPv4)
	b[4] = hlenEthernet
	b[5] = plenIPv4
	binary.BigEndian.PutUint16(b[6:8], p.Op)
	copy(b[8:14], p.SenderMAC[:])
	binary.BigEndian.PutUint32(b[14:18], p.SenderIP)
	copy(b[18:24], p.TargetMAC[:])
	binary.BigEndian.PutUint32(b[24:28], p.TargetIP)
	return b
}

// IsValidMAC rejects a MAC whose first byte has the I/G bit set, or
// which is all-zero or all-0xFF (spec.md §3 ARP cache entry invariant c,
// and testable property 8).
func IsValidMAC(mac [6]byte) bool {
	if mac[0]&0x1 != 0 {
		return false
	}
	if mac == ([6]byte{}) {
		return false
	}
	if mac == ([6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) {
		return false
	}
	return true
}

// BroadcastMAC is the Ethernet broadcast address.
var BroadcastMAC = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
