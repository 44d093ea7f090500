package e1000

import "encoding/binary"

// descriptorSize is the legacy E1000 RX/TX descriptor size in bytes:
// 8 (buffer address) + 2 (length) + 2 (checksum) + 1 (status) + 1
// (errors) + 2 (special).
const descriptorSize = 16

// rxDescriptor mirrors the hardware's legacy receive descriptor layout.
// Fields are packed/unpacked by hand against a raw 16-byte slice (the
// same field-at-a-time discipline internal/checksum documents, here over
// the ring's backing MMIO-mapped page rather than a byte slice we own).
type rxDescriptor struct {
	bufferAddr uint64
	length     uint16
	checksum   uint16
	status     uint8
	errors     uint8
	special    uint16
}

func (d rxDescriptor) encode(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], d.bufferAddr)
	binary.LittleEndian.PutUint16(b[8:10], d.length)
	binary.LittleEndian.PutUint16(b[10:12], d.checksum)
	b[12] = d.status
	b[13] = d.errors
	binary.LittleEndian.PutUint16(b[14:16], d.special)
}

func decodeRXDescriptor(b []byte) rxDescriptor {
	return rxDescriptor{
		bufferAddr: binary.LittleEndian.Uint64(b[0:8]),
		length:     binary.LittleEndian.Uint16(b[8:10]),
		checksum:   binary.LittleEndian.Uint16(b[10:12]),
		status:     b[12],
		errors:     b[13],
		special:    binary.LittleEndian.Uint16(b[14:16]),
	}
}

// txDescriptor mirrors the hardware's legacy transmit descriptor layout.
type txDescriptor struct {
	bufferAddr uint64
	length     uint16
	cso        uint8
	cmd        uint8
	status     uint8
	css        uint8
	special    uint16
}

func (d txDescriptor) encode(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], d.bufferAddr)
	binary.LittleEndian.PutUint16(b[8:10], d.length)
	b[10] = d.cso
	b[11] = d.cmd
	b[12] = d.status
	b[13] = d.css
	binary.LittleEndian.PutUint16(b[14:16], d.special)
}

func decodeTXDescriptor(b []byte) txDescriptor {
	return txDescriptor{
		bufferAddr: binary.LittleEndian.Uint64(b[0:8]),
		length:     binary.LittleEndian.Uint16(b[8:10]),
		cso:        b[10],
		cmd:        b[11],
		status:     b[12],
		css:        b[13],
		special:    binary.LittleEndian.Uint16(b[14:16]),
	}
}

// ring is a descriptor ring backed by a raw 16-byte-aligned page and one
// DMA-visible buffer per slot. N must be a power of two (spec.md §3
// invariant a). physAddrs holds a simulated non-zero "physical address"
// per slot, assigned at ring construction time — there is no real MMU in
// this environment, so a monotonically increasing handle stands in for
// platform.MapIO's physical base plus offset, preserving the non-zero,
// 16-byte-aligned invariant without requiring unsafe pointer arithmetic.
type ring struct {
	descriptors []byte   // N * descriptorSize bytes
	buffers     [][]byte // N buffers, BufferSize bytes each
	physAddrs   []uint64
	count       int
}

func newRing(count int, descriptorPage []byte, buffers [][]byte, basePhysAddr uint64) *ring {
	physAddrs := make([]uint64, count)
	for i := range physAddrs {
		physAddrs[i] = basePhysAddr + uint64(i)*BufferSize
	}
	return &ring{descriptors: descriptorPage, buffers: buffers, physAddrs: physAddrs, count: count}
}

func (r *ring) descriptorAt(i int) []byte {
	off := i * descriptorSize
	return r.descriptors[off : off+descriptorSize]
}
