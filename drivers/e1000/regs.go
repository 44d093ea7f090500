// Package e1000 implements the E1000 NIC driver: MMIO register access,
// RX/TX descriptor rings, attach sequence, polled send/receive, and
// ring-full policy (spec.md §4.7), grounded on
// original_source/kernel/include/drivers/network/E1000.h's register map
// and original_source/kernel/source/drivers/E1000.c's bring-up sequence.
package e1000

import "encoding/binary"

// Register offsets (original_source/kernel/include/drivers/network/E1000.h).
const (
	regCTRL   = 0x0000
	regSTATUS = 0x0008
	regEERD   = 0x0014
	regICR    = 0x00C0
	regIMS    = 0x00D0
	regIMC    = 0x00D8
	regRCTL   = 0x0100
	regTCTL   = 0x0400
	regTIPG   = 0x0410

	regRDBAL = 0x2800
	regRDBAH = 0x2804
	regRDLEN = 0x2808
	regRDH   = 0x2810
	regRDT   = 0x2818

	regTDBAL = 0x3800
	regTDBAH = 0x3804
	regTDLEN = 0x3808
	regTDH   = 0x3810
	regTDT   = 0x3818

	regRAL0 = 0x5400
	regRAH0 = 0x5404
	regMTA  = 0x5200

	// Statistics registers (original_source E1000.h), read-on-clear.
	regGPRC  = 0x4074
	regGPTC  = 0x4080
	regGORCL = 0x4088
	regGOTCL = 0x4090
)

// Control/status/receive/transmit bits.
const (
	ctrlFD  = 0x00000001
	ctrlSLU = 0x00000040
	ctrlRST = 0x04000000

	statusFD    = 0x00000001
	statusLU    = 0x00000002
	statusSpeedShift = 6
	statusSpeedMask  = 0x3

	eerdStart     = 0x00000001
	eerdDone      = 0x00000010
	eerdAddrShift = 8
	eerdDataShift = 16

	rctlEN        = 0x00000002
	rctlUPE       = 0x00000008
	rctlMPE       = 0x00000010
	rctlBAM       = 0x00008000
	rctlBSIZE2048 = 0x00000000
	rctlSECRC     = 0x04000000

	tctlEN        = 0x00000002
	tctlPSP       = 0x00000008
	tctlCTShift   = 4
	tctlCOLDShift = 12
	tctlCTDefault = 0x10
	tctlCOLDDefault = 0x40

	tipgQEMUCompat = 0x00602008

	txCmdEOP  = 0x01
	txCmdIFCS = 0x02
	txCmdRS   = 0x08
	txStaDD   = 0x01

	rxStaDD  = 0x01
	rxStaEOP = 0x02

	raAddressValid = 1 << 31

	defaultInterruptMask = 0x00000004 | 0x00000040 | 0x00000010 // LSC | RXO | RXDMT0
)

// Geometry constants (original_source E1000.h).
const (
	RXDescCount  = 128
	TXDescCount  = 128
	BufferSize   = 2048
	RingAlign    = 16
	ackTraceLimit = 16
)

// Regs is the MMIO register access boundary. Production code backs this
// with a real mmap'd BAR0 window (via platform.MapIO); tests back it with
// an in-memory fake, the same split the teacher draws between its real
// io_uring submission path and test doubles.
type Regs interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// mmioRegs is the production Regs backed by a byte slice mapped over a
// physical MMIO window (platform.MapIO), using little-endian encoding —
// x86 MMIO registers are accessed in the host's native (little-endian)
// order, unlike the network-byte-order wire encoding used elsewhere in
// this module.
type mmioRegs struct {
	mem []byte
}

// NewMMIORegs wraps an MMIO-mapped byte slice (from platform.MapIO) as a
// Regs implementation.
func NewMMIORegs(mem []byte) Regs {
	return &mmioRegs{mem: mem}
}

func (r *mmioRegs) Read32(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(r.mem[offset : offset+4])
}

func (r *mmioRegs) Write32(offset uint32, value uint32) {
	binary.LittleEndian.PutUint32(r.mem[offset:offset+4], value)
}
