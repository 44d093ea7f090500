package e1000

import (
	"time"

	"github.com/exos-labs/netkernel/internal/kerrors"
	"github.com/exos-labs/netkernel/internal/logging"
	"github.com/exos-labs/netkernel/internal/telemetry"
	"github.com/exos-labs/netkernel/platform"
	"go.uber.org/atomic"
)

// fallbackMAC is the fixed lab-assigned MAC adopted when both RAL0 and
// the EEPROM yield nothing usable (original_source E1000.c).
var fallbackMAC = [6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}

// RXCallback receives a completed frame's buffer (sliced to the
// descriptor-reported length) and must not retain it past the call.
type RXCallback func(frame []byte)

// Device is an attached E1000 NIC: MMIO registers, MAC, and the RX/TX
// rings (spec.md §3 "E1000 device").
type Device struct {
	regs Regs
	mac  [6]byte

	rx     *ring
	tx     *ring
	// Ring head/tail indices are typed atomics rather than plain ints:
	// unlike the protocol contexts above it, e1000.Device keeps no mutex
	// of its own (spec.md §5 puts the lock on the owning device.Device),
	// and Send/Poll are the two paths a caller may legitimately invoke
	// from different goroutines (TX from a send path, RX from a poll
	// loop or IRQ) without that outer lock serializing them.
	rxHead atomic.Uint32
	rxTail atomic.Uint32
	txHead atomic.Uint32
	txTail atomic.Uint32

	rxCallback RXCallback
	log        *logging.Logger

	telemetry *telemetry.Registry
	device    string
}

// SetTelemetry attaches a metrics registry the device reports frame
// RX/TX/drop counts through, labeled by device. A nil reg disables
// recording.
func (d *Device) SetTelemetry(reg *telemetry.Registry, device string) {
	d.telemetry = reg
	d.device = device
}

// readEEPROM performs the EERD read handshake for one word address,
// polling EERD.DONE (bounded — this is a synchronous register dance, not
// an indefinite spin).
func readEEPROM(regs Regs, addr uint16) uint16 {
	regs.Write32(regEERD, eerdStart|uint32(addr)<<eerdAddrShift)
	deadline := platform.NewDeadline(1000, time.Second)
	for {
		v := regs.Read32(regEERD)
		if v&eerdDone != 0 {
			return uint16(v >> eerdDataShift)
		}
		if deadline.Tick() {
			return 0
		}
	}
}

// Attach runs the initialization sequence from spec.md §4.7 steps 4-7
// (reset, MAC retrieval, RX/TX ring setup) against regs, using the given
// descriptor pages and per-slot buffers (already allocated via
// platform.AllocPage by the caller, since BAR mapping and page allocation
// are PCI-bus concerns handled before Attach is called).
func Attach(regs Regs, rxDescPage, txDescPage []byte, rxBuffers, txBuffers [][]byte) (*Device, error) {
	d := &Device{regs: regs, log: logging.ForSubsystem("e1000")}

	if err := d.reset(); err != nil {
		return nil, err
	}
	d.retrieveMAC()
	d.setupRX(rxDescPage, rxBuffers)
	d.setupTX(txDescPage, txBuffers)

	return d, nil
}

// reset sets CTRL.RST, polls (bounded) until it clears, then sets
// CTRL.SLU|CTRL.FD and masks all interrupts via IMC.
func (d *Device) reset() error {
	d.regs.Write32(regCTRL, d.regs.Read32(regCTRL)|ctrlRST)

	deadline := platform.NewDeadline(10000, time.Second)
	for d.regs.Read32(regCTRL)&ctrlRST != 0 {
		if deadline.Tick() {
			return kerrors.New("e1000.reset", kerrors.Timeout, "CTRL.RST did not clear")
		}
	}

	d.regs.Write32(regCTRL, d.regs.Read32(regCTRL)|ctrlSLU|ctrlFD)
	d.regs.Write32(regIMC, 0xFFFFFFFF)
	return nil
}

// retrieveMAC adopts RAL0/RAH0 if the Address-Valid bit is set and the
// address is a usable unicast address; otherwise reads three EEPROM
// words, falling back to fallbackMAC if those are all zero too.
func (d *Device) retrieveMAC() {
	ral := d.regs.Read32(regRAL0)
	rah := d.regs.Read32(regRAH0)
	if rah&raAddressValid != 0 {
		mac := [6]byte{
			byte(ral), byte(ral >> 8), byte(ral >> 16), byte(ral >> 24),
			byte(rah), byte(rah >> 8),
		}
		if isUsableUnicast(mac) {
			d.mac = mac
			d.programRA(mac)
			d.zeroMulticastTable()
			return
		}
	}

	w0 := readEEPROM(d.regs, 0)
	w1 := readEEPROM(d.regs, 1)
	w2 := readEEPROM(d.regs, 2)
	if w0 == 0 && w1 == 0 && w2 == 0 {
		d.mac = fallbackMAC
	} else {
		d.mac = [6]byte{byte(w0), byte(w0 >> 8), byte(w1), byte(w1 >> 8), byte(w2), byte(w2 >> 8)}
	}
	d.programRA(d.mac)
	d.zeroMulticastTable()
}

func isUsableUnicast(mac [6]byte) bool {
	if mac == ([6]byte{}) {
		return false
	}
	if mac == ([6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) {
		return false
	}
	return mac[0]&0x1 == 0 // I/G bit clear: unicast
}

func (d *Device) programRA(mac [6]byte) {
	ral := uint32(mac[0]) | uint32(mac[1])<<8 | uint32(mac[2])<<16 | uint32(mac[3])<<24
	rah := uint32(mac[4]) | uint32(mac[5])<<8 | raAddressValid
	d.regs.Write32(regRAL0, ral)
	d.regs.Write32(regRAH0, rah)
}

func (d *Device) zeroMulticastTable() {
	for i := 0; i < 128; i++ {
		d.regs.Write32(regMTA+uint32(i)*4, 0)
	}
}

// setupRX allocates the RX ring, programs every descriptor with its
// buffer's physical address and cleared status, then programs
// RDBAL/RDBAH/RDLEN/RDH/RDT and RCTL (spec.md §4.7 step 6).
func (d *Device) setupRX(descPage []byte, buffers [][]byte) {
	d.rx = newRing(RXDescCount, descPage, buffers, 0x10000)
	for i := 0; i < RXDescCount; i++ {
		desc := rxDescriptor{bufferAddr: d.rx.physAddrs[i]}
		desc.encode(d.rx.descriptorAt(i))
	}

	d.regs.Write32(regRDBAL, 0)
	d.regs.Write32(regRDBAH, 0)
	d.regs.Write32(regRDLEN, uint32(RXDescCount*descriptorSize))
	d.regs.Write32(regRDH, 0)
	d.regs.Write32(regRDT, uint32(RXDescCount-1))
	d.rxHead.Store(0)
	d.rxTail.Store(uint32(RXDescCount - 1))

	d.regs.Write32(regRCTL, rctlEN|rctlBAM|rctlBSIZE2048|rctlSECRC|rctlUPE|rctlMPE)
}

// setupTX allocates the TX ring with every descriptor's STA.DD pre-set
// (so the first send finds them available) and programs TDH=TDT=0 and
// TCTL/TIPG (spec.md §4.7 step 7).
func (d *Device) setupTX(descPage []byte, buffers [][]byte) {
	txRing := newRing(TXDescCount, descPage, buffers, 0x20000)
	d.tx = txRing
	for i := 0; i < TXDescCount; i++ {
		desc := txDescriptor{bufferAddr: txRing.physAddrs[i], status: txStaDD}
		desc.encode(txRing.descriptorAt(i))
	}

	d.regs.Write32(regTDBAL, 0)
	d.regs.Write32(regTDBAH, 0)
	d.regs.Write32(regTDLEN, uint32(TXDescCount*descriptorSize))
	d.regs.Write32(regTDH, 0)
	d.regs.Write32(regTDT, 0)
	d.txHead.Store(0)
	d.txTail.Store(0)

	ctl := uint32(tctlEN | tctlPSP)
	ctl |= tctlCTDefault << tctlCTShift
	ctl |= tctlCOLDDefault << tctlCOLDShift
	d.regs.Write32(regTCTL, ctl)
	d.regs.Write32(regTIPG, tipgQEMUCompat)
}

// MAC returns the device's programmed MAC address.
func (d *Device) MAC() [6]byte { return d.mac }

// SetRXCallback registers the callback invoked for each completed RX
// descriptor during Poll.
func (d *Device) SetRXCallback(cb RXCallback) { d.rxCallback = cb }

// LinkUp reports STATUS.LU.
func (d *Device) LinkUp() bool {
	return d.regs.Read32(regSTATUS)&statusLU != 0
}

// speedMbps decodes STATUS speed bits (10/100/1000/1000 reserved-as-1000).
var speedMbps = [4]int{10, 100, 1000, 1000}

// LinkStatusInfo reports the link's up/down state, negotiated speed, and
// duplex, read directly off STATUS (original_source E1000.c's link-change
// handler logs this same triple on an LSC interrupt).
type LinkStatusInfo struct {
	Up       bool
	SpeedMbs int
	FullDx   bool
}

// LinkStatus reads STATUS.LU/STATUS.SPEED/STATUS.FD and logs the result,
// mirroring the original driver's link-status-change handler.
func (d *Device) LinkStatus() LinkStatusInfo {
	status := d.regs.Read32(regSTATUS)
	info := LinkStatusInfo{
		Up:       status&statusLU != 0,
		SpeedMbs: speedMbps[(status>>statusSpeedShift)&statusSpeedMask],
		FullDx:   status&statusFD != 0,
	}
	if info.Up {
		d.log.Printf("link up: %d Mb/s %s-duplex", info.SpeedMbs, dxName(info.FullDx))
	} else {
		d.log.Printf("link down")
	}
	return info
}

func dxName(full bool) string {
	if full {
		return "full"
	}
	return "half"
}

// Stats is a snapshot of the NIC's hardware packet/byte counters.
type Stats struct {
	GoodPacketsRX uint32
	GoodPacketsTX uint32
	GoodOctetsRX  uint32
	GoodOctetsTX  uint32
}

// Stats reads the GPRC/GPTC/GORCL/GOTCL statistics registers. These are
// read-on-clear on real hardware, so callers that want a rate must diff
// successive snapshots themselves.
func (d *Device) Stats() Stats {
	return Stats{
		GoodPacketsRX: d.regs.Read32(regGPRC),
		GoodPacketsTX: d.regs.Read32(regGPTC),
		GoodOctetsRX:  d.regs.Read32(regGORCL),
		GoodOctetsTX:  d.regs.Read32(regGOTCL),
	}
}
