package e1000

import (
	"github.com/exos-labs/netkernel/internal/device"
	"github.com/exos-labs/netkernel/internal/logging"
	"github.com/exos-labs/netkernel/internal/pci"
	"github.com/exos-labs/netkernel/platform"
)

// Known Intel vendor/device IDs this driver binds to (original_source
// kernel/include/drivers/network/E1000.h's supported-device table,
// trimmed to the handful QEMU and common lab hardware expose).
const (
	vendorIntel = 0x8086

	deviceID82540EM = 0x100E // QEMU's default emulated e1000
	deviceID82545EM = 0x100F
	deviceID82574L  = 0x10D3
)

// PCIDriver implements internal/pci.Driver for the E1000 NIC family: it
// matches by vendor/device ID, maps BAR0 as MMIO, allocates descriptor
// rings and per-slot buffers, and runs the Attach sequence from spec.md
// §4.7 steps 1-3 (BAR probe, MMIO map, bus-master enable) before handing
// off to Attach for steps 4-7 (reset, MAC retrieval, ring setup).
type PCIDriver struct {
	log *logging.Logger
}

// NewPCIDriver creates the pci.Driver adapter for this package's Attach.
func NewPCIDriver() *PCIDriver {
	return &PCIDriver{log: logging.ForSubsystem("e1000")}
}

func (p *PCIDriver) Name() string { return "e1000" }

// Rules lists the vendor/device pairs this driver claims; baseclass 0x02
// is "network controller" (spec.md §3 "Driver match rule").
func (p *PCIDriver) Rules() []pci.MatchRule {
	return []pci.MatchRule{
		{Vendor: vendorIntel, DeviceID: deviceID82540EM, BaseClass: 0x02, Subclass: pci.Wildcard, ProgIF: pci.Wildcard},
		{Vendor: vendorIntel, DeviceID: deviceID82545EM, BaseClass: 0x02, Subclass: pci.Wildcard, ProgIF: pci.Wildcard},
		{Vendor: vendorIntel, DeviceID: deviceID82574L, BaseClass: 0x02, Subclass: pci.Wildcard, ProgIF: pci.Wildcard},
	}
}

// Probe reports whether BAR0 decodes to a usable (non-zero-size) MMIO
// region — a cheap feasibility check before committing any resources
// (spec.md §4.6 "probe callback").
func (p *PCIDriver) Probe(cs pci.ConfigSpace, f pci.Function) bool {
	bar := pci.ProbeBAR(cs, f, 0)
	return !bar.IsIO && bar.Size > 0
}

// Load enables bus mastering and memory space, the step spec.md §4.7
// step 3 runs before the reset sequence.
func (p *PCIDriver) Load(cs pci.ConfigSpace, f pci.Function) error {
	pci.EnableBusMaster(cs, f)
	return nil
}

// Attach maps BAR0 as MMIO, allocates the RX/TX descriptor pages and
// per-slot buffers, and runs the package's Attach sequence, returning a
// new heap-allocated *device.Device wrapping the resulting *e1000.Device
// (spec.md §4.6 "the attach callback MUST return a new heap-allocated
// device object ... or NULL on failure").
func (p *PCIDriver) Attach(cs pci.ConfigSpace, f pci.Function) *device.Device {
	bar := pci.ProbeBAR(cs, f, 0)
	if bar.IsIO || bar.Size == 0 {
		p.log.Warnf("e1000: BAR0 is not a usable MMIO region for %02x:%02x.%x", f.Bus, f.Device, f.Func)
		return nil
	}

	mmio, err := platform.MapIO(uintptr(bar.Base), int(bar.Size))
	if err != nil {
		p.log.Errorf("e1000: MapIO failed: %v", err)
		return nil
	}

	rxDescPage, rxBuffers, err := allocRing(RXDescCount)
	if err != nil {
		p.log.Errorf("e1000: RX ring allocation failed: %v", err)
		return nil
	}
	txDescPage, txBuffers, err := allocRing(TXDescCount)
	if err != nil {
		p.log.Errorf("e1000: TX ring allocation failed: %v", err)
		return nil
	}

	nic, err := Attach(NewMMIORegs(mmio), rxDescPage, txDescPage, rxBuffers, txBuffers)
	if err != nil {
		p.log.Errorf("e1000: attach sequence failed: %v", err)
		return nil
	}

	return device.New(nic, f)
}

// allocRing allocates one descriptor page (count*16 bytes, rounded up by
// platform.AllocPage to a full page) and one buffer page per descriptor
// slot, mirroring spec.md §4.7 step 6/7's "allocate one physical page for
// the descriptor ring ... allocate one page per descriptor for buffers."
func allocRing(count int) (descPage []byte, buffers [][]byte, err error) {
	descPage, err = platform.AllocPage()
	if err != nil {
		return nil, nil, err
	}
	buffers = make([][]byte, count)
	for i := range buffers {
		page, err := platform.AllocPage()
		if err != nil {
			return nil, nil, err
		}
		buffers[i] = page[:BufferSize]
	}
	return descPage, buffers, nil
}
