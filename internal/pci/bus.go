package pci

import (
	"github.com/exos-labs/netkernel/internal/device"
	"github.com/exos-labs/netkernel/internal/kdefaults"
	"github.com/exos-labs/netkernel/internal/logging"
)

// wildcard marks a MatchRule field as "any value matches."
const wildcard = -1

// MatchRule is a driver match rule: vendor, device, baseclass, subclass,
// progIF, any of which may be wildcarded (spec.md §3 "Driver match
// rule"). Use Wildcard for unset fields.
type MatchRule struct {
	Vendor, DeviceID, BaseClass, Subclass, ProgIF int
}

// Wildcard is the sentinel for an unconstrained MatchRule field.
const Wildcard = wildcard

// Matches reports whether every non-wildcard field of r equals the
// corresponding field of f.
func (r MatchRule) Matches(f Function) bool {
	return matchField(r.Vendor, int(f.VendorID)) &&
		matchField(r.DeviceID, int(f.DeviceID)) &&
		matchField(r.BaseClass, int(f.BaseClass)) &&
		matchField(r.Subclass, int(f.Subclass)) &&
		matchField(r.ProgIF, int(f.ProgIF))
}

func matchField(rule, actual int) bool {
	return rule == wildcard || rule == actual
}

// Driver is a bus-attachable driver: a set of match rules, a probe
// (feasibility check without committing resources), a load step, and an
// attach step that must return a new heap-allocated device.Device (never
// the caller's temporary) or nil on failure — the scanner appends
// whatever Attach returns to the global device list and advances,
// binding only the first driver whose rule matches and whose probe
// succeeds (spec.md §4.6).
type Driver interface {
	Name() string
	Rules() []MatchRule
	Probe(cs ConfigSpace, f Function) bool
	Load(cs ConfigSpace, f Function) error
	Attach(cs ConfigSpace, f Function) *device.Device
}

// Bus owns the registered driver list and the global attached-device
// list the scanner appends to.
type Bus struct {
	drivers []Driver
	devices []*device.Device
	log     *logging.Logger
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{log: logging.ForSubsystem("pci")}
}

// Register adds d to the registered driver list, in priority order:
// enumeration tries drivers in registration order and binds the first
// match.
func (b *Bus) Register(d Driver) {
	b.drivers = append(b.drivers, d)
}

// Devices returns the global PCI device list accumulated by Scan.
func (b *Bus) Devices() []*device.Device {
	return b.devices
}

// Scan walks buses 0..255, devices 0..31, functions 0..7 on cs, skipping
// functions whose vendor ID reads 0xFFFF and skipping functions>0 unless
// the header-type byte at function 0 has the multi-function bit set
// (spec.md §4.6). For each present function it finds the first matching,
// probing driver and runs Load then Attach, appending whatever Attach
// returns to the device list.
func (b *Bus) Scan(cs ConfigSpace) {
	for bus := 0; bus < kdefaults.PCIMaxBus; bus++ {
		for dev := 0; dev < kdefaults.PCIMaxDevice; dev++ {
			b.scanDevice(cs, uint8(bus), uint8(dev))
		}
	}
}

func (b *Bus) scanDevice(cs ConfigSpace, bus, dev uint8) {
	var headerType uint8
	for fn := uint8(0); fn < kdefaults.PCIMaxFunction; fn++ {
		vendor := ReadWord(cs, Address{bus, dev, fn, OffsetVendorID})
		if vendor == kdefaults.PCIVendorNone {
			continue
		}

		f := readFunction(cs, bus, dev, fn)
		if fn == 0 {
			headerType = f.HeaderType
		} else if headerType&HeaderTypeMultiFunctionBit == 0 {
			continue
		}

		b.bindFirstMatch(cs, f)
	}
}

func (b *Bus) bindFirstMatch(cs ConfigSpace, f Function) {
	for _, drv := range b.drivers {
		if !ruleSetMatches(drv.Rules(), f) {
			continue
		}
		if !drv.Probe(cs, f) {
			continue
		}
		if err := drv.Load(cs, f); err != nil {
			b.log.Warnf("pci: driver %s load failed for %02x:%02x.%x: %v", drv.Name(), f.Bus, f.Device, f.Func, err)
			continue
		}
		dev := drv.Attach(cs, f)
		if dev == nil {
			b.log.Warnf("pci: driver %s attach failed for %02x:%02x.%x", drv.Name(), f.Bus, f.Device, f.Func)
			continue
		}
		b.log.Printf("pci: %02x:%02x.%x (%s) bound to %s", f.Bus, f.Device, f.Func, ClassName(f), drv.Name())
		b.devices = append(b.devices, dev)
		return // only the first successful driver binds
	}
}

// EnumerateByClass returns every attached device whose bus-info snapshot
// (pci.Function) has the given base class, preserving attach order.
// Carried from original_source/kernel/source/drivers/bus/PCI.c's
// query helpers alongside raw enumeration, so callers (e.g. a storage
// subsystem wanting "every mass-storage controller") don't need to
// re-walk the raw Function list themselves.
func (b *Bus) EnumerateByClass(baseClass uint8) []*device.Device {
	var out []*device.Device
	for _, d := range b.devices {
		if f, ok := d.BusInfo.(Function); ok && f.BaseClass == baseClass {
			out = append(out, d)
		}
	}
	return out
}

// FindDeviceCount reports how many attached devices have the given base
// class, the counting counterpart to EnumerateByClass.
func (b *Bus) FindDeviceCount(baseClass uint8) int {
	return len(b.EnumerateByClass(baseClass))
}

func ruleSetMatches(rules []MatchRule, f Function) bool {
	for _, r := range rules {
		if r.Matches(f) {
			return true
		}
	}
	return false
}
