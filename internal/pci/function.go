package pci

// Function is the snapshot record the scanner populates for each present
// PCI function: IDs, class, BARs, IRQ (spec.md §3 "PCI function").
type Function struct {
	Bus, Device, Func uint8

	VendorID, DeviceID uint16
	BaseClass, Subclass, ProgIF, RevisionID uint8
	HeaderType uint8

	BAR [6]uint32 // raw register values, type bits intact

	IRQLine, IRQPin uint8
}

// Address returns the config-space address for offset within this
// function's header.
func (f Function) Address(offset uint8) Address {
	return Address{Bus: f.Bus, Device: f.Device, Function: f.Func, Offset: offset}
}

// readFunction populates a Function snapshot by reading its config
// header off cs.
func readFunction(cs ConfigSpace, bus, dev, fn uint8) Function {
	f := Function{Bus: bus, Device: dev, Func: fn}
	f.VendorID = ReadWord(cs, Address{bus, dev, fn, OffsetVendorID})
	f.DeviceID = ReadWord(cs, Address{bus, dev, fn, OffsetDeviceID})
	f.RevisionID = ReadByte(cs, Address{bus, dev, fn, OffsetRevisionID})
	f.ProgIF = ReadByte(cs, Address{bus, dev, fn, OffsetProgIF})
	f.Subclass = ReadByte(cs, Address{bus, dev, fn, OffsetSubclass})
	f.BaseClass = ReadByte(cs, Address{bus, dev, fn, OffsetBaseClass})
	f.HeaderType = ReadByte(cs, Address{bus, dev, fn, OffsetHeaderType})
	for i := 0; i < 6; i++ {
		f.BAR[i] = cs.ReadDword(Address{bus, dev, fn, uint8(OffsetBAR0 + i*4)})
	}
	irq := cs.ReadDword(Address{bus, dev, fn, OffsetInterrupt})
	f.IRQLine = uint8(irq)
	f.IRQPin = uint8(irq >> 8)
	return f
}

// BARInfo is a decoded base address register: base address only (type
// bits masked, spec.md §3 invariant) plus its probed size and whether it
// is an I/O BAR.
type BARInfo struct {
	Base uint64
	Size uint64
	IsIO bool
	Is64 bool
}

// ProbeBAR decodes and size-probes BAR index i (0..5) of f, using the
// standard write-ones-read-back technique (spec.md §4.6): write
// 0xFFFFFFFF, read back the mask, restore the original value, compute
// size = ~(mask & type_mask) + 1. 64-bit memory BARs also probe the high
// dword; I/O BARs use the I/O mask (0xFFFFFFFC).
func ProbeBAR(cs ConfigSpace, f Function, index int) BARInfo {
	addr := Address{f.Bus, f.Device, f.Func, uint8(OffsetBAR0 + index*4)}
	original := cs.ReadDword(addr)

	isIO := original&barIOSpaceBit != 0
	if isIO {
		cs.WriteDword(addr, 0xFFFFFFFF)
		mask := cs.ReadDword(addr)
		cs.WriteDword(addr, original)
		size := uint64(^(mask & ioBARMask) + 1)
		return BARInfo{Base: uint64(original &^ barTypeMaskIO), Size: size, IsIO: true}
	}

	is64 := (original>>1)&0x3 == 0x2
	cs.WriteDword(addr, 0xFFFFFFFF)
	maskLow := cs.ReadDword(addr)
	cs.WriteDword(addr, original)

	base := uint64(original &^ barTypeMaskMemory)
	sizeLow := uint64(^(maskLow & 0xFFFFFFF0) + 1)

	if !is64 {
		return BARInfo{Base: base, Size: sizeLow & 0xFFFFFFFF}
	}

	highAddr := Address{f.Bus, f.Device, f.Func, uint8(OffsetBAR0 + (index+1)*4)}
	originalHigh := cs.ReadDword(highAddr)
	cs.WriteDword(highAddr, 0xFFFFFFFF)
	maskHigh := cs.ReadDword(highAddr)
	cs.WriteDword(highAddr, originalHigh)

	base |= uint64(originalHigh) << 32
	mask := (uint64(maskHigh) << 32) | uint64(maskLow&0xFFFFFFF0)
	size := ^mask + 1
	return BARInfo{Base: base, Size: size, Is64: true}
}

// EnableBusMaster sets the Bus-Master and Memory-Space bits in COMMAND
// and returns the previous value.
func EnableBusMaster(cs ConfigSpace, f Function) uint16 {
	addr := Address{f.Bus, f.Device, f.Func, OffsetCommand}
	previous := ReadWord(cs, addr)
	WriteWord(cs, addr, previous|CommandBusMaster|CommandMemorySpace)
	return previous
}

// Capabilities walks the function's capability list when STATUS bit 4 is
// set, starting at the CAP-PTR byte and following `next` pointers with a
// bounded iteration count (spec.md §4.6).
func Capabilities(cs ConfigSpace, f Function) []uint8 {
	status := ReadWord(cs, f.Address(OffsetStatus))
	if status&StatusCapabilitiesList == 0 {
		return nil
	}

	var caps []uint8
	ptr := ReadByte(cs, f.Address(OffsetCapPointer)) &^ 0x3
	for i := 0; ptr != 0 && i < capTraversalBound; i++ {
		id := ReadByte(cs, f.Address(ptr))
		caps = append(caps, id)
		ptr = ReadByte(cs, f.Address(ptr+1)) &^ 0x3
	}
	return caps
}
