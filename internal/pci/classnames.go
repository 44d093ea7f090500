package pci

// baseClassNames is the human-readable PCI base-class table, carried
// from original_source/kernel/source/drivers/bus/PCI.c's class lookup
// used when logging each enumerated function. Only the bases this kernel
// cares about (and a handful of common others) are named; anything else
// falls back to "unknown".
var baseClassNames = map[uint8]string{
	0x00: "unclassified",
	0x01: "mass storage controller",
	0x02: "network controller",
	0x03: "display controller",
	0x04: "multimedia controller",
	0x05: "memory controller",
	0x06: "bridge",
	0x07: "simple communication controller",
	0x08: "base system peripheral",
	0x09: "input device controller",
	0x0C: "serial bus controller",
}

// ClassName returns the human-readable base-class name for f, or
// "unknown" if this table doesn't recognize it.
func ClassName(f Function) string {
	if name, ok := baseClassNames[f.BaseClass]; ok {
		return name
	}
	return "unknown"
}
