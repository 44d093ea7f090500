// Package device implements the generic Device type every bus-attached
// driver instance embeds (spec.md §3): a mutex, a typed context map
// keyed by tag, a driver back-pointer, and a bus-specific info record.
// The mutex-guarded context map mirrors the teacher's pattern of gating
// any shared mutable state behind one lock per owning object (see
// go-ublk's per-queue runner state), generalized from "per I/O queue" to
// "per attached device."
package device

import (
	"sync"

	"github.com/rs/xid"
)

// ContextTag identifies a protocol context stored in a Device's context
// map (e.g. the ARP cache, the IPv4 context). Using a typed tag instead
// of a raw integer keeps call sites self-documenting the way spec.md's
// "type tag" keying is meant to.
type ContextTag string

const (
	TagARP  ContextTag = "arp"
	TagIPv4 ContextTag = "ipv4"
	TagTCP  ContextTag = "tcp"
)

// Driver is the minimal contract a bus manager needs to hold a concrete
// hardware driver generically: a name. Concrete drivers (e1000, ata)
// implement richer interfaces; bus code only needs this much to hold a
// dispatch pointer generically.
type Driver interface {
	Name() string
}

// Device is the generic per-attached-device record. BusInfo holds a
// bus-specific snapshot (e.g. pci.Function) as an opaque value; callers
// type-assert it back to the concrete bus type.
type Device struct {
	mu       sync.Mutex
	ID       xid.ID
	Driver   Driver
	BusInfo  any
	contexts map[ContextTag]any
}

// New creates a Device bound to driver with the given bus-specific info
// record, per the bus enumerator's attach step.
func New(driver Driver, busInfo any) *Device {
	return &Device{
		ID:       xid.New(),
		Driver:   driver,
		BusInfo:  busInfo,
		contexts: make(map[ContextTag]any),
	}
}

// WithLock runs fn with the device mutex held, the discipline spec.md §5
// requires around any mutation of the context map or driver dispatch.
func (d *Device) WithLock(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn()
}

// GetContext returns the context registered under tag, under the device
// mutex, mirroring spec.md's GetDeviceContext(device, tag) contract: the
// returned value is then used without the mutex for its own internal
// state, since protocol contexts are not shared across devices.
func (d *Device) GetContext(tag ContextTag) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, ok := d.contexts[tag]
	return ctx, ok
}

// SetContext registers ctx under tag, under the device mutex.
func (d *Device) SetContext(tag ContextTag, ctx any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contexts[tag] = ctx
}

// GetOrCreateContext returns the context already registered under tag,
// or calls factory to create one, register it, and return it if none
// exists yet — the idiomatic Go rendering of spec.md §4.6's
// "registration is idempotent" for a protocol context acquired on demand
// (spec.md §2 "each bound device acquires ARP/IPv4/TCP contexts on
// demand via a per-device context map"). factory runs under the device
// mutex, so it must not itself call back into this Device.
func (d *Device) GetOrCreateContext(tag ContextTag, factory func() any) any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ctx, ok := d.contexts[tag]; ok {
		return ctx
	}
	ctx := factory()
	d.contexts[tag] = ctx
	return ctx
}
