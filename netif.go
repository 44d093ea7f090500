// Package netkernel is the module root: it ties the PCI bus manager, the
// E1000 driver and the ARP/IPv4/TCP protocol contexts together the way
// spec.md §2's "Control flow" describes ("PCI scan at boot binds the
// E1000 driver to matching devices; each bound device acquires ARP/IPv4/
// TCP contexts on demand via a per-device context map"). Individual
// packages are independently testable against fakes; NetworkInterface is
// the one piece of glue that makes a *device.Device with an attached
// e1000.Device into something arp.Cache and ipv4.Context can actually
// send frames through, and that demultiplexes inbound frames back to
// them — the part of the teacher's "Backend" plumbing (backend.go) that
// has no single-package home of its own.
package netkernel

import (
	"encoding/binary"

	"github.com/exos-labs/netkernel/drivers/e1000"
	"github.com/exos-labs/netkernel/internal/device"
	"github.com/exos-labs/netkernel/internal/kerrors"
	"github.com/exos-labs/netkernel/internal/logging"
	"github.com/exos-labs/netkernel/internal/notify"
	"github.com/exos-labs/netkernel/netstack/arp"
	"github.com/exos-labs/netkernel/netstack/ipv4"
)

// ethHeaderLen is the fixed Ethernet II header size: 6-byte dst, 6-byte
// src, 2-byte EtherType (spec.md §6).
const ethHeaderLen = 14

// NetworkInterface binds one e1000.Device to the protocol stack: it
// implements both arp.Sender and ipv4.Sender (their method sets are
// identical) by prepending the Ethernet header the E1000 driver's Send
// doesn't build itself, and it demultiplexes the driver's RX callback by
// EtherType into the ARP cache or IPv4 context's Ingress methods (spec.md
// §2 "Data flow (RX)").
type NetworkInterface struct {
	nic *e1000.Device
	log *logging.Logger

	arp  *arp.Cache
	ipv4 *ipv4.Context
}

// NewNetworkInterface wraps nic; callers then set the ARP cache and IPv4
// context with Bind once they are constructed (they need the interface
// itself as their Sender, so there's an unavoidable one-step wiring
// order: NewNetworkInterface, construct arp.New/ipv4.New with it, then
// Bind).
func NewNetworkInterface(nic *e1000.Device) *NetworkInterface {
	nif := &NetworkInterface{nic: nic, log: logging.ForSubsystem("netif")}
	nic.SetRXCallback(nif.demux)
	return nif
}

// Bind attaches the per-device protocol contexts this interface
// demultiplexes inbound frames to. Both may be nil if a caller only
// wants one of the two wired up.
func (n *NetworkInterface) Bind(arpCache *arp.Cache, ipv4Ctx *ipv4.Context) {
	n.arp = arpCache
	n.ipv4 = ipv4Ctx
}

// LocalMAC satisfies arp.Sender/ipv4.Sender.
func (n *NetworkInterface) LocalMAC() [6]byte {
	return n.nic.MAC()
}

// SendFrame satisfies arp.Sender/ipv4.Sender: it builds the 14-byte
// Ethernet II header (dst, src, ethertype) in front of payload and hands
// the result to the driver's Send.
func (n *NetworkInterface) SendFrame(dstMAC [6]byte, ethertype uint16, payload []byte) error {
	frame := make([]byte, ethHeaderLen+len(payload))
	copy(frame[0:6], dstMAC[:])
	src := n.nic.MAC()
	copy(frame[6:12], src[:])
	binary.BigEndian.PutUint16(frame[12:14], ethertype)
	copy(frame[ethHeaderLen:], payload)

	if err := n.nic.Send(frame); err != nil {
		return kerrors.Wrap("netif.SendFrame", err)
	}
	return nil
}

// demux is the E1000 RX callback: it reads the EtherType field and
// dispatches the payload (frame with the Ethernet header stripped) to
// the bound ARP cache or IPv4 context, per spec.md §2's "per-device
// Ethernet demultiplex" step. Unrecognized EtherTypes and frames too
// short to carry a header are silently dropped, matching this module's
// receive-only error policy (spec.md §7).
func (n *NetworkInterface) demux(frame []byte) {
	if len(frame) < ethHeaderLen {
		return
	}
	ethertype := binary.BigEndian.Uint16(frame[12:14])
	payload := frame[ethHeaderLen:]

	switch ethertype {
	case arp.EtherType:
		if n.arp != nil {
			n.arp.Ingress(payload)
		}
	case ipv4.EtherType:
		if n.ipv4 != nil {
			n.ipv4.Ingress(payload)
		}
	default:
		n.log.Debugf("netif: dropping frame with unhandled ethertype 0x%04x", ethertype)
	}
}

// AttachProtocolContexts idempotently creates (or returns the existing)
// ARP cache and IPv4 context for dev, storing them in its typed context
// map under device.TagARP/device.TagIPv4 (spec.md §3's "per-device
// context map keyed by a type tag", §4.6's "registration is idempotent").
// It also binds nif to them so inbound frames reach both.
func AttachProtocolContexts(dev *device.Device, nif *NetworkInterface, localIP, netmask, gateway uint32) (*arp.Cache, *ipv4.Context) {
	arpCache := dev.GetOrCreateContext(device.TagARP, func() any {
		return arp.New(nif, localIP, notify.NewContext())
	}).(*arp.Cache)

	ipv4Ctx := dev.GetOrCreateContext(device.TagIPv4, func() any {
		return ipv4.New(nif, arpCache, localIP, netmask, gateway)
	}).(*ipv4.Context)

	nif.Bind(arpCache, ipv4Ctx)
	return arpCache, ipv4Ctx
}
