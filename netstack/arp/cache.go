package arp

import (
	"sync"

	"github.com/exos-labs/netkernel/internal/adaptivedelay"
	"github.com/exos-labs/netkernel/internal/kdefaults"
	"github.com/exos-labs/netkernel/internal/logging"
	"github.com/exos-labs/netkernel/internal/notify"
	"github.com/exos-labs/netkernel/internal/telemetry"
)

const probeTTLTicks = 3

// Sender is the minimal outbound path a Cache needs: transmit an
// Ethernet frame to a destination MAC, and report the device's own
// MAC/IPv4 so the cache can build request/reply packets without a
// circular import on the e1000/ipv4 packages.
type Sender interface {
	SendFrame(dstMAC [6]byte, ethertype uint16, payload []byte) error
	LocalMAC() [6]byte
}

// entry is one cache slot (spec.md §3 "ARP cache entry").
type entry struct {
	ip       uint32
	mac      [6]byte
	ttl      int
	valid    bool
	probing  bool
	inUse    bool
	delay    *adaptivedelay.Delay
}

// Cache is a fixed-size per-device ARP cache with adaptive-backoff
// resolution (spec.md §4.9). It is mutex-guarded like internal/sectorcache
// but holds its entries in a fixed array of slots rather than a map, since
// the spec fixes the slot count and specifies an explicit eviction rule.
type Cache struct {
	mu       sync.Mutex
	slots    [kdefaults.ARPCacheSlots]entry
	sender   Sender
	localIP  uint32
	notify   *notify.Context
	log      *logging.Logger

	telemetry *telemetry.Registry
	device    string
}

// SetTelemetry attaches a metrics registry to the cache. device labels
// every ARPResolutions sample recorded from this point on. Passing a nil
// reg disables recording, the zero value's behavior, so callers that
// never call SetTelemetry pay nothing.
func (c *Cache) SetTelemetry(reg *telemetry.Registry, device string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telemetry = reg
	c.device = device
}

func (c *Cache) recordOutcomeLocked(outcome Outcome) {
	if c.telemetry == nil {
		return
	}
	var label string
	switch outcome {
	case OutcomeResolved:
		label = "resolved"
	case OutcomePending:
		label = "pending"
	default:
		label = "failed"
	}
	c.telemetry.ARPResolutions.WithLabelValues(c.device, label).Inc()
}

// Notify returns the cache's notification context, so owners (e.g. an
// IPv4 context) can subscribe to ARP_RESOLVED without the cache needing
// to know anything about its listeners.
func (c *Cache) Notify() *notify.Context {
	return c.notify
}

// Outcome is the result of Resolve.
type Outcome int

const (
	// OutcomeResolved: mac is valid and ready for immediate use.
	OutcomeResolved Outcome = iota
	// OutcomePending: resolution is in flight; caller should queue.
	OutcomePending
	// OutcomeFailed: ip is the unspecified address (0.0.0.0).
	OutcomeFailed
)

// New creates an empty cache for sender bound to localIP, using nc as its
// notification context (typically the device's shared notify.Context).
func New(sender Sender, localIP uint32, nc *notify.Context) *Cache {
	return &Cache{sender: sender, localIP: localIP, notify: nc, log: logging.ForSubsystem("arp")}
}

// Resolve implements the resolve(ip) contract from spec.md §4.9.
func (c *Cache) Resolve(ip uint32) ([6]byte, Outcome) {
	if ip == kdefaults.IPv4BroadcastAddr {
		return BroadcastMAC, OutcomeResolved
	}
	if ip == 0 {
		c.mu.Lock()
		c.recordOutcomeLocked(OutcomeFailed)
		c.mu.Unlock()
		return [6]byte{}, OutcomeFailed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	mac, outcome := c.resolveLocked(ip)
	c.recordOutcomeLocked(outcome)
	return mac, outcome
}

func (c *Cache) resolveLocked(ip uint32) ([6]byte, Outcome) {
	if i := c.findLocked(ip); i >= 0 && c.slots[i].valid {
		return c.slots[i].mac, OutcomeResolved
	}

	i := c.findLocked(ip)
	if i < 0 {
		i = c.victimLocked()
		c.slots[i] = entry{ip: ip, inUse: true, delay: adaptivedelay.New()}
	}
	slot := &c.slots[i]

	if !slot.probing {
		slot.probing = true
		slot.ttl = probeTTLTicks
		c.sendRequestLocked(ip)
		return [6]byte{}, OutcomePending
	}

	if !slot.delay.ShouldContinue() {
		slot.probing = false
		slot.inUse = false
		return [6]byte{}, OutcomePending
	}
	slot.delay.NextDelay()
	c.sendRequestLocked(ip)
	return [6]byte{}, OutcomePending
}

// Tick ages every valid entry's TTL and retransmits probes for in-flight
// ones (spec.md §4.9 "Tick").
func (c *Cache) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.slots {
		s := &c.slots[i]
		if !s.inUse {
			continue
		}
		if s.valid {
			s.ttl--
			if s.ttl <= 0 {
				s.valid = false
				s.inUse = false
				if s.delay != nil {
					s.delay.OnSuccess()
				}
			}
			continue
		}
		if s.probing {
			s.ttl--
			if s.ttl <= 0 {
				if !s.delay.ShouldContinue() {
					s.probing = false
					s.inUse = false
					continue
				}
				s.delay.NextDelay()
				s.ttl = probeTTLTicks
				c.sendRequestLocked(s.ip)
			}
		}
	}
}

// Ingress handles a decoded Ethernet frame carrying an ARP packet
// (spec.md §4.9 "Ingress").
func (c *Cache) Ingress(frame []byte) {
	pkt, ok := Decode(frame)
	if !ok {
		return
	}
	if pkt.Op != OpRequest && pkt.Op != OpReply {
		return
	}
	if !IsValidMAC(pkt.SenderMAC) {
		return
	}

	c.updateFromSender(pkt.SenderIP, pkt.SenderMAC)

	if pkt.Op == OpRequest && pkt.TargetIP == c.localIP {
		c.sendReply(pkt.SenderMAC, pkt.SenderIP)
	}
}

func (c *Cache) updateFromSender(ip uint32, mac [6]byte) {
	c.mu.Lock()

	i := c.findLocked(ip)
	if i < 0 {
		i = c.victimLocked()
		c.slots[i] = entry{ip: ip, inUse: true, delay: adaptivedelay.New()}
	}
	s := &c.slots[i]

	wasValid := s.valid
	wasProbing := s.probing
	oldMAC := s.mac
	changed := (wasValid && oldMAC != mac) || (wasProbing && !wasValid)

	s.mac = mac
	s.valid = true
	s.probing = false
	s.ttl = int(kdefaults.ARPProbeTimeout.Seconds())
	if s.delay != nil {
		s.delay.OnSuccess()
	}

	c.mu.Unlock()

	if changed {
		c.notify.Send(notifyArpResolved(ip, mac))
	}
}

func (c *Cache) sendReply(dstMAC [6]byte, dstIP uint32) {
	reply := Packet{
		Op:        OpReply,
		SenderMAC: c.sender.LocalMAC(),
		SenderIP:  c.localIP,
		TargetMAC: dstMAC,
		TargetIP:  dstIP,
	}
	if err := c.sender.SendFrame(dstMAC, EtherType, reply.Encode()); err != nil {
		c.log.Warn("arp reply send failed", "err", err)
	}
}

func (c *Cache) sendRequestLocked(ip uint32) {
	req := Packet{
		Op:        OpRequest,
		SenderMAC: c.sender.LocalMAC(),
		SenderIP:  c.localIP,
		TargetMAC: [6]byte{},
		TargetIP:  ip,
	}
	if err := c.sender.SendFrame(BroadcastMAC, EtherType, req.Encode()); err != nil {
		c.log.Warn("arp request send failed", "err", err)
	}
}

// findLocked returns the index of the slot for ip, or -1.
func (c *Cache) findLocked(ip uint32) int {
	for i := range c.slots {
		if c.slots[i].inUse && c.slots[i].ip == ip {
			return i
		}
	}
	return -1
}

// victimLocked picks an empty slot if one exists, else the slot with the
// smallest TTL (spec.md §4.9 "allocate a slot (empty slot, else
// smallest-TTL victim)").
func (c *Cache) victimLocked() int {
	for i := range c.slots {
		if !c.slots[i].inUse {
			return i
		}
	}
	victim := 0
	for i := 1; i < len(c.slots); i++ {
		if c.slots[i].ttl < c.slots[victim].ttl {
			victim = i
		}
	}
	return victim
}

func notifyArpResolved(ip uint32, mac [6]byte) notify.Event {
	return notify.ArpResolved{IP: ip, MAC: mac}
}
