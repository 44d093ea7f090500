package ipv4

import (
	"sync"

	"github.com/exos-labs/netkernel/internal/checksum"
	"github.com/exos-labs/netkernel/internal/kdefaults"
	"github.com/exos-labs/netkernel/internal/kerrors"
	"github.com/exos-labs/netkernel/internal/logging"
	"github.com/exos-labs/netkernel/internal/notify"
	"github.com/exos-labs/netkernel/internal/telemetry"
	"github.com/exos-labs/netkernel/netstack/arp"
)

// Handler is a registered protocol handler, invoked on ingress dispatch
// with the decoded payload, its length, and the packet's src/dst.
type Handler func(payload []byte, length int, src, dst uint32)

// Sender is the minimal outbound path an IPv4 context needs.
type Sender interface {
	SendFrame(dstMAC [6]byte, ethertype uint16, payload []byte) error
	LocalMAC() [6]byte
}

// pendingSlot is one entry of the bounded ARP-pending queue (spec.md §3
// "IPv4 context").
type pendingSlot struct {
	dst      uint32
	nextHop  uint32
	protocol uint8
	payload  []byte
	length   int
	valid    bool
}

// Context is a per-device IPv4 context: local addressing, the protocol
// dispatch table, and the ARP-pending queue (spec.md §3, §4.10).
type Context struct {
	mu sync.Mutex

	localIP uint32
	netmask uint32
	gateway uint32

	sender Sender
	arp    *arp.Cache

	handlers [256]Handler

	pending        [kdefaults.IPv4PendingQueue]pendingSlot
	arpCallbackSet bool

	nextID uint16

	notify *notify.Context
	log    *logging.Logger

	telemetry *telemetry.Registry
	device    string
}

// SetTelemetry attaches a metrics registry to the context. device labels
// the IPv4PendingQueueDepth gauge from this point on. A nil reg disables
// recording.
func (c *Context) SetTelemetry(reg *telemetry.Registry, device string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telemetry = reg
	c.device = device
}

// reportPendingDepthLocked publishes the current pending-queue occupancy.
// Must be called with c.mu held.
func (c *Context) reportPendingDepthLocked() {
	if c.telemetry == nil {
		return
	}
	depth := 0
	for i := range c.pending {
		if c.pending[i].valid {
			depth++
		}
	}
	c.telemetry.IPv4PendingQueueDepth.WithLabelValues(c.device).Set(float64(depth))
}

// New creates an IPv4 context bound to sender and arpCache, for the given
// local address/netmask/gateway (all host-order uint32, network-order
// semantics preserved by callers that build them from dotted quads).
func New(sender Sender, arpCache *arp.Cache, localIP, netmask, gateway uint32) *Context {
	return &Context{
		localIP: localIP,
		netmask: netmask,
		gateway: gateway,
		sender:  sender,
		arp:     arpCache,
		nextID:  1,
		notify:  notify.NewContext(),
		log:     logging.ForSubsystem("ipv4"),
	}
}

// RegisterHandler installs fn for protocol byte proto. Registration is
// idempotent: a later call with the same proto simply replaces fn
// (spec.md §3 "registration is idempotent").
func (c *Context) RegisterHandler(proto uint8, fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[proto] = fn
}

// SendOutcome is the result of Send.
type SendOutcome int

const (
	// OutcomeImmediate: the frame was submitted to the driver.
	OutcomeImmediate SendOutcome = iota
	// OutcomePending: queued behind in-flight ARP resolution.
	OutcomePending
	// OutcomeFailed: next-hop is unreachable (ARP failure) or the queue
	// is full.
	OutcomeFailed
)

// Send implements the egress path from spec.md §4.10.
func (c *Context) Send(dst uint32, proto uint8, payload []byte) SendOutcome {
	nextHop := dst
	if (dst&c.netmask) != (c.localIP&c.netmask) && c.gateway != 0 {
		nextHop = c.gateway
	}

	mac, outcome := c.arp.Resolve(nextHop)
	switch outcome {
	case arp.OutcomeFailed:
		return OutcomeFailed
	case arp.OutcomePending:
		if !c.enqueuePending(dst, nextHop, proto, payload) {
			return OutcomeFailed
		}
		c.registerArpCallbackOnce()
		return OutcomePending
	}

	if err := c.transmit(mac, dst, proto, payload); err != nil {
		c.log.Warn("ipv4 send failed", "err", err)
		return OutcomeFailed
	}
	return OutcomeImmediate
}

func (c *Context) transmit(dstMAC [6]byte, dst uint32, proto uint8, payload []byte) error {
	if len(payload) > MaxPayload {
		return kerrors.New("ipv4.Send", kerrors.BadParameter, "payload exceeds maximum")
	}

	c.mu.Lock()
	id := c.nextID
	if c.nextID == 0xFFFF {
		c.nextID = 1
	} else {
		c.nextID++
	}
	c.mu.Unlock()

	header := buildHeader(id, proto, c.localIP, dst, len(payload))
	frame := make([]byte, 0, len(header)+len(payload))
	frame = append(frame, header...)
	frame = append(frame, payload...)

	if err := c.sender.SendFrame(dstMAC, EtherType, frame); err != nil {
		return err
	}
	c.notify.Send(notify.Ipv4Sent{Dst: dst, Protocol: proto, Length: len(payload)})
	return nil
}

// enqueuePending copies payload into a free slot of the bounded pending
// queue, returning false if the queue is full.
func (c *Context) enqueuePending(dst, nextHop uint32, proto uint8, payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.pending {
		if !c.pending[i].valid {
			c.pending[i] = pendingSlot{
				dst:      dst,
				nextHop:  nextHop,
				protocol: proto,
				payload:  append([]byte{}, payload...),
				length:   len(payload),
				valid:    true,
			}
			c.reportPendingDepthLocked()
			return true
		}
	}
	return false
}

func (c *Context) registerArpCallbackOnce() {
	c.mu.Lock()
	already := c.arpCallbackSet
	c.arpCallbackSet = true
	c.mu.Unlock()

	if already {
		return
	}
	c.arp.Notify().Register(notify.ArpResolved{}, func(e notify.Event) {
		resolved := e.(notify.ArpResolved)
		c.flushPending(resolved.IP)
	})
}

// flushPending implements spec.md §4.10 "Pending-packet flush": for every
// slot whose next_hop matches ip, re-verify ARP (it may have expired
// since queueing) and send directly if still resolved, freeing the slot
// either way.
func (c *Context) flushPending(ip uint32) {
	c.mu.Lock()
	var toSend []pendingSlot
	for i := range c.pending {
		if c.pending[i].valid && c.pending[i].nextHop == ip {
			toSend = append(toSend, c.pending[i])
			c.pending[i] = pendingSlot{}
		}
	}
	c.reportPendingDepthLocked()
	c.mu.Unlock()

	for _, slot := range toSend {
		mac, outcome := c.arp.Resolve(slot.nextHop)
		if outcome != arp.OutcomeResolved {
			continue
		}
		if err := c.transmit(mac, slot.dst, slot.protocol, slot.payload); err != nil {
			c.log.Warn("pending flush send failed", "err", err)
		}
	}
}

// Ingress implements spec.md §4.10 "Ingress": validates the header, then
// dispatches by protocol byte to the registered handler.
func (c *Context) Ingress(frame []byte) {
	if len(frame) < HeaderLength {
		return
	}
	h := decodeHeader(frame)
	if h.Version != version4 {
		return
	}
	if h.IHL < ihl5 || int(h.IHL)*4 > int(h.TotalLength) {
		return
	}
	if int(h.TotalLength) > len(frame) {
		return
	}
	if checksum.Sum(frame[:int(h.IHL)*4]) != 0 {
		return
	}
	if h.TTL <= 1 {
		return
	}
	if h.fragmented() {
		return
	}
	if h.Dst != c.localIP && h.Dst != kdefaults.IPv4BroadcastAddr {
		return
	}

	c.mu.Lock()
	handler := c.handlers[h.Protocol]
	c.mu.Unlock()
	if handler == nil {
		return
	}

	headerLen := int(h.IHL) * 4
	payload := frame[headerLen:h.TotalLength]
	handler(payload, len(payload), h.Src, h.Dst)
}

// LocalIP returns the context's local IPv4 address.
func (c *Context) LocalIP() uint32 { return c.localIP }
