package tcp

import (
	"sync"
	"time"

	"github.com/exos-labs/netkernel/internal/hysteresis"
	"github.com/exos-labs/netkernel/internal/kdefaults"
	"github.com/exos-labs/netkernel/internal/logging"
	"github.com/exos-labs/netkernel/internal/notify"
	"github.com/exos-labs/netkernel/internal/telemetry"
	"github.com/exos-labs/netkernel/netstack/ipv4"
	"github.com/rs/xid"
)

const (
	minRTO = 500 * time.Millisecond
	maxRTO = kdefaults.TCPMaxRTO

	initialSendISN = 1000
	listenISN      = 2000

	maxWindow = 0xFFFF
)

// Transport is the outbound path a connection sends segments through.
type Transport interface {
	Send(dst uint32, proto uint8, payload []byte) ipv4.SendOutcome
}

// retransmitRecord tracks the single in-flight tracked segment per
// connection (spec.md §4.11 "Retransmission": one record, not a queue —
// this stack is stop-and-wait per connection, matching the original).
type retransmitRecord struct {
	active     bool
	payload    []byte
	flags      uint8
	seqStart   uint32
	seqEnd     uint32
	sentAt     time.Time
	deadline   time.Time
	retries    int
	wasRetried bool
}

// Connection is one TCP connection's full state (spec.md §3 "TCP
// connection").
type Connection struct {
	mu sync.Mutex

	ID xid.ID

	transport Transport
	localIP   uint32
	localPort uint16
	remoteIP  uint32
	remotePort uint16

	state State

	sendNext    uint32
	sendUnacked uint32
	recvNext    uint32

	sendBuf *ringBuffer
	recvBuf *ringBuffer

	cwnd            uint32
	ssthresh        uint32
	fastRecovery    bool
	fastRecoverySeq uint32
	dupAckCount     int
	lastAck         uint32
	lastAckValid    bool

	retransmit retransmitRecord
	rto        time.Duration

	hyst *hysteresis.Tracker

	notify           *notify.Context
	timeWaitDeadline time.Time

	mss uint16

	log *logging.Logger

	telemetry *telemetry.Registry
}

// SetTelemetry attaches a metrics registry to the connection. A nil reg
// disables recording. The Manager calls this right after construction so
// newConnection's signature stays untouched for existing callers.
func (c *Connection) SetTelemetry(reg *telemetry.Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.telemetry = reg
	if c.telemetry != nil {
		c.telemetry.TCPConnections.WithLabelValues(c.state.String()).Inc()
	}
}

// reportStateChangeLocked moves the TCPConnections gauge from from to
// c.state. Must be called with c.mu held, after c.state has been updated.
func (c *Connection) reportStateChangeLocked(from State) {
	if c.telemetry == nil || from == c.state {
		return
	}
	c.telemetry.TCPConnections.WithLabelValues(from.String()).Dec()
	c.telemetry.TCPConnections.WithLabelValues(c.state.String()).Inc()
}

// setStateLocked transitions the connection to s, keeping the
// TCPConnections gauge in sync. Must be called with c.mu held.
func (c *Connection) setStateLocked(s State) {
	from := c.state
	c.state = s
	c.reportStateChangeLocked(from)
}

// newConnection allocates a connection in CLOSED state, with send/receive
// buffer capacities as configured by the owning Manager (internal/kconfig,
// spec.md §6 "Configuration knobs").
func newConnection(transport Transport, localIP uint32, localPort uint16, remoteIP uint32, remotePort uint16, sendCap, recvCap int) *Connection {
	return &Connection{
		ID:         xid.New(),
		transport:  transport,
		localIP:    localIP,
		localPort:  localPort,
		remoteIP:   remoteIP,
		remotePort: remotePort,
		state:      StateClosed,
		sendBuf:    newRingBuffer(sendCap),
		recvBuf:    newRingBuffer(recvCap),
		cwnd:       kdefaults.TCPDefaultMSS,
		ssthresh:   8 * kdefaults.TCPDefaultMSS,
		rto:        kdefaults.TCPInitialRTO,
		hyst:       hysteresis.New(int64(recvCap)/3, int64(2*recvCap)/3),
		notify: notify.NewContext(),
		mss:    kdefaults.TCPDefaultMSS,
		log:    logging.ForSubsystem("tcp"),
	}
}

// State returns the connection's current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Notify returns the connection's notification context.
func (c *Connection) Notify() *notify.Context {
	return c.notify
}

// advertisedWindow computes min(0xFFFF, rx_capacity - rx_used), per
// spec.md §4.11 "Receive window".
func (c *Connection) advertisedWindowLocked() uint16 {
	free := c.recvBuf.Free()
	if free > maxWindow {
		return maxWindow
	}
	return uint16(free)
}

func (c *Connection) inFlightLocked() uint32 {
	return c.sendNext - c.sendUnacked
}

func (c *Connection) sendSegmentLocked(flags uint8, payload []byte, options []byte) {
	window := c.advertisedWindowLocked()
	frame := buildSegment(c.localIP, c.remoteIP, c.localPort, c.remotePort, c.sendNext, c.recvNext, flags, window, payload, options)
	c.transport.Send(c.remoteIP, protocolTCP, frame)
}

// armRetransmitLocked records a tracked segment (non-empty payload or
// SYN/FIN) per spec.md §4.11 "Retransmission".
func (c *Connection) armRetransmitLocked(flags uint8, payload []byte, seqStart uint32) {
	if len(payload) == 0 && flags&(FlagSYN|FlagFIN) == 0 {
		return
	}
	now := time.Now()
	c.retransmit = retransmitRecord{
		active:   true,
		payload:  append([]byte{}, payload...),
		flags:    flags,
		seqStart: seqStart,
		seqEnd:   seqStart + SegmentLength(flags, len(payload)),
		sentAt:   now,
		deadline: now.Add(c.rto),
	}
}
