package tcp

import (
	"sync"

	"github.com/exos-labs/netkernel/internal/kconfig"
	"github.com/exos-labs/netkernel/internal/kerrors"
	"github.com/exos-labs/netkernel/internal/notify"
	"github.com/exos-labs/netkernel/internal/telemetry"
)

// quintuple identifies a connection; device identity is implicit in the
// Manager instance (one Manager per device's IPv4 context, spec.md §3
// "TCP connection ... quintuple (device, local IP, local port, remote IP,
// remote port)").
type quintuple struct {
	localPort  uint16
	remoteIP   uint32
	remotePort uint16
}

// Manager owns the process-wide (per-device) connection list and
// listener table (spec.md §5 "Shared resources ... TCP connection list
// ... process-wide").
type Manager struct {
	mu        sync.Mutex
	transport Transport
	localIP   uint32

	sendBufCap     int
	recvBufCap     int
	ephemeralStart uint16

	conns     map[quintuple]*Connection
	listeners map[uint16]*listener

	telemetry *telemetry.Registry
}

// SetTelemetry attaches a metrics registry that every connection created
// from this point on (by Dial or by an inbound SYN) will report through.
// A nil reg disables recording. Connections already open when this is
// called are unaffected.
func (m *Manager) SetTelemetry(reg *telemetry.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.telemetry = reg
}

type listener struct {
	port    uint16
	backlog chan *Connection
}

// NewManager creates a connection manager bound to transport for
// outbound segments, owning connections sourced from localIP, using the
// built-in default buffer sizes and ephemeral port range.
func NewManager(transport Transport, localIP uint32) *Manager {
	return NewManagerWithConfig(transport, localIP, kconfig.Default())
}

// NewManagerWithConfig is NewManager with buffer sizes and the ephemeral
// port range start taken from cfg (internal/kconfig, spec.md §6
// "Configuration knobs"), rather than the built-in defaults.
func NewManagerWithConfig(transport Transport, localIP uint32, cfg kconfig.Config) *Manager {
	return &Manager{
		transport:      transport,
		localIP:        localIP,
		sendBufCap:     cfg.TCPSendBuffer,
		recvBufCap:     cfg.TCPRecvBuffer,
		ephemeralStart: cfg.TCPEphemeralPortStart,
		conns:          make(map[quintuple]*Connection),
		listeners:      make(map[uint16]*listener),
	}
}

// Listen opens a passive listener on port with the given backlog depth.
func (m *Manager) Listen(port uint16, backlog int) *Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := &listener{port: port, backlog: make(chan *Connection, backlog)}
	m.listeners[port] = l
	return &Listener{manager: m, l: l}
}

// Dial allocates an ephemeral local port and actively opens a connection
// to remoteIP:remotePort.
func (m *Manager) Dial(remoteIP uint32, remotePort uint16) *Connection {
	m.mu.Lock()
	port := allocateEphemeralPort(m.localIP, m.ephemeralStart, func(p uint16) bool {
		_, ok := m.conns[quintuple{localPort: p, remoteIP: remoteIP, remotePort: remotePort}]
		return ok
	})
	conn := newConnection(m.transport, m.localIP, port, remoteIP, remotePort, m.sendBufCap, m.recvBufCap)
	conn.SetTelemetry(m.telemetry)
	m.conns[quintuple{localPort: port, remoteIP: remoteIP, remotePort: remotePort}] = conn
	m.mu.Unlock()

	conn.Connect()
	return conn
}

// HandleIPv4Payload is the IPv4 protocol-handler entry point: it
// verifies the checksum (spec.md §7 "ChecksumMismatch ... silently drops
// the offending packet"), decodes the segment, and dispatches it.
func (m *Manager) HandleIPv4Payload(payload []byte, length int, src, dst uint32) {
	if !verifyChecksum(src, dst, payload[:length]) {
		return
	}
	seg, ok := decodeSegment(payload[:length])
	if !ok {
		return
	}
	m.Dispatch(src, seg)
}

// Dispatch routes an inbound TCP segment to its connection, creating a
// new passive connection from a listener's backlog on a fresh SYN.
func (m *Manager) Dispatch(srcIP uint32, seg Segment) {
	key := quintuple{localPort: seg.DstPort, remoteIP: srcIP, remotePort: seg.SrcPort}

	m.mu.Lock()
	conn, ok := m.conns[key]
	if !ok {
		l, hasListener := m.listeners[seg.DstPort]
		if !hasListener || seg.Flags&FlagSYN == 0 {
			m.mu.Unlock()
			return
		}
		conn = newConnection(m.transport, m.localIP, seg.DstPort, srcIP, seg.SrcPort, m.sendBufCap, m.recvBufCap)
		conn.SetTelemetry(m.telemetry)
		conn.Listen()
		m.conns[key] = conn
		m.subscribeAcceptLocked(conn, l)
	}
	m.mu.Unlock()

	conn.HandleSegment(seg)
}

func (m *Manager) subscribeAcceptLocked(conn *Connection, l *listener) {
	conn.Notify().Register(notify.TcpConnected{}, func(notify.Event) {
		select {
		case l.backlog <- conn:
		default:
		}
	})
}

// Remove drops a connection from the table once it reaches CLOSED; the
// caller is responsible for calling this after observing State() ==
// StateClosed (connections are not auto-reaped to keep this package free
// of background goroutines).
func (m *Manager) Remove(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, quintuple{localPort: conn.localPort, remoteIP: conn.remoteIP, remotePort: conn.remotePort})
}

// Tick drives every connection's retransmission/TIME_WAIT timer.
func (m *Manager) Tick() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Tick()
	}
}

// Listener is a passive TCP listener bound to one port.
type Listener struct {
	manager *Manager
	l       *listener
}

// Accept blocks until an incoming connection reaches ESTABLISHED, or
// returns an error once the listener has been closed.
func (lst *Listener) Accept() (*Connection, error) {
	conn, ok := <-lst.l.backlog
	if !ok {
		return nil, kerrors.New("tcp.Accept", kerrors.Unexpected, "listener closed")
	}
	return conn, nil
}

// Close stops the listener; in-flight SYN_RECEIVED connections are left
// to their own state machine.
func (lst *Listener) Close() {
	lst.manager.mu.Lock()
	defer lst.manager.mu.Unlock()
	delete(lst.manager.listeners, lst.l.port)
	close(lst.l.backlog)
}
