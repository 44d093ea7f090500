package tcp

import (
	"testing"
	"time"

	"github.com/exos-labs/netkernel/internal/kdefaults"
	"github.com/exos-labs/netkernel/internal/telemetry"
	"github.com/exos-labs/netkernel/netstack/ipv4"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentSegment struct {
	dst     uint32
	proto   uint8
	segment Segment
}

type fakeTransport struct {
	sent []sentSegment
}

func (f *fakeTransport) Send(dst uint32, proto uint8, payload []byte) ipv4.SendOutcome {
	seg, ok := decodeSegment(payload)
	if ok {
		f.sent = append(f.sent, sentSegment{dst: dst, proto: proto, segment: seg})
	}
	return ipv4.OutcomeImmediate
}

func (f *fakeTransport) last() Segment {
	return f.sent[len(f.sent)-1].segment
}

const (
	testLocalIP  = 0x0A000001
	testRemoteIP = 0x0A000002
)

func newTestConnection() (*Connection, *fakeTransport) {
	transport := &fakeTransport{}
	conn := newConnection(transport, testLocalIP, 12345, testRemoteIP, 80, kdefaults.TCPDefaultSendBuffer, kdefaults.TCPDefaultRecvBuffer)
	return conn, transport
}

func TestConnectSendsSYNWithISN1000(t *testing.T) {
	conn, transport := newTestConnection()
	conn.Connect()

	assert.Equal(t, StateSynSent, conn.State())
	require.Len(t, transport.sent, 1)
	syn := transport.last()
	assert.Equal(t, FlagSYN, syn.Flags)
	assert.Equal(t, uint32(1000), syn.Seq)
	assert.True(t, syn.HasMSS)
}

func TestActiveOpenReachesEstablishedOnSynAck(t *testing.T) {
	conn, transport := newTestConnection()
	conn.Connect()

	synAck := Segment{SrcPort: 80, DstPort: 12345, Seq: 5000, Ack: 1001, Flags: FlagSYN | FlagACK, Window: 4096}
	conn.HandleSegment(synAck)

	assert.Equal(t, StateEstablished, conn.State())
	assert.Equal(t, uint32(5001), conn.recvNext)
	assert.Equal(t, uint32(1001), conn.sendUnacked)

	ack := transport.last()
	assert.Equal(t, FlagACK, ack.Flags)
	assert.Equal(t, uint32(5001), ack.Ack)
}

func TestPassiveOpenReachesSynReceivedThenEstablished(t *testing.T) {
	conn, transport := newTestConnection()
	conn.Listen()
	assert.Equal(t, StateListen, conn.State())

	syn := Segment{SrcPort: 80, DstPort: 12345, Seq: 3000, Flags: FlagSYN, Window: 4096}
	conn.HandleSegment(syn)

	assert.Equal(t, StateSynReceived, conn.State())
	assert.Equal(t, uint32(3001), conn.recvNext)
	synAck := transport.last()
	assert.Equal(t, FlagSYN|FlagACK, synAck.Flags)
	assert.Equal(t, uint32(2000), synAck.Seq)

	ack := Segment{SrcPort: 80, DstPort: 12345, Seq: 3001, Ack: 2001, Flags: FlagACK, Window: 4096}
	conn.HandleSegment(ack)
	assert.Equal(t, StateEstablished, conn.State())
}

func TestListenCloseReturnsToClosed(t *testing.T) {
	conn, _ := newTestConnection()
	conn.Listen()
	conn.Close()
	assert.Equal(t, StateClosed, conn.State())
}

func establishedPair(t *testing.T) (*Connection, *fakeTransport) {
	t.Helper()
	conn, transport := newTestConnection()
	conn.Connect()
	conn.HandleSegment(Segment{SrcPort: 80, DstPort: 12345, Seq: 5000, Ack: 1001, Flags: FlagSYN | FlagACK, Window: 8192})
	require.Equal(t, StateEstablished, conn.State())
	return conn, transport
}

func TestEstablishedDeliversInOrderDataAndAcks(t *testing.T) {
	conn, transport := establishedPair(t)

	data := Segment{SrcPort: 80, DstPort: 12345, Seq: 5001, Ack: 1001, Flags: FlagACK, Payload: []byte("hello")}
	conn.HandleSegment(data)

	assert.Equal(t, uint32(5006), conn.recvNext)
	ack := transport.last()
	assert.Equal(t, FlagACK, ack.Flags)
	assert.Equal(t, uint32(5006), ack.Ack)

	got := conn.ReadApplicationData(5)
	assert.Equal(t, []byte("hello"), got)
}

func TestEstablishedDropsFutureSequenceAndSendsDupAck(t *testing.T) {
	conn, transport := establishedPair(t)

	future := Segment{SrcPort: 80, DstPort: 12345, Seq: 5010, Ack: 1001, Flags: FlagACK, Payload: []byte("late")}
	conn.HandleSegment(future)

	assert.Equal(t, uint32(5001), conn.recvNext)
	ack := transport.last()
	assert.Equal(t, uint32(5001), ack.Ack)
}

func TestEstablishedTrimsAlreadyAckedPrefix(t *testing.T) {
	conn, _ := establishedPair(t)
	conn.recvNext = 5005

	seg := Segment{SrcPort: 80, DstPort: 12345, Seq: 5000, Ack: 1001, Flags: FlagACK, Payload: []byte("overlap-new")}
	conn.HandleSegment(seg)

	assert.Equal(t, uint32(5005+uint32(len("overlap-new"))-5), conn.recvNext)
}

func TestEstablishedFinMovesToCloseWait(t *testing.T) {
	conn, transport := establishedPair(t)

	fin := Segment{SrcPort: 80, DstPort: 12345, Seq: 5001, Ack: 1001, Flags: FlagFIN | FlagACK}
	conn.HandleSegment(fin)

	assert.Equal(t, StateCloseWait, conn.State())
	assert.Equal(t, uint32(5002), conn.recvNext)
	ack := transport.last()
	assert.Equal(t, FlagACK, ack.Flags)
}

func TestCloseFromEstablishedSendsFinAndMovesToFinWait1(t *testing.T) {
	conn, transport := establishedPair(t)
	conn.Close()

	assert.Equal(t, StateFinWait1, conn.State())
	fin := transport.last()
	assert.Equal(t, FlagFIN|FlagACK, fin.Flags)
	assert.True(t, conn.retransmit.active)
}

func TestFullActiveCloseSequenceReachesTimeWait(t *testing.T) {
	conn, _ := establishedPair(t)
	conn.Close()
	require.Equal(t, StateFinWait1, conn.State())

	finAckSeq := conn.sendNext
	ackOfFin := Segment{SrcPort: 80, DstPort: 12345, Seq: 5001, Ack: finAckSeq, Flags: FlagACK}
	conn.HandleSegment(ackOfFin)
	assert.Equal(t, StateFinWait2, conn.State())

	peerFin := Segment{SrcPort: 80, DstPort: 12345, Seq: 5001, Ack: finAckSeq, Flags: FlagFIN | FlagACK}
	conn.HandleSegment(peerFin)
	assert.Equal(t, StateTimeWait, conn.State())
	assert.False(t, conn.timeWaitDeadline.IsZero())
}

func TestPassiveCloseSequenceReachesClosed(t *testing.T) {
	conn, transport := establishedPair(t)

	fin := Segment{SrcPort: 80, DstPort: 12345, Seq: 5001, Ack: 1001, Flags: FlagFIN | FlagACK}
	conn.HandleSegment(fin)
	require.Equal(t, StateCloseWait, conn.State())

	conn.Close()
	assert.Equal(t, StateLastAck, conn.State())
	lastFin := transport.last()
	assert.Equal(t, FlagFIN|FlagACK, lastFin.Flags)

	finalAck := Segment{SrcPort: 80, DstPort: 12345, Seq: 5002, Ack: conn.sendNext, Flags: FlagACK}
	conn.HandleSegment(finalAck)
	assert.Equal(t, StateClosed, conn.State())
}

func TestRSTFromEstablishedAbortsToClosed(t *testing.T) {
	conn, _ := establishedPair(t)
	conn.HandleSegment(Segment{SrcPort: 80, DstPort: 12345, Flags: FlagRST})
	assert.Equal(t, StateClosed, conn.State())
}

func TestRSTFromSynReceivedReturnsToListen(t *testing.T) {
	conn, _ := newTestConnection()
	conn.Listen()
	conn.HandleSegment(Segment{SrcPort: 80, DstPort: 12345, Seq: 3000, Flags: FlagSYN})
	require.Equal(t, StateSynReceived, conn.State())

	conn.HandleSegment(Segment{SrcPort: 80, DstPort: 12345, Flags: FlagRST})
	assert.Equal(t, StateListen, conn.State())
}

func TestTickRetransmitsOnTimeout(t *testing.T) {
	conn, transport := newTestConnection()
	conn.Connect()
	require.Len(t, transport.sent, 1)

	conn.mu.Lock()
	conn.retransmit.deadline = time.Now().Add(-time.Millisecond)
	originalRTO := conn.rto
	conn.mu.Unlock()

	conn.Tick()

	assert.Len(t, transport.sent, 2)
	assert.True(t, conn.rto > originalRTO)
	assert.Equal(t, 1, conn.retransmit.retries)
}

func TestTickAbortsAfterMaxRetries(t *testing.T) {
	conn, _ := newTestConnection()
	conn.Connect()

	conn.mu.Lock()
	conn.retransmit.retries = 100
	conn.retransmit.deadline = time.Now().Add(-time.Millisecond)
	conn.mu.Unlock()

	conn.Tick()
	assert.Equal(t, StateClosed, conn.State())
}

func TestTickOnTimeoutIncrementsRetransmitCounter(t *testing.T) {
	conn, _ := newTestConnection()
	conn.Connect()
	reg := telemetry.New(prometheus.NewRegistry())
	conn.SetTelemetry(reg)

	conn.mu.Lock()
	conn.retransmit.deadline = time.Now().Add(-time.Millisecond)
	conn.mu.Unlock()

	conn.Tick()

	m := &dto.Metric{}
	require.NoError(t, reg.TCPRetransmits.Write(m))
	assert.Equal(t, float64(1), m.GetCounter().GetValue())
}

func TestSetTelemetryTracksConnectionStateGauge(t *testing.T) {
	conn, _ := newTestConnection()
	reg := telemetry.New(prometheus.NewRegistry())
	conn.SetTelemetry(reg)

	closedMetric := &dto.Metric{}
	require.NoError(t, reg.TCPConnections.WithLabelValues(StateClosed.String()).Write(closedMetric))
	assert.Equal(t, float64(1), closedMetric.GetGauge().GetValue())

	conn.Connect()

	synSentMetric, stillClosedMetric := &dto.Metric{}, &dto.Metric{}
	require.NoError(t, reg.TCPConnections.WithLabelValues(StateSynSent.String()).Write(synSentMetric))
	require.NoError(t, reg.TCPConnections.WithLabelValues(StateClosed.String()).Write(stillClosedMetric))
	assert.Equal(t, float64(1), synSentMetric.GetGauge().GetValue())
	assert.Equal(t, float64(0), stillClosedMetric.GetGauge().GetValue())
}

func TestTickTransitionsTimeWaitToClosedAfterDeadline(t *testing.T) {
	conn, _ := newTestConnection()
	conn.mu.Lock()
	conn.state = StateTimeWait
	conn.timeWaitDeadline = time.Now().Add(-time.Millisecond)
	conn.mu.Unlock()

	conn.Tick()
	assert.Equal(t, StateClosed, conn.State())
}

func TestApplicationSendPacesUnderCongestionWindow(t *testing.T) {
	conn, transport := establishedPair(t)
	initialSent := len(transport.sent)

	payload := make([]byte, 100)
	n := conn.ApplicationSend(payload)

	assert.Equal(t, 100, n)
	assert.Greater(t, len(transport.sent), initialSent)
	last := transport.last()
	assert.Equal(t, FlagACK, last.Flags)
	assert.Len(t, last.Payload, 100)
}

func TestDupAckTriggersFastRetransmit(t *testing.T) {
	conn, transport := establishedPair(t)
	conn.ApplicationSend([]byte("payload-data"))
	require.True(t, conn.retransmit.active)

	sentBeforeDupAcks := len(transport.sent)
	dupAck := Segment{SrcPort: 80, DstPort: 12345, Seq: 5001, Ack: conn.sendUnacked, Flags: FlagACK}
	conn.HandleSegment(dupAck)
	conn.HandleSegment(dupAck)
	conn.HandleSegment(dupAck)

	assert.True(t, conn.fastRecovery)
	assert.Greater(t, len(transport.sent), sentBeforeDupAcks)
}

func TestOnNewAckGrowsCwndInSlowStart(t *testing.T) {
	conn, _ := establishedPair(t)
	before := conn.cwnd
	conn.ssthresh = before + uint32(conn.mss)*10

	conn.onNewAckLocked()
	assert.Equal(t, before+uint32(conn.mss), conn.cwnd)
}

func TestOnTimeoutLossHalvesCwndAndSetsSsthresh(t *testing.T) {
	conn, _ := establishedPair(t)
	conn.cwnd = 10 * uint32(conn.mss)
	conn.fastRecovery = true

	conn.onTimeoutLossLocked()

	assert.Equal(t, uint32(conn.mss), conn.cwnd)
	assert.Equal(t, 5*uint32(conn.mss), conn.ssthresh)
	assert.False(t, conn.fastRecovery)
}

func TestAdvertisedWindowReflectsFreeCapacity(t *testing.T) {
	conn, _ := newTestConnection()
	full := conn.advertisedWindowLocked()
	assert.Equal(t, uint16(maxWindow), full)

	conn.recvBuf.Write(make([]byte, 100))
	assert.Equal(t, uint16(conn.recvBuf.capacity-100), conn.advertisedWindowLocked())
}

func TestSecondWriteWhileRetransmitPendingIsSentOnceAcked(t *testing.T) {
	conn, transport := establishedPair(t)

	conn.ApplicationSend([]byte("first-chunk"))
	require.True(t, conn.retransmit.active)
	sentAfterFirst := len(transport.sent)

	// A second write while the first segment is still unacked is held
	// in the send buffer: the stop-and-wait retransmission invariant
	// (spec.md §4.11, "no new segment sent while RetransmitPending")
	// forbids a second outstanding segment, same outcome classic Nagle
	// coalescing would produce.
	conn.ApplicationSend([]byte("tiny"))
	assert.Equal(t, sentAfterFirst, len(transport.sent))

	ackOfFirst := Segment{SrcPort: 80, DstPort: 12345, Seq: 5001, Ack: conn.sendNext, Flags: FlagACK}
	conn.HandleSegment(ackOfFirst)

	assert.Greater(t, len(transport.sent), sentAfterFirst)
	last := transport.last()
	assert.Equal(t, []byte("tiny"), last.Payload)
}

func TestHandleApplicationReadSendsAckOnWindowReopen(t *testing.T) {
	conn, transport := establishedPair(t)
	conn.recvBuf.Write(make([]byte, conn.recvBuf.capacity))
	require.Equal(t, uint16(0), conn.advertisedWindowLocked())

	sentBefore := len(transport.sent)
	conn.HandleApplicationRead(conn.recvBuf.capacity)

	assert.Equal(t, uint16(maxWindow), conn.advertisedWindowLocked())
	assert.Greater(t, len(transport.sent), sentBefore)
}
