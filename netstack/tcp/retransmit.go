package tcp

import (
	"time"

	"github.com/exos-labs/netkernel/internal/kdefaults"
	"github.com/exos-labs/netkernel/internal/notify"
)

// processAckLocked implements the ACK bookkeeping shared by every open
// state (spec.md §4.11 "ESTABLISHED ... ack bookkeeping" and the
// duplicate-ACK / fast-loss rules under "Congestion control").
func (c *Connection) processAckLocked(seg Segment) {
	if !ackValid(c.sendUnacked, seg.Ack, c.sendNext) {
		return
	}

	if seqLT(c.sendUnacked, seg.Ack) {
		if c.fastRecovery && seqLE(c.fastRecoverySeq, seg.Ack) {
			c.fastRecovery = false
			c.cwnd = c.ssthresh
		}
		c.clearRetransmitOnAckLocked(seg.Ack)
		newlyAcked := seg.Ack - c.sendUnacked
		c.sendBuf.Discard(int(newlyAcked))
		c.sendUnacked = seg.Ack
		c.dupAckCount = 0
		c.onNewAckLocked()
		return
	}

	if seg.Ack == c.sendUnacked {
		if c.lastAckValid && seg.Ack == c.lastAck {
			c.dupAckCount++
		} else {
			c.dupAckCount = 1
			c.lastAck = seg.Ack
			c.lastAckValid = true
		}
		if c.dupAckCount == kdefaults.TCPDupAckThreshold && c.retransmit.active && !c.fastRecovery {
			c.onFastLossLocked()
		}
	}
}

// clearRetransmitOnAckLocked: "On successful ACK that fully covers
// the tracked segment ... the RTT sample is folded into the smoothed
// RTO ... retransmission state is cleared" (spec.md §4.11).
func (c *Connection) clearRetransmitOnAckLocked(ack uint32) {
	if !c.retransmit.active || !seqLE(c.retransmit.seqEnd, ack) {
		return
	}
	sample := time.Since(c.retransmit.sentAt)
	c.rto = (7*c.rto + sample) / 8
	if c.rto < minRTO {
		c.rto = minRTO
	}
	if c.rto > maxRTO {
		c.rto = maxRTO
	}
	if c.telemetry != nil {
		c.telemetry.RecordSegmentRTT(c.retransmit.sentAt, time.Now())
	}
	c.retransmit = retransmitRecord{}
}

// Tick drives the per-connection retransmission timer and the TIME_WAIT
// timeout, meant to be called at the system timer tick rate (spec.md
// §4.11 "Retransmission", "TIME_WAIT ... timer = now + 2·MSL").
func (c *Connection) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateTimeWait {
		if !c.timeWaitDeadline.IsZero() && time.Now().After(c.timeWaitDeadline) {
			c.setStateLocked(StateClosed)
		}
		return
	}

	if !c.retransmit.active {
		return
	}
	if time.Now().Before(c.retransmit.deadline) {
		return
	}
	c.onTimeoutLossLocked()

	if c.telemetry != nil {
		c.telemetry.TCPRetransmits.Inc()
	}

	c.retransmit.retries++
	c.retransmit.wasRetried = true
	c.rto *= 2
	if c.rto > maxRTO {
		c.rto = maxRTO
	}
	c.retransmit.sentAt = time.Now()
	c.retransmit.deadline = c.retransmit.sentAt.Add(c.rto)

	window := c.advertisedWindowLocked()
	var options []byte
	if c.retransmit.flags&FlagSYN != 0 {
		options = mssOption(c.mss)
	}
	frame := buildSegment(c.localIP, c.remoteIP, c.localPort, c.remotePort, c.retransmit.seqStart, c.recvNext, c.retransmit.flags, window, c.retransmit.payload, options)
	c.transport.Send(c.remoteIP, protocolTCP, frame)

	if c.retransmit.retries >= kdefaults.TCPMaxRetries {
		c.log.Warn("retransmission exhausted, aborting connection", "state", c.state.String())
		c.retransmit = retransmitRecord{}
		c.notify.Send(notify.TcpFailed{ConnID: c.ID, Reason: "retransmission exhausted"})
		c.handleRSTLocked()
	}
}
