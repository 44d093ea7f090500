package tcp

import (
	"time"

	"github.com/exos-labs/netkernel/internal/kdefaults"
	"github.com/exos-labs/netkernel/internal/notify"
)

// HandleSegment dispatches an inbound segment to the state-appropriate
// handler (spec.md §4.11 "Transitions"). Once the segment is processed,
// it re-runs send pacing: an ACK that clears the single outstanding
// tracked segment (spec.md §4.11 "Retransmission" — one record, not a
// queue) may unblock application data that was buffered behind it.
func (c *Connection) HandleSegment(seg Segment) {
	c.mu.Lock()

	if seg.Flags&FlagRST != 0 {
		c.handleRSTLocked()
		c.mu.Unlock()
		return
	}

	switch c.state {
	case StateListen:
		c.handleListenLocked(seg)
	case StateSynSent:
		c.handleSynSentLocked(seg)
	case StateSynReceived:
		c.handleSynReceivedLocked(seg)
	case StateEstablished:
		c.handleEstablishedLocked(seg)
	case StateFinWait1:
		c.handleFinWait1Locked(seg)
	case StateFinWait2:
		c.handleFinWait2Locked(seg)
	case StateClosing:
		c.handleClosingLocked(seg)
	case StateLastAck:
		c.handleLastAckLocked(seg)
	}

	c.mu.Unlock()
	c.pumpSend()
}

func (c *Connection) handleRSTLocked() {
	switch c.state {
	case StateSynReceived:
		c.setStateLocked(StateListen)
		c.retransmit = retransmitRecord{}
	default:
		c.retransmit = retransmitRecord{}
		c.setStateLocked(StateClosed)
		c.notify.Send(notify.TcpFailed{ConnID: c.ID, Reason: "connection reset"})
	}
}

func (c *Connection) handleListenLocked(seg Segment) {
	if seg.Flags&FlagSYN == 0 {
		return
	}
	c.recvNext = seg.Seq + 1
	c.sendUnacked = listenISN
	c.sendNext = listenISN
	c.setStateLocked(StateSynReceived)
	c.sendSegmentLocked(FlagSYN|FlagACK, nil, mssOption(c.mss))
	c.armRetransmitLocked(FlagSYN, nil, c.sendNext)
	c.sendNext++
}

func (c *Connection) handleSynSentLocked(seg Segment) {
	if seg.Flags&FlagACK != 0 && seg.Flags&FlagSYN != 0 {
		if !(seqLT(c.sendUnacked, seg.Ack) && seqLE(seg.Ack, c.sendNext)) {
			return
		}
		c.recvNext = seg.Seq + 1
		c.clearRetransmitOnAckLocked(seg.Ack)
		c.sendUnacked = seg.Ack
		c.setStateLocked(StateEstablished)
		c.sendSegmentLocked(FlagACK, nil, nil)
		c.notify.Send(notify.TcpConnected{ConnID: c.ID})
		return
	}
	if seg.Flags&FlagSYN != 0 {
		c.recvNext = seg.Seq + 1
		c.setStateLocked(StateSynReceived)
		c.sendSegmentLocked(FlagACK, nil, nil)
	}
}

func (c *Connection) handleSynReceivedLocked(seg Segment) {
	if seg.Flags&FlagACK == 0 {
		return
	}
	if !ackValid(c.sendUnacked, seg.Ack, c.sendNext) {
		return
	}
	c.clearRetransmitOnAckLocked(seg.Ack)
	c.sendUnacked = seg.Ack
	c.setStateLocked(StateEstablished)
	c.notify.Send(notify.TcpConnected{ConnID: c.ID})
}

func (c *Connection) handleEstablishedLocked(seg Segment) {
	if seg.Flags&FlagACK != 0 {
		c.processAckLocked(seg)
	}
	if len(seg.Payload) > 0 || seg.Flags&FlagFIN != 0 {
		c.processDataLocked(seg)
	}
	if seg.Flags&FlagFIN != 0 {
		c.recvNext++
		c.setStateLocked(StateCloseWait)
		c.sendSegmentLocked(FlagACK, nil, nil)
	}
}

func (c *Connection) handleFinWait1Locked(seg Segment) {
	if seg.Flags&FlagACK != 0 {
		if ackValid(c.sendUnacked, seg.Ack, c.sendNext) {
			c.clearRetransmitOnAckLocked(seg.Ack)
			c.sendUnacked = seg.Ack
			if seg.Flags&FlagFIN == 0 {
				c.setStateLocked(StateFinWait2)
			}
		}
	}
	if seg.Flags&FlagFIN != 0 {
		c.recvNext++
		c.sendSegmentLocked(FlagACK, nil, nil)
		if c.state == StateFinWait2 {
			c.enterTimeWaitLocked()
		} else {
			c.setStateLocked(StateClosing)
		}
	}
}

func (c *Connection) handleFinWait2Locked(seg Segment) {
	if seg.Flags&FlagACK != 0 {
		c.processAckLocked(seg)
	}
	if seg.Flags&FlagFIN != 0 {
		c.recvNext++
		c.sendSegmentLocked(FlagACK, nil, nil)
		c.enterTimeWaitLocked()
	}
}

func (c *Connection) handleClosingLocked(seg Segment) {
	if seg.Flags&FlagACK == 0 {
		return
	}
	if !ackValid(c.sendUnacked, seg.Ack, c.sendNext) {
		return
	}
	c.clearRetransmitOnAckLocked(seg.Ack)
	c.sendUnacked = seg.Ack
	c.enterTimeWaitLocked()
}

func (c *Connection) handleLastAckLocked(seg Segment) {
	if seg.Flags&FlagACK == 0 {
		return
	}
	if !ackValid(c.sendUnacked, seg.Ack, c.sendNext) {
		return
	}
	c.clearRetransmitOnAckLocked(seg.Ack)
	c.sendUnacked = seg.Ack
	c.retransmit = retransmitRecord{}
	c.setStateLocked(StateClosed)
}

func (c *Connection) enterTimeWaitLocked() {
	c.setStateLocked(StateTimeWait)
	c.timeWaitDeadline = time.Now().Add(kdefaults.TCPTimeWait)
}
