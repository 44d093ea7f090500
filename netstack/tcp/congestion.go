package tcp

import "time"

// onNewAckLocked grows cwnd per New Reno slow-start / congestion
// avoidance (spec.md §4.11 "Congestion control").
func (c *Connection) onNewAckLocked() {
	mss := uint32(c.mss)
	if c.cwnd < c.ssthresh {
		c.cwnd += mss
	} else {
		growth := mss * mss / c.cwnd
		if growth < 1 {
			growth = 1
		}
		c.cwnd += growth
	}
	if cap := uint32(c.sendBuf.capacity); c.cwnd > cap {
		c.cwnd = cap
	}
}

// onTimeoutLossLocked implements the timeout-loss congestion response.
func (c *Connection) onTimeoutLossLocked() {
	mss := uint32(c.mss)
	half := c.cwnd / 2
	if half < 2*mss {
		half = 2 * mss
	}
	c.ssthresh = half
	c.cwnd = mss
	c.fastRecovery = false
}

// onFastLossLocked implements the fast-retransmit/fast-recovery entry
// triggered by three duplicate ACKs of the unacked sequence while a
// retransmission is pending (spec.md §4.11 "On fast loss").
func (c *Connection) onFastLossLocked() {
	mss := uint32(c.mss)
	half := c.cwnd / 2
	if half < 2*mss {
		half = 2 * mss
	}
	c.ssthresh = half
	c.cwnd = c.ssthresh + 3*mss
	c.fastRecovery = true
	c.fastRecoverySeq = c.sendNext

	if !c.retransmit.active {
		return
	}
	window := c.advertisedWindowLocked()
	var options []byte
	if c.retransmit.flags&FlagSYN != 0 {
		options = mssOption(c.mss)
	}
	frame := buildSegment(c.localIP, c.remoteIP, c.localPort, c.remotePort, c.retransmit.seqStart, c.recvNext, c.retransmit.flags, window, c.retransmit.payload, options)
	c.transport.Send(c.remoteIP, protocolTCP, frame)
	c.retransmit.sentAt = time.Now()
	c.retransmit.deadline = c.retransmit.sentAt.Add(c.rto)
}
