package tcp

// Connect implements CLOSED →[CONNECT] SYN_SENT: send SYN with ISN=1000
// (spec.md §4.11 "Transitions").
func (c *Connection) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		return
	}

	c.sendNext = initialSendISN
	c.sendUnacked = initialSendISN
	c.setStateLocked(StateSynSent)

	c.sendSegmentLocked(FlagSYN, nil, mssOption(c.mss))
	c.armRetransmitLocked(FlagSYN, nil, c.sendUnacked)
	c.sendNext++
}

// Listen implements CLOSED →[LISTEN] LISTEN.
func (c *Connection) Listen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		return
	}
	c.setStateLocked(StateListen)
}

// Close implements the application CLOSE event, whose target state
// depends on the current state (spec.md §4.11 "Transitions").
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateListen:
		c.setStateLocked(StateClosed)
	case StateSynSent:
		c.abortLocked()
	case StateSynReceived, StateEstablished:
		c.setStateLocked(StateFinWait1)
		c.sendSegmentLocked(FlagFIN|FlagACK, nil, nil)
		c.armRetransmitLocked(FlagFIN, nil, c.sendNext)
		c.sendNext++
	case StateCloseWait:
		c.setStateLocked(StateLastAck)
		c.sendSegmentLocked(FlagFIN|FlagACK, nil, nil)
		c.armRetransmitLocked(FlagFIN, nil, c.sendNext)
		c.sendNext++
	}
}

// abortLocked clears retransmission state and transitions to CLOSED for
// CLOSE-from-SYN_SENT (spec.md §4.11 "Connection abort ... atomically
// clears retransmission timers"); handleRSTLocked clears the same state
// itself.
func (c *Connection) abortLocked() {
	c.retransmit = retransmitRecord{}
	c.setStateLocked(StateClosed)
}
