package tcp

// ApplicationSend queues data for transmission and immediately attempts
// to pace segments out under the current congestion window (spec.md
// §4.11 "Send pacing"). It returns the number of bytes accepted into the
// send buffer (may be less than len(data) if the buffer is full).
func (c *Connection) ApplicationSend(data []byte) int {
	c.mu.Lock()
	n := c.sendBuf.Write(data)
	c.mu.Unlock()

	c.pumpSend()
	return n
}

// pumpSend transmits as many MSS-sized chunks as the congestion window
// and retransmit-pending rule allow (spec.md §4.11 "Send pacing"). It is
// called after every application write and after every inbound segment,
// so data buffered behind a single outstanding tracked segment (spec.md
// §4.11 "Retransmission" — one record, not a queue) continues flowing as
// soon as that segment's ACK arrives, without a separate explicit send
// call.
func (c *Connection) pumpSend() {
	for {
		c.mu.Lock()
		if c.state != StateEstablished && c.state != StateCloseWait {
			c.mu.Unlock()
			return
		}
		if c.retransmit.active && c.sendNext != c.sendUnacked {
			c.mu.Unlock()
			return
		}

		allowed := int64(c.cwnd) - int64(c.inFlightLocked())
		if allowed <= 0 {
			c.mu.Unlock()
			return
		}

		unsent := int(c.inFlightLocked())
		available := c.sendBuf.Used() - unsent
		if available <= 0 {
			c.mu.Unlock()
			return
		}

		chunkSize := available
		if chunkSize > int(c.mss) {
			chunkSize = int(c.mss)
		}
		if int64(chunkSize) > allowed {
			chunkSize = int(allowed)
		}
		if chunkSize <= 0 {
			c.mu.Unlock()
			return
		}

		buffered := c.sendBuf.Peek(unsent + chunkSize)
		chunk := append([]byte{}, buffered[unsent:]...)

		seqStart := c.sendNext
		c.sendSegmentLocked(FlagACK, chunk, nil)
		c.armRetransmitLocked(FlagACK, chunk, seqStart)
		c.sendNext += uint32(len(chunk))
		c.mu.Unlock()
	}
}
