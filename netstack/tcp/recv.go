package tcp

import "github.com/exos-labs/netkernel/internal/notify"

// processDataLocked implements spec.md §4.11 "Data processing in
// ESTABLISHED".
func (c *Connection) processDataLocked(seg Segment) {
	seq := seg.Seq
	payload := seg.Payload

	if seqLT(seq, c.recvNext) {
		skip := c.recvNext - seq
		if skip >= uint32(len(payload)) {
			c.sendSegmentLocked(FlagACK, nil, nil)
			return
		}
		payload = payload[skip:]
		seq = c.recvNext
	} else if seqLT(c.recvNext, seq) {
		c.sendSegmentLocked(FlagACK, nil, nil)
		return
	}

	if len(payload) == 0 {
		return
	}

	free := c.recvBuf.Free()
	n := len(payload)
	if n > free {
		n = free
	}
	delivered := payload[:n]
	c.recvBuf.Write(delivered)
	c.recvNext = seq + uint32(n)

	c.hyst.Update(int64(c.recvBuf.Free()))
	c.hyst.ClearTransition()

	c.sendSegmentLocked(FlagACK, nil, nil)
	c.notify.Send(notify.TcpData{ConnID: c.ID, Length: n})
}

// HandleApplicationRead implements spec.md §4.11
// "TCP_HandleApplicationRead(consumed)": shrinks rx_used, re-runs
// hysteresis, and sends a standalone ACK when a transition is pending or
// a previously-zero window just reopened.
func (c *Connection) HandleApplicationRead(consumed int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasZero := c.advertisedWindowLocked() == 0
	c.recvBuf.Discard(consumed)

	c.hyst.Update(int64(c.recvBuf.Free()))
	reopened := wasZero && c.advertisedWindowLocked() > 0

	if c.hyst.IsTransitionPending() || reopened {
		c.hyst.ClearTransition()
		c.sendSegmentLocked(FlagACK, nil, nil)
	}
}

// ReadApplicationData returns up to n bytes of newly delivered data
// without removing them; callers follow with HandleApplicationRead once
// they've consumed the bytes.
func (c *Connection) ReadApplicationData(n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte{}, c.recvBuf.Peek(n)...)
}
