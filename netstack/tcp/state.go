// Package tcp implements the per-connection TCP state machine: the
// RFC-793-style lifecycle, retransmission with exponential backoff, New
// Reno congestion control, and hysteresis-gated window updates
// (spec.md §4.11).
package tcp

// State is a connection's position in the TCP lifecycle, mirroring the
// closed enum-with-String() style of go-ublk's TagState for small fixed
// state machines.
type State int

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	case StateTimeWait:
		return "TIME_WAIT"
	default:
		return "UNKNOWN"
	}
}

// ackValid implements spec.md §4.11 "ACK validity": unacked ≤ ack ≤
// next, accepting the degenerate case (0,0).
func ackValid(unacked, ack, next uint32) bool {
	if unacked == 0 && ack == 0 && next == 0 {
		return true
	}
	return seqLE(unacked, ack) && seqLE(ack, next)
}

// seqLE compares 32-bit sequence numbers with wraparound, a <= b.
func seqLE(a, b uint32) bool {
	return int32(a-b) <= 0
}

// seqLT compares 32-bit sequence numbers with wraparound, a < b.
func seqLT(a, b uint32) bool {
	return int32(a-b) < 0
}
