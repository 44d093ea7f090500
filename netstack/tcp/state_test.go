package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateStringCoversAllStates(t *testing.T) {
	cases := map[State]string{
		StateClosed:      "CLOSED",
		StateListen:      "LISTEN",
		StateSynSent:     "SYN_SENT",
		StateSynReceived: "SYN_RECEIVED",
		StateEstablished: "ESTABLISHED",
		StateFinWait1:    "FIN_WAIT_1",
		StateFinWait2:    "FIN_WAIT_2",
		StateCloseWait:   "CLOSE_WAIT",
		StateClosing:     "CLOSING",
		StateLastAck:     "LAST_ACK",
		StateTimeWait:    "TIME_WAIT",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
	assert.Equal(t, "UNKNOWN", State(999).String())
}

func TestAckValidAcceptsRangeAndRejectsOutside(t *testing.T) {
	assert.True(t, ackValid(1000, 1000, 1001))
	assert.True(t, ackValid(1000, 1001, 1001))
	assert.False(t, ackValid(1000, 1002, 1001))
	assert.False(t, ackValid(1000, 999, 1001))
	assert.True(t, ackValid(0, 0, 0))
}

func TestSeqComparisonsHandleWraparound(t *testing.T) {
	var nearMax uint32 = 0xFFFFFFF0
	assert.True(t, seqLT(nearMax, nearMax+0x20))
	assert.True(t, seqLE(nearMax, nearMax))
	assert.False(t, seqLT(nearMax, nearMax))
	assert.True(t, seqLT(100, 200))
	assert.False(t, seqLT(200, 100))
}
