package tcp

import (
	"testing"

	"github.com/exos-labs/netkernel/internal/kdefaults"
	"github.com/stretchr/testify/assert"
)

func TestAllocateEphemeralPortStaysInRange(t *testing.T) {
	port := allocateEphemeralPort(testLocalIP, kdefaults.TCPEphemeralPortStart, func(uint16) bool { return false })
	assert.GreaterOrEqual(t, port, uint16(kdefaults.TCPEphemeralPortStart))
	assert.LessOrEqual(t, port, uint16(kdefaults.TCPEphemeralPortEnd))
}

func TestAllocateEphemeralPortSkipsInUsePorts(t *testing.T) {
	taken := map[uint16]bool{}
	for p := kdefaults.TCPEphemeralPortStart; p < kdefaults.TCPEphemeralPortEnd; p++ {
		taken[uint16(p)] = true
	}
	free := uint16(kdefaults.TCPEphemeralPortEnd)
	delete(taken, free)

	port := allocateEphemeralPort(testLocalIP, kdefaults.TCPEphemeralPortStart, func(p uint16) bool { return taken[p] })
	assert.Equal(t, free, port)
}

func TestAllocateEphemeralPortFallsBackToStartWhenExhausted(t *testing.T) {
	port := allocateEphemeralPort(testLocalIP, kdefaults.TCPEphemeralPortStart, func(uint16) bool { return true })
	assert.Equal(t, uint16(kdefaults.TCPEphemeralPortStart), port)
}

func TestAllocateEphemeralPortHonorsConfiguredStart(t *testing.T) {
	const customStart = 60000
	port := allocateEphemeralPort(testLocalIP, customStart, func(uint16) bool { return true })
	assert.Equal(t, uint16(customStart), port)
}
