package tcp

import (
	"time"

	"github.com/exos-labs/netkernel/internal/kdefaults"
)

// allocateEphemeralPort implements spec.md §4.11 "Ephemeral port
// allocation": seed from a pseudo-random combination of system time and
// local IP, then linear-search with wrap for a port unused by any
// existing connection on localIP, falling back to the configured start
// if every port is taken. start is the configured range floor
// (internal/kconfig); the ceiling is the fixed implementation maximum.
func allocateEphemeralPort(localIP uint32, start uint16, inUse func(port uint16) bool) uint16 {
	end := kdefaults.TCPEphemeralPortEnd
	if int(start) > end {
		start = kdefaults.TCPEphemeralPortStart
	}
	span := end - int(start) + 1

	seed := uint32(time.Now().UnixNano()) ^ localIP
	offset := int(seed % uint32(span))

	for i := 0; i < span; i++ {
		port := uint16(int(start) + (offset+i)%span)
		if !inUse(port) {
			return port
		}
	}
	return start
}
