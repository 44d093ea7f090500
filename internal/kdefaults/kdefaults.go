// Package kdefaults collects the kernel-wide tunable constants referenced
// throughout the stack, the way go-ublk's internal/constants centralizes
// its device-lifecycle defaults instead of scattering magic numbers
// across packages.
package kdefaults

import "time"

// PCI bus geometry (spec.md §4.6).
const (
	PCIMaxBus      = 256
	PCIMaxDevice   = 32
	PCIMaxFunction = 8
	PCIVendorNone  = 0xFFFF

	PCIConfigAddressPort = 0xCF8
	PCIConfigDataPort    = 0xCFC

	PCIHeaderTypeMultiFunctionBit = 0x80
)

// E1000 ring geometry (spec.md §3, §4.7). Ring sizes must stay
// power-of-two per the descriptor-ring alignment invariant.
const (
	E1000RingSize       = 128
	E1000RingAlignment  = 16
	E1000BufferSize     = 2048
	E1000MTU            = 1500
	E1000RegisterWindow = 0x20000
)

// ATA geometry (spec.md §4.8).
const (
	ATASectorSize      = 512
	ATASectorCacheSize = 64
	ATASectorCacheTTL  = 2 * time.Second
	ATAIdentifyWords   = 256
)

// ARP cache (spec.md §4.9).
const (
	ARPCacheSlots   = 32
	ARPMaxAttempts  = 10
	ARPProbeTimeout = 2 * time.Second
)

// IPv4 (spec.md §4.10).
const (
	IPv4MaxPayload     = 1500
	IPv4PendingQueue   = 16
	IPv4ProtocolTable  = 256
	IPv4BroadcastAddr  = 0xFFFFFFFF
)

// TCP (spec.md §4.11).
const (
	TCPMaxSegmentPayload   = 1460
	TCPDefaultMSS          = 1460
	TCPMaxRetries          = 5
	TCPInitialRTO          = 1 * time.Second
	TCPMaxRTO              = 60 * time.Second
	TCPTimeWait            = 30 * time.Second
	TCPDefaultSendBuffer   = 64 * 1024
	TCPDefaultRecvBuffer   = 64 * 1024
	TCPMaxSendBuffer       = 1 << 20
	TCPMaxRecvBuffer       = 1 << 20
	TCPEphemeralPortStart  = 49152
	TCPEphemeralPortEnd    = 65535
	TCPInitialCwndSegments = 1
	TCPDupAckThreshold     = 3
)

// Notification and handle bookkeeping.
const (
	DeviceContextTags = 8
)
