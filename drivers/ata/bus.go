package ata

import "github.com/exos-labs/netkernel/internal/logging"

// channelCount and driveCount mirror spec.md §4.8's "two channels
// (primary/secondary IO base) and two drive select bits."
const (
	channelCount = 2
	driveCount   = 2
)

// MediumProbe returns the Medium for a given (channel, drive) slot, or
// nil if no drive is present there. Production code backs this with real
// IO-port IDENTIFY handshakes per channel/drive-select combination;
// callers needing only in-memory disks can use ProbeTable.
type MediumProbe func(channel, drive int) Medium

// ProbeTable returns a MediumProbe that looks up a fixed table of media
// by (channel, drive) index, for tests and other callers that don't have
// real ATA hardware to probe.
func ProbeTable(media map[[2]int]Medium) MediumProbe {
	return func(channel, drive int) Medium {
		return media[[2]int{channel, drive}]
	}
}

// Scan walks every (channel, drive) combination, identifying and keeping
// every disk with valid geometry, and reports whether at least one drive
// was found — callers use that to decide whether to enable the shared
// ATA IRQ line, per spec.md §4.8 ("enabled only if at least one drive was
// found").
func Scan(probe MediumProbe) (disks []*Disk, anyFound bool) {
	log := logging.ForSubsystem("ata")
	for channel := 0; channel < channelCount; channel++ {
		for drive := 0; drive < driveCount; drive++ {
			medium := probe(channel, drive)
			if medium == nil {
				continue
			}
			disk, err := Identify(medium)
			if err != nil {
				log.Debugf("ata: channel %d drive %d not present: %v", channel, drive, err)
				continue
			}
			disks = append(disks, disk)
			anyFound = true
		}
	}
	return disks, anyFound
}
