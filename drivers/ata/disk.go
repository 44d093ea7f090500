package ata

import (
	"time"

	"github.com/exos-labs/netkernel/internal/kdefaults"
	"github.com/exos-labs/netkernel/internal/kerrors"
	"github.com/exos-labs/netkernel/internal/logging"
	"github.com/exos-labs/netkernel/internal/sectorcache"
	"github.com/exos-labs/netkernel/internal/telemetry"
)

// Access is the disk's current access policy bitmask.
type Access uint8

const (
	AccessReadWrite Access = 0
	AccessReadOnly  Access = 1 << 0
)

// Info is the snapshot GetInfo reports: type, CHS-derived sector count,
// and current access bits (spec.md §4.8).
type Info struct {
	Type        string
	SectorCount uint64
	Access      Access
}

// cachedSector is the cache's value type: the sector payload plus the
// dirty flag spec.md §3 "Sector buffer" and §4.5 "writes allocate on
// miss and set dirty=1 pre-I/O, 0 post-I/O" describe.
type cachedSector struct {
	data  Sector
	dirty bool
}

// Disk is one identified ATA drive: its physical medium, geometry, and a
// sector cache sitting in front of the medium so repeated reads of a hot
// sector skip CHS programming entirely.
type Disk struct {
	medium   Medium
	geometry Geometry
	access   Access
	cache    *sectorcache.Cache[uint64, cachedSector]
	log      *logging.Logger

	telemetry *telemetry.Registry
}

// SetTelemetry attaches a metrics registry the disk reports sector cache
// hits and misses through. A nil reg disables recording.
func (d *Disk) SetTelemetry(reg *telemetry.Registry) {
	d.telemetry = reg
}

// Identify probes medium and, if its geometry is valid (non-zero
// cylinders/heads/sectors), returns a ready Disk with its sector cache
// allocated. A disk with invalid geometry is not kept — callers should
// not append it to a device list.
func Identify(medium Medium) (*Disk, error) {
	geometry, err := medium.Identify()
	if err != nil {
		return nil, kerrors.Wrap("ata.Identify", err)
	}
	if !geometry.Valid() {
		return nil, kerrors.New("ata.Identify", kerrors.Unexpected, "identified geometry is all-zero")
	}
	return &Disk{
		medium:   medium,
		geometry: geometry,
		cache:    sectorcache.New[uint64, cachedSector](kdefaults.ATASectorCacheSize, kdefaults.ATASectorCacheTTL),
		log:      logging.ForSubsystem("ata"),
	}, nil
}

// SetAccess updates the disk's access policy (e.g. AccessReadOnly).
func (d *Disk) SetAccess(access Access) {
	d.access = access
}

// GetInfo reports type, CHS-derived sector count, and current access bits.
func (d *Disk) GetInfo() Info {
	return Info{
		Type:        "ata",
		SectorCount: d.geometry.SectorCount(),
		Access:      d.access,
	}
}

// ReadSector looks up lba in the sector cache first; on miss it issues a
// CHS translation and physical read, then populates the cache with the
// configured TTL (spec.md §4.8).
func (d *Disk) ReadSector(lba uint64) (Sector, error) {
	now := time.Now()
	if cached, ok := d.cache.Get(lba, now); ok {
		if d.telemetry != nil {
			d.telemetry.ATACacheHits.Inc()
		}
		return cached.data, nil
	}
	if d.telemetry != nil {
		d.telemetry.ATACacheMisses.Inc()
	}

	sector, err := d.readPhysical(lba)
	if err != nil {
		return Sector{}, kerrors.Wrap("ata.ReadSector", err)
	}

	d.cache.Add(lba, cachedSector{data: sector}, now)
	return sector, nil
}

// readPhysical issues the physical read, picking LBA28 addressing over
// CHS translation when the medium supports it (original_source ATA.c).
func (d *Disk) readPhysical(lba uint64) (Sector, error) {
	if lm, ok := d.medium.(LBA28Medium); ok && d.geometry.SupportsLBA {
		return lm.ReadSectorLBA28(uint32(lba))
	}
	chs := d.geometry.FromLBA(lba)
	return d.medium.ReadSector(chs)
}

// writePhysical is readPhysical's write-side counterpart.
func (d *Disk) writePhysical(lba uint64, data Sector) error {
	if lm, ok := d.medium.(LBA28Medium); ok && d.geometry.SupportsLBA {
		return lm.WriteSectorLBA28(uint32(lba), data)
	}
	chs := d.geometry.FromLBA(lba)
	return d.medium.WriteSector(chs, data)
}

// WriteSector rejects writes under AccessReadOnly. Otherwise it updates
// the cached buffer with dirty=1 before issuing the physical write, then
// flips dirty back to 0 once the write-back succeeds (spec.md §4.5
// "writes allocate on miss and set dirty=1 pre-I/O, 0 post-I/O").
func (d *Disk) WriteSector(lba uint64, data Sector) error {
	if d.access&AccessReadOnly != 0 {
		return kerrors.NewDevice("ata.WriteSector", "disk", kerrors.NoPermission, "disk is read-only")
	}

	now := time.Now()
	d.cache.Add(lba, cachedSector{data: data, dirty: true}, now)

	if err := d.writePhysical(lba, data); err != nil {
		d.cache.Remove(lba) // roll back the optimistic cache entry on failure
		return kerrors.Wrap("ata.WriteSector", err)
	}

	d.cache.Update(lba, func(v cachedSector) cachedSector {
		v.dirty = false
		return v
	})
	return nil
}

// Flush writes back every dirty sector-cache entry, clearing each one's
// dirty bit as it succeeds. The driver's own read/write paths do not call
// it; it is exported for callers wanting a clean point (e.g. before a
// read-only policy switch).
func (d *Disk) Flush() error {
	now := time.Now()
	var firstErr error
	d.cache.ForEach(now, func(lba uint64, v cachedSector) {
		if !v.dirty || firstErr != nil {
			return
		}
		if err := d.writePhysical(lba, v.data); err != nil {
			firstErr = kerrors.Wrap("ata.Flush", err)
			return
		}
		d.cache.Update(lba, func(v cachedSector) cachedSector {
			v.dirty = false
			return v
		})
	})
	return firstErr
}
