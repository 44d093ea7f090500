package ata

import (
	"testing"
	"time"

	"github.com/exos-labs/netkernel/internal/driverabi"
	"github.com/exos-labs/netkernel/internal/kerrors"
	"github.com/exos-labs/netkernel/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeometry() Geometry {
	return Geometry{Cylinders: 10, Heads: 4, SectorsPerTrack: 16}
}

func TestCHSRoundTripsThroughLBA(t *testing.T) {
	g := testGeometry()
	for lba := uint64(0); lba < g.SectorCount(); lba += 7 {
		chs := g.FromLBA(lba)
		assert.Equal(t, lba, g.ToLBA(chs))
	}
}

func TestGeometryValidRejectsZeroFields(t *testing.T) {
	assert.False(t, Geometry{}.Valid())
	assert.True(t, testGeometry().Valid())
}

func TestIdentifyRejectsInvalidGeometry(t *testing.T) {
	medium := NewInMemoryMedium(Geometry{})
	_, err := Identify(medium)
	assert.Error(t, err)
}

func TestReadWriteSectorRoundTrips(t *testing.T) {
	g := testGeometry()
	disk, err := Identify(NewInMemoryMedium(g))
	require.NoError(t, err)

	var data Sector
	data[0] = 0xAB
	require.NoError(t, disk.WriteSector(5, data))

	got, err := disk.ReadSector(5)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReadOnlyAccessRejectsWrites(t *testing.T) {
	g := testGeometry()
	disk, err := Identify(NewInMemoryMedium(g))
	require.NoError(t, err)
	disk.SetAccess(AccessReadOnly)

	err = disk.WriteSector(0, Sector{})
	assert.True(t, kerrors.IsCode(err, kerrors.NoPermission))
}

func TestGetInfoReportsSectorCountAndAccess(t *testing.T) {
	g := testGeometry()
	disk, err := Identify(NewInMemoryMedium(g))
	require.NoError(t, err)
	disk.SetAccess(AccessReadOnly)

	info := disk.GetInfo()
	assert.Equal(t, g.SectorCount(), info.SectorCount)
	assert.Equal(t, AccessReadOnly, info.Access)
}

func TestWriteSectorClearsDirtyAfterSuccessfulWriteBack(t *testing.T) {
	g := testGeometry()
	disk, err := Identify(NewInMemoryMedium(g))
	require.NoError(t, err)

	var data Sector
	data[0] = 0x7F
	require.NoError(t, disk.WriteSector(2, data))

	cached, ok := disk.cache.Get(2, time.Now())
	require.True(t, ok)
	assert.False(t, cached.dirty)
	assert.Equal(t, data, cached.data)
}

func TestReadSectorPopulatesCacheForSecondRead(t *testing.T) {
	g := testGeometry()
	medium := NewInMemoryMedium(g)
	disk, err := Identify(medium)
	require.NoError(t, err)

	var data Sector
	data[0] = 0x42
	require.NoError(t, disk.WriteSector(3, data))

	first, err := disk.ReadSector(3)
	require.NoError(t, err)
	second, err := disk.ReadSector(3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReadSectorRecordsCacheHitsAndMisses(t *testing.T) {
	g := testGeometry()
	disk, err := Identify(NewInMemoryMedium(g))
	require.NoError(t, err)
	reg := telemetry.New(prometheus.NewRegistry())
	disk.SetTelemetry(reg)

	require.NoError(t, disk.WriteSector(4, Sector{}))

	_, err = disk.ReadSector(4)
	require.NoError(t, err)
	_, err = disk.ReadSector(4)
	require.NoError(t, err)

	hits, misses := &dto.Metric{}, &dto.Metric{}
	require.NoError(t, reg.ATACacheHits.Write(hits))
	require.NoError(t, reg.ATACacheMisses.Write(misses))
	assert.Equal(t, float64(2), hits.GetCounter().GetValue())
	assert.Equal(t, float64(0), misses.GetCounter().GetValue())
}

func TestReadWriteSectorUsesLBA28WhenGeometrySupportsIt(t *testing.T) {
	g := testGeometry()
	g.SupportsLBA = true
	medium := NewInMemoryMedium(g)
	disk, err := Identify(medium)
	require.NoError(t, err)

	var data Sector
	data[0] = 0x99
	require.NoError(t, disk.WriteSector(9, data))

	// Evict the cache entry so the next read goes to the physical medium,
	// exercising the LBA28 read path rather than just the cache hit.
	disk.cache.Remove(9)
	got, err := disk.ReadSector(9)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFlushWritesBackDirtyEntriesAndClearsDirty(t *testing.T) {
	g := testGeometry()
	medium := NewInMemoryMedium(g)
	disk, err := Identify(medium)
	require.NoError(t, err)

	var data Sector
	data[0] = 0x55
	require.NoError(t, disk.WriteSector(1, data))
	disk.cache.Update(1, func(v cachedSector) cachedSector {
		v.dirty = true // simulate a write whose cache entry wasn't cleared yet
		return v
	})

	require.NoError(t, disk.Flush())

	cached, ok := disk.cache.Get(1, time.Now())
	require.True(t, ok)
	assert.False(t, cached.dirty)

	got, err := medium.ReadSector(g.FromLBA(1))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCommandDispatchesReadWriteGetInfoSetAccess(t *testing.T) {
	g := testGeometry()
	disk, err := Identify(NewInMemoryMedium(g))
	require.NoError(t, err)

	var data Sector
	data[0] = 0x11
	_, err = disk.Command(driverabi.DFDiskWrite, diskWriteParam{LBA: 2, Data: data})
	require.NoError(t, err)

	got, err := disk.Command(driverabi.DFDiskRead, diskReadParam{LBA: 2})
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = disk.Command(driverabi.DFDiskSetAccess, AccessReadOnly)
	require.NoError(t, err)
	info, err := disk.Command(driverabi.DFDiskGetInfo, nil)
	require.NoError(t, err)
	assert.Equal(t, AccessReadOnly, info.(Info).Access)

	_, err = disk.Command(driverabi.FunctionID(9999), nil)
	assert.Error(t, err)
}
