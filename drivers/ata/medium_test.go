package ata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryMediumIdentifyReturnsGeometry(t *testing.T) {
	g := testGeometry()
	m := NewInMemoryMedium(g)
	got, err := m.Identify()
	require.NoError(t, err)
	assert.Equal(t, g, got)
}

func TestInMemoryMediumReadWriteSector(t *testing.T) {
	m := NewInMemoryMedium(testGeometry())
	var sector Sector
	sector[0] = 0x7F
	chs := CHS{Cylinder: 0, Head: 0, Sector: 1}

	require.NoError(t, m.WriteSector(chs, sector))
	got, err := m.ReadSector(chs)
	require.NoError(t, err)
	assert.Equal(t, sector, got)
}

func TestInMemoryMediumRejectsOutOfRangeCHS(t *testing.T) {
	m := NewInMemoryMedium(Geometry{Cylinders: 1, Heads: 1, SectorsPerTrack: 1})
	_, err := m.ReadSector(CHS{Cylinder: 5, Head: 0, Sector: 1})
	assert.Error(t, err)
}
