package sectorcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sector struct {
	Number uint64
	Data   [512]byte
	Dirty  bool
}

func TestAddThenGetRoundTrips(t *testing.T) {
	c := New[uint64, sector](4, time.Minute)
	now := time.Unix(1000, 0)
	c.Add(5, sector{Number: 5}, now)

	got, ok := c.Get(5, now)
	assert.True(t, ok)
	assert.EqualValues(t, 5, got.Number)
}

func TestGetMissingReturnsFalse(t *testing.T) {
	c := New[uint64, sector](4, time.Minute)
	_, ok := c.Get(99, time.Unix(0, 0))
	assert.False(t, ok)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New[uint64, sector](4, time.Second)
	base := time.Unix(1000, 0)
	c.Add(1, sector{Number: 1}, base)

	_, ok := c.Get(1, base.Add(2*time.Second))
	assert.False(t, ok)
}

func TestAddEvictsWhenAtCapacity(t *testing.T) {
	c := New[uint64, sector](2, time.Minute)
	now := time.Unix(1000, 0)
	c.Add(1, sector{Number: 1}, now)
	c.Add(2, sector{Number: 2}, now)
	c.Add(3, sector{Number: 3}, now) // evicts oldest (key 1)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(1, now)
	assert.False(t, ok)
	_, ok = c.Get(3, now)
	assert.True(t, ok)
}

func TestAddPrefersEvictingExpiredEntryOverOldest(t *testing.T) {
	c := New[uint64, sector](2, time.Second)
	base := time.Unix(1000, 0)
	c.Add(1, sector{Number: 1}, base)                 // will expire
	c.Add(2, sector{Number: 2}, base.Add(900*time.Millisecond)) // fresher

	later := base.Add(1500 * time.Millisecond) // key 1 now expired, key 2 still fresh
	c.Add(3, sector{Number: 3}, later)

	_, ok := c.Get(2, later)
	assert.True(t, ok, "fresher entry should survive eviction over the expired one")
}

func TestFindUsesPredicate(t *testing.T) {
	c := New[uint64, sector](4, time.Minute)
	now := time.Unix(1000, 0)
	c.Add(1, sector{Number: 1}, now)
	c.Add(2, sector{Number: 2}, now)

	got, ok := c.Find(now, func(k uint64, v sector) bool { return v.Number == 2 })
	assert.True(t, ok)
	assert.EqualValues(t, 2, got.Number)
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	c := New[uint64, sector](4, time.Second)
	base := time.Unix(1000, 0)
	c.Add(1, sector{Number: 1}, base)
	c.Add(2, sector{Number: 2}, base.Add(2*time.Second))

	removed := c.Cleanup(base.Add(2 * time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())
}

func TestUpdateMutatesValueInPlace(t *testing.T) {
	c := New[uint64, sector](4, time.Minute)
	now := time.Unix(1000, 0)
	c.Add(7, sector{Number: 7, Dirty: true}, now)

	ok := c.Update(7, func(v sector) sector {
		v.Dirty = false
		return v
	})
	assert.True(t, ok)

	got, _ := c.Get(7, now)
	assert.False(t, got.Dirty)
}

func TestRemoveDeletesEntry(t *testing.T) {
	c := New[uint64, sector](4, time.Minute)
	now := time.Unix(1000, 0)
	c.Add(1, sector{Number: 1}, now)
	assert.True(t, c.Remove(1))
	assert.False(t, c.Remove(1))
	_, ok := c.Get(1, now)
	assert.False(t, ok)
}
