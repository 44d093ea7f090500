package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeDriver struct{ name string }

func (f fakeDriver) Name() string { return f.name }

func TestSetContextThenGetContextRoundTrips(t *testing.T) {
	d := New(fakeDriver{"e1000"}, "bus-info")
	d.SetContext(TagARP, "arp-cache")

	got, ok := d.GetContext(TagARP)
	assert.True(t, ok)
	assert.Equal(t, "arp-cache", got)
}

func TestGetContextMissingTagReturnsFalse(t *testing.T) {
	d := New(fakeDriver{"e1000"}, nil)
	_, ok := d.GetContext(TagTCP)
	assert.False(t, ok)
}

func TestNewAssignsUniqueID(t *testing.T) {
	a := New(fakeDriver{"a"}, nil)
	b := New(fakeDriver{"b"}, nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestWithLockRunsFunction(t *testing.T) {
	d := New(fakeDriver{"e1000"}, nil)
	ran := false
	d.WithLock(func() { ran = true })
	assert.True(t, ran)
}
