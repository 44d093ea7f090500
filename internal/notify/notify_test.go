package notify

import (
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
)

func TestSendDispatchesToMatchingTypeOnly(t *testing.T) {
	ctx := NewContext()
	var gotArp, gotTcp int

	ctx.Register(ArpResolved{}, func(Event) { gotArp++ })
	ctx.Register(TcpFailed{}, func(Event) { gotTcp++ })

	ctx.Send(ArpResolved{IP: 1})
	assert.Equal(t, 1, gotArp)
	assert.Equal(t, 0, gotTcp)
}

func TestSendInvokesAllMatchingListeners(t *testing.T) {
	ctx := NewContext()
	count := 0
	ctx.Register(ArpFailed{}, func(Event) { count++ })
	ctx.Register(ArpFailed{}, func(Event) { count++ })

	ctx.Send(ArpFailed{IP: 7})
	assert.Equal(t, 2, count)
}

func TestUnregisterRemovesExactSubscription(t *testing.T) {
	ctx := NewContext()
	token := ctx.Register(ArpResolved{}, func(Event) {})
	assert.Equal(t, 1, ctx.Len())

	ok := ctx.Unregister(token)
	assert.True(t, ok)
	assert.Equal(t, 0, ctx.Len())
}

func TestUnregisterUnknownTokenFails(t *testing.T) {
	ctx := NewContext()
	ctx.Register(ArpResolved{}, func(Event) {})

	ok := ctx.Unregister(xid.New())
	assert.False(t, ok)
	assert.Equal(t, 1, ctx.Len())
}

func TestRegisterThenUnregisterLeavesTableUnchanged(t *testing.T) {
	ctx := NewContext()
	before := ctx.Len()
	token := ctx.Register(TcpData{}, func(Event) {})
	ctx.Unregister(token)
	assert.Equal(t, before, ctx.Len())
}

func TestCloseDiscardsAllSubscriptions(t *testing.T) {
	ctx := NewContext()
	ctx.Register(ArpResolved{}, func(Event) {})
	ctx.Register(TcpFailed{}, func(Event) {})
	ctx.Close()
	assert.Equal(t, 0, ctx.Len())
}

func TestSendPayloadReachesCallback(t *testing.T) {
	ctx := NewContext()
	var got ArpResolved
	ctx.Register(ArpResolved{}, func(e Event) { got = e.(ArpResolved) })

	ctx.Send(ArpResolved{IP: 0xC0A80101, MAC: [6]byte{0x52, 0x54, 0, 0x11, 0x22, 0x33}})
	assert.EqualValues(t, 0xC0A80101, got.IP)
}

func TestCallbackMayRegisterDuringSendWithoutDeadlock(t *testing.T) {
	ctx := NewContext()
	ctx.Register(ArpResolved{}, func(Event) {
		ctx.Register(ArpFailed{}, func(Event) {})
	})
	assert.NotPanics(t, func() { ctx.Send(ArpResolved{}) })
	assert.Equal(t, 2, ctx.Len())
}
