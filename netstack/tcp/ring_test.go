package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferWriteRespectsCapacity(t *testing.T) {
	r := newRingBuffer(4)
	n := r.Write([]byte("hello"))
	assert.Equal(t, 4, n)
	assert.Equal(t, 0, r.Free())
	assert.Equal(t, 4, r.Used())
}

func TestRingBufferPeekAndDiscard(t *testing.T) {
	r := newRingBuffer(16)
	r.Write([]byte("abcdef"))

	assert.Equal(t, []byte("abc"), r.Peek(3))
	r.Discard(3)
	assert.Equal(t, 3, r.Used())
	assert.Equal(t, []byte("def"), r.Peek(10))
}

func TestRingBufferDiscardClampsToAvailable(t *testing.T) {
	r := newRingBuffer(8)
	r.Write([]byte("ab"))
	r.Discard(100)
	assert.Equal(t, 0, r.Used())
	assert.Equal(t, 8, r.Free())
}

func TestRingBufferWriteAfterDiscardReclaimsSpace(t *testing.T) {
	r := newRingBuffer(4)
	r.Write([]byte("abcd"))
	r.Discard(2)
	n := r.Write([]byte("xy"))
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("cdxy"), r.Peek(4))
}
