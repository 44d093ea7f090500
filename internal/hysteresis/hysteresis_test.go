package hysteresis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialStateIsLowNoPendingTransition(t *testing.T) {
	tr := New(10, 20)
	assert.Equal(t, Low, tr.State())
	assert.False(t, tr.IsTransitionPending())
}

func TestCrossingHighFromLowTransitionsAndMarksPending(t *testing.T) {
	tr := New(10, 20)
	tr.Update(25)
	assert.Equal(t, High, tr.State())
	assert.True(t, tr.IsTransitionPending())
}

func TestStayingBetweenThresholdsDoesNotTransition(t *testing.T) {
	tr := New(10, 20)
	tr.Update(25)
	tr.ClearTransition()

	tr.Update(15) // between low and high, already in High state
	assert.Equal(t, High, tr.State())
	assert.False(t, tr.IsTransitionPending())
}

func TestDroppingBelowLowFromHighTransitionsBack(t *testing.T) {
	tr := New(10, 20)
	tr.Update(25)
	tr.ClearTransition()

	tr.Update(5)
	assert.Equal(t, Low, tr.State())
	assert.True(t, tr.IsTransitionPending())
}

func TestClearTransitionDrainsFlagOnly(t *testing.T) {
	tr := New(10, 20)
	tr.Update(25)
	tr.ClearTransition()
	assert.False(t, tr.IsTransitionPending())
	assert.Equal(t, High, tr.State()) // state itself is untouched by ClearTransition
}

func TestRepeatedUpdatesPastSameThresholdDoNotReassertPending(t *testing.T) {
	tr := New(10, 20)
	tr.Update(25)
	tr.ClearTransition()

	tr.Update(30) // still High, no new edge
	assert.False(t, tr.IsTransitionPending())
}

func TestValueTracksLastSample(t *testing.T) {
	tr := New(10, 20)
	tr.Update(7)
	assert.EqualValues(t, 7, tr.Value())
}
