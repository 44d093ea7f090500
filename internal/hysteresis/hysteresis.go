// Package hysteresis implements the two-threshold debounced state tracker
// from spec.md §4.3, used by TCP to decide when a receive-window change is
// significant enough to warrant a standalone window-update ACK (avoiding
// silly-window syndrome chatter).
package hysteresis

// State is the debounced two-level state.
type State int

const (
	Low State = iota
	High
)

// Tracker holds the low/high thresholds, current state, current value, and
// a pending-transition flag consumers drain with ClearTransition.
type Tracker struct {
	low, high        int64
	state            State
	value            int64
	transitionPending bool
}

// New creates a Tracker with low < high. Initial state is Low.
func New(low, high int64) *Tracker {
	return &Tracker{low: low, high: high, state: Low}
}

// Update feeds a new sample. If state==Low and the new value crosses up
// to high, the tracker flips to High and marks a transition pending; if
// state==High and the new value drops below low, it flips to Low and
// marks a transition pending. A value that doesn't cross the opposite
// threshold leaves state (and the pending flag) unchanged, so repeated
// Update(x) calls produce at most one transition until the other
// threshold is crossed.
func (t *Tracker) Update(newValue int64) {
	t.value = newValue
	switch t.state {
	case Low:
		if newValue >= t.high {
			t.state = High
			t.transitionPending = true
		}
	case High:
		if newValue < t.low {
			t.state = Low
			t.transitionPending = true
		}
	}
}

// IsTransitionPending reports whether an edge has occurred since the last
// ClearTransition.
func (t *Tracker) IsTransitionPending() bool {
	return t.transitionPending
}

// ClearTransition drains the pending-transition flag.
func (t *Tracker) ClearTransition() {
	t.transitionPending = false
}

// State returns the current debounced state.
func (t *Tracker) State() State {
	return t.state
}

// Value returns the last sample fed to Update.
func (t *Tracker) Value() int64 {
	return t.value
}
