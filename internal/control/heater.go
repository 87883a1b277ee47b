package control

import "time"

// Heater is the on/off hysteresis state machine for the heater relay.
type Heater struct {
	margin      float64
	state       State
	onSince     time.Time
	transitions int
}

// NewHeater creates a Heater in the OFF state. The heater switches ON once
// the filtered temperature is more than margin below the target.
func NewHeater(margin float64) *Heater {
	return &Heater{margin: margin, state: StateOff}
}

// Update applies the hysteresis rule and reports whether the state changed.
// No transition happens when the heater is already in the wanted state.
func (h *Heater) Update(now time.Time, filtered, target float64) bool {
	switch h.state {
	case StateOff:
		if filtered+h.margin < target {
			h.set(now, StateOn)
			return true
		}
	case StateOn:
		if filtered >= target {
			h.set(now, StateOff)
			return true
		}
	}
	return false
}

// ForceOff switches the heater OFF regardless of temperature.
// Returns true if the heater was ON.
func (h *Heater) ForceOff(now time.Time) bool {
	if h.state == StateOff {
		return false
	}
	h.set(now, StateOff)
	return true
}

func (h *Heater) set(now time.Time, s State) {
	h.state = s
	h.transitions++
	if s == StateOn {
		h.onSince = now
	}
}

// State returns the current heater state.
func (h *Heater) State() State {
	return h.state
}

// OnSince returns the time of the most recent OFF→ON transition.
func (h *Heater) OnSince() time.Time {
	return h.onSince
}

// Transitions returns the number of state changes since creation.
func (h *Heater) Transitions() int {
	return h.transitions
}
