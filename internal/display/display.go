// Package display renders cabinet status on a two-line character panel.
package display

import (
	"fmt"

	"github.com/sweeney/proofer/internal/control"
)

// Columns is the width of each panel line.
const Columns = 16

// Status is what the panel shows on every tick.
type Status struct {
	Target         float64
	Current        float64
	HeaterOn       bool
	PumpOn         bool
	ElapsedMinutes int
}

// FromControl converts a controller status into panel fields.
func FromControl(st control.Status) Status {
	return Status{
		Target:         st.Target,
		Current:        st.Current,
		HeaterOn:       st.Heater.On(),
		PumpOn:         st.Pump.On(),
		ElapsedMinutes: st.ElapsedMinutes(),
	}
}

// Display is the output surface. It holds no control logic.
type Display interface {
	// Render shows the running status.
	Render(st Status) error

	// Alert replaces the status with a two-line message.
	Alert(line1, line2 string) error
}

// Lines formats st into the two panel lines, e.g.
//
//	Set 27.5 Is 26.9
//	HEAT PUMP    42m
func Lines(st Status) (string, string) {
	heat, pump := "----", "----"
	if st.HeaterOn {
		heat = "HEAT"
	}
	if st.PumpOn {
		pump = "PUMP"
	}
	line1 := fmt.Sprintf("Set%5.1f Is%5.1f", st.Target, st.Current)
	line2 := fmt.Sprintf("%s %s %5dm", heat, pump, st.ElapsedMinutes)
	return fit(line1), fit(line2)
}

// fit pads or truncates s to exactly Columns runes.
func fit(s string) string {
	r := []rune(s)
	if len(r) > Columns {
		return string(r[:Columns])
	}
	for len(r) < Columns {
		r = append(r, ' ')
	}
	return string(r)
}
