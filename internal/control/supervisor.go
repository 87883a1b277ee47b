package control

import (
	"fmt"
	"time"
)

// Checkpoint is the Supervisor's snapshot from its previous check.
type Checkpoint struct {
	Temperature float64
	HeaterOn    bool
	Time        time.Time
}

// Observation is the controller state inspected by a safety check.
type Observation struct {
	Filtered      float64
	Heater        State
	HeaterOnSince time.Time
	Elapsed       time.Duration
}

// AmbientFunc reads the enclosure temperature. It is only called when a
// check reaches the ambient step.
type AmbientFunc func() (float64, error)

// Supervisor runs the time-gated safety checks. Not safe for concurrent use.
type Supervisor struct {
	limits     Limits
	maxHeatOn  time.Duration
	checkpoint Checkpoint
	lastCheck  time.Time
}

// NewSupervisor creates a Supervisor whose first check is due one
// CheckInterval after start.
func NewSupervisor(limits Limits, start time.Time) *Supervisor {
	return &Supervisor{
		limits:     limits,
		maxHeatOn:  limits.MaxHeaterOnTime(),
		checkpoint: Checkpoint{Time: start},
		lastCheck:  start,
	}
}

// Due reports whether a full CheckInterval has passed since the last check.
func (s *Supervisor) Due(now time.Time) bool {
	return now.Sub(s.lastCheck) >= s.limits.CheckInterval
}

// Check evaluates all fault conditions in order and returns the first fault
// found, or nil. Callers gate it with Due.
func (s *Supervisor) Check(now time.Time, obs Observation, ambient AmbientFunc) *Fault {
	// The heater must have been ON at the previous checkpoint and not
	// re-triggered since, otherwise the interval is not continuous heating.
	continuous := s.checkpoint.HeaterOn &&
		obs.Heater.On() &&
		!obs.HeaterOnSince.After(s.checkpoint.Time)

	if continuous {
		if !(obs.Filtered > s.checkpoint.Temperature) {
			return s.fault(now, SensorFault, fmt.Sprintf(
				"no temperature increase despite sustained heating: %.2f°C at %s, %.2f°C now",
				s.checkpoint.Temperature, s.checkpoint.Time.Format(time.RFC3339), obs.Filtered))
		}
		s.checkpoint.Temperature = obs.Filtered

		if on := now.Sub(obs.HeaterOnSince); on > s.maxHeatOn {
			return s.fault(now, HeaterTimeout, fmt.Sprintf(
				"heater on for %v, limit %v", on.Truncate(time.Second), s.maxHeatOn.Truncate(time.Second)))
		}
	} else {
		s.checkpoint.Temperature = obs.Filtered
		s.checkpoint.HeaterOn = obs.Heater.On()
	}
	s.checkpoint.Time = now

	if minutes, limit := int(obs.Elapsed/time.Minute), int(s.limits.MaxRunTime/time.Minute); minutes > limit {
		return s.fault(now, RunTimeExceeded, fmt.Sprintf("ran %d min, limit %d min", minutes, limit))
	}

	if !(obs.Filtered <= s.limits.MaxTemp) {
		return s.fault(now, OverTemperature, fmt.Sprintf(
			"liquid %.2f°C above limit %.1f°C", obs.Filtered, s.limits.MaxTemp))
	}

	if ambient != nil {
		t, err := ambient()
		if err == nil && !finite(t) {
			err = fmt.Errorf("ambient %v: %w", t, ErrNotFinite)
		}
		if err != nil {
			return s.fault(now, SensorFault, fmt.Sprintf("read ambient temperature: %v", err))
		}
		if t > s.limits.MaxAmbient {
			return s.fault(now, AmbientOverTemperature, fmt.Sprintf(
				"enclosure %.2f°C above limit %.1f°C", t, s.limits.MaxAmbient))
		}
	}

	s.lastCheck = now
	return nil
}

func (s *Supervisor) fault(now time.Time, kind FaultKind, msg string) *Fault {
	s.lastCheck = now
	return &Fault{Kind: kind, Time: now, Message: msg}
}

// Checkpoint returns the current checkpoint.
func (s *Supervisor) Checkpoint() Checkpoint {
	return s.checkpoint
}

// MaxHeaterOnTime returns the continuous heating limit in force.
func (s *Supervisor) MaxHeaterOnTime() time.Duration {
	return s.maxHeatOn
}
