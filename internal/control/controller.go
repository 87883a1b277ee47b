package control

import (
	"fmt"
	"time"
)

// Reading is one tick's worth of input to the Controller.
type Reading struct {
	Time      time.Time
	Target    float64     // quantized setpoint, °C
	Liquid    float64     // raw liquid temperature, °C
	LiquidErr error       // set when the liquid sensor could not be read
	Ambient   AmbientFunc // read only when a safety check reaches it
}

// Output is the result of one tick.
type Output struct {
	Heater        State
	Pump          State
	HeaterChanged bool   // the heater relay must be written
	PumpChanged   bool   // the pump relay must be written
	Fault         *Fault // non-nil only on the tick that raised it
	Status        Status
}

// Controller owns all mutable control state: the temperature filter, the
// heater state machine, the safety supervisor and the terminal fault.
// Not safe for concurrent use.
type Controller struct {
	limits     Limits
	start      time.Time
	filter     *Filter
	heater     *Heater
	supervisor *Supervisor
	pump       State
	target     float64
	readErrors int
	fault      *Fault
	lastAlert  time.Time
	alerted    bool
}

// New creates a Controller with the heater OFF and the pump ON.
func New(limits Limits, start time.Time) *Controller {
	return &Controller{
		limits:     limits,
		start:      start,
		filter:     NewFilter(limits.FilterWindow),
		heater:     NewHeater(limits.Hysteresis),
		supervisor: NewSupervisor(limits, start),
		pump:       StateOn,
	}
}

// Tick runs one control pass: record the sample, run the safety check when
// due, then apply the heater rule. A NaN or infinite sample counts as a read
// error and never reaches the filter. Once halted, Tick changes nothing and
// reports both actuators OFF.
func (c *Controller) Tick(r Reading) Output {
	if c.fault != nil {
		return c.output(r.Time, false, false, nil)
	}

	c.target = r.Target

	liquidErr := r.LiquidErr
	if liquidErr == nil && !finite(r.Liquid) {
		liquidErr = fmt.Errorf("liquid %v: %w", r.Liquid, ErrNotFinite)
	}

	if liquidErr != nil {
		c.readErrors++
		if c.limits.MaxReadErrors > 0 && c.readErrors >= c.limits.MaxReadErrors {
			return c.abort(&Fault{
				Kind:    SensorFault,
				Time:    r.Time,
				Message: fmt.Sprintf("%d consecutive liquid sensor read errors: %v", c.readErrors, liquidErr),
			})
		}
	} else {
		c.readErrors = 0
		c.filter.Record(r.Liquid)
	}

	if !c.filter.Primed() {
		return c.output(r.Time, false, false, nil)
	}

	if c.supervisor.Due(r.Time) {
		obs := Observation{
			Filtered:      c.filter.Average(),
			Heater:        c.heater.State(),
			HeaterOnSince: c.heater.OnSince(),
			Elapsed:       r.Time.Sub(c.start),
		}
		if f := c.supervisor.Check(r.Time, obs, r.Ambient); f != nil {
			return c.abort(f)
		}
	}

	changed := c.heater.Update(r.Time, c.filter.Average(), c.target)
	return c.output(r.Time, changed, false, nil)
}

// abort is the terminal transition: heater and pump OFF, fault latched.
func (c *Controller) abort(f *Fault) Output {
	c.fault = f
	heaterChanged := c.heater.ForceOff(f.Time)
	pumpChanged := c.pump == StateOn
	c.pump = StateOff
	return c.output(f.Time, heaterChanged, pumpChanged, f)
}

func (c *Controller) output(now time.Time, heaterChanged, pumpChanged bool, f *Fault) Output {
	return Output{
		Heater:        c.heater.State(),
		Pump:          c.pump,
		HeaterChanged: heaterChanged,
		PumpChanged:   pumpChanged,
		Fault:         f,
		Status:        c.Status(now),
	}
}

// CheckAlert reports whether the halted alert should sound at now: on the
// first halted tick, then once every AlertBurst+AlertPause. Returns false
// while not halted.
func (c *Controller) CheckAlert(now time.Time) bool {
	if c.fault == nil {
		return false
	}
	if c.alerted && now.Sub(c.lastAlert) < c.limits.AlertBurst+c.limits.AlertPause {
		return false
	}
	c.alerted = true
	c.lastAlert = now
	return true
}

// Status returns the display view at now.
func (c *Controller) Status(now time.Time) Status {
	return Status{
		Target:  c.target,
		Current: c.filter.Average(),
		Heater:  c.heater.State(),
		Pump:    c.pump,
		Elapsed: now.Sub(c.start),
		Halted:  c.fault != nil,
		Fault:   c.fault,
	}
}

// Halted reports whether a fault has been raised.
func (c *Controller) Halted() bool {
	return c.fault != nil
}

// Fault returns the latched fault, or nil.
func (c *Controller) Fault() *Fault {
	return c.fault
}

// Target returns the most recent setpoint.
func (c *Controller) Target() float64 {
	return c.target
}

// Heater returns the current heater state.
func (c *Controller) Heater() State {
	return c.heater.State()
}

// Pump returns the current pump state.
func (c *Controller) Pump() State {
	return c.pump
}
