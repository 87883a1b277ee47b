// Package control contains the pure control and safety-supervision logic for
// the proofing cabinet. It has NO hardware, network or OS dependencies.
// Time is always injectable via time.Time parameters.
package control

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// State represents the logical state of a binary actuator.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// On reports whether the state is StateOn.
func (s State) On() bool {
	return s == StateOn
}

// FaultKind identifies one of the terminal fault conditions.
type FaultKind string

const (
	SensorFault            FaultKind = "SENSOR_FAULT"
	HeaterTimeout          FaultKind = "HEATER_TIMEOUT"
	OverTemperature        FaultKind = "OVER_TEMPERATURE"
	RunTimeExceeded        FaultKind = "RUN_TIME_EXCEEDED"
	AmbientOverTemperature FaultKind = "AMBIENT_OVER_TEMPERATURE"
)

// Code returns the short code shown on the second display line.
func (k FaultKind) Code() string {
	switch k {
	case SensorFault:
		return "E1 sensor"
	case HeaterTimeout:
		return "E2 heater time"
	case OverTemperature:
		return "E3 over temp"
	case RunTimeExceeded:
		return "E4 run time"
	case AmbientOverTemperature:
		return "E5 ambient"
	}
	return "E? unknown"
}

// ErrNotFinite is reported for a NaN or infinite temperature reading.
var ErrNotFinite = errors.New("temperature reading is not finite")

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// HaltedHeader is the first display line once the system has halted.
const HaltedHeader = "System halted"

// Fault is a terminal fault raised by the Supervisor.
type Fault struct {
	Kind    FaultKind
	Time    time.Time
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Code returns the short display code for the fault.
func (f *Fault) Code() string {
	return f.Kind.Code()
}

// Limits holds the fixed operating limits of the cabinet.
type Limits struct {
	MinTemp        float64       // lowest selectable setpoint, °C
	MaxTemp        float64       // highest selectable setpoint and over-temperature bound, °C
	WaterVolume    float64       // litres
	PowerHeater    float64       // watts
	MaxRunTime     time.Duration // run-time limit, compared in whole minutes
	MaxAmbient     float64       // enclosure over-temperature bound, °C
	Hysteresis     float64       // ON margin below target, °C
	CheckInterval  time.Duration // safety check cadence
	FilterWindow   int           // number of raw samples averaged
	MaxReadErrors  int           // consecutive liquid sensor read errors tolerated
	AlertBurst     time.Duration // halted alert tone length
	AlertPause     time.Duration // silence between halted alert tones
	AlertFrequency int           // halted alert tone, Hz
}

// Default limits for a 10 litre cabinet with a 300 W heater.
const (
	DefaultMinTemp        = 20.0
	DefaultMaxTemp        = 35.0
	DefaultWaterVolume    = 10.0
	DefaultPowerHeater    = 300.0
	DefaultMaxRunTime     = 12 * time.Hour
	DefaultMaxAmbient     = 40.0
	DefaultHysteresis     = 0.25
	DefaultCheckInterval  = 120 * time.Second
	DefaultFilterWindow   = 10
	DefaultMaxReadErrors  = 5
	DefaultAlertBurst     = 1 * time.Second
	DefaultAlertPause     = 2 * time.Second
	DefaultAlertFrequency = 2000
)

// DefaultLimits returns the compiled-in limits.
func DefaultLimits() Limits {
	return Limits{
		MinTemp:        DefaultMinTemp,
		MaxTemp:        DefaultMaxTemp,
		WaterVolume:    DefaultWaterVolume,
		PowerHeater:    DefaultPowerHeater,
		MaxRunTime:     DefaultMaxRunTime,
		MaxAmbient:     DefaultMaxAmbient,
		Hysteresis:     DefaultHysteresis,
		CheckInterval:  DefaultCheckInterval,
		FilterWindow:   DefaultFilterWindow,
		MaxReadErrors:  DefaultMaxReadErrors,
		AlertBurst:     DefaultAlertBurst,
		AlertPause:     DefaultAlertPause,
		AlertFrequency: DefaultAlertFrequency,
	}
}

// specificHeatWater is the specific heat of water in J/(kg·K), scaled by 1000
// so that the result of MaxHeaterOnTime is in milliseconds.
const specificHeatWater = 4.1868e6

// MaxHeaterOnTime is the theoretical time needed to raise the full water
// volume by MaxTemp degrees at the rated heater power. One litre is taken as
// one kilogram.
func (l Limits) MaxHeaterOnTime() time.Duration {
	if l.PowerHeater <= 0 {
		return 0
	}
	ms := l.MaxTemp * l.WaterVolume * specificHeatWater / l.PowerHeater
	return time.Duration(ms * float64(time.Millisecond))
}

// Status is the per-tick view rendered on the display.
type Status struct {
	Target  float64
	Current float64
	Heater  State
	Pump    State
	Elapsed time.Duration
	Halted  bool
	Fault   *Fault
}

// ElapsedMinutes returns the whole minutes elapsed since start.
func (s Status) ElapsedMinutes() int {
	return int(s.Elapsed / time.Minute)
}
