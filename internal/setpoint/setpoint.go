// Package setpoint turns the noisy setpoint potentiometer into a target
// temperature with half-degree resolution.
package setpoint

import (
	"fmt"
	"math"
)

// DefaultSamples is the number of raw reads averaged per target.
const DefaultSamples = 10

// RawReader reads the setpoint input in its device-native range.
type RawReader interface {
	ReadRaw() (int, error)
}

// Scale maps the raw input range onto the selectable temperature range.
type Scale struct {
	RawMin  int
	RawMax  int
	MinTemp float64
	MaxTemp float64
}

// DefaultScale is a 10-bit ADC mapped onto 20–35 °C.
var DefaultScale = Scale{RawMin: 0, RawMax: 1023, MinTemp: 20, MaxTemp: 35}

// Quantize maps an averaged raw value to °C, clamped to [MinTemp, MaxTemp]
// and rounded to the nearest 0.5.
func (s Scale) Quantize(raw float64) float64 {
	lo, hi := s.MinTemp*10, s.MaxTemp*10
	tenths := lo
	if span := float64(s.RawMax - s.RawMin); span > 0 {
		tenths = lo + (raw-float64(s.RawMin))*(hi-lo)/span
	}
	tenths = math.Max(lo, math.Min(hi, tenths))
	return math.Round(tenths/5) * 5 / 10
}

// Reader oversamples a RawReader and quantizes the average.
type Reader struct {
	in      RawReader
	samples int
	scale   Scale
}

// NewReader creates a Reader taking samples reads per target.
func NewReader(in RawReader, samples int, scale Scale) *Reader {
	if samples <= 0 {
		samples = DefaultSamples
	}
	return &Reader{in: in, samples: samples, scale: scale}
}

// ReadTarget performs one batch of raw reads and returns the target in °C.
// Any read error abandons the batch.
func (r *Reader) ReadTarget() (float64, error) {
	var sum int
	for i := 0; i < r.samples; i++ {
		v, err := r.in.ReadRaw()
		if err != nil {
			return 0, fmt.Errorf("read setpoint sample %d: %w", i, err)
		}
		sum += v
	}
	return r.scale.Quantize(float64(sum) / float64(r.samples)), nil
}
