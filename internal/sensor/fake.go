package sensor

import "errors"

// FakeReader is a test double that returns scripted temperatures.
type FakeReader struct {
	// Temps are returned in order; the last one repeats once exhausted.
	Temps []float64

	index int

	// Reads counts calls to ReadTemperature.
	Reads int

	// Errors, if non-nil at the current read index, are returned instead
	// of a temperature.
	Errors map[int]error

	// ReadError, if set, is returned by every read.
	ReadError error
}

// NewFakeReader creates a FakeReader with the given temperatures.
func NewFakeReader(temps ...float64) *FakeReader {
	return &FakeReader{Temps: temps}
}

// ReadTemperature returns the next scripted temperature.
func (f *FakeReader) ReadTemperature() (float64, error) {
	n := f.Reads
	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if err := f.Errors[n]; err != nil {
		return 0, err
	}
	if len(f.Temps) == 0 {
		return 0, errors.New("no temperatures configured")
	}
	v := f.Temps[f.index]
	if f.index < len(f.Temps)-1 {
		f.index++
	}
	return v, nil
}
