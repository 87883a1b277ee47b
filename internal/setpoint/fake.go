package setpoint

import "errors"

// FakeRawReader is a test double that returns scripted raw values.
type FakeRawReader struct {
	// Values are returned in order; the last one repeats once exhausted.
	Values []int

	index int

	// Reads counts calls to ReadRaw.
	Reads int

	// ReadError, if set, is returned by ReadRaw.
	ReadError error
}

// NewFakeRawReader creates a FakeRawReader with the given values.
func NewFakeRawReader(values ...int) *FakeRawReader {
	return &FakeRawReader{Values: values}
}

// ReadRaw returns the next scripted value.
func (f *FakeRawReader) ReadRaw() (int, error) {
	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}
	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}
