package gpio

import "time"

// FakeSwitch is a test double that records every write.
type FakeSwitch struct {
	// Writes contains every value successfully passed to Set, in order.
	Writes []bool

	// Attempts contains every value passed to Set, failed or not.
	Attempts []bool

	// On is the current output state.
	On bool

	// SetError, if set, will be returned by Set.
	SetError error

	// Errors, if non-nil at the current attempt index, is returned instead
	// of applying the write.
	Errors map[int]error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSwitch creates a FakeSwitch in the OFF state.
func NewFakeSwitch() *FakeSwitch {
	return &FakeSwitch{}
}

// Set records the write.
func (f *FakeSwitch) Set(on bool) error {
	n := len(f.Attempts)
	f.Attempts = append(f.Attempts, on)
	if f.SetError != nil {
		return f.SetError
	}
	if err := f.Errors[n]; err != nil {
		return err
	}
	f.Writes = append(f.Writes, on)
	f.On = on
	return nil
}

// Close switches the output OFF and marks the switch as closed.
func (f *FakeSwitch) Close() error {
	f.On = false
	f.Closed = true
	return nil
}

// Tone is a single recorded buzzer call.
type Tone struct {
	Duration time.Duration
	FreqHz   int
}

// FakeBuzzer records tones without blocking.
type FakeBuzzer struct {
	Tones      []Tone
	SoundError error
	Closed     bool
}

// NewFakeBuzzer creates a FakeBuzzer.
func NewFakeBuzzer() *FakeBuzzer {
	return &FakeBuzzer{}
}

// Sound records the tone.
func (f *FakeBuzzer) Sound(d time.Duration, freqHz int) error {
	if f.SoundError != nil {
		return f.SoundError
	}
	f.Tones = append(f.Tones, Tone{Duration: d, FreqHz: freqHz})
	return nil
}

// Close marks the buzzer as closed.
func (f *FakeBuzzer) Close() error {
	f.Closed = true
	return nil
}
