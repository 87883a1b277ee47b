//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealSwitch drives a relay from an output line.
type RealSwitch struct {
	name string
	line *gpiocdev.Line
}

// NewRealSwitch requests pin on chip as an output, initially OFF.
// activeLow inverts the line for relay boards that trigger on low.
func NewRealSwitch(chip string, pin int, activeLow bool, name string) (*RealSwitch, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0), gpiocdev.WithConsumer("proofer-" + name)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s pin %d: %w", name, pin, err)
	}
	return &RealSwitch{name: name, line: line}, nil
}

// Set drives the relay.
func (s *RealSwitch) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := s.line.SetValue(v); err != nil {
		return fmt.Errorf("set %s: %w", s.name, err)
	}
	return nil
}

// Close switches the relay OFF, then returns the pin to input with pull-down
// (matching Pi boot defaults) before releasing it.
func (s *RealSwitch) Close() error {
	var errs []error
	if err := s.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("switch off %s: %w", s.name, err))
	}
	if err := s.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure %s: %w", s.name, err))
	}
	if err := s.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", s.name, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealBuzzer drives a piezo or active buzzer from an output line.
type RealBuzzer struct {
	line *gpiocdev.Line
}

// NewRealBuzzer requests pin on chip as an output, initially silent.
func NewRealBuzzer(chip string, pin int) (*RealBuzzer, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("proofer-buzzer"))
	if err != nil {
		return nil, fmt.Errorf("request buzzer pin %d: %w", pin, err)
	}
	return &RealBuzzer{line: line}, nil
}

// Sound toggles the line at freqHz for d, or holds it high when freqHz is 0.
// The tone is bit-banged, so its pitch is only approximate.
func (b *RealBuzzer) Sound(d time.Duration, freqHz int) error {
	defer b.line.SetValue(0)

	if freqHz <= 0 {
		if err := b.line.SetValue(1); err != nil {
			return fmt.Errorf("buzzer on: %w", err)
		}
		time.Sleep(d)
		return nil
	}

	half := time.Second / time.Duration(2*freqHz)
	deadline := time.Now().Add(d)
	v := 1
	for time.Now().Before(deadline) {
		if err := b.line.SetValue(v); err != nil {
			return fmt.Errorf("buzzer toggle: %w", err)
		}
		v ^= 1
		time.Sleep(half)
	}
	return nil
}

// Close silences the buzzer and releases the line.
func (b *RealBuzzer) Close() error {
	var errs []error
	if err := b.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("silence buzzer: %w", err))
	}
	if err := b.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure buzzer: %w", err))
	}
	if err := b.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close buzzer: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
