// Package gpio drives the cabinet's relay and buzzer outputs.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Switch drives a single binary output such as a relay.
type Switch interface {
	// Set drives the output ON (true) or OFF (false).
	Set(on bool) error

	// Close releases GPIO resources, leaving the output OFF.
	Close() error
}

// Buzzer sounds an audible alert.
type Buzzer interface {
	// Sound blocks for d while sounding a tone of freqHz.
	// A freqHz of 0 drives an active buzzer steadily.
	Sound(d time.Duration, freqHz int) error

	// Close releases GPIO resources.
	Close() error
}

// Default pin definitions (BCM numbering).
const (
	DefaultChip      = "gpiochip0"
	DefaultPinHeater = 17
	DefaultPinPump   = 27
	DefaultPinBuzzer = 22
)
