// Package sensor reads liquid and ambient temperatures.
package sensor

import "errors"

// TemperatureReader performs one blocking temperature read in °C.
type TemperatureReader interface {
	ReadTemperature() (float64, error)
}

// ErrCRC is returned when a 1-Wire read fails its CRC check.
var ErrCRC = errors.New("sensor: crc mismatch")
