package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultW1Dir is where the Linux w1-therm driver exposes 1-Wire devices.
const DefaultW1Dir = "/sys/bus/w1/devices"

// OneWire reads a DS18B20 through the kernel w1-therm driver.
// Each read triggers a conversion and blocks for up to 750ms.
type OneWire struct {
	path string
}

// NewOneWire returns a reader for the device with the given id
// (e.g. "28-0316a2795dff") under dir.
func NewOneWire(dir, id string) *OneWire {
	if dir == "" {
		dir = DefaultW1Dir
	}
	return &OneWire{path: filepath.Join(dir, id, "w1_slave")}
}

// ReadTemperature returns the converted temperature.
func (o *OneWire) ReadTemperature() (float64, error) {
	data, err := os.ReadFile(o.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", o.path, err)
	}
	return parseW1Slave(string(data))
}

// parseW1Slave parses the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(s string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("w1_slave: expected 2 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrCRC
	}
	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, fmt.Errorf("w1_slave: no temperature in %q", lines[1])
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][i+2:]))
	if err != nil {
		return 0, fmt.Errorf("w1_slave: parse temperature: %w", err)
	}
	return float64(milli) / 1000, nil
}

// ListOneWire returns the ids of DS18B20 devices (family 28) under dir.
func ListOneWire(dir string) ([]string, error) {
	if dir == "" {
		dir = DefaultW1Dir
	}
	matches, err := filepath.Glob(filepath.Join(dir, "28-*"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, filepath.Base(m))
	}
	return ids, nil
}
