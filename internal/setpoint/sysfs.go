package setpoint

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultSysfsPath is the first channel of the first Linux IIO ADC.
const DefaultSysfsPath = "/sys/bus/iio/devices/iio:device0/in_voltage0_raw"

// Sysfs reads an ADC channel exposed by the kernel IIO subsystem.
type Sysfs struct {
	path string
}

// NewSysfs returns a RawReader for the IIO value file at path.
func NewSysfs(path string) *Sysfs {
	if path == "" {
		path = DefaultSysfsPath
	}
	return &Sysfs{path: path}
}

// ReadRaw returns the current raw conversion.
func (s *Sysfs) ReadRaw() (int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return v, nil
}
