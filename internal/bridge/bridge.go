// Package bridge talks to a microcontroller that owns the cabinet's analog
// front end: the liquid and ambient temperature sensors and the setpoint
// potentiometer ADC.
//
// The protocol is line based request/response at 115200 baud:
//
//	host: T\n        mcu: T 23.50\n   liquid temperature, °C
//	host: A\n        mcu: A 31.25\n   ambient temperature, °C
//	host: P\n        mcu: P 512\n     setpoint ADC, 0-1023
//	                 mcu: E <msg>\n   error for any request
package bridge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate matches the MCU firmware.
	DefaultBaudRate = 115200
	// DefaultTimeout bounds a single request/response exchange.
	DefaultTimeout = 2 * time.Second
)

var (
	// ErrTimeout is returned when the MCU does not answer in time.
	ErrTimeout = errors.New("bridge: timeout waiting for mcu")
	// ErrNotFinite is returned for a "nan" or "inf" temperature, which the
	// firmware prints for a disconnected probe.
	ErrNotFinite = errors.New("bridge: temperature is not finite")
)

const (
	cmdLiquid   = 'T'
	cmdAmbient  = 'A'
	cmdSetpoint = 'P'
	respError   = 'E'
)

// Bridge is a connection to the MCU. Not safe for concurrent use.
type Bridge struct {
	conn io.ReadWriter
	rd   *bufio.Reader
	port serial.Port
}

// Open opens the serial port and returns a Bridge over it.
func Open(portName string, baudRate int) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		available := "unknown"
		if ports, perr := Ports(); perr == nil {
			available = portList(ports)
		}
		return nil, fmt.Errorf("open serial port %s (available: %s): %w", portName, available, err)
	}
	if err := port.SetReadTimeout(DefaultTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	b := New(port)
	b.port = port
	return b, nil
}

// New returns a Bridge over an existing connection. Reads that return no
// data and no error are treated as a timeout, as go.bug.st/serial does.
func New(conn io.ReadWriter) *Bridge {
	return &Bridge{
		conn: conn,
		rd:   bufio.NewReader(timeoutReader{conn}),
	}
}

// Close closes the serial port, if the Bridge owns one.
func (b *Bridge) Close() error {
	if b.port == nil {
		return nil
	}
	return b.port.Close()
}

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

func portList(ports []string) string {
	if len(ports) == 0 {
		return "none"
	}
	return strings.Join(ports, ", ")
}

// query sends cmd and returns the payload of the matching response line.
func (b *Bridge) query(cmd byte) (string, error) {
	if _, err := b.conn.Write([]byte{cmd, '\n'}); err != nil {
		return "", fmt.Errorf("write %c: %w", cmd, err)
	}

	line, err := b.rd.ReadString('\n')
	if err != nil {
		// Drop any partial line so the next exchange starts clean.
		b.rd.Reset(timeoutReader{b.conn})
		return "", fmt.Errorf("read %c response: %w", cmd, err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("empty %c response", cmd)
	}
	switch line[0] {
	case cmd:
		return strings.TrimSpace(line[1:]), nil
	case respError:
		return "", fmt.Errorf("mcu error for %c: %s", cmd, strings.TrimSpace(line[1:]))
	}
	return "", fmt.Errorf("unexpected response to %c: %q", cmd, line)
}

func (b *Bridge) queryFloat(cmd byte) (float64, error) {
	s, err := b.query(cmd)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %c response %q: %w", cmd, s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%c response %q: %w", cmd, s, ErrNotFinite)
	}
	return v, nil
}

// Liquid returns a reader for the liquid temperature sensor.
func (b *Bridge) Liquid() TemperatureFunc {
	return func() (float64, error) { return b.queryFloat(cmdLiquid) }
}

// Ambient returns a reader for the enclosure temperature sensor.
func (b *Bridge) Ambient() TemperatureFunc {
	return func() (float64, error) { return b.queryFloat(cmdAmbient) }
}

// ReadRaw returns one setpoint ADC sample.
func (b *Bridge) ReadRaw() (int, error) {
	s, err := b.query(cmdSetpoint)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse %c response %q: %w", cmdSetpoint, s, err)
	}
	return v, nil
}

// TemperatureFunc adapts a function to sensor.TemperatureReader.
type TemperatureFunc func() (float64, error)

// ReadTemperature calls f.
func (f TemperatureFunc) ReadTemperature() (float64, error) {
	return f()
}

type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}
