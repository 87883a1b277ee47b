// Package config loads the cabinet configuration from YAML. Every field has
// a compiled-in default, so the file is optional.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/proofer/internal/control"
	"github.com/sweeney/proofer/internal/gpio"
	"github.com/sweeney/proofer/internal/mqtt"
	"github.com/sweeney/proofer/internal/sensor"
	"github.com/sweeney/proofer/internal/setpoint"
)

// Sensor drivers.
const (
	DriverOneWire = "onewire"
	DriverSerial  = "serial"
)

// Display modes.
const (
	DisplayTerminal = "terminal"
	DisplayPlain    = "plain"
	DisplayNone     = "none"
)

// Config represents the application configuration.
type Config struct {
	Limits   LimitsConfig   `yaml:"limits"`
	Setpoint SetpointConfig `yaml:"setpoint"`
	GPIO     GPIOConfig     `yaml:"gpio"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Alert    AlertConfig    `yaml:"alert"`
	Display  DisplayConfig  `yaml:"display"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// LimitsConfig contains the operating and safety limits.
type LimitsConfig struct {
	MinTemp       float64       `yaml:"min_temp"`
	MaxTemp       float64       `yaml:"max_temp"`
	WaterVolume   float64       `yaml:"water_volume"` // litres
	PowerHeater   float64       `yaml:"power_heater"` // watts
	MaxRunTime    time.Duration `yaml:"max_run_time"`
	MaxAmbient    float64       `yaml:"max_ambient"`
	Hysteresis    float64       `yaml:"hysteresis"`
	CheckInterval time.Duration `yaml:"check_interval"`
	FilterWindow  int           `yaml:"filter_window"`
	MaxReadErrors int           `yaml:"max_read_errors"`
}

// SetpointConfig describes the setpoint potentiometer input.
type SetpointConfig struct {
	RawMin  int    `yaml:"raw_min"`
	RawMax  int    `yaml:"raw_max"`
	Samples int    `yaml:"samples"`
	Path    string `yaml:"path"` // sysfs ADC value file, onewire driver only
}

// GPIOConfig contains the actuator line assignments.
type GPIOConfig struct {
	Chip      string `yaml:"chip"`
	Heater    int    `yaml:"heater"`
	Pump      int    `yaml:"pump"`
	Buzzer    int    `yaml:"buzzer"`
	ActiveLow bool   `yaml:"active_low"` // relay board switches on a low level
}

// SensorsConfig selects where temperatures come from.
type SensorsConfig struct {
	Driver     string `yaml:"driver"`
	W1Dir      string `yaml:"w1_dir"`
	LiquidID   string `yaml:"liquid_id"`
	AmbientID  string `yaml:"ambient_id"`
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
}

// AlertConfig controls the halted alarm.
type AlertConfig struct {
	Burst     time.Duration `yaml:"burst"`
	Pause     time.Duration `yaml:"pause"`
	Frequency int           `yaml:"frequency"`
}

// DisplayConfig selects the status panel.
type DisplayConfig struct {
	Mode string `yaml:"mode"`
}

// MQTTConfig contains broker settings.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// HTTPConfig contains the status server settings.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	lim := control.DefaultLimits()
	return &Config{
		Limits: LimitsConfig{
			MinTemp:       lim.MinTemp,
			MaxTemp:       lim.MaxTemp,
			WaterVolume:   lim.WaterVolume,
			PowerHeater:   lim.PowerHeater,
			MaxRunTime:    lim.MaxRunTime,
			MaxAmbient:    lim.MaxAmbient,
			Hysteresis:    lim.Hysteresis,
			CheckInterval: lim.CheckInterval,
			FilterWindow:  lim.FilterWindow,
			MaxReadErrors: lim.MaxReadErrors,
		},
		Setpoint: SetpointConfig{
			RawMin:  setpoint.DefaultScale.RawMin,
			RawMax:  setpoint.DefaultScale.RawMax,
			Samples: setpoint.DefaultSamples,
			Path:    setpoint.DefaultSysfsPath,
		},
		GPIO: GPIOConfig{
			Chip:   gpio.DefaultChip,
			Heater: gpio.DefaultPinHeater,
			Pump:   gpio.DefaultPinPump,
			Buzzer: gpio.DefaultPinBuzzer,
		},
		Sensors: SensorsConfig{
			Driver:   DriverOneWire,
			W1Dir:    sensor.DefaultW1Dir,
			BaudRate: 115200,
		},
		Alert: AlertConfig{
			Burst:     lim.AlertBurst,
			Pause:     lim.AlertPause,
			Frequency: lim.AlertFrequency,
		},
		Display: DisplayConfig{
			Mode: DisplayTerminal,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "proofer",
			TopicPrefix: mqtt.DefaultTopicPrefix,
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; missing fields are filled from them.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ensureDefaults fills zero-valued fields that have no meaningful zero.
func (c *Config) ensureDefaults() {
	def := Default()

	l, d := &c.Limits, def.Limits
	if l.MinTemp == 0 {
		l.MinTemp = d.MinTemp
	}
	if l.MaxTemp == 0 {
		l.MaxTemp = d.MaxTemp
	}
	if l.WaterVolume == 0 {
		l.WaterVolume = d.WaterVolume
	}
	if l.PowerHeater == 0 {
		l.PowerHeater = d.PowerHeater
	}
	if l.MaxRunTime == 0 {
		l.MaxRunTime = d.MaxRunTime
	}
	if l.MaxAmbient == 0 {
		l.MaxAmbient = d.MaxAmbient
	}
	if l.CheckInterval == 0 {
		l.CheckInterval = d.CheckInterval
	}
	if l.FilterWindow == 0 {
		l.FilterWindow = d.FilterWindow
	}

	if c.Setpoint.RawMax == 0 {
		c.Setpoint.RawMax = def.Setpoint.RawMax
	}
	if c.Setpoint.Samples == 0 {
		c.Setpoint.Samples = def.Setpoint.Samples
	}
	if c.Setpoint.Path == "" {
		c.Setpoint.Path = def.Setpoint.Path
	}

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}

	if c.Sensors.Driver == "" {
		c.Sensors.Driver = def.Sensors.Driver
	}
	if c.Sensors.W1Dir == "" {
		c.Sensors.W1Dir = def.Sensors.W1Dir
	}
	if c.Sensors.BaudRate == 0 {
		c.Sensors.BaudRate = def.Sensors.BaudRate
	}

	if c.Alert.Burst == 0 {
		c.Alert.Burst = def.Alert.Burst
	}
	if c.Alert.Pause == 0 {
		c.Alert.Pause = def.Alert.Pause
	}

	if c.Display.Mode == "" {
		c.Display.Mode = def.Display.Mode
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = def.MQTT.TopicPrefix
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	l := c.Limits
	switch {
	case l.MinTemp >= l.MaxTemp:
		return fmt.Errorf("limits: min_temp %.1f must be below max_temp %.1f", l.MinTemp, l.MaxTemp)
	case l.WaterVolume <= 0:
		return errors.New("limits: water_volume must be positive")
	case l.PowerHeater <= 0:
		return errors.New("limits: power_heater must be positive")
	case l.MaxRunTime < time.Minute:
		return errors.New("limits: max_run_time must be at least 1m")
	case l.Hysteresis < 0:
		return errors.New("limits: hysteresis must not be negative")
	case l.CheckInterval <= 0:
		return errors.New("limits: check_interval must be positive")
	case l.FilterWindow <= 0:
		return errors.New("limits: filter_window must be positive")
	case l.MaxReadErrors < 0:
		return errors.New("limits: max_read_errors must not be negative")
	case c.Setpoint.RawMax <= c.Setpoint.RawMin:
		return fmt.Errorf("setpoint: raw_max %d must be above raw_min %d", c.Setpoint.RawMax, c.Setpoint.RawMin)
	case c.Alert.Frequency < 0:
		return errors.New("alert: frequency must not be negative")
	}

	switch c.Sensors.Driver {
	case DriverOneWire:
	case DriverSerial:
		if c.Sensors.SerialPort == "" {
			return errors.New("sensors: serial_port is required for the serial driver")
		}
	default:
		return fmt.Errorf("sensors: unknown driver %q", c.Sensors.Driver)
	}

	switch c.Display.Mode {
	case DisplayTerminal, DisplayPlain, DisplayNone:
	default:
		return fmt.Errorf("display: unknown mode %q", c.Display.Mode)
	}
	return nil
}

// ControlLimits returns the limits handed to the controller.
func (c *Config) ControlLimits() control.Limits {
	l := c.Limits
	return control.Limits{
		MinTemp:        l.MinTemp,
		MaxTemp:        l.MaxTemp,
		WaterVolume:    l.WaterVolume,
		PowerHeater:    l.PowerHeater,
		MaxRunTime:     l.MaxRunTime,
		MaxAmbient:     l.MaxAmbient,
		Hysteresis:     l.Hysteresis,
		CheckInterval:  l.CheckInterval,
		FilterWindow:   l.FilterWindow,
		MaxReadErrors:  l.MaxReadErrors,
		AlertBurst:     c.Alert.Burst,
		AlertPause:     c.Alert.Pause,
		AlertFrequency: c.Alert.Frequency,
	}
}

// Scale returns the setpoint mapping.
func (c *Config) Scale() setpoint.Scale {
	return setpoint.Scale{
		RawMin:  c.Setpoint.RawMin,
		RawMax:  c.Setpoint.RawMax,
		MinTemp: c.Limits.MinTemp,
		MaxTemp: c.Limits.MaxTemp,
	}
}
