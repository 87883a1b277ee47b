package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/proofer/internal/config"
	"github.com/sweeney/proofer/internal/control"
	"github.com/sweeney/proofer/internal/display"
	"github.com/sweeney/proofer/internal/gpio"
	"github.com/sweeney/proofer/internal/mqtt"
	"github.com/sweeney/proofer/internal/sensor"
	"github.com/sweeney/proofer/internal/setpoint"
	"github.com/sweeney/proofer/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}

	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

// --- runLoop tests ---

var t0 = time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// Raw setpoint values for DefaultScale.
const (
	raw20C = 0
	raw30C = 682
	raw35C = 1023
)

// targetFunc adapts a function to targetReader.
type targetFunc func() (float64, error)

func (f targetFunc) ReadTarget() (float64, error) { return f() }

type rig struct {
	in      sensors
	out     outputs
	liquid  *sensor.FakeReader
	ambient *sensor.FakeReader
	raw     *setpoint.FakeRawReader
	heater  *gpio.FakeSwitch
	pump    *gpio.FakeSwitch
	buzzer  *gpio.FakeBuzzer
	display *display.FakeDisplay
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
}

// newRig builds a cabinet with the setpoint at raw and a fixed liquid
// temperature. The ambient probe reads 25 °C.
func newRig(raw int, liquid ...float64) *rig {
	r := &rig{
		liquid:  sensor.NewFakeReader(liquid...),
		ambient: sensor.NewFakeReader(25),
		raw:     setpoint.NewFakeRawReader(raw),
		heater:  gpio.NewFakeSwitch(),
		pump:    gpio.NewFakeSwitch(),
		buzzer:  gpio.NewFakeBuzzer(),
		display: &display.FakeDisplay{},
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker("test-run", t0, status.Config{}),
	}
	r.in = sensors{
		target:  setpoint.NewReader(r.raw, setpoint.DefaultSamples, setpoint.DefaultScale),
		liquid:  r.liquid,
		ambient: r.ambient,
	}
	r.out = outputs{heater: r.heater, pump: r.pump, buzzer: r.buzzer, display: r.display}
	return r
}

// run drives runLoop for nTicks ticks of step each, then sends SIGTERM.
func (r *rig) run(t *testing.T, lim control.Limits, heartbeat, step time.Duration, nTicks int) {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(lim, r.in, r.out, r.pub, r.pub, r.tracker, heartbeat, fakeClock(t0, step), tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- syscall.SIGTERM

	if err := <-errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func eventTypes(pub *mqtt.FakePublisher) []mqtt.EventType {
	var types []mqtt.EventType
	for _, e := range pub.Events {
		types = append(types, e.Type)
	}
	return types
}

func TestRunLoopStartupAndShutdown(t *testing.T) {
	r := newRig(raw20C, 25)
	r.run(t, control.DefaultLimits(), 0, 500*time.Millisecond, 0)

	// Startup: heater OFF, pump ON. Shutdown: both OFF.
	if want := []bool{false, false}; !slices.Equal(r.heater.Writes, want) {
		t.Errorf("heater writes: got %v, want %v", r.heater.Writes, want)
	}
	if want := []bool{true, false}; !slices.Equal(r.pump.Writes, want) {
		t.Errorf("pump writes: got %v, want %v", r.pump.Writes, want)
	}

	if len(r.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(r.pub.SystemEvents))
	}
	ev := r.pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("unexpected shutdown event: %+v", ev)
	}
	if !strings.Contains(string(r.pub.SystemPayloads[0]), `"run_id":"test-run"`) {
		t.Errorf("shutdown payload missing run id: %s", r.pub.SystemPayloads[0])
	}
}

func TestRunLoopHeatsBelowTarget(t *testing.T) {
	r := newRig(raw30C, 25)
	r.run(t, control.DefaultLimits(), 0, 500*time.Millisecond, 5)

	// One ON write after the startup OFF, none repeated, then OFF at shutdown.
	if want := []bool{false, true, false}; !slices.Equal(r.heater.Writes, want) {
		t.Errorf("heater writes: got %v, want %v", r.heater.Writes, want)
	}
	if want := []mqtt.EventType{mqtt.EventHeaterOn}; !slices.Equal(eventTypes(r.pub), want) {
		t.Errorf("events: got %v, want %v", eventTypes(r.pub), want)
	}

	if len(r.display.Frames) != 5 {
		t.Fatalf("expected 5 display frames, got %d", len(r.display.Frames))
	}
	last := r.display.Last()
	if last.Line1 != "Set 30.0 Is 25.0" || last.Line2 != "HEAT PUMP     0m" {
		t.Errorf("display: got %q / %q", last.Line1, last.Line2)
	}

	snap := r.tracker.Snapshot()
	if !snap.Ready || snap.Control.Heater != control.StateOn || snap.Control.Target != 30 {
		t.Errorf("tracker not updated: %+v", snap.Control)
	}
}

func TestRunLoopStaysOffAtTarget(t *testing.T) {
	r := newRig(raw30C, 30)
	r.run(t, control.DefaultLimits(), 0, 500*time.Millisecond, 5)

	if want := []bool{false, false}; !slices.Equal(r.heater.Writes, want) {
		t.Errorf("heater writes: got %v, want %v", r.heater.Writes, want)
	}
	if len(r.pub.Events) != 0 {
		t.Errorf("expected no events, got %v", eventTypes(r.pub))
	}
}

func TestRunLoopSetpointErrorKeepsTarget(t *testing.T) {
	r := newRig(raw30C, 25)
	reads := 0
	r.in.target = targetFunc(func() (float64, error) {
		reads++
		if reads == 1 {
			return 30, nil
		}
		return 0, errors.New("adc busy")
	})

	r.run(t, control.DefaultLimits(), 0, 500*time.Millisecond, 4)

	if want := []mqtt.EventType{mqtt.EventHeaterOn}; !slices.Equal(eventTypes(r.pub), want) {
		t.Errorf("events: got %v, want %v", eventTypes(r.pub), want)
	}
	if got := r.tracker.Snapshot().Control.Target; got != 30 {
		t.Errorf("target: got %v, want 30", got)
	}
}

func TestRunLoopOverTemperatureHalts(t *testing.T) {
	r := newRig(raw20C, 36)
	// Ticks every 30s: the first safety check runs on tick 4 (t=120s).
	r.run(t, control.DefaultLimits(), 0, 30*time.Second, 6)

	if want := []mqtt.EventType{mqtt.EventPumpOff, mqtt.EventFault}; !slices.Equal(eventTypes(r.pub), want) {
		t.Fatalf("events: got %v, want %v", eventTypes(r.pub), want)
	}
	if f := r.pub.Events[1].Status.Fault; f == nil || f.Kind != control.OverTemperature {
		t.Errorf("fault: got %+v, want OverTemperature", f)
	}

	// Pump ON at startup, OFF on abort, OFF again at shutdown.
	if want := []bool{true, false, false}; !slices.Equal(r.pump.Writes, want) {
		t.Errorf("pump writes: got %v, want %v", r.pump.Writes, want)
	}
	for i, on := range r.heater.Writes {
		if on {
			t.Errorf("heater write %d: heater must never turn on", i)
		}
	}

	// Halted ticks read nothing.
	if r.liquid.Reads != 4 {
		t.Errorf("liquid reads: got %d, want 4", r.liquid.Reads)
	}

	// Alert on the fault tick and on each of the two halted ticks.
	if len(r.buzzer.Tones) != 3 {
		t.Fatalf("expected 3 alert tones, got %d", len(r.buzzer.Tones))
	}
	if tone := r.buzzer.Tones[0]; tone.Duration != time.Second || tone.FreqHz != 2000 {
		t.Errorf("tone: got %+v", tone)
	}
	if r.display.Alerts() != 3 {
		t.Errorf("expected 3 alert frames, got %d", r.display.Alerts())
	}
	last := r.display.Last()
	if last.Line1 != "System halted" || last.Line2 != "E3 over temp" {
		t.Errorf("alert: got %q / %q", last.Line1, last.Line2)
	}

	if want := []string{"HALTED", "SHUTDOWN"}; !slices.Equal(r.pub.SystemEventNames(), want) {
		t.Errorf("system events: got %v, want %v", r.pub.SystemEventNames(), want)
	}
	halted := r.pub.SystemEvents[0]
	if halted.Reason != "OVER_TEMPERATURE" || !halted.Retained {
		t.Errorf("halted event: %+v", halted)
	}
	if !strings.Contains(string(r.pub.SystemPayloads[0]), `"state":"HALTED"`) {
		t.Errorf("halted payload: %s", r.pub.SystemPayloads[0])
	}
	if snap := r.tracker.Snapshot(); !snap.Control.Halted {
		t.Error("tracker should report halted")
	}
}

func TestRunLoopAlertIsPaced(t *testing.T) {
	r := newRig(raw20C, 36)
	lim := control.DefaultLimits()
	lim.CheckInterval = time.Second

	// Fault on tick 2 (t=1s). Burst+pause is 3s, so with 500ms ticks the
	// alert repeats on every sixth tick.
	r.run(t, lim, 0, 500*time.Millisecond, 14)

	// Alerts at t=1s, 4s and 7s.
	if len(r.buzzer.Tones) != 3 {
		t.Errorf("expected 3 alert tones, got %d", len(r.buzzer.Tones))
	}
}

func TestRunLoopAmbientOverTemperature(t *testing.T) {
	r := newRig(raw20C, 25)
	r.ambient.Temps = []float64{45}

	r.run(t, control.DefaultLimits(), 0, 60*time.Second, 2)

	if r.ambient.Reads != 1 {
		t.Errorf("ambient reads: got %d, want 1 (only at the check)", r.ambient.Reads)
	}
	if last := r.display.Last(); last.Line2 != "E5 ambient" {
		t.Errorf("alert line2: got %q, want E5 ambient", last.Line2)
	}
}

func TestRunLoopLiquidReadErrorsHalt(t *testing.T) {
	r := newRig(raw30C, 25)
	r.liquid.ReadError = errors.New("crc mismatch")

	r.run(t, control.DefaultLimits(), 0, 500*time.Millisecond, 7)

	if want := []mqtt.EventType{mqtt.EventPumpOff, mqtt.EventFault}; !slices.Equal(eventTypes(r.pub), want) {
		t.Fatalf("events: got %v, want %v", eventTypes(r.pub), want)
	}
	if f := r.pub.Events[1].Status.Fault; f.Kind != control.SensorFault {
		t.Errorf("fault kind: got %s, want SENSOR_FAULT", f.Kind)
	}
	if r.liquid.Reads != control.DefaultMaxReadErrors {
		t.Errorf("liquid reads: got %d, want %d", r.liquid.Reads, control.DefaultMaxReadErrors)
	}
	for _, on := range r.heater.Writes {
		if on {
			t.Error("heater must never turn on without a valid reading")
		}
	}
}

func TestRunLoopRetriesFailedAbortWrite(t *testing.T) {
	r := newRig(raw30C, 25)
	readErr := errors.New("crc mismatch")
	r.liquid.Errors = map[int]error{1: readErr, 2: readErr, 3: readErr, 4: readErr, 5: readErr}
	// Attempts: 0 startup OFF, 1 ON, 2 abort OFF, 3 first halted retry.
	gpioErr := errors.New("line busy")
	r.heater.Errors = map[int]error{2: gpioErr, 3: gpioErr}

	r.run(t, control.DefaultLimits(), 0, 500*time.Millisecond, 12)

	if f := r.pub.Events[len(r.pub.Events)-1].Status.Fault; f == nil || f.Kind != control.SensorFault {
		t.Fatalf("fault: got %+v, want SensorFault", f)
	}
	// Retried on halted ticks until a write lands, then left alone until shutdown.
	if want := []bool{false, true, false, false, false, false}; !slices.Equal(r.heater.Attempts, want) {
		t.Errorf("heater attempts: got %v, want %v", r.heater.Attempts, want)
	}
	if want := []bool{false, true, false, false}; !slices.Equal(r.heater.Writes, want) {
		t.Errorf("heater writes: got %v, want %v", r.heater.Writes, want)
	}
	if r.heater.On {
		t.Error("heater left ON")
	}
}

func TestRunLoopAbortWritesOffAfterFailedWrite(t *testing.T) {
	r := newRig(raw30C, 25, 31, 40)
	r.heater.Errors = map[int]error{2: errors.New("line busy")}
	lim := control.DefaultLimits()
	lim.FilterWindow = 1
	lim.CheckInterval = 1500 * time.Millisecond

	// t=0.5s heater ON; t=1s OFF write fails; t=1.5s over-temperature abort.
	r.run(t, lim, 0, 500*time.Millisecond, 4)

	want := []mqtt.EventType{mqtt.EventHeaterOn, mqtt.EventHeaterOff, mqtt.EventPumpOff, mqtt.EventFault}
	if !slices.Equal(eventTypes(r.pub), want) {
		t.Fatalf("events: got %v, want %v", eventTypes(r.pub), want)
	}
	if f := r.pub.Events[3].Status.Fault; f.Kind != control.OverTemperature {
		t.Errorf("fault kind: got %s, want OVER_TEMPERATURE", f.Kind)
	}
	if want := []bool{false, true, false, false, false}; !slices.Equal(r.heater.Attempts, want) {
		t.Errorf("heater attempts: got %v, want %v", r.heater.Attempts, want)
	}
	if want := []bool{false, true, false, false}; !slices.Equal(r.heater.Writes, want) {
		t.Errorf("heater writes: got %v, want %v", r.heater.Writes, want)
	}
}

func TestRunLoopRetriesFailedWriteWhileRunning(t *testing.T) {
	r := newRig(raw30C, 25)
	r.heater.Errors = map[int]error{1: errors.New("line busy")}

	r.run(t, control.DefaultLimits(), 0, 500*time.Millisecond, 3)

	// The ON write fails on tick 1 and is repeated on tick 2 only.
	if want := []bool{false, true, true, false}; !slices.Equal(r.heater.Attempts, want) {
		t.Errorf("heater attempts: got %v, want %v", r.heater.Attempts, want)
	}
	if want := []bool{false, true, false}; !slices.Equal(r.heater.Writes, want) {
		t.Errorf("heater writes: got %v, want %v", r.heater.Writes, want)
	}
}

func TestRunLoopHeaterTimeout(t *testing.T) {
	// Slowly rising liquid: heating never stalls, but it runs too long.
	temps := make([]float64, 60)
	for i := range temps {
		temps[i] = 20 + float64(i)*0.01
	}
	r := newRig(raw35C, temps...)

	// One tick per check interval. The heater turns on at t=120s, so the
	// 4884.6s limit is exceeded at the check on tick 42 (t=5040s).
	r.run(t, control.DefaultLimits(), 0, 120*time.Second, 45)

	want := []mqtt.EventType{mqtt.EventHeaterOn, mqtt.EventHeaterOff, mqtt.EventPumpOff, mqtt.EventFault}
	if !slices.Equal(eventTypes(r.pub), want) {
		t.Fatalf("events: got %v, want %v", eventTypes(r.pub), want)
	}
	fault := r.pub.Events[3]
	if fault.Status.Fault.Kind != control.HeaterTimeout {
		t.Errorf("fault kind: got %s, want HEATER_TIMEOUT", fault.Status.Fault.Kind)
	}
	if got, want := fault.Timestamp, t0.Add(42*120*time.Second); !got.Equal(want) {
		t.Errorf("fault at %v, want %v", got, want)
	}
	if r.liquid.Reads != 42 {
		t.Errorf("liquid reads: got %d, want 42", r.liquid.Reads)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	r := newRig(raw30C, 25)
	r.in.ambient = nil

	r.run(t, control.DefaultLimits(), time.Minute, 30*time.Second, 5)

	want := []string{"HEARTBEAT", "HEARTBEAT", "SHUTDOWN"}
	if !slices.Equal(r.pub.SystemEventNames(), want) {
		t.Errorf("system events: got %v, want %v", r.pub.SystemEventNames(), want)
	}
	if r.pub.SystemEvents[0].Retained {
		t.Error("heartbeat should not be retained")
	}
	if !strings.Contains(string(r.pub.SystemPayloads[0]), `"event":"HEARTBEAT"`) {
		t.Errorf("heartbeat payload: %s", r.pub.SystemPayloads[0])
	}
}

func TestRunLoopPublishErrorsDoNotStopControl(t *testing.T) {
	r := newRig(raw30C, 25)
	r.pub.PublishError = errors.New("broker down")
	r.pub.PublishSystemError = errors.New("broker down")

	r.run(t, control.DefaultLimits(), 0, 500*time.Millisecond, 3)

	if want := []bool{false, true, false}; !slices.Equal(r.heater.Writes, want) {
		t.Errorf("heater writes: got %v, want %v", r.heater.Writes, want)
	}
}

func TestRunLoopReportsMQTTConnection(t *testing.T) {
	r := newRig(raw30C, 25)
	r.pub.Connected = true

	r.run(t, control.DefaultLimits(), 0, 500*time.Millisecond, 1)

	if !r.tracker.Snapshot().MQTTConnected {
		t.Error("expected tracker to report MQTT connected")
	}
}

func TestPrintReadings(t *testing.T) {
	r := newRig(raw30C, 26.5)
	r.ambient.Temps = []float64{22.25}

	var buf bytes.Buffer
	if err := printReadings(&buf, r.in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Target: 30.0°C, Liquid: 26.50°C, Ambient: 22.25°C\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPrintReadingsError(t *testing.T) {
	r := newRig(raw30C, 26.5)
	r.liquid.ReadError = sensor.ErrCRC

	var buf bytes.Buffer
	err := printReadings(&buf, r.in)
	if !errors.Is(err, sensor.ErrCRC) {
		t.Errorf("expected ErrCRC, got %v", err)
	}
}

func writeProbe(t *testing.T, dir, id string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, id), 0755); err != nil {
		t.Fatal(err)
	}
}

func TestOneWireIDsDiscovery(t *testing.T) {
	dir := t.TempDir()
	writeProbe(t, dir, "28-000000000001")
	writeProbe(t, dir, "28-000000000002")

	liquid, ambient, err := oneWireIDs(config.SensorsConfig{W1Dir: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if liquid != "28-000000000001" || ambient != "28-000000000002" {
		t.Errorf("got liquid=%s ambient=%s", liquid, ambient)
	}

	// A configured liquid probe is skipped during discovery.
	liquid, ambient, err = oneWireIDs(config.SensorsConfig{W1Dir: dir, LiquidID: "28-000000000002"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if liquid != "28-000000000002" || ambient != "28-000000000001" {
		t.Errorf("got liquid=%s ambient=%s", liquid, ambient)
	}
}

func TestOneWireIDsMissingProbe(t *testing.T) {
	dir := t.TempDir()
	writeProbe(t, dir, "28-000000000001")

	if _, _, err := oneWireIDs(config.SensorsConfig{W1Dir: dir}); err == nil {
		t.Error("expected error with a single probe")
	}
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Default()
	sc := statusConfig(cfg, cfg.ControlLimits(), 500*time.Millisecond, 15*time.Minute)

	if sc.MaxHeaterOnMs != 4884600 {
		t.Errorf("MaxHeaterOnMs: got %d, want 4884600", sc.MaxHeaterOnMs)
	}
	if sc.CheckIntervalMs != 120000 {
		t.Errorf("CheckIntervalMs: got %d, want 120000", sc.CheckIntervalMs)
	}
	if sc.MaxRunMinutes != 720 {
		t.Errorf("MaxRunMinutes: got %d, want 720", sc.MaxRunMinutes)
	}
	if sc.PollMs != 500 || sc.HeartbeatMs != 900000 {
		t.Errorf("poll/heartbeat: got %d/%d", sc.PollMs, sc.HeartbeatMs)
	}
}
