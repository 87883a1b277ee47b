// Command proofer runs the proofing-cabinet temperature controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/proofer/internal/bridge"
	"github.com/sweeney/proofer/internal/config"
	"github.com/sweeney/proofer/internal/control"
	"github.com/sweeney/proofer/internal/display"
	"github.com/sweeney/proofer/internal/gpio"
	"github.com/sweeney/proofer/internal/mqtt"
	"github.com/sweeney/proofer/internal/sensor"
	"github.com/sweeney/proofer/internal/setpoint"
	"github.com/sweeney/proofer/internal/status"
	"github.com/sweeney/proofer/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/proofer.yaml", "YAML config file (defaults apply if missing)")
	poll := flag.Duration("poll", 500*time.Millisecond, "Control loop interval")
	broker := flag.String("broker", "", "MQTT broker address (overrides config)")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	printState := flag.Bool("print-state", false, "Print setpoint and temperatures and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	switch *httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = *httpAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, *poll, *heartbeat, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// targetReader yields the operator's setpoint in °C.
type targetReader interface {
	ReadTarget() (float64, error)
}

// sensors are the control loop inputs.
type sensors struct {
	target  targetReader
	liquid  sensor.TemperatureReader
	ambient sensor.TemperatureReader // nil skips the enclosure check
}

// outputs are the actuators and the operator-facing surfaces.
type outputs struct {
	heater  gpio.Switch
	pump    gpio.Switch
	buzzer  gpio.Buzzer
	display display.Display // may be nil
}

func run(cfg *config.Config, poll, heartbeat time.Duration, printState bool) error {
	in, closeSensors, err := openSensors(cfg)
	if err != nil {
		return fmt.Errorf("init sensors: %w", err)
	}
	defer closeSensors()

	// Print state mode never touches the actuators.
	if printState {
		return printReadings(os.Stdout, in)
	}

	out, closeOutputs, err := openOutputs(cfg)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer closeOutputs()

	runID := uuid.NewString()
	lim := cfg.ControlLimits()

	publisher, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix, runID)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(runID, time.Now(), statusConfig(cfg, lim, poll, heartbeat))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, log.Writer())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: run=%s poll=%v broker=%s heartbeat=%v check=%v max_heater_on=%v",
		runID, poll, cfg.MQTT.Broker, heartbeat, lim.CheckInterval, lim.MaxHeaterOnTime().Truncate(time.Second))

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(lim, in, out, publisher, publisher, tracker, heartbeat, time.Now, ticker.C, sigCh)
}

// runLoop owns the Controller. Each tick reads the inputs, steps the
// controller and writes the actuators that changed or whose last write
// failed. A fault writes both actuators OFF unconditionally; once halted,
// ticks retry any failed OFF write and repeat the alert. It returns on
// SIGINT/SIGTERM with both actuators OFF.
func runLoop(lim control.Limits, in sensors, out outputs, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	ctrl := control.New(lim, startTime)
	hb := status.NewHeartbeat(heartbeat, startTime)

	heater := &relay{sw: out.heater, name: "heater"}
	pump := &relay{sw: out.pump, name: "pump"}
	heater.set(ctrl.Heater())
	pump.set(ctrl.Pump())

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			heater.set(control.StateOff)
			pump.set(control.StateOff)

			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			t := now()
			updateTracker(tracker, mqttStatus, ctrl.Status(t))
			if err := publishSystem(publisher, tracker, t, "SHUTDOWN", signalName, true); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()

			if ctrl.Halted() {
				if heater.stale {
					heater.set(control.StateOff)
				}
				if pump.stale {
					pump.set(control.StateOff)
				}
				if ctrl.CheckAlert(t) {
					soundAlert(out, ctrl.Fault(), lim)
				}
				updateTracker(tracker, mqttStatus, ctrl.Status(t))
				beat(hb, publisher, tracker, t)
				continue
			}

			target, err := in.target.ReadTarget()
			if err != nil {
				log.Printf("setpoint read error: %v", err)
				target = ctrl.Target()
			}
			liquid, liquidErr := in.liquid.ReadTemperature()
			if liquidErr != nil {
				log.Printf("liquid sensor read error: %v", liquidErr)
			}
			var ambient control.AmbientFunc
			if in.ambient != nil {
				ambient = in.ambient.ReadTemperature
			}

			res := ctrl.Tick(control.Reading{
				Time:      t,
				Target:    target,
				Liquid:    liquid,
				LiquidErr: liquidErr,
				Ambient:   ambient,
			})

			aborted := res.Fault != nil
			if res.HeaterChanged || heater.stale || aborted {
				heater.set(res.Heater)
			}
			if res.PumpChanged || pump.stale || aborted {
				pump.set(res.Pump)
			}

			for _, event := range mqtt.TransitionEvents(t, res) {
				log.Printf("event: %s (target=%.1f current=%.2f heater=%s pump=%s)",
					event.Type, res.Status.Target, res.Status.Current, res.Heater, res.Pump)
				if err := publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
					// Don't stop controlling on publish failure
				}
			}

			updateTracker(tracker, mqttStatus, res.Status)

			if f := res.Fault; f != nil {
				log.Printf("fault: %v", f)
				if err := publishSystem(publisher, tracker, t, "HALTED", string(f.Kind), true); err != nil {
					log.Printf("failed to publish halted event: %v", err)
				}
				if ctrl.CheckAlert(t) {
					soundAlert(out, f, lim)
				}
			} else if out.display != nil {
				if err := out.display.Render(display.FromControl(res.Status)); err != nil {
					log.Printf("display error: %v", err)
				}
			}

			beat(hb, publisher, tracker, t)
		}
	}
}

// relay drives one actuator and remembers whether its last write failed.
type relay struct {
	sw    gpio.Switch
	name  string
	stale bool // last write failed; the physical output is unknown
}

func (r *relay) set(st control.State) {
	if err := r.sw.Set(st.On()); err != nil {
		log.Printf("%s write error: %v", r.name, err)
		r.stale = true
		return
	}
	r.stale = false
}

// soundAlert shows the halted message and sounds one burst.
func soundAlert(out outputs, f *control.Fault, lim control.Limits) {
	if out.display != nil {
		if err := out.display.Alert(control.HaltedHeader, f.Code()); err != nil {
			log.Printf("display error: %v", err)
		}
	}
	if err := out.buzzer.Sound(lim.AlertBurst, lim.AlertFrequency); err != nil {
		log.Printf("buzzer error: %v", err)
	}
}

func updateTracker(tracker *status.Tracker, mqttStatus mqtt.ConnectionStatus, st control.Status) {
	if tracker == nil {
		return
	}
	tracker.Update(st)
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}

func beat(hb *status.Heartbeat, publisher mqtt.Publisher, tracker *status.Tracker, t time.Time) {
	if !hb.Due(t) {
		return
	}
	if tracker != nil {
		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			tracker.SetNetwork(net)
		}
	}
	if err := publishSystem(publisher, tracker, t, "HEARTBEAT", "", false); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

// publishSystem sends a lifecycle event carrying the tracker's snapshot.
func publishSystem(publisher mqtt.Publisher, tracker *status.Tracker, t time.Time, event, reason string, retained bool) error {
	ev := mqtt.SystemEvent{
		Timestamp: t,
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if tracker != nil {
		ev.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), event, reason)
	}
	return publisher.PublishSystem(ev)
}

func openSensors(cfg *config.Config) (sensors, func(), error) {
	if cfg.Sensors.Driver == config.DriverSerial {
		b, err := bridge.Open(cfg.Sensors.SerialPort, cfg.Sensors.BaudRate)
		if err != nil {
			return sensors{}, nil, err
		}
		log.Printf("sensors: serial bridge on %s", cfg.Sensors.SerialPort)
		return sensors{
			target:  setpoint.NewReader(b, cfg.Setpoint.Samples, cfg.Scale()),
			liquid:  b.Liquid(),
			ambient: b.Ambient(),
		}, func() { b.Close() }, nil
	}

	liquidID, ambientID, err := oneWireIDs(cfg.Sensors)
	if err != nil {
		return sensors{}, nil, err
	}
	log.Printf("sensors: 1-wire liquid=%s ambient=%s, setpoint %s", liquidID, ambientID, cfg.Setpoint.Path)
	return sensors{
		target:  setpoint.NewReader(setpoint.NewSysfs(cfg.Setpoint.Path), cfg.Setpoint.Samples, cfg.Scale()),
		liquid:  sensor.NewOneWire(cfg.Sensors.W1Dir, liquidID),
		ambient: sensor.NewOneWire(cfg.Sensors.W1Dir, ambientID),
	}, func() {}, nil
}

// oneWireIDs resolves the liquid and ambient probes. Unset ids are taken
// from the bus in discovery order.
func oneWireIDs(sc config.SensorsConfig) (string, string, error) {
	liquid, ambient := sc.LiquidID, sc.AmbientID
	if liquid != "" && ambient != "" {
		return liquid, ambient, nil
	}

	found, err := sensor.ListOneWire(sc.W1Dir)
	if err != nil {
		return "", "", fmt.Errorf("list 1-wire devices: %w", err)
	}
	for _, id := range found {
		switch {
		case id == liquid || id == ambient:
		case liquid == "":
			liquid = id
		case ambient == "":
			ambient = id
		}
	}
	if liquid == "" || ambient == "" {
		return "", "", fmt.Errorf("need liquid and ambient probes, found %d under %s", len(found), sc.W1Dir)
	}
	return liquid, ambient, nil
}

func openOutputs(cfg *config.Config) (outputs, func(), error) {
	g := cfg.GPIO
	heater, err := gpio.NewRealSwitch(g.Chip, g.Heater, g.ActiveLow, "heater")
	if err != nil {
		return outputs{}, nil, err
	}
	pump, err := gpio.NewRealSwitch(g.Chip, g.Pump, g.ActiveLow, "pump")
	if err != nil {
		heater.Close()
		return outputs{}, nil, err
	}
	buzzer, err := gpio.NewRealBuzzer(g.Chip, g.Buzzer)
	if err != nil {
		heater.Close()
		pump.Close()
		return outputs{}, nil, err
	}

	out := outputs{heater: heater, pump: pump, buzzer: buzzer}
	switch cfg.Display.Mode {
	case config.DisplayTerminal:
		out.display = display.NewTerminal(os.Stdout)
	case config.DisplayPlain:
		out.display = display.NewPlain(os.Stdout)
	}

	return out, func() {
		heater.Close()
		pump.Close()
		buzzer.Close()
	}, nil
}

func statusConfig(cfg *config.Config, lim control.Limits, poll, heartbeat time.Duration) status.Config {
	return status.Config{
		PollMs:          poll.Milliseconds(),
		HeartbeatMs:     heartbeat.Milliseconds(),
		CheckIntervalMs: lim.CheckInterval.Milliseconds(),
		MaxHeaterOnMs:   lim.MaxHeaterOnTime().Milliseconds(),
		MinTemp:         lim.MinTemp,
		MaxTemp:         lim.MaxTemp,
		MaxAmbient:      lim.MaxAmbient,
		MaxRunMinutes:   int64(lim.MaxRunTime / time.Minute),
		Broker:          cfg.MQTT.Broker,
		HTTPAddr:        cfg.HTTP.Addr,
	}
}

// printReadings reads every input once.
func printReadings(w io.Writer, in sensors) error {
	target, err := in.target.ReadTarget()
	if err != nil {
		return fmt.Errorf("read setpoint: %w", err)
	}
	liquid, err := in.liquid.ReadTemperature()
	if err != nil {
		return fmt.Errorf("read liquid temperature: %w", err)
	}
	fmt.Fprintf(w, "Target: %.1f°C, Liquid: %.2f°C", target, liquid)
	if in.ambient != nil {
		ambient, err := in.ambient.ReadTemperature()
		if err != nil {
			return fmt.Errorf("read ambient temperature: %w", err)
		}
		fmt.Fprintf(w, ", Ambient: %.2f°C", ambient)
	}
	fmt.Fprintln(w)
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
