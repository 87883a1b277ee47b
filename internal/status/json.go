package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	RunID          string       `json:"run_id"`
	State          string       `json:"state"`
	Ready          bool         `json:"ready"`
	Target         float64      `json:"target_c"`
	Current        float64      `json:"current_c"`
	Heater         string       `json:"heater"`
	Pump           string       `json:"pump"`
	ElapsedMinutes int          `json:"elapsed_minutes"`
	Fault          *FaultJSON   `json:"fault,omitempty"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// FaultJSON describes the latched fault.
type FaultJSON struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs          int64   `json:"poll_ms"`
	HeartbeatMs     int64   `json:"heartbeat_ms"`
	CheckIntervalMs int64   `json:"check_interval_ms"`
	MaxHeaterOnMs   int64   `json:"max_heater_on_ms"`
	MinTemp         float64 `json:"min_temp_c"`
	MaxTemp         float64 `json:"max_temp_c"`
	MaxAmbient      float64 `json:"max_ambient_c"`
	MaxRunMinutes   int64   `json:"max_run_minutes"`
	Broker          string  `json:"broker"`
	HTTPAddr        string  `json:"http_addr"`
}

// StateString returns RUNNING, HALTED or STARTING.
func StateString(snap Snapshot) string {
	switch {
	case snap.Control.Halted:
		return "HALTED"
	case snap.Ready:
		return "RUNNING"
	}
	return "STARTING"
}

func stateOrUnknown[S ~string](s S) string {
	if s == "" {
		return "UNKNOWN"
	}
	return string(s)
}

// round2 keeps JSON temperatures to sensor precision.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Control
	inner := StatusInner{
		RunID:          snap.RunID,
		State:          StateString(snap),
		Ready:          snap.Ready,
		Target:         round2(c.Target),
		Current:        round2(c.Current),
		Heater:         stateOrUnknown(c.Heater),
		Pump:           stateOrUnknown(c.Pump),
		ElapsedMinutes: c.ElapsedMinutes(),
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:          snap.Config.PollMs,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			CheckIntervalMs: snap.Config.CheckIntervalMs,
			MaxHeaterOnMs:   snap.Config.MaxHeaterOnMs,
			MinTemp:         snap.Config.MinTemp,
			MaxTemp:         snap.Config.MaxTemp,
			MaxAmbient:      snap.Config.MaxAmbient,
			MaxRunMinutes:   snap.Config.MaxRunMinutes,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}
	if f := c.Fault; f != nil {
		inner.Fault = &FaultJSON{
			Kind:    string(f.Kind),
			Code:    f.Code(),
			Message: f.Message,
			Time:    f.Time.UTC().Format(time.RFC3339),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
