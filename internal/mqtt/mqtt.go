// Package mqtt publishes cabinet telemetry and lifecycle events to MQTT.
// It is publish-only: nothing received from the broker reaches the controller.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/proofer/internal/control"
)

// DefaultTopicPrefix is the topic root for a single cabinet.
const DefaultTopicPrefix = "kitchen/proofer"

// Topics holds the topics a publisher writes to.
type Topics struct {
	Events string // actuator transitions and faults
	System string // lifecycle events with full status snapshots
}

// TopicsFor derives the topics under prefix.
func TopicsFor(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{
		Events: prefix + "/events",
		System: prefix + "/system",
	}
}

// EventType is a published cabinet event.
type EventType string

const (
	EventHeaterOn  EventType = "HEATER_ON"
	EventHeaterOff EventType = "HEATER_OFF"
	EventPumpOn    EventType = "PUMP_ON"
	EventPumpOff   EventType = "PUMP_OFF"
	EventFault     EventType = "FAULT"
)

// Event is an actuator transition or fault to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Status    control.Status
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a cabinet event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, heartbeat, halted, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "HEARTBEAT", "HALTED", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM", fault kind
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Cabinet CabinetPayload `json:"cabinet"`
}

// CabinetPayload contains the cabinet event details.
type CabinetPayload struct {
	Timestamp string        `json:"timestamp"`
	RunID     string        `json:"run_id,omitempty"`
	Event     string        `json:"event"`
	Target    float64       `json:"target_c"`
	Current   float64       `json:"current_c"`
	Heater    string        `json:"heater"`
	Pump      string        `json:"pump"`
	Fault     *FaultPayload `json:"fault,omitempty"`
}

// FaultPayload describes a raised fault.
type FaultPayload struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FormatPayload creates the JSON payload for a cabinet event.
func FormatPayload(event Event, runID string) ([]byte, error) {
	st := event.Status
	payload := Payload{
		Cabinet: CabinetPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			RunID:     runID,
			Event:     string(event.Type),
			Target:    st.Target,
			Current:   st.Current,
			Heater:    string(st.Heater),
			Pump:      string(st.Pump),
		},
	}
	if f := st.Fault; f != nil {
		payload.Cabinet.Fault = &FaultPayload{Kind: string(f.Kind), Code: f.Code(), Message: f.Message}
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// TransitionEvents returns the events for the actuator changes in out.
func TransitionEvents(now time.Time, out control.Output) []Event {
	var events []Event
	if out.HeaterChanged {
		t := EventHeaterOff
		if out.Heater.On() {
			t = EventHeaterOn
		}
		events = append(events, Event{Timestamp: now, Type: t, Status: out.Status})
	}
	if out.PumpChanged {
		t := EventPumpOff
		if out.Pump.On() {
			t = EventPumpOn
		}
		events = append(events, Event{Timestamp: now, Type: t, Status: out.Status})
	}
	if out.Fault != nil {
		events = append(events, Event{Timestamp: now, Type: EventFault, Status: out.Status})
	}
	return events
}
