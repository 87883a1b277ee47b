package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// offlineCapacity bounds the messages held while the broker is unreachable.
const offlineCapacity = 256

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	runID  string

	// connected reports whether the broker connection is open.
	connected func() bool

	mu      sync.Mutex
	offline *ringBuffer
	wasUp   bool
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is retried in the background; an unreachable broker is not an error.
func NewRealPublisher(broker, clientID, prefix, runID string) (*RealPublisher, error) {
	if clientID == "" {
		clientID = "proofer"
	}
	p := &RealPublisher{
		topics:  TopicsFor(prefix),
		runID:   runID,
		offline: newRingBuffer(offlineCapacity),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	p.connected = p.client.IsConnectionOpen
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect replays buffered messages and announces a reconnect.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending := p.offline.drain()
	reconnect := p.wasUp
	p.wasUp = true
	p.mu.Unlock()

	if reconnect {
		log.Printf("mqtt: reconnected, replaying %d buffered messages", len(pending))
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err == nil {
			c.Publish(p.topics.System, 1, false, payload)
		}
	}
	for _, msg := range pending {
		c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	}
}

// send buffers msg while disconnected. The connection check and the push
// happen under p.mu so onConnect's drain cannot slip between them.
func (p *RealPublisher) send(msg outbound) error {
	if p.buffer(msg) {
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// buffer pushes msg to the offline buffer and returns true if the broker
// connection is down.
func (p *RealPublisher) buffer(msg outbound) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected() {
		return false
	}
	p.offline.push(msg)
	return true
}

// Publish sends a cabinet event. FAULT events are retained so a late
// subscriber still sees why the cabinet halted.
func (p *RealPublisher) Publish(event Event) error {
	payload, err := FormatPayload(event, p.runID)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	fault := event.Type == EventFault
	var qos byte
	if fault {
		qos = 1
	}
	return p.send(outbound{topic: p.topics.Events, payload: payload, qos: qos, retained: fault})
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(outbound{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
