// Package mqtt publishes power events and daemon lifecycle events to a broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/power-sensor/internal/logic"
)

// Topic is the MQTT topic for recorded power transitions.
const Topic = "power/sensor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "power/sensor/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a power event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the MQTT message for a power event.
type Payload struct {
	Power PowerPayload `json:"power"`
}

// PowerPayload contains the event details.
type PowerPayload struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"` // POWER_RESTORED or POWER_LOST
	State     string `json:"state"` // AC or BATTERY
}

// FormatPayload creates the JSON payload for a power event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Power: PowerPayload{
			ID:        event.ID,
			Timestamp: event.Time.UTC().Format(time.RFC3339),
			Event:     string(event.Kind),
			State:     event.Kind.Source(),
		},
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
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// WillPayload is the retained last-will message the broker publishes if the
// daemon disappears without a clean disconnect.
func WillPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "MQTT_DISCONNECT"})
	return data
}

// Discard is a Publisher that drops every message. It stands in when no
// broker is configured.
type Discard struct{}

// Publish drops the event.
func (Discard) Publish(logic.Event) error { return nil }

// PublishSystem drops the system event.
func (Discard) PublishSystem(SystemEvent) error { return nil }

// Close is a no-op.
func (Discard) Close() error { return nil }

// IsConnected always reports false.
func (Discard) IsConnected() bool { return false }
