// Package mqtt publishes key events and system lifecycle events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/gpio-keys/internal/input"
)

// Topic suffixes appended to the configured base topic.
const (
	SuffixEvents = "/events"
	SuffixSystem = "/system"
)

// System event names.
const (
	EventStartup   = "STARTUP"
	EventShutdown  = "SHUTDOWN"
	EventHeartbeat = "HEARTBEAT"
	EventSuspend   = "SUSPEND"
	EventResume    = "RESUME"
)

// ReasonDisconnect is the reason carried by the last-will message.
const ReasonDisconnect = "MQTT_DISCONNECT"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends one group of key events to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(group Group) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Group is a set of events reported together by one instance, such as the
// press and release of a pulse line.
type Group struct {
	Instance string
	Events   []input.Event
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "SUSPEND"
	Reason     string // e.g., "SIGTERM", or the woken lines on resume
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a group of key events.
type Payload struct {
	Keys KeysPayload `json:"keys"`
}

// KeysPayload contains the group details.
type KeysPayload struct {
	Timestamp string         `json:"timestamp"`
	Instance  string         `json:"instance"`
	Events    []EventPayload `json:"events"`
}

// EventPayload is one event of a group.
type EventPayload struct {
	Type  string `json:"type"`
	Code  uint16 `json:"code"`
	Value int32  `json:"value"`
	Label string `json:"label,omitempty"`
}

// FormatPayload creates the JSON payload for a group. The group timestamp is
// taken from its first event.
func FormatPayload(group Group) ([]byte, error) {
	payload := Payload{
		Keys: KeysPayload{
			Instance: group.Instance,
			Events:   make([]EventPayload, 0, len(group.Events)),
		},
	}
	if len(group.Events) > 0 {
		payload.Keys.Timestamp = group.Events[0].Time.UTC().Format(time.RFC3339Nano)
	}
	for _, ev := range group.Events {
		payload.Keys.Events = append(payload.Keys.Events, EventPayload{
			Type:  ev.Type.String(),
			Code:  ev.Code,
			Value: ev.Value,
			Label: ev.Label,
		})
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, SUSPEND) that don't carry a full status snapshot.
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

// WillPayload is the last-will message the broker publishes on the system
// topic if the connection drops without a clean disconnect.
func WillPayload() []byte {
	b, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: EventShutdown, Reason: ReasonDisconnect}})
	return b
}
