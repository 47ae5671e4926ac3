package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Instance      string       `json:"instance"`
	Power         string       `json:"power"`
	MayWake       bool         `json:"may_wake"`
	WakeHolds     int          `json:"wake_holds"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Lines         []LineJSON   `json:"lines"`
	Counts        []CountJSON  `json:"event_counts"`
	LastEvent     *EventJSON   `json:"last_event,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// LineJSON is the JSON representation of one line.
type LineJSON struct {
	Label      string `json:"label"`
	GPIO       int    `json:"gpio"`
	Type       string `json:"type"`
	Code       uint16 `json:"code"`
	Sensing    string `json:"sensing"`
	DebounceMs int64  `json:"debounce_ms"`
	State      string `json:"state"`
	Pressed    bool   `json:"pressed"`
	Disabled   bool   `json:"disabled"`
	Failed     bool   `json:"failed,omitempty"`
	CanDisable bool   `json:"can_disable"`
	Wake       bool   `json:"wake"`
}

// CountJSON is the JSON representation of the counts of one code.
type CountJSON struct {
	Type    string `json:"type"`
	Code    uint16 `json:"code"`
	Label   string `json:"label,omitempty"`
	Press   int    `json:"press"`
	Release int    `json:"release"`
}

// EventJSON is the JSON representation of the most recent event.
type EventJSON struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Code      uint16 `json:"code"`
	Value     int32  `json:"value"`
	Label     string `json:"label,omitempty"`
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
	Chip        string `json:"chip"`
	Backend     string `json:"backend"`
	Resume      string `json:"resume"`
	Autorepeat  bool   `json:"autorepeat"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Instance:      snap.Config.Instance,
		Power:         snap.Power.String(),
		MayWake:       snap.MayWake,
		WakeHolds:     snap.Holds,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Lines:         make([]LineJSON, 0, len(snap.Lines)),
		Counts:        make([]CountJSON, 0, len(snap.Counts)),
		Config: ConfigJSON{
			Chip:        snap.Config.Chip,
			Backend:     snap.Config.Backend,
			Resume:      snap.Config.Resume,
			Autorepeat:  snap.Config.Autorepeat,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
	for _, l := range snap.Lines {
		inner.Lines = append(inner.Lines, LineJSON{
			Label:      l.Label,
			GPIO:       l.Offset,
			Type:       l.Type.String(),
			Code:       l.Code,
			Sensing:    l.Sensing.String(),
			DebounceMs: l.Debounce.Milliseconds(),
			State:      l.State.String(),
			Pressed:    l.Pressed,
			Disabled:   l.Disabled,
			Failed:     l.Failed,
			CanDisable: l.CanDisable,
			Wake:       l.Wake,
		})
	}
	for _, c := range snap.Counts {
		inner.Counts = append(inner.Counts, CountJSON{
			Type:    c.Type.String(),
			Code:    c.Code,
			Label:   c.Label,
			Press:   c.Press,
			Release: c.Release,
		})
	}
	if ev := snap.LastEvent; ev != nil {
		inner.LastEvent = &EventJSON{
			Timestamp: ev.Time.UTC().Format(time.RFC3339Nano),
			Type:      ev.Type.String(),
			Code:      ev.Code,
			Value:     ev.Value,
			Label:     ev.Label,
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
