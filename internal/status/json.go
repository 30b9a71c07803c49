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
	Power         string       `json:"power"`
	Source        string       `json:"source"`
	Ready         bool         `json:"ready"`
	LastEvent     *EventJSON   `json:"last_event,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Failures      FailuresJSON `json:"failures"`
	RecoveredFrom string       `json:"recovered_from,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// EventJSON is the JSON representation of the last transition.
type EventJSON struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Signals  int `json:"signals"`
	Restored int `json:"power_restored"`
	Lost     int `json:"power_lost"`
}

// FailuresJSON counts non-fatal failures since startup.
type FailuresJSON struct {
	Persist int `json:"persist"`
	Notify  int `json:"notify"`
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
	Source    string   `json:"source"`
	PollMs    int64    `json:"poll_ms"`
	Heartbeat string   `json:"heartbeat"`
	Broker    string   `json:"broker"`
	HTTPAddr  string   `json:"http_addr"`
	LogDriver string   `json:"log_driver"`
	LogPath   string   `json:"log_path"`
	Notifiers []string `json:"notifiers"`
}

func buildInner(snap Snapshot) StatusInner {
	power := string(snap.Power)
	if power == "" {
		power = "UNKNOWN"
	}
	notifiers := snap.Config.Notifiers
	if notifiers == nil {
		notifiers = []string{}
	}

	inner := StatusInner{
		Power:         power,
		Source:        snap.Power.Source(),
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Signals:  snap.Signals,
			Restored: snap.Counts.Restored,
			Lost:     snap.Counts.Lost,
		},
		Failures: FailuresJSON{
			Persist: snap.PersistFailures,
			Notify:  snap.NotifyFailures,
		},
		RecoveredFrom: snap.RecoveredFrom,
		Config: ConfigJSON{
			Source:    snap.Config.Source,
			PollMs:    snap.Config.PollMs,
			Heartbeat: snap.Config.Heartbeat,
			Broker:    snap.Config.Broker,
			HTTPAddr:  snap.Config.HTTPAddr,
			LogDriver: snap.Config.LogDriver,
			LogPath:   snap.Config.LogPath,
			Notifiers: notifiers,
		},
	}
	if e := snap.LastEvent; e != nil {
		inner.LastEvent = &EventJSON{
			ID:        e.ID,
			Kind:      string(e.Kind),
			Timestamp: e.Time.UTC().Format(time.RFC3339),
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
