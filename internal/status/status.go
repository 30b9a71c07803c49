// Package status provides a thread-safe status tracker for the power-sensor daemon.
// It is read by HTTP handlers and by the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/power-sensor/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Source    string
	PollMs    int64
	Heartbeat string // cron spec, empty = disabled
	Broker    string
	HTTPAddr  string
	LogDriver string
	LogPath   string
	Notifiers []string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Power           logic.Kind // last raw reading, "" before the first one
	LastEvent       *logic.Event
	Counts          logic.EventCounts
	Signals         int
	PersistFailures int
	NotifyFailures  int
	RecoveredFrom   string // backup path if the log was corrupt at startup
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether a power reading has been taken.
func (s Snapshot) Ready() bool {
	return s.Power != ""
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Signal records a raw power reading.
func (t *Tracker) Signal(k logic.Kind) {
	t.mu.Lock()
	t.snap.Power = k
	t.snap.Signals++
	t.mu.Unlock()
}

// Transition records a genuine transition. recorded is false when the event
// could not be persisted.
func (t *Tracker) Transition(e logic.Event, recorded bool) {
	t.mu.Lock()
	ev := e
	t.snap.LastEvent = &ev
	t.snap.Counts.Add(e.Kind)
	if !recorded {
		t.snap.PersistFailures++
	}
	t.mu.Unlock()
}

// NotifyFailed counts a failed notification.
func (t *Tracker) NotifyFailed() {
	t.mu.Lock()
	t.snap.NotifyFailures++
	t.mu.Unlock()
}

// SetLastEvent seeds the last event, e.g. from the persisted log at startup.
func (t *Tracker) SetLastEvent(e logic.Event) {
	t.mu.Lock()
	ev := e
	t.snap.LastEvent = &ev
	t.mu.Unlock()
}

// ClearLastEvent forgets the last event, e.g. after the log is replaced by an empty one.
func (t *Tracker) ClearLastEvent() {
	t.mu.Lock()
	t.snap.LastEvent = nil
	t.mu.Unlock()
}

// SetRecovered records the backup path of a corrupt log.
func (t *Tracker) SetRecovered(path string) {
	t.mu.Lock()
	t.snap.RecoveredFrom = path
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastEvent != nil {
		ev := *s.LastEvent
		s.LastEvent = &ev
	}
	s.Config.Notifiers = append([]string(nil), s.Config.Notifiers...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
