// Package logic contains pure business logic for power transition tracking.
// This package has NO external dependencies (no sysfs, D-Bus, MQTT, disk or clock).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the power state carried by a raw signal and by a recorded event.
// The zero value means the state is unknown.
type Kind string

const (
	// KindRestored means the host is running on mains (AC) power.
	KindRestored Kind = "POWER_RESTORED"
	// KindLost means the host is running on battery power.
	KindLost Kind = "POWER_LOST"
)

// DayLayout is the bucket key format.
const DayLayout = "2006-01-02"

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindRestored || k == KindLost
}

// Source returns the power source name for the kind: "AC", "BATTERY" or "UNKNOWN".
func (k Kind) Source() string {
	switch k {
	case KindRestored:
		return "AC"
	case KindLost:
		return "BATTERY"
	default:
		return "UNKNOWN"
	}
}

// ParseKind accepts the canonical names plus the source names used by
// operators and the legacy Chinese labels found in older log files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "POWER_RESTORED", "RESTORED", "AC", "MAINS", "来电":
		return KindRestored, nil
	case "POWER_LOST", "LOST", "BATTERY", "断电":
		return KindLost, nil
	}
	return "", fmt.Errorf("unknown power kind %q", s)
}

// Event is a recorded power transition.
type Event struct {
	ID   string    `json:"id"`
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`
}

// DayKey returns the bucket key for t, using the calendar date in t's own location.
// Callers produce t from a local clock, so this is the local calendar date.
func DayKey(t time.Time) string {
	return t.Format(DayLayout)
}

// EventCounts tracks the number of each event kind since startup.
type EventCounts struct {
	Restored int
	Lost     int
}

// Add counts one event of kind k.
func (c *EventCounts) Add(k Kind) {
	switch k {
	case KindRestored:
		c.Restored++
	case KindLost:
		c.Lost++
	}
}

// UnmarshalText accepts any name ParseKind understands and rejects the rest,
// so a stored event with an unknown kind fails to decode.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
