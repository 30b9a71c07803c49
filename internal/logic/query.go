package logic

import "time"

// Filter returns the events of one day bucket, newest first, optionally
// restricted to one kind. An empty kind keeps every event.
// The returned slice is a copy.
func Filter(l Log, date string, kind Kind) []Event {
	events := l[date]
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// CountKind returns the number of events of kind k.
func CountKind(events []Event, k Kind) int {
	n := 0
	for _, e := range events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// ParseDay validates a YYYY-MM-DD bucket key.
func ParseDay(s string) (time.Time, error) {
	return parseDay(s)
}

func parseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, time.Local)
}
