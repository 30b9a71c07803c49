package logic

import (
	"fmt"
	"sort"
)

// Log maps a day key (YYYY-MM-DD) to that day's events, newest first.
type Log map[string][]Event

// Clone returns a deep copy of l. A nil log clones to an empty one.
func (l Log) Clone() Log {
	out := make(Log, len(l))
	for k, events := range l {
		out[k] = append([]Event(nil), events...)
	}
	return out
}

// Prepend returns a copy of l with e inserted at the front of its day bucket.
// l is not modified.
func (l Log) Prepend(e Event) Log {
	out := l.Clone()
	key := DayKey(e.Time)
	bucket := make([]Event, 0, len(out[key])+1)
	bucket = append(bucket, e)
	bucket = append(bucket, out[key]...)
	out[key] = bucket
	return out
}

// Days returns the bucket keys in descending (newest first) order.
func (l Log) Days() []string {
	days := make([]string, 0, len(l))
	for k := range l {
		days = append(days, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days
}

// Latest returns the most recent event: the first element of the newest
// non-empty bucket.
func (l Log) Latest() (Event, bool) {
	for _, day := range l.Days() {
		if events := l[day]; len(events) > 0 {
			return events[0], true
		}
	}
	return Event{}, false
}

// Len returns the total number of events across all buckets.
func (l Log) Len() int {
	n := 0
	for _, events := range l {
		n += len(events)
	}
	return n
}

// Validate checks the structural invariants of a log:
// every key is a date, every event lies on its bucket's date, has a known
// kind and a non-empty ID unique across the log, buckets are ordered newest
// first, and no two chronologically adjacent events in a bucket share a kind.
func (l Log) Validate() error {
	seen := make(map[string]string)
	for key, events := range l {
		if _, err := parseDay(key); err != nil {
			return fmt.Errorf("bucket %q: %w", key, err)
		}
		for i, e := range events {
			if e.ID == "" {
				return fmt.Errorf("bucket %s event %d: empty id", key, i)
			}
			if prev, ok := seen[e.ID]; ok {
				return fmt.Errorf("bucket %s event %d: duplicate id %q (also in %s)", key, i, e.ID, prev)
			}
			seen[e.ID] = key
			if !e.Kind.Valid() {
				return fmt.Errorf("bucket %s event %d: invalid kind %q", key, i, e.Kind)
			}
			if DayKey(e.Time) != key {
				return fmt.Errorf("bucket %s event %d: time %s is on %s", key, i, e.Time.Format("2006-01-02T15:04:05"), DayKey(e.Time))
			}
			if i == 0 {
				continue
			}
			if !events[i-1].Time.After(e.Time) {
				return fmt.Errorf("bucket %s events %d and %d: not newest first", key, i-1, i)
			}
			if events[i-1].Kind == e.Kind {
				return fmt.Errorf("bucket %s events %d and %d: consecutive %s", key, i-1, i, e.Kind)
			}
		}
	}
	return nil
}
