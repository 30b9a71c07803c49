package logic

// Deduplicator turns a raw, possibly repeating stream of power signals into
// genuine transitions. It is not safe for concurrent use; the monitor owns it
// from a single goroutine.
type Deduplicator struct {
	last Kind
}

// NewDeduplicator creates a Deduplicator whose reference is the kind of the
// most recent recorded event. Pass "" when nothing has been recorded yet.
func NewDeduplicator(last Kind) *Deduplicator {
	return &Deduplicator{last: last}
}

// NewDeduplicatorFromLog seeds the reference from the latest event in l.
func NewDeduplicatorFromLog(l Log) *Deduplicator {
	d := &Deduplicator{}
	d.ResetFromLog(l)
	return d
}

// Observe reports whether k is a genuine transition and, if so, makes k the
// new reference. The first signal after an empty start is always a transition.
func (d *Deduplicator) Observe(k Kind) bool {
	if d.last != "" && d.last == k {
		return false
	}
	d.last = k
	return true
}

// Last returns the current reference kind ("" if unset).
func (d *Deduplicator) Last() Kind {
	return d.last
}

// Reset replaces the reference kind.
func (d *Deduplicator) Reset(k Kind) {
	d.last = k
}

// ResetFromLog replaces the reference with the latest event in l, or clears it.
func (d *Deduplicator) ResetFromLog(l Log) {
	d.last = ""
	if e, ok := l.Latest(); ok {
		d.last = e.Kind
	}
}
