package monitor

// Subscribe registers a listener for genuine transitions. Delivery never
// blocks the pipeline: a subscriber whose buffer is full misses the change.
// Call the returned function to unsubscribe; it closes the channel.
func (m *Monitor) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Change, buffer)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	unsubscribed := false
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if unsubscribed {
			return
		}
		unsubscribed = true
		delete(m.subs, id)
		close(ch)
	}
}

// publish sends c to every subscriber. Sends happen under the read lock so
// an unsubscribe cannot close a channel mid-send.
func (m *Monitor) publish(c Change) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- c:
		default:
			m.log.Warn().Str("kind", string(c.Kind)).Msg("subscriber too slow, change dropped")
		}
	}
}
