package mqtt

import "github.com/rs/zerolog"

// outMsg is a serialized MQTT message held for replay after reconnection.
type outMsg struct {
	topic     string
	payload   []byte
	qos       byte
	retained  bool
	heartbeat bool
}

// offlineQueue holds messages published while the broker is unreachable.
//
// Power events outrank lifecycle messages: when the queue is full the oldest
// lifecycle message is evicted first, and a power event is only dropped when
// nothing else is left. Only the newest heartbeat is kept.
//
// Not safe for concurrent use; the caller must synchronize.
type offlineQueue struct {
	msgs     []outMsg
	capacity int
	dropped  int // evicted since last drain
	log      zerolog.Logger
}

func newOfflineQueue(capacity int, log zerolog.Logger) *offlineQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &offlineQueue{capacity: capacity, log: log}
}

func (q *offlineQueue) push(m outMsg) {
	if m.heartbeat {
		for i := range q.msgs {
			if q.msgs[i].heartbeat {
				q.remove(i)
				break
			}
		}
	}
	if len(q.msgs) == q.capacity {
		if q.dropped == 0 {
			q.log.Warn().Int("capacity", q.capacity).Msg("mqtt offline queue full, evicting")
		}
		q.dropped++
		q.remove(q.victim())
	}
	q.msgs = append(q.msgs, m)
}

// victim is the oldest lifecycle message, or the oldest message when every
// queued message is a power event.
func (q *offlineQueue) victim() int {
	for i, m := range q.msgs {
		if m.topic != Topic {
			return i
		}
	}
	return 0
}

func (q *offlineQueue) remove(i int) {
	copy(q.msgs[i:], q.msgs[i+1:])
	q.msgs = q.msgs[:len(q.msgs)-1]
}

// drain returns queued messages in publish order and empties the queue.
func (q *offlineQueue) drain() []outMsg {
	if len(q.msgs) == 0 {
		return nil
	}
	out := q.msgs
	q.msgs = nil
	if q.dropped > 0 {
		q.log.Warn().Int("dropped", q.dropped).Msg("mqtt messages lost while offline")
	}
	q.dropped = 0
	return out
}

func (q *offlineQueue) len() int {
	return len(q.msgs)
}
