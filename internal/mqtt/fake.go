package mqtt

import (
	"sync"

	"github.com/sweeney/power-sensor/internal/logic"
)

// Sent is one message accepted by a FakePublisher.
type Sent struct {
	Topic    string
	Payload  []byte
	Retained bool
	Event    *logic.Event // set for power events
	System   *SystemEvent // set for lifecycle events
}

// FakePublisher records what would have gone to the broker, in order, with
// the same payload encoding as RealPublisher. Set the exported knobs before
// publishing starts; read results through the snapshot methods.
type FakePublisher struct {
	mu   sync.Mutex
	sent []Sent

	// PublishError, if set, is returned by Publish and nothing is recorded.
	PublishError error

	// PublishSystemError, if set, is returned by PublishSystem.
	PublishSystemError error

	// Connected controls the return value of IsConnected.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

func (f *FakePublisher) Publish(event logic.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := FormatPayload(event)
	if err != nil {
		return err
	}
	e := event
	f.sent = append(f.sent, Sent{Topic: Topic, Payload: payload, Event: &e})
	return nil
}

func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	e := event
	f.sent = append(f.sent, Sent{Topic: TopicSystem, Payload: payload, Retained: event.Retained, System: &e})
	return nil
}

// Sent returns every accepted message in publish order.
func (f *FakePublisher) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// PublishedEvents returns the power events, oldest first.
func (f *FakePublisher) PublishedEvents() []logic.Event {
	var out []logic.Event
	for _, s := range f.Sent() {
		if s.Event != nil {
			out = append(out, *s.Event)
		}
	}
	return out
}

// EventPayloads returns the encoded power event payloads, oldest first.
func (f *FakePublisher) EventPayloads() [][]byte {
	var out [][]byte
	for _, s := range f.Sent() {
		if s.Topic == Topic {
			out = append(out, s.Payload)
		}
	}
	return out
}

// PublishedSystemEvents returns the lifecycle events, oldest first.
func (f *FakePublisher) PublishedSystemEvents() []SystemEvent {
	var out []SystemEvent
	for _, s := range f.Sent() {
		if s.System != nil {
			out = append(out, *s.System)
		}
	}
	return out
}

func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages and knobs.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
	f.Closed = false
}
