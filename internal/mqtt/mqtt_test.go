package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/power-sensor/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	event := logic.Event{
		ID:   "0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b",
		Kind: logic.KindLost,
		Time: time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"power":{"id":"0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b","timestamp":"2026-02-02T22:18:12Z","event":"POWER_LOST","state":"BATTERY"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatPayloadAllKinds(t *testing.T) {
	tests := []struct {
		kind      logic.Kind
		wantEvent string
		wantState string
	}{
		{logic.KindRestored, "POWER_RESTORED", "AC"},
		{logic.KindLost, "POWER_LOST", "BATTERY"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			payload, err := FormatPayload(logic.Event{Kind: tt.kind, Time: time.Now()})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var parsed Payload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Power.Event != tt.wantEvent {
				t.Errorf("event: got %s, want %s", parsed.Power.Event, tt.wantEvent)
			}
			if parsed.Power.State != tt.wantState {
				t.Errorf("state: got %s, want %s", parsed.Power.State, tt.wantState)
			}
		})
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	event := logic.Event{Kind: logic.KindRestored, Time: time.Date(2026, 2, 3, 6, 0, 0, 0, shanghai)}

	payload, _ := FormatPayload(event)
	var parsed Payload
	json.Unmarshal(payload, &parsed)

	if parsed.Power.Timestamp != "2026-02-02T22:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.Power.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "power/sensor/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "power/sensor/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "IGNORED", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	expected := `{"system":{"event":"OFFLINE","reason":"MQTT_DISCONNECT"}}`
	if got := string(WillPayload()); got != expected {
		t.Errorf("unexpected will payload:\ngot:  %s\nwant: %s", got, expected)
	}
}

func TestFakePublisher(t *testing.T) {
	fake := NewFakePublisher()
	events := []logic.Event{
		{ID: "a", Kind: logic.KindLost, Time: time.Now()},
		{ID: "b", Kind: logic.KindRestored, Time: time.Now()},
	}
	for _, e := range events {
		if err := fake.Publish(e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := fake.PublishSystem(SystemEvent{Event: "HEARTBEAT", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := fake.PublishedEvents()
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("events not recorded in order: %+v", got)
	}
	if len(fake.EventPayloads()) != 2 {
		t.Errorf("expected 2 payloads, got %d", len(fake.EventPayloads()))
	}
	sent := fake.Sent()
	if len(sent) != 3 || sent[2].Topic != TopicSystem || !sent[2].Retained {
		t.Errorf("unexpected send order: %+v", sent)
	}
	sys := fake.PublishedSystemEvents()
	if len(sys) != 1 || sys[0].Event != "HEARTBEAT" || !sys[0].Retained {
		t.Errorf("unexpected system events: %+v", sys)
	}
}

func TestFakePublisherErrors(t *testing.T) {
	fake := NewFakePublisher()
	fake.PublishError = errors.New("broker down")
	fake.PublishSystemError = errors.New("broker down")

	if err := fake.Publish(logic.Event{Kind: logic.KindLost}); err == nil {
		t.Error("expected publish error")
	}
	if err := fake.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected publish system error")
	}
	if len(fake.PublishedEvents()) != 0 || len(fake.PublishedSystemEvents()) != 0 {
		t.Error("failed publishes should not be recorded")
	}
}

func TestFakePublisherCloseAndReset(t *testing.T) {
	fake := NewFakePublisher()
	fake.Connected = true
	fake.Publish(logic.Event{Kind: logic.KindLost})
	fake.Close()
	if !fake.Closed {
		t.Error("expected Closed")
	}
	if !fake.IsConnected() {
		t.Error("expected IsConnected true")
	}

	fake.Reset()
	if fake.Closed || fake.IsConnected() || len(fake.PublishedEvents()) != 0 {
		t.Error("Reset did not clear state")
	}
}

var (
	_ Publisher        = (*FakePublisher)(nil)
	_ ConnectionStatus = (*FakePublisher)(nil)
	_ Publisher        = (*RealPublisher)(nil)
	_ ConnectionStatus = (*RealPublisher)(nil)
)
