// Package notify delivers power alerts to people (email, chat webhooks).
//
// Delivery is best effort. A Dispatcher queues messages and sends them from a
// single background worker so a slow mail server never holds up detection.
// Failed deliveries are logged and dropped; nothing here retries.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweeney/power-sensor/internal/logic"
)

var (
	// ErrQueueFull is returned by Dispatch when the delivery queue is at capacity.
	ErrQueueFull = errors.New("notify: queue full")
	// ErrStopped is returned by Dispatch after the dispatcher has been stopped.
	ErrStopped = errors.New("notify: dispatcher stopped")
)

// Notifier delivers one message over one channel.
type Notifier interface {
	// Notify returns a *NotifyError when delivery fails.
	Notify(ctx context.Context, subject, body string) error
}

// NotifyError reports a failed delivery on a named channel.
type NotifyError struct {
	Channel string
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Channel, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// Message is a queued alert.
type Message struct {
	EventID string
	Subject string
	Body    string
}

// TimeLayout is how alert bodies render the transition time.
const TimeLayout = "2006-01-02 15:04:05"

// EventMessage builds the alert for a recorded transition.
// prefix heads the subject; host, when set, names the machine in the body.
func EventMessage(prefix string, e logic.Event, host string) Message {
	var verb, source string
	switch e.Kind {
	case logic.KindRestored:
		verb, source = "restored", "mains"
	case logic.KindLost:
		verb, source = "lost", "battery"
	default:
		verb, source = "changed", "unknown"
	}

	subject := "power " + verb
	if prefix != "" {
		subject = prefix + ": " + subject
	}

	where := ""
	if host != "" {
		where = " on " + host
	}
	body := fmt.Sprintf("Power %s%s at %s, now on %s.", verb, where, e.Time.Format(TimeLayout), source)

	return Message{EventID: e.ID, Subject: subject, Body: body}
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers to all channels; one failing channel does not stop the rest.
func (m Multi) Notify(ctx context.Context, subject, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every message.
type Nop struct{}

// Notify drops the message and reports success.
func (Nop) Notify(context.Context, string, string) error { return nil }
