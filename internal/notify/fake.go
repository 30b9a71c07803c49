package notify

import (
	"context"
	"sync"
	"time"
)

// Call is one recorded Notify invocation.
type Call struct {
	Subject string
	Body    string
}

// FakeNotifier records notifications for test assertions.
type FakeNotifier struct {
	mu sync.Mutex

	// Calls contains every Notify call, including failed ones.
	Calls []Call

	// Err, if set, will be returned by Notify wrapped in a *NotifyError.
	Err error

	// Block, if set, makes Notify wait on it (or ctx) before returning.
	Block chan struct{}

	notified chan struct{}
}

// NewFakeNotifier creates a FakeNotifier for testing.
func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{notified: make(chan struct{}, 1024)}
}

// Notify records the call.
func (f *FakeNotifier) Notify(ctx context.Context, subject, body string) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, Call{Subject: subject, Body: body})
	block := f.Block
	err := f.Err
	f.mu.Unlock()

	select {
	case f.notified <- struct{}{}:
	default:
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return &NotifyError{Channel: "fake", Err: ctx.Err()}
		}
	}
	if err != nil {
		return &NotifyError{Channel: "fake", Err: err}
	}
	return nil
}

// SetErr sets the error returned by subsequent calls.
func (f *FakeNotifier) SetErr(err error) {
	f.mu.Lock()
	f.Err = err
	f.mu.Unlock()
}

// Snapshot returns a copy of the recorded calls.
func (f *FakeNotifier) Snapshot() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.Calls...)
}

// WaitFor blocks until at least n calls have been made or timeout elapses.
func (f *FakeNotifier) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if len(f.Snapshot()) >= n {
			return true
		}
		select {
		case <-f.notified:
		case <-deadline:
			return len(f.Snapshot()) >= n
		}
	}
}
