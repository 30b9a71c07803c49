package mqtt

import (
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

// stubClient implements only the paho.Client methods RealPublisher uses.
// onCheck, when set, runs inside IsConnectionOpen before it answers.
type stubClient struct {
	paho.Client

	mu        sync.Mutex
	open      bool
	onCheck   func()
	published []string
}

func (c *stubClient) IsConnectionOpen() bool {
	c.mu.Lock()
	open, hook := c.open, c.onCheck
	c.onCheck = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return open
}

func (c *stubClient) Publish(topic string, _ byte, _ bool, payload any) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, string(payload.([]byte)))
	return doneToken{}
}

func (c *stubClient) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.published...)
}

func newStubPublisher(c *stubClient) *RealPublisher {
	return &RealPublisher{client: c, log: zerolog.Nop(), queue: newOfflineQueue(8, zerolog.Nop())}
}

func TestSendBuffersWhileOfflineAndReplaysOnConnect(t *testing.T) {
	c := &stubClient{}
	p := newStubPublisher(c)

	if err := p.send(outMsg{topic: Topic, payload: []byte("a"), qos: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(c.sent()) != 0 {
		t.Fatal("offline send reached the client")
	}

	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	p.onConnect(c)
	if err := p.send(outMsg{topic: Topic, payload: []byte("b"), qos: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}

	got := c.sent()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("published %v, want [a b]", got)
	}
}

func TestSendDuringReconnectIsNotStranded(t *testing.T) {
	c := &stubClient{}
	p := newStubPublisher(c)

	// The connection comes up and the connect handler starts between the
	// offline check and the push.
	replayed := make(chan struct{})
	c.onCheck = func() {
		c.mu.Lock()
		c.open = true
		c.mu.Unlock()
		go func() {
			p.onConnect(c)
			close(replayed)
		}()
		time.Sleep(20 * time.Millisecond)
	}

	if err := p.send(outMsg{topic: Topic, payload: []byte("x"), qos: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case <-replayed:
	case <-time.After(2 * time.Second):
		t.Fatal("connect handler did not finish")
	}

	if got := c.sent(); len(got) != 1 || got[0] != "x" {
		t.Errorf("published %v, want [x]", got)
	}
	p.mu.Lock()
	n := p.queue.len()
	p.mu.Unlock()
	if n != 0 {
		t.Errorf("%d messages left in the offline queue", n)
	}
}
