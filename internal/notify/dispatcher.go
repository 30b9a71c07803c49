package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DispatcherConfig tunes the queue. Zero values take defaults.
type DispatcherConfig struct {
	QueueSize  int           // default 64
	Timeout    time.Duration // per message, default 30s
	RatePerSec float64       // default 2
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 2
	}
	return c
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithResultHook is called by the worker after every delivery attempt.
func WithResultHook(fn func(Message, error)) Option {
	return func(d *Dispatcher) { d.onResult = fn }
}

// Dispatcher sends messages from a bounded queue on one worker goroutine,
// in the order they were dispatched.
//
// It is safe for concurrent use.
type Dispatcher struct {
	notifier Notifier
	log      zerolog.Logger
	cfg      DispatcherConfig
	limiter  *rate.Limiter
	onResult func(Message, error)

	mu        sync.Mutex
	accepting bool
	queue     chan Message

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher starts the worker. Call Close to stop it.
func NewDispatcher(n Notifier, cfg DispatcherConfig, log zerolog.Logger, opts ...Option) *Dispatcher {
	cfg = cfg.withDefaults()
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		notifier:  n,
		log:       log,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		accepting: true,
		queue:     make(chan Message, cfg.QueueSize),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.worker(ctx)
	return d
}

// Dispatch queues m without blocking.
// It returns ErrQueueFull when the queue is at capacity and ErrStopped after Close.
func (d *Dispatcher) Dispatch(m Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.accepting {
		return ErrStopped
	}
	select {
	case d.queue <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued messages.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops intake and waits for the queue to drain. If ctx expires first,
// the in-flight delivery is cancelled, the rest are dropped and ctx.Err() is
// returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.accepting {
		d.accepting = false
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer close(d.done)
	defer d.cancel()

	for m := range d.queue {
		if ctx.Err() != nil {
			d.log.Warn().Str("event_id", m.EventID).Msg("notification dropped on shutdown")
			continue
		}
		d.deliver(ctx, m)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.log.Warn().Str("event_id", m.EventID).Msg("notification dropped on shutdown")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	start := time.Now()
	err := d.notifier.Notify(sendCtx, m.Subject, m.Body)
	cancel()

	if err != nil {
		var ne *NotifyError
		if !errors.As(err, &ne) {
			err = &NotifyError{Channel: "notify", Err: err}
		}
		d.log.Warn().Err(err).
			Str("event_id", m.EventID).
			Str("subject", m.Subject).
			Dur("took", time.Since(start)).
			Msg("notification failed")
	} else {
		d.log.Info().
			Str("event_id", m.EventID).
			Str("subject", m.Subject).
			Dur("took", time.Since(start)).
			Msg("notification sent")
	}

	if d.onResult != nil {
		d.onResult(m, err)
	}
}
