// Package monitor runs the power event pipeline: raw signal, dedup, append,
// notify, fan out to subscribers.
//
// Every mutation of the log goes through one worker goroutine (Run), so the
// dedup reference and the stored log never race. Signals and log writes are
// handled strictly in the order they were submitted.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/power-sensor/internal/eventlog"
	"github.com/sweeney/power-sensor/internal/logic"
	"github.com/sweeney/power-sensor/internal/metrics"
	"github.com/sweeney/power-sensor/internal/notify"
)

var (
	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("monitor: stopped")

	// ErrInvalidLog wraps validation failures from WriteLog.
	ErrInvalidLog = errors.New("monitor: invalid log")

	// ErrInvalidKind is returned for a signal that is neither restored nor lost.
	ErrInvalidKind = errors.New("monitor: invalid kind")
)

// Dispatcher queues a notification without blocking. *notify.Dispatcher
// satisfies it.
type Dispatcher interface {
	Dispatch(m notify.Message) error
}

// Options configures a Monitor. Zero values take defaults.
type Options struct {
	Now       func() time.Time // default time.Now
	NewID     func() string    // default UUIDv7
	Subject   string           // notification subject prefix
	Host      string           // named in notification bodies
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
	QueueSize int // pending requests, default 16
}

// Outcome reports what happened to one signal.
type Outcome struct {
	Event      logic.Event
	Transition bool  // false: the signal repeated the last kind and was dropped
	Recorded   bool  // false with Err set: detected and notified, but not stored
	Err        error // *eventlog.PersistenceError when the append failed
	NotifyErr  error // notify.ErrQueueFull or notify.ErrStopped when the alert was not queued
}

// Change is delivered to subscribers for every genuine transition.
type Change struct {
	Kind     logic.Kind
	Event    logic.Event
	Recorded bool
}

type request struct {
	ctx   context.Context
	kind  logic.Kind
	log   logic.Log
	write bool
	reply chan Outcome
}

// Monitor owns the event log and the dedup reference.
type Monitor struct {
	store      eventlog.Store
	dispatcher Dispatcher
	opts       Options
	log        zerolog.Logger

	reqs chan request
	done chan struct{}
	once sync.Once

	// owned by the worker
	dedup *logic.Deduplicator

	mu        sync.RWMutex
	last      logic.Kind
	latest    *logic.Event
	counts    logic.EventCounts
	recovered string
	subs      map[uint64]chan Change
	nextSub   uint64
}

// New loads the log and rebuilds the dedup reference from its latest event.
// A corrupt log is moved aside with store.Backup and the monitor starts with
// an empty log; if the backup fails New returns the error rather than lose
// the old data. dispatcher may be nil.
func New(ctx context.Context, store eventlog.Store, dispatcher Dispatcher, opts Options) (*Monitor, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = newID
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}

	m := &Monitor{
		store:      store,
		dispatcher: dispatcher,
		opts:       opts,
		log:        opts.Logger,
		reqs:       make(chan request, opts.QueueSize),
		done:       make(chan struct{}),
		subs:       map[uint64]chan Change{},
	}

	l, err := store.Load(ctx)
	if err != nil {
		if !eventlog.IsCorrupt(err) {
			return nil, fmt.Errorf("load event log: %w", err)
		}
		backup, berr := store.Backup()
		if berr != nil {
			return nil, fmt.Errorf("back up corrupt event log: %w (load: %v)", berr, err)
		}
		m.log.Warn().Err(err).Str("backup", backup).Msg("event log corrupt, starting with an empty log")
		m.recovered = backup
		l = logic.Log{}
	}

	m.dedup = logic.NewDeduplicatorFromLog(l)
	m.last = m.dedup.Last()
	if e, ok := l.Latest(); ok {
		m.latest = &e
	}
	opts.Metrics.SetLogSize(l.Len())
	opts.Metrics.SetPower(m.last)

	m.log.Info().
		Str("store", store.Path()).
		Int("events", l.Len()).
		Str("last_kind", string(m.last)).
		Msg("event log loaded")
	return m, nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Run processes requests until ctx is cancelled. Requests still queued when
// it returns fail with ErrStopped. Run must be called at most once.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-m.reqs:
			var out Outcome
			if req.write {
				out.Err = m.handleWrite(req.ctx, req.log)
			} else {
				out = m.handleSignal(req.ctx, req.kind)
			}
			req.reply <- out
		}
	}
}

func (m *Monitor) stop() {
	m.once.Do(func() {
		close(m.done)
	})
}

func (m *Monitor) submit(ctx context.Context, req request) (Outcome, error) {
	req.ctx = ctx
	req.reply = make(chan Outcome, 1)

	select {
	case <-m.done:
		return Outcome{}, ErrStopped
	default:
	}

	select {
	case m.reqs <- req:
	case <-m.done:
		return Outcome{}, ErrStopped
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}

	// Once queued the request runs to completion; the caller's ctx no longer
	// applies, so a recorded transition is never reported as cancelled.
	select {
	case out := <-req.reply:
		return out, nil
	case <-m.done:
		select {
		case out := <-req.reply:
			return out, nil
		default:
			return Outcome{}, ErrStopped
		}
	}
}

// Signal submits one raw power signal and waits for it to be processed.
// The returned error is non-nil only when the signal was not processed at
// all (ErrStopped or ctx expiry before it was queued); failures inside the
// pipeline are reported in the Outcome.
func (m *Monitor) Signal(ctx context.Context, k logic.Kind) (Outcome, error) {
	return m.submit(ctx, request{kind: k})
}

// WriteLog validates l and replaces the whole stored log with it. The dedup
// reference is rebuilt from the written log. Validation failures wrap
// ErrInvalidLog; write failures are *eventlog.PersistenceError.
func (m *Monitor) WriteLog(ctx context.Context, l logic.Log) error {
	out, err := m.submit(ctx, request{write: true, log: l})
	if err != nil {
		return err
	}
	return out.Err
}

// ReadLog returns the persisted log.
func (m *Monitor) ReadLog(ctx context.Context) (logic.Log, error) {
	return m.store.Load(ctx)
}

// LastKind returns the dedup reference ("" when nothing was recorded yet).
func (m *Monitor) LastKind() logic.Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Latest returns the most recent transition seen or loaded.
func (m *Monitor) Latest() (logic.Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return logic.Event{}, false
	}
	return *m.latest, true
}

// Counts returns transitions detected since startup.
func (m *Monitor) Counts() logic.EventCounts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts
}

// RecoveredFrom returns the backup path when the log was corrupt at startup.
func (m *Monitor) RecoveredFrom() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recovered
}

func (m *Monitor) handleSignal(ctx context.Context, k logic.Kind) Outcome {
	m.opts.Metrics.Signal(k)
	if !k.Valid() {
		m.log.Warn().Str("kind", string(k)).Msg("ignoring invalid power signal")
		return Outcome{Err: fmt.Errorf("%w: %q", ErrInvalidKind, k)}
	}

	if !m.dedup.Observe(k) {
		m.opts.Metrics.Duplicate()
		m.log.Debug().Str("kind", string(k)).Msg("duplicate power signal dropped")
		return Outcome{}
	}

	e := logic.Event{ID: m.opts.NewID(), Kind: k, Time: m.opts.Now()}
	out := Outcome{Event: e, Transition: true}

	// An append in flight is never cancelled; the store leaves the old log
	// intact if it fails.
	l, err := m.store.Append(context.WithoutCancel(ctx), e)
	if err != nil {
		out.Err = err
		m.log.Error().Err(err).Str("event_id", e.ID).Str("kind", string(k)).Msg("power event not recorded")
	} else {
		out.Recorded = true
		m.opts.Metrics.SetLogSize(l.Len())
		m.log.Info().Str("event_id", e.ID).Str("kind", string(k)).Str("day", logic.DayKey(e.Time)).Msg("power event recorded")
	}
	m.opts.Metrics.Transition(k, out.Recorded)

	m.mu.Lock()
	m.last = k
	m.latest = &e
	m.counts.Add(k)
	m.mu.Unlock()

	out.NotifyErr = m.dispatch(e)
	m.publish(Change{Kind: k, Event: e, Recorded: out.Recorded})
	return out
}

func (m *Monitor) dispatch(e logic.Event) error {
	if m.dispatcher == nil {
		return nil
	}
	msg := notify.EventMessage(m.opts.Subject, e, m.opts.Host)
	if err := m.dispatcher.Dispatch(msg); err != nil {
		m.opts.Metrics.Notification("dropped")
		m.log.Warn().Err(err).Str("event_id", e.ID).Msg("notification not queued")
		return err
	}
	return nil
}

func (m *Monitor) handleWrite(ctx context.Context, l logic.Log) error {
	if l == nil {
		l = logic.Log{}
	}
	if err := l.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLog, err)
	}
	if err := m.store.Replace(context.WithoutCancel(ctx), l); err != nil {
		m.log.Error().Err(err).Msg("log write failed")
		return err
	}

	m.dedup.ResetFromLog(l)
	m.opts.Metrics.SetLogSize(l.Len())

	m.mu.Lock()
	m.last = m.dedup.Last()
	m.latest = nil
	if e, ok := l.Latest(); ok {
		m.latest = &e
	}
	m.mu.Unlock()

	m.log.Info().Int("events", l.Len()).Str("last_kind", string(m.dedup.Last())).Msg("event log replaced")
	return nil
}
