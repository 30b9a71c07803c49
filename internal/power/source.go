// Package power reads the host's power source (mains or battery).
//
// Sources come in two shapes. A Reader answers "what is the state now" and is
// turned into a change stream by Poll. A Watcher pushes raw signals as the OS
// reports them. Neither shape promises deduplicated output.
package power

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/power-sensor/internal/logic"
)

// ErrNoSupply means the host exposes no mains or battery information.
var ErrNoSupply = errors.New("power: no power supply information found")

// Reader reads the instantaneous power state.
type Reader interface {
	// Read returns KindRestored when on mains power and KindLost when on battery.
	Read() (logic.Kind, error)

	// Close releases resources.
	Close() error
}

// Watcher pushes a raw signal to out whenever the OS reports a power change.
// Watch blocks until ctx is cancelled or the underlying source fails.
type Watcher interface {
	Watch(ctx context.Context, out chan<- logic.Kind) error
}

// Config selects a source.
type Config struct {
	Source        string // "sysfs", "upower" or "gpio"
	SysfsRoot     string
	GPIOChip      string
	GPIOPin       int
	GPIOActiveLow bool
}

// Open creates the configured source.
func Open(cfg Config) (Reader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", "sysfs":
		return NewSysfsSource(cfg.SysfsRoot), nil
	case "upower", "dbus":
		src, err := NewUPowerSource()
		if err != nil {
			return nil, err
		}
		return src, nil
	case "gpio":
		src, err := NewGPIOSource(cfg.GPIOChip, cfg.GPIOPin, cfg.GPIOActiveLow)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("power: unknown source %q", cfg.Source)
	}
}

// Poll reads r every interval and sends the state to out whenever it differs
// from the previous successful read. The first successful read is always sent.
// It returns nil when ctx is cancelled.
func Poll(ctx context.Context, r Reader, interval time.Duration, out chan<- logic.Kind, log zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	return PollTicks(ctx, r, ticker.C, out, log)
}

// PollTicks is Poll driven by an external tick channel.
func PollTicks(ctx context.Context, r Reader, tick <-chan time.Time, out chan<- logic.Kind, log zerolog.Logger) error {
	var last logic.Kind
	sample := func() {
		k, err := r.Read()
		if err != nil {
			log.Warn().Err(err).Msg("power read failed")
			return
		}
		if k == last {
			return
		}
		last = k
		select {
		case out <- k:
		case <-ctx.Done():
		}
	}

	sample()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			sample()
		}
	}
}

// Stream feeds out from r: via Watch when r is a Watcher, otherwise by polling.
func Stream(ctx context.Context, r Reader, interval time.Duration, out chan<- logic.Kind, log zerolog.Logger) error {
	if w, ok := r.(Watcher); ok {
		return w.Watch(ctx, out)
	}
	return Poll(ctx, r, interval, out, log)
}
