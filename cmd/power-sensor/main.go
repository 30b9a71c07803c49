// Command power-sensor watches the host's power source, records every switch
// between mains and battery in a per-day event log and sends an alert for each.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sweeney/power-sensor/internal/config"
	"github.com/sweeney/power-sensor/internal/eventlog"
	"github.com/sweeney/power-sensor/internal/logic"
	"github.com/sweeney/power-sensor/internal/logx"
	"github.com/sweeney/power-sensor/internal/metrics"
	"github.com/sweeney/power-sensor/internal/monitor"
	"github.com/sweeney/power-sensor/internal/mqtt"
	"github.com/sweeney/power-sensor/internal/notify"
	"github.com/sweeney/power-sensor/internal/power"
	"github.com/sweeney/power-sensor/internal/status"
	"github.com/sweeney/power-sensor/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config: %v\n", err)
		os.Exit(1)
	}

	flag.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "Power source polling interval")
	flag.StringVar(&cfg.Source, "source", cfg.Source, "Power source: sysfs, upower or gpio")
	flag.StringVar(&cfg.LogPath, "log", cfg.LogPath, "Event log path")
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, `HTTP status address ("off" to disable)`)
	flag.StringVar(&cfg.MQTTBroker, "broker", cfg.MQTTBroker, "MQTT broker address (empty to disable)")
	flag.StringVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, `Heartbeat cron spec ("off" to disable)`)
	printState := flag.Bool("print-state", false, "Print current power source and exit")

	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logx.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err := run(cfg, *printState, logger); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg *config.Config, printState bool, logger zerolog.Logger) error {
	src, err := power.Open(power.Config{
		Source:        cfg.Source,
		SysfsRoot:     cfg.SysfsRoot,
		GPIOChip:      cfg.GPIOChip,
		GPIOPin:       cfg.GPIOPin,
		GPIOActiveLow: cfg.GPIOActiveLow,
	})
	if err != nil {
		return fmt.Errorf("init power source: %w", err)
	}
	defer src.Close()

	// Print state mode
	if printState {
		k, err := src.Read()
		if err != nil {
			return fmt.Errorf("read power source: %w", err)
		}
		fmt.Println(stateString(k))
		return nil
	}

	store, err := eventlog.Open(eventlog.Config{Driver: cfg.LogDriver, Path: cfg.LogPath}, logx.Component(logger, "eventlog"))
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	met := metrics.New(reg)

	notifier, channels, err := buildNotifier(cfg)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Source:    cfg.Source,
		PollMs:    cfg.PollInterval.Milliseconds(),
		Heartbeat: cfg.HeartbeatSpec(),
		Broker:    cfg.MQTTBroker,
		HTTPAddr:  cfg.HTTPListen(),
		LogDriver: cfg.LogDriver,
		LogPath:   store.Path(),
		Notifiers: channels,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	dispatcher := notify.NewDispatcher(notifier, notify.DispatcherConfig{
		QueueSize:  cfg.NotifyQueueSize,
		Timeout:    cfg.NotifyTimeout,
		RatePerSec: cfg.NotifyRatePerSec,
	}, logx.Component(logger, "notify"), notify.WithResultHook(func(_ notify.Message, err error) {
		if err != nil {
			met.Notification("failed")
			tracker.NotifyFailed()
			return
		}
		met.Notification("sent")
	}))

	host, _ := os.Hostname()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon, err := monitor.New(ctx, store, dispatcher, monitor.Options{
		Subject: cfg.NotifySubject,
		Host:    host,
		Metrics: met,
		Logger:  logx.Component(logger, "monitor"),
	})
	if err != nil {
		return err
	}
	if e, ok := mon.Latest(); ok {
		tracker.SetLastEvent(e)
	}
	tracker.SetRecovered(mon.RecoveredFrom())

	monDone := make(chan error, 1)
	go func() { monDone <- mon.Run(ctx) }()

	// Initialize MQTT
	var publisher mqtt.Publisher = mqtt.Discard{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.Discard{}
	if cfg.MQTTBroker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Logger:   logx.Component(logger, "mqtt"),
		})
		if err != nil {
			// The daemon still records and alerts without a broker.
			logger.Error().Err(err).Str("broker", cfg.MQTTBroker).Msg("mqtt unavailable")
		} else {
			publisher, mqttStatus = p, p
		}
	}
	defer publisher.Close()
	tracker.SetMQTTConnected(mqttStatus.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warn().Err(err).Msg("failed to publish startup event")
	}

	// Start HTTP status server
	var srv *web.Server
	if addr := cfg.HTTPListen(); addr != "" {
		srv = web.New(addr, tracker, mon, src,
			web.WithLogger(logx.Component(logger, "web")),
			web.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
		logger.Info().Str("addr", addr).Msg("http status server listening")
	}

	heartbeat := make(chan time.Time, 1)
	if spec := cfg.HeartbeatSpec(); spec != "" {
		c := cron.New()
		if _, err := c.AddFunc(spec, func() {
			select {
			case heartbeat <- time.Now():
			default:
			}
		}); err != nil {
			return fmt.Errorf("schedule heartbeat: %w", err)
		}
		c.Start()
		defer c.Stop()
	}

	signals := make(chan logic.Kind, 16)
	go feed(ctx, src, cfg.PollInterval, signals, logx.Component(logger, "power"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info().
		Str("source", cfg.Source).
		Dur("poll", cfg.PollInterval).
		Str("log", store.Path()).
		Str("broker", cfg.MQTTBroker).
		Str("heartbeat", cfg.HeartbeatSpec()).
		Strs("notifiers", channels).
		Msg("started")

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Debug().Err(err).Msg("sd_notify ready")
	}
	go watchdog(ctx, logger)

	err = runLoop(ctx, mon, publisher, mqttStatus, tracker, time.Now, signals, heartbeat, sigCh, logger)

	daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.NotifyTimeout)
	defer shutdownCancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}
	}
	cancel()
	<-monDone
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Int("pending", dispatcher.Pending()).Msg("notifications abandoned at shutdown")
	}
	return err
}

// feed streams raw signals from src into out. A watcher that fails falls
// back to polling the same source.
func feed(ctx context.Context, src power.Reader, interval time.Duration, out chan<- logic.Kind, log zerolog.Logger) {
	err := power.Stream(ctx, src, interval, out, log)
	if err == nil || ctx.Err() != nil {
		return
	}
	if _, ok := src.(power.Watcher); !ok {
		log.Error().Err(err).Msg("power source stopped")
		return
	}
	log.Warn().Err(err).Msg("power watch failed, falling back to polling")
	if err := power.Poll(ctx, src, interval, out, log); err != nil {
		log.Error().Err(err).Msg("power source stopped")
	}
}

// watchdog pings systemd at half the configured WatchdogSec, if any.
func watchdog(ctx context.Context, log zerolog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				log.Debug().Err(err).Msg("sd_notify watchdog")
			}
		}
	}
}

func buildNotifier(cfg *config.Config) (notify.Notifier, []string, error) {
	var (
		multi    notify.Multi
		channels []string
	)
	if cfg.EmailEnabled() {
		n, err := notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.EmailHost,
			Port:     cfg.EmailPort,
			Username: cfg.EmailUser,
			Password: cfg.EmailPass,
			To:       cfg.Recipients(),
		})
		if err != nil {
			return nil, nil, err
		}
		multi = append(multi, n)
		channels = append(channels, "smtp")
	}
	if cfg.WebhookURL != "" {
		multi = append(multi, notify.NewWebhookNotifier(cfg.WebhookURL))
		channels = append(channels, "webhook")
	}
	if len(multi) == 0 {
		return notify.Nop{}, nil, nil
	}
	return multi, channels, nil
}

func runLoop(ctx context.Context, mon *monitor.Monitor, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, signals <-chan logic.Kind, heartbeat <-chan time.Time, sig <-chan os.Signal, log zerolog.Logger) error {
	for {
		select {
		case s := <-sig:
			log.Info().Str("signal", s.String()).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
			snap := tracker.Snapshot()
			event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			if err := publisher.PublishSystem(event); err != nil {
				log.Warn().Err(err).Msg("failed to publish shutdown event")
			}
			return nil

		case <-ctx.Done():
			return nil

		case k := <-signals:
			tracker.Signal(k)
			out, err := mon.Signal(ctx, k)
			if err != nil {
				log.Error().Err(err).Str("kind", string(k)).Msg("power signal not processed")
				continue
			}
			if !out.Transition {
				continue
			}
			tracker.Transition(out.Event, out.Recorded)
			if err := publisher.Publish(out.Event); err != nil {
				// Don't crash on publish failure
				log.Warn().Err(err).Str("event_id", out.Event.ID).Msg("mqtt publish failed")
			}
			tracker.SetMQTTConnected(mqttStatus.IsConnected())

		case t := <-heartbeat:
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			counts := mon.Counts()
			log.Info().
				Dur("uptime", snap.Uptime().Truncate(time.Second)).
				Str("power", snap.Power.Source()).
				Int("lost", counts.Lost).
				Int("restored", counts.Restored).
				Msg("heartbeat")
			hbEvent := mqtt.SystemEvent{
				Timestamp:  t,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Warn().Err(err).Msg("heartbeat publish error")
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(k logic.Kind) string {
	switch k {
	case logic.KindRestored:
		return "AC"
	case logic.KindLost:
		return "Battery"
	default:
		return "Unknown"
	}
}
