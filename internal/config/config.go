// Package config loads daemon settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration.
type Config struct {
	Source        string        `env:"POWER_SOURCE" envDefault:"sysfs"`
	SysfsRoot     string        `env:"POWER_SYSFS_ROOT" envDefault:"/sys/class/power_supply"`
	GPIOChip      string        `env:"POWER_GPIO_CHIP" envDefault:"gpiochip0"`
	GPIOPin       int           `env:"POWER_GPIO_PIN" envDefault:"17"`
	GPIOActiveLow bool          `env:"POWER_GPIO_ACTIVE_LOW" envDefault:"false"`
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`

	LogDriver string `env:"LOG_DRIVER" envDefault:"json"` // json, sqlite
	LogPath   string `env:"LOG_PATH" envDefault:"./power-log.json"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"` // console, json

	// An empty value picks up the default; "off" disables.
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8080"`
	MQTTBroker   string `env:"MQTT_BROKER"` // empty disables
	MQTTClientID string `env:"MQTT_CLIENT_ID" envDefault:"power-sensor"`
	Heartbeat    string `env:"HEARTBEAT" envDefault:"@every 15m"` // cron spec

	NotifyQueueSize  int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"64"`
	NotifyTimeout    time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"30s"`
	NotifyRatePerSec float64       `env:"NOTIFY_RATE_PER_SEC" envDefault:"2"`
	NotifySubject    string        `env:"NOTIFY_SUBJECT" envDefault:"Power monitor"`

	EmailHost      string   `env:"EMAIL_HOST" envDefault:"smtp.qq.com"`
	EmailPort      int      `env:"EMAIL_PORT" envDefault:"465"`
	EmailUser      string   `env:"EMAIL_USER"`
	EmailPass      string   `env:"EMAIL_PASS"`
	EmailReceiver  string   `env:"EMAIL_RECEIVER_1"`
	EmailReceivers []string `env:"EMAIL_RECEIVERS" envSeparator:","`

	WebhookURL string `env:"WEBHOOK_URL"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads configuration from environ instead of the process environment.
func Parse(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Off reports whether v disables an optional feature.
func Off(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "off", "none", "disabled":
		return true
	}
	return false
}

// HeartbeatSpec returns the cron spec, or "" when heartbeats are disabled.
func (c *Config) HeartbeatSpec() string {
	if Off(c.Heartbeat) {
		return ""
	}
	return strings.TrimSpace(c.Heartbeat)
}

// HTTPListen returns the listen address, or "" when the server is disabled.
func (c *Config) HTTPListen() string {
	if Off(c.HTTPAddr) {
		return ""
	}
	return c.HTTPAddr
}

// Recipients returns EMAIL_RECEIVER_1 followed by EMAIL_RECEIVERS, trimmed
// and without duplicates.
func (c *Config) Recipients() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range append([]string{c.EmailReceiver}, c.EmailReceivers...) {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// EmailEnabled reports whether enough is set to send mail.
func (c *Config) EmailEnabled() bool {
	return c.EmailUser != "" && len(c.Recipients()) > 0
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Source) {
	case "sysfs", "upower", "dbus", "gpio":
	default:
		errs = append(errs, fmt.Errorf("POWER_SOURCE: unknown source %q", c.Source))
	}
	switch strings.ToLower(c.LogDriver) {
	case "json", "file", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("LOG_DRIVER: unknown driver %q", c.LogDriver))
	}
	if strings.TrimSpace(c.LogPath) == "" {
		errs = append(errs, errors.New("LOG_PATH: must not be empty"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL: must be positive, got %v", c.PollInterval))
	}
	if c.NotifyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_TIMEOUT: must be positive, got %v", c.NotifyTimeout))
	}
	if c.NotifyQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_QUEUE_SIZE: must be positive, got %d", c.NotifyQueueSize))
	}
	if c.NotifyRatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_RATE_PER_SEC: must be positive, got %v", c.NotifyRatePerSec))
	}
	if c.Source == "gpio" && c.GPIOPin < 0 {
		errs = append(errs, fmt.Errorf("POWER_GPIO_PIN: invalid pin %d", c.GPIOPin))
	}
	if spec := c.HeartbeatSpec(); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("HEARTBEAT: %w", err))
		}
	}
	if c.EmailUser != "" && c.EmailPass == "" {
		errs = append(errs, errors.New("EMAIL_PASS: required when EMAIL_USER is set"))
	}

	return errors.Join(errs...)
}
