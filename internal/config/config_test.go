package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Source != "sysfs" {
		t.Errorf("Source: got %q, want sysfs", cfg.Source)
	}
	if cfg.PollInterval != time.Second {
		t.Errorf("PollInterval: got %v, want 1s", cfg.PollInterval)
	}
	if cfg.LogDriver != "json" || cfg.LogPath != "./power-log.json" {
		t.Errorf("log: got %s %s", cfg.LogDriver, cfg.LogPath)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr: got %q", cfg.HTTPAddr)
	}
	if cfg.MQTTBroker != "" {
		t.Errorf("MQTTBroker should default to disabled, got %q", cfg.MQTTBroker)
	}
	if cfg.Heartbeat != "@every 15m" {
		t.Errorf("Heartbeat: got %q", cfg.Heartbeat)
	}
	if cfg.EmailHost != "smtp.qq.com" || cfg.EmailPort != 465 {
		t.Errorf("email server: got %s:%d", cfg.EmailHost, cfg.EmailPort)
	}
	if cfg.NotifyQueueSize != 64 || cfg.NotifyTimeout != 30*time.Second || cfg.NotifyRatePerSec != 2 {
		t.Errorf("notify: got %d %v %v", cfg.NotifyQueueSize, cfg.NotifyTimeout, cfg.NotifyRatePerSec)
	}
	if cfg.GPIOChip != "gpiochip0" || cfg.GPIOPin != 17 {
		t.Errorf("gpio: got %s/%d", cfg.GPIOChip, cfg.GPIOPin)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if cfg.EmailEnabled() {
		t.Error("email should be disabled without credentials")
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"POWER_SOURCE":     "upower",
		"POLL_INTERVAL":    "250ms",
		"LOG_DRIVER":       "sqlite",
		"LOG_PATH":         "/var/lib/power/log.db",
		"MQTT_BROKER":      "tcp://192.168.1.200:1883",
		"HEARTBEAT":        "off",
		"HTTP_ADDR":        "off",
		"EMAIL_USER":       "me@qq.com",
		"EMAIL_PASS":       "secret",
		"EMAIL_RECEIVER_1": "you@qq.com",
		"EMAIL_RECEIVERS":  "them@qq.com, you@qq.com ,",
		"WEBHOOK_URL":      "https://example.com/hook",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Source != "upower" || cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("source: got %s %v", cfg.Source, cfg.PollInterval)
	}
	if cfg.LogDriver != "sqlite" || cfg.LogPath != "/var/lib/power/log.db" {
		t.Errorf("log: got %s %s", cfg.LogDriver, cfg.LogPath)
	}
	if cfg.HeartbeatSpec() != "" {
		t.Errorf("HEARTBEAT=off should disable, got %q", cfg.HeartbeatSpec())
	}
	if cfg.HTTPListen() != "" {
		t.Errorf("HTTP_ADDR=off should disable, got %q", cfg.HTTPListen())
	}

	got := cfg.Recipients()
	want := []string{"you@qq.com", "them@qq.com"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Recipients: got %v, want %v", got, want)
	}
	if !cfg.EmailEnabled() {
		t.Error("email should be enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestOff(t *testing.T) {
	for _, v := range []string{"", "off", " OFF ", "none", "disabled"} {
		if !Off(v) {
			t.Errorf("Off(%q) = false, want true", v)
		}
	}
	for _, v := range []string{":8080", "@every 1m", "on"} {
		if Off(v) {
			t.Errorf("Off(%q) = true, want false", v)
		}
	}
}

func TestParseInvalidDuration(t *testing.T) {
	if _, err := Parse(map[string]string{"POLL_INTERVAL": "soon"}); err == nil {
		t.Error("expected parse error for bad duration")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, _ := Parse(map[string]string{})
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown source", func(c *Config) { c.Source = "solar" }, "POWER_SOURCE"},
		{"unknown driver", func(c *Config) { c.LogDriver = "redis" }, "LOG_DRIVER"},
		{"empty path", func(c *Config) { c.LogPath = " " }, "LOG_PATH"},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "POLL_INTERVAL"},
		{"zero timeout", func(c *Config) { c.NotifyTimeout = 0 }, "NOTIFY_TIMEOUT"},
		{"zero queue", func(c *Config) { c.NotifyQueueSize = 0 }, "NOTIFY_QUEUE_SIZE"},
		{"zero rate", func(c *Config) { c.NotifyRatePerSec = 0 }, "NOTIFY_RATE_PER_SEC"},
		{"bad cron", func(c *Config) { c.Heartbeat = "every so often" }, "HEARTBEAT"},
		{"user without pass", func(c *Config) { c.EmailUser = "me@qq.com" }, "EMAIL_PASS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %s", err, tt.want)
			}
		})
	}
}

func TestValidateAcceptsAliases(t *testing.T) {
	cfg, _ := Parse(map[string]string{"POWER_SOURCE": "dbus", "LOG_DRIVER": "sqlite3"})
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_PATH=from-dotenv.json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Chdir(wd)
		os.Unsetenv("LOG_PATH")
	})
	t.Setenv("POWER_SOURCE", "gpio")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogPath != "from-dotenv.json" {
		t.Errorf("LogPath: got %q, want value from .env", cfg.LogPath)
	}
	if cfg.Source != "gpio" {
		t.Errorf("Source: got %q, want environment value", cfg.Source)
	}
}
