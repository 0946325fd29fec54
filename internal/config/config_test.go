package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/usagedeck/usagedeck/internal/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.HTTPPort != 8419 {
		t.Errorf("default http_port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("default log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Proxy.CallTimeout != 8*time.Second {
		t.Errorf("default call_timeout = %v", cfg.Proxy.CallTimeout)
	}
	if !cfg.History.Enabled || cfg.History.RetentionDays != 31 {
		t.Errorf("default history config = %+v", cfg.History)
	}
	if cfg.Aggregator.ScheduleEvery != 5*time.Minute {
		t.Errorf("default schedule_every = %v", cfg.Aggregator.ScheduleEvery)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestHistoryRetention(t *testing.T) {
	h := HistoryConfig{RetentionDays: 31}
	if got := h.Retention(); got != 31*24*time.Hour {
		t.Errorf("Retention() = %v", got)
	}
}

func TestProxyConfigured(t *testing.T) {
	tests := []struct {
		endpoint string
		key      string
		want     bool
	}{
		{"http://localhost:8317", "k", true},
		{"", "k", false},
		{"http://localhost:8317", "", false},
		{"  ", "  ", false},
	}
	for _, tt := range tests {
		p := ProxyConfig{Endpoint: tt.endpoint, ManagementKey: tt.key}
		if got := p.Configured(); got != tt.want {
			t.Errorf("Configured(%q, %q) = %v, want %v", tt.endpoint, tt.key, got, tt.want)
		}
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"port too large", func(c *Config) { c.Server.HTTPPort = 70000 }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "trace" }},
		{"zero call timeout", func(c *Config) { c.Proxy.CallTimeout = 0 }},
		{"history without path", func(c *Config) { c.History.DBPath = "" }},
		{"zero retention", func(c *Config) { c.History.RetentionDays = 0 }},
		{"zero queue", func(c *Config) { c.History.QueueSize = 0 }},
		{"alerts without telegram", func(c *Config) { c.Alerts.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
server:
  http_port: 9000
  log_level: debug
proxy:
  endpoint: http://localhost:8317
  management_key: secret
aggregator:
  hidden_accounts:
    - shadow@example.com
history:
  enabled: false
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("http_port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if !cfg.Proxy.Configured() {
		t.Error("proxy should be configured")
	}
	if len(cfg.Aggregator.HiddenAccounts) != 1 || cfg.Aggregator.HiddenAccounts[0] != "shadow@example.com" {
		t.Errorf("hidden_accounts = %v", cfg.Aggregator.HiddenAccounts)
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled")
	}
	// Untouched sections keep their defaults.
	if cfg.Proxy.CallTimeout != 8*time.Second {
		t.Errorf("call_timeout = %v", cfg.Proxy.CallTimeout)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("server: [not a mapping"))

	var parseErr *apperrors.ErrConfigParse
	if !errors.As(err, &parseErr) {
		t.Errorf("expected ErrConfigParse, got %v", err)
	}
}

func TestParseValidationFailure(t *testing.T) {
	_, err := Parse([]byte("server:\n  http_port: -1\n"))

	var validationErr *apperrors.ErrConfigValidation
	if !errors.As(err, &validationErr) {
		t.Errorf("expected ErrConfigValidation, got %v", err)
	}
}

func TestLoaderLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  http_port: 9100\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.HTTPPort != 9100 {
		t.Errorf("http_port = %d", cfg.Server.HTTPPort)
	}
	if loader.Get() != cfg {
		t.Error("Get should return the loaded config")
	}
}

func TestLoaderMissingFile(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := loader.Load()

	var notFound *apperrors.ErrConfigNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoaderEnvSubstitution(t *testing.T) {
	t.Setenv("USAGEDECK_TEST_KEY", "from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "proxy:\n  endpoint: http://localhost:8317\n  management_key: ${USAGEDECK_TEST_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Proxy.ManagementKey != "from-env" {
		t.Errorf("management_key = %q, want env-substituted value", cfg.Proxy.ManagementKey)
	}
}

func TestLoaderReloadNotifiesOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  http_port: 9100\n"), 0644); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader(path)
	if _, err := loader.Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	var notified *Config
	loader.SetOnChange(func(c *Config) { notified = c })

	if err := os.WriteFile(path, []byte("server:\n  http_port: 9200\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loader.Reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if notified == nil || notified.Server.HTTPPort != 9200 {
		t.Errorf("onChange config = %+v", notified)
	}
}
