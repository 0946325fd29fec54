package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version    string           `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	History    HistoryConfig    `yaml:"history"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

// APIConfig contains API-related configuration.
type APIConfig struct {
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig contains API key authentication configuration.
type AuthConfig struct {
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// ProxyConfig points at the management proxy that owns the stored
// credentials and performs outbound calls on their behalf.
type ProxyConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	ManagementKey string        `yaml:"management_key"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

// Configured reports whether both the endpoint and key are present.
func (p ProxyConfig) Configured() bool {
	return strings.TrimSpace(p.Endpoint) != "" && strings.TrimSpace(p.ManagementKey) != ""
}

// AggregatorConfig contains aggregation pipeline configuration.
type AggregatorConfig struct {
	// HiddenAccounts lists account identifiers excluded from every
	// aggregation cycle, matched case-insensitively against the account
	// identity (email, then name, then label).
	HiddenAccounts []string      `yaml:"hidden_accounts"`
	ScheduleEvery  time.Duration `yaml:"schedule_every"`
}

// HistoryConfig contains snapshot store configuration.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
	QueueSize     int    `yaml:"queue_size"`
}

// Retention returns the retention horizon as a duration.
func (h HistoryConfig) Retention() time.Duration {
	return time.Duration(h.RetentionDays) * 24 * time.Hour
}

// AlertsConfig contains threshold alert configuration.
type AlertsConfig struct {
	Enabled     bool           `yaml:"enabled"`
	DedupWindow time.Duration  `yaml:"dedup_window"`
	Telegram    TelegramConfig `yaml:"telegram"`
}

// TelegramConfig contains Telegram notification configuration.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        8419,
			ShutdownTimeout: 30 * time.Second,
			LogLevel:        "info",
		},
		Proxy: ProxyConfig{
			CallTimeout: 8 * time.Second,
		},
		Aggregator: AggregatorConfig{
			ScheduleEvery: 5 * time.Minute,
		},
		History: HistoryConfig{
			Enabled:       true,
			DBPath:        "./data/usagedeck.db",
			RetentionDays: 31,
			QueueSize:     16,
		},
		Alerts: AlertsConfig{
			DedupWindow: 30 * time.Minute,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port must be in 1..65535, got %d", c.Server.HTTPPort)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level must be one of debug, info, warn, error")
	}
	if c.Proxy.CallTimeout <= 0 {
		return fmt.Errorf("proxy.call_timeout must be positive")
	}
	if c.History.Enabled {
		if c.History.DBPath == "" {
			return fmt.Errorf("history.db_path is required when history is enabled")
		}
		if c.History.RetentionDays <= 0 {
			return fmt.Errorf("history.retention_days must be positive")
		}
		if c.History.QueueSize <= 0 {
			return fmt.Errorf("history.queue_size must be positive")
		}
	}
	if c.Alerts.Enabled {
		if c.Alerts.Telegram.BotToken == "" || c.Alerts.Telegram.ChatID == 0 {
			return fmt.Errorf("alerts.telegram.bot_token and chat_id are required when alerts are enabled")
		}
		if c.Alerts.DedupWindow <= 0 {
			return fmt.Errorf("alerts.dedup_window must be positive")
		}
	}
	return nil
}
