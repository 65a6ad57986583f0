package domain

import (
	"time"
)

// ServerConfig holds the diagnostics listener settings.
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"username"`
	Pass     string `mapstructure:"password"`
	SslMode  string `mapstructure:"ssl_mode"`
}

// DatabaseConfig holds general database settings and nested specific configs.
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Path           string `mapstructure:"path"`
	Level          string `mapstructure:"level"`
	MaxFileSize    int    `mapstructure:"max_file_size"`
	MaxBackupCount int    `mapstructure:"max_backup_count"`
}

// RemoteConfig holds settings for the marketplace service boundary.
type RemoteConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-request timeout.
func (c RemoteConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SyncConfig holds the engine's refresh and reconciliation knobs.
type SyncConfig struct {
	SyncOnStartup             bool   `mapstructure:"sync_on_startup"`
	StalenessThresholdMinutes int    `mapstructure:"staleness_threshold_minutes"`
	QuickLimit                int    `mapstructure:"quick_limit"`
	RefreshSchedule           string `mapstructure:"refresh_schedule"`
	ReconcileIntervalSeconds  int    `mapstructure:"reconcile_interval_seconds"`
	MaxAttempts               int    `mapstructure:"max_attempts"`
	BackoffBaseSeconds        int    `mapstructure:"backoff_base_seconds"`
	BackoffCapSeconds         int    `mapstructure:"backoff_cap_seconds"`
}

// StalenessThreshold returns the configured cache staleness threshold,
// defaulting to one hour.
func (c SyncConfig) StalenessThreshold() time.Duration {
	if c.StalenessThresholdMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.StalenessThresholdMinutes) * time.Minute
}

// ReconcileInterval returns how often the scheduler attempts a drain while
// pending mutations exist.
func (c SyncConfig) ReconcileInterval() time.Duration {
	if c.ReconcileIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ReconcileIntervalSeconds) * time.Second
}

// BackoffBase returns the base delay applied to a once-rejected item.
func (c SyncConfig) BackoffBase() time.Duration {
	if c.BackoffBaseSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.BackoffBaseSeconds) * time.Second
}

// BackoffCap returns the upper bound on the rejection backoff delay.
func (c SyncConfig) BackoffCap() time.Duration {
	if c.BackoffCapSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.BackoffCapSeconds) * time.Second
}

// Config holds the application's configuration, mapped from config.toml.
type Config struct {
	Version    string // not from config file
	ConfigPath string // internal use

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Sync     SyncConfig     `mapstructure:"sync"`
}
