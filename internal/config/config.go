package config

import "context"

// Package config provides configuration management for the sentraview engine.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading (for some settings)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (SENTRAVIEW_* prefix)
//   2. YAML config files (default: /etc/sentraview/config.yaml)
//   3. Built-in defaults (lowest priority)

// Config struct contains all configuration fields
type Config struct {
	// Database configuration
	Database struct {
		// Path to the SQLite file; ":memory:" keeps everything in RAM.
		SQLitePath string
	}

	// Ingest configuration
	Ingest struct {
		// MaxUploadMB caps the accepted workbook size.
		MaxUploadMB int
		// FastRowLimit caps rows read from the largest sheet when fast
		// mode is requested; 0 disables the cap.
		FastRowLimit int
		// ChunkSize is the number of rows between parse checkpoints.
		ChunkSize int
	}

	// Filter configuration
	Filter struct {
		// DefaultRange is the time range applied when a read names none.
		DefaultRange string
		// IncludeWeekends keeps Saturday and Sunday rows in aggregated
		// views.
		IncludeWeekends bool
	}

	// Anomaly detection configuration
	Anomaly struct {
		Trees         int
		SubSample     int
		Contamination float64
		Seed          int64
		// MinTrainingDays is the smallest usable training window.
		MinTrainingDays int
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Audit log configuration
	Audit struct {
		AuditLogPath string
		AppLogPath   string
		MaxSizeMB    int
		MaxBackups   int
		MaxAgeDays   int
		Compress     bool
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/sentraview/config.yaml")
}
