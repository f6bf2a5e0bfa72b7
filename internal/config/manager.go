package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	// Initialize viper
	m.viper = viper.New()

	// Set config file path
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	// Set environment variable prefix
	m.viper.SetEnvPrefix("SENTRAVIEW")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	m.setDefaults()

	// Try to read config file (optional)
	if err := m.viper.ReadInConfig(); err != nil {
		// Config file not found is OK, we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// File not found via viper - OK, use defaults
		} else if os.IsNotExist(err) {
			// File not found via os - OK, use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides
	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		// Combine all errors into a single error message
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	// Start watching config file
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		// Reload config
		if err := m.unmarshalConfig(); err != nil {
			// Log error but don't send to channel
			return
		}
		// Send updated config to channel
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperConfigManager) Reload(ctx context.Context) error {
	// Re-read config file
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Apply environment variable overrides
	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// Database defaults
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	// Ingest defaults
	m.viper.SetDefault("ingest.max_upload_mb", defaults.Ingest.MaxUploadMB)
	m.viper.SetDefault("ingest.fast_row_limit", defaults.Ingest.FastRowLimit)
	m.viper.SetDefault("ingest.chunk_size", defaults.Ingest.ChunkSize)

	// Filter defaults
	m.viper.SetDefault("filter.default_range", defaults.Filter.DefaultRange)
	m.viper.SetDefault("filter.include_weekends", defaults.Filter.IncludeWeekends)

	// Anomaly defaults
	m.viper.SetDefault("anomaly.trees", defaults.Anomaly.Trees)
	m.viper.SetDefault("anomaly.sub_sample", defaults.Anomaly.SubSample)
	m.viper.SetDefault("anomaly.contamination", defaults.Anomaly.Contamination)
	m.viper.SetDefault("anomaly.seed", defaults.Anomaly.Seed)
	m.viper.SetDefault("anomaly.min_training_days", defaults.Anomaly.MinTrainingDays)

	// Logging defaults
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.format", defaults.Logging.Format)

	// Audit defaults
	m.viper.SetDefault("audit.audit_log_path", defaults.Audit.AuditLogPath)
	m.viper.SetDefault("audit.app_log_path", defaults.Audit.AppLogPath)
	m.viper.SetDefault("audit.max_size_mb", defaults.Audit.MaxSizeMB)
	m.viper.SetDefault("audit.max_backups", defaults.Audit.MaxBackups)
	m.viper.SetDefault("audit.max_age_days", defaults.Audit.MaxAgeDays)
	m.viper.SetDefault("audit.compress", defaults.Audit.Compress)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// Database
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	// Ingest
	cfg.Ingest.MaxUploadMB = m.viper.GetInt("ingest.max_upload_mb")
	cfg.Ingest.FastRowLimit = m.viper.GetInt("ingest.fast_row_limit")
	cfg.Ingest.ChunkSize = m.viper.GetInt("ingest.chunk_size")

	// Filter
	cfg.Filter.DefaultRange = m.viper.GetString("filter.default_range")
	cfg.Filter.IncludeWeekends = m.viper.GetBool("filter.include_weekends")

	// Anomaly
	cfg.Anomaly.Trees = m.viper.GetInt("anomaly.trees")
	cfg.Anomaly.SubSample = m.viper.GetInt("anomaly.sub_sample")
	cfg.Anomaly.Contamination = m.viper.GetFloat64("anomaly.contamination")
	cfg.Anomaly.Seed = m.viper.GetInt64("anomaly.seed")
	cfg.Anomaly.MinTrainingDays = m.viper.GetInt("anomaly.min_training_days")

	// Logging
	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")

	// Audit
	cfg.Audit.AuditLogPath = m.viper.GetString("audit.audit_log_path")
	cfg.Audit.AppLogPath = m.viper.GetString("audit.app_log_path")
	cfg.Audit.MaxSizeMB = m.viper.GetInt("audit.max_size_mb")
	cfg.Audit.MaxBackups = m.viper.GetInt("audit.max_backups")
	cfg.Audit.MaxAgeDays = m.viper.GetInt("audit.max_age_days")
	cfg.Audit.Compress = m.viper.GetBool("audit.compress")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for settings that
// are commonly injected at deploy time.
func (m *viperConfigManager) applyEnvOverrides() {
	if path := os.Getenv("SENTRAVIEW_DB_PATH"); path != "" {
		m.config.Database.SQLitePath = path
	}

	if level := os.Getenv("SENTRAVIEW_LOG_LEVEL"); level != "" {
		m.config.Logging.Level = level
	}
}
