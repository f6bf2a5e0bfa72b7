package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test database defaults
	assert.NotEmpty(t, cfg.Database.SQLitePath)

	// Test ingest defaults
	assert.Equal(t, 50, cfg.Ingest.MaxUploadMB)
	assert.Equal(t, 5000, cfg.Ingest.FastRowLimit)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)

	// Test filter defaults
	assert.Equal(t, "month", cfg.Filter.DefaultRange)
	assert.True(t, cfg.Filter.IncludeWeekends)

	// Test anomaly defaults
	assert.Equal(t, 150, cfg.Anomaly.Trees)
	assert.Equal(t, 256, cfg.Anomaly.SubSample)
	assert.Equal(t, 0.1, cfg.Anomaly.Contamination)
	assert.Equal(t, int64(42), cfg.Anomaly.Seed)
	assert.Equal(t, 14, cfg.Anomaly.MinTrainingDays)

	// Test logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Test audit defaults
	assert.Equal(t, "logs/audit.log", cfg.Audit.AuditLogPath)
	assert.Equal(t, 100, cfg.Audit.MaxSizeMB)
	assert.True(t, cfg.Audit.Compress)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		modifyFn  func(*Config)
		wantError bool
		errorMsg  string
	}{
		{
			name:      "valid default config",
			modifyFn:  func(cfg *Config) {},
			wantError: false,
		},
		{
			name: "missing sqlite path",
			modifyFn: func(cfg *Config) {
				cfg.Database.SQLitePath = ""
			},
			wantError: true,
			errorMsg:  "sqlite_path is required",
		},
		{
			name: "upload cap too small",
			modifyFn: func(cfg *Config) {
				cfg.Ingest.MaxUploadMB = 0
			},
			wantError: true,
			errorMsg:  "max_upload_mb must be at least 1",
		},
		{
			name: "negative fast row limit",
			modifyFn: func(cfg *Config) {
				cfg.Ingest.FastRowLimit = -1
			},
			wantError: true,
			errorMsg:  "fast_row_limit cannot be negative",
		},
		{
			name: "zero chunk size",
			modifyFn: func(cfg *Config) {
				cfg.Ingest.ChunkSize = 0
			},
			wantError: true,
			errorMsg:  "chunk_size must be at least 1",
		},
		{
			name: "invalid default range",
			modifyFn: func(cfg *Config) {
				cfg.Filter.DefaultRange = "fortnight"
			},
			wantError: true,
			errorMsg:  "invalid range",
		},
		{
			name: "custom is not a valid default range",
			modifyFn: func(cfg *Config) {
				cfg.Filter.DefaultRange = "custom"
			},
			wantError: true,
			errorMsg:  "invalid range",
		},
		{
			name: "zero trees",
			modifyFn: func(cfg *Config) {
				cfg.Anomaly.Trees = 0
			},
			wantError: true,
			errorMsg:  "trees must be at least 1",
		},
		{
			name: "sub sample too small",
			modifyFn: func(cfg *Config) {
				cfg.Anomaly.SubSample = 1
			},
			wantError: true,
			errorMsg:  "sub_sample must be at least 2",
		},
		{
			name: "contamination zero",
			modifyFn: func(cfg *Config) {
				cfg.Anomaly.Contamination = 0
			},
			wantError: true,
			errorMsg:  "contamination must be in (0, 0.5]",
		},
		{
			name: "contamination too high",
			modifyFn: func(cfg *Config) {
				cfg.Anomaly.Contamination = 0.6
			},
			wantError: true,
			errorMsg:  "contamination must be in (0, 0.5]",
		},
		{
			name: "zero training days",
			modifyFn: func(cfg *Config) {
				cfg.Anomaly.MinTrainingDays = 0
			},
			wantError: true,
			errorMsg:  "min_training_days must be at least 1",
		},
		{
			name: "invalid log level",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Level = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log level",
		},
		{
			name: "invalid log format",
			modifyFn: func(cfg *Config) {
				cfg.Logging.Format = "invalid"
			},
			wantError: true,
			errorMsg:  "invalid log format",
		},
		{
			name: "missing audit log path",
			modifyFn: func(cfg *Config) {
				cfg.Audit.AuditLogPath = ""
			},
			wantError: true,
			errorMsg:  "audit_log_path is required",
		},
		{
			name: "negative audit backups",
			modifyFn: func(cfg *Config) {
				cfg.Audit.MaxBackups = -1
			},
			wantError: true,
			errorMsg:  "max_backups cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modifyFn(cfg)

			errs := cfg.Validate()

			if tt.wantError {
				assert.NotEmpty(t, errs, "expected validation errors but got none")
				if len(errs) > 0 {
					found := false
					for _, err := range errs {
						if tt.errorMsg != "" && contains(err.Error(), tt.errorMsg) {
							found = true
							break
						}
					}
					if tt.errorMsg != "" {
						assert.True(t, found, "expected error message containing '%s', got: %v", tt.errorMsg, errs)
					}
				}
			} else {
				assert.Empty(t, errs, "expected no validation errors but got: %v", errs)
			}
		})
	}
}

func TestConfigManagerLoad(t *testing.T) {
	// Create temp directory for config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Create minimal valid config file
	configContent := `
database:
  sqlite_path: "/tmp/sentraview-test.db"

ingest:
  fast_row_limit: 2000
  chunk_size: 500

filter:
  default_range: "week"
  include_weekends: false

anomaly:
  trees: 100
  contamination: 0.05

logging:
  level: "debug"
  format: "text"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Create config manager
	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	// Load config
	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	// Get config
	cfg := mgr.Get(ctx)
	require.NotNil(t, cfg)

	// Verify loaded values
	assert.Equal(t, "/tmp/sentraview-test.db", cfg.Database.SQLitePath)
	assert.Equal(t, 2000, cfg.Ingest.FastRowLimit)
	assert.Equal(t, 500, cfg.Ingest.ChunkSize)
	assert.Equal(t, "week", cfg.Filter.DefaultRange)
	assert.False(t, cfg.Filter.IncludeWeekends)
	assert.Equal(t, 100, cfg.Anomaly.Trees)
	assert.Equal(t, 0.05, cfg.Anomaly.Contamination)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Unspecified sections keep defaults
	assert.Equal(t, 256, cfg.Anomaly.SubSample)
	assert.Equal(t, 50, cfg.Ingest.MaxUploadMB)
}

func TestConfigManagerEnvironmentOverrides(t *testing.T) {
	// Set environment variables
	os.Setenv("SENTRAVIEW_DB_PATH", "/tmp/env-override.db")
	os.Setenv("SENTRAVIEW_LOG_LEVEL", "warn")
	defer func() {
		os.Unsetenv("SENTRAVIEW_DB_PATH")
		os.Unsetenv("SENTRAVIEW_LOG_LEVEL")
	}()

	// Create temp directory for config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Create config file with different values
	configContent := `
database:
  sqlite_path: "/tmp/file-value.db"

logging:
  level: "info"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Create config manager and load
	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	cfg := mgr.Get(ctx)

	// Environment variables should override config file
	assert.Equal(t, "/tmp/env-override.db", cfg.Database.SQLitePath, "db path should be overridden by environment variable")
	assert.Equal(t, "warn", cfg.Logging.Level, "log level should be overridden by environment variable")
}

func TestConfigManagerMissingFile(t *testing.T) {
	// Use non-existent config file path
	configPath := "/tmp/nonexistent-config.yaml"

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	// Should not error - should use defaults
	require.NoError(t, err)

	cfg := mgr.Get(ctx)
	assert.NotNil(t, cfg)
	// Should have default values
	assert.Equal(t, 150, cfg.Anomaly.Trees)
	assert.Equal(t, "month", cfg.Filter.DefaultRange)
}

func TestConfigManagerValidation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Create invalid config file (out-of-range values)
	configContent := `
database:
  sqlite_path: ""

anomaly:
  trees: 0
  contamination: 2.0

filter:
  default_range: "never"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	mgr, err := NewConfigManager(configPath)
	require.NoError(t, err)

	ctx := context.Background()
	err = mgr.Load(ctx)
	require.NoError(t, err)

	// Validation should fail
	err = mgr.Validate(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

// Helper function
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 || findSubstring(s, substr))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
