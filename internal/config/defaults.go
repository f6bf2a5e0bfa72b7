package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Database defaults
	cfg.Database.SQLitePath = "/var/lib/sentraview/sentraview.db"

	// Ingest defaults
	cfg.Ingest.MaxUploadMB = 50
	cfg.Ingest.FastRowLimit = 5000
	cfg.Ingest.ChunkSize = 1000

	// Filter defaults
	cfg.Filter.DefaultRange = "month"
	cfg.Filter.IncludeWeekends = true

	// Anomaly defaults
	cfg.Anomaly.Trees = 150
	cfg.Anomaly.SubSample = 256
	cfg.Anomaly.Contamination = 0.1
	cfg.Anomaly.Seed = 42
	cfg.Anomaly.MinTrainingDays = 14

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Audit defaults
	cfg.Audit.AuditLogPath = "logs/audit.log"
	cfg.Audit.AppLogPath = "logs/app.log"
	cfg.Audit.MaxSizeMB = 100
	cfg.Audit.MaxBackups = 10
	cfg.Audit.MaxAgeDays = 30
	cfg.Audit.Compress = true

	return cfg
}
