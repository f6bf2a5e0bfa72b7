package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate database configuration
	if c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required",
		})
	}

	// Validate ingest configuration
	if c.Ingest.MaxUploadMB < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ingest.max_upload_mb",
			Message: fmt.Sprintf("max_upload_mb must be at least 1, got %d", c.Ingest.MaxUploadMB),
		})
	}

	if c.Ingest.FastRowLimit < 0 {
		errs = append(errs, &ValidationError{
			Field:   "ingest.fast_row_limit",
			Message: fmt.Sprintf("fast_row_limit cannot be negative, got %d", c.Ingest.FastRowLimit),
		})
	}

	if c.Ingest.ChunkSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "ingest.chunk_size",
			Message: fmt.Sprintf("chunk_size must be at least 1, got %d", c.Ingest.ChunkSize),
		})
	}

	// Validate filter configuration
	validRanges := map[string]bool{
		"today":   true,
		"week":    true,
		"month":   true,
		"quarter": true,
		"year":    true,
		"all":     true,
	}
	if !validRanges[strings.ToLower(c.Filter.DefaultRange)] {
		errs = append(errs, &ValidationError{
			Field:   "filter.default_range",
			Message: fmt.Sprintf("invalid range '%s', must be one of: today, week, month, quarter, year, all", c.Filter.DefaultRange),
		})
	}

	// Validate anomaly configuration
	if c.Anomaly.Trees < 1 {
		errs = append(errs, &ValidationError{
			Field:   "anomaly.trees",
			Message: fmt.Sprintf("trees must be at least 1, got %d", c.Anomaly.Trees),
		})
	}

	if c.Anomaly.SubSample < 2 {
		errs = append(errs, &ValidationError{
			Field:   "anomaly.sub_sample",
			Message: fmt.Sprintf("sub_sample must be at least 2, got %d", c.Anomaly.SubSample),
		})
	}

	if c.Anomaly.Contamination <= 0 || c.Anomaly.Contamination > 0.5 {
		errs = append(errs, &ValidationError{
			Field:   "anomaly.contamination",
			Message: fmt.Sprintf("contamination must be in (0, 0.5], got %g", c.Anomaly.Contamination),
		})
	}

	if c.Anomaly.MinTrainingDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "anomaly.min_training_days",
			Message: fmt.Sprintf("min_training_days must be at least 1, got %d", c.Anomaly.MinTrainingDays),
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	// Validate audit configuration
	if c.Audit.AuditLogPath == "" {
		errs = append(errs, &ValidationError{
			Field:   "audit.audit_log_path",
			Message: "audit_log_path is required",
		})
	}

	if c.Audit.MaxSizeMB < 1 {
		errs = append(errs, &ValidationError{
			Field:   "audit.max_size_mb",
			Message: fmt.Sprintf("max_size_mb must be at least 1, got %d", c.Audit.MaxSizeMB),
		})
	}

	if c.Audit.MaxBackups < 0 {
		errs = append(errs, &ValidationError{
			Field:   "audit.max_backups",
			Message: fmt.Sprintf("max_backups cannot be negative, got %d", c.Audit.MaxBackups),
		})
	}

	if c.Audit.MaxAgeDays < 0 {
		errs = append(errs, &ValidationError{
			Field:   "audit.max_age_days",
			Message: fmt.Sprintf("max_age_days cannot be negative, got %d", c.Audit.MaxAgeDays),
		})
	}

	return errs
}
