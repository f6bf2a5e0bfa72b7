package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogDataset logs dataset lifecycle events
	LogDatasetUploaded(ctx context.Context, companyID, tool, datasetID string, records int, duration time.Duration) error
	LogDatasetRejected(ctx context.Context, companyID, tool string, err error) error
	LogDatasetDuplicate(ctx context.Context, companyID, tool, existingID string) error
	LogDatasetActivated(ctx context.Context, companyID, tool, datasetID string) error

	// LogModel logs model lifecycle events
	LogModelTrained(ctx context.Context, companyID, tool, modelID string, trainingSize int, duration time.Duration) error
	LogModelTrainingFailed(ctx context.Context, companyID, tool, modelID string, err error) error

	// LogAnomalies logs a scoring run's outcome
	LogAnomaliesDetected(ctx context.Context, companyID, tool, modelID string, count int) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	// Create encoder config
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Create application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Create audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel, // Audit logs are always INFO level
	)

	auditZapLogger := zap.New(auditCore)

	// Create the logger instance
	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	// Start auto-flush goroutine
	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.CorrelationID == "" {
		event.CorrelationID = GetCorrelationID(ctx)
	}

	// Add to buffer
	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	// Write all buffered events
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	// Clear buffer
	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogDatasetUploaded logs a successful upload and parse
func (l *auditLogger) LogDatasetUploaded(ctx context.Context, companyID, tool, datasetID string, records int, duration time.Duration) error {
	event := NewEvent(EventDatasetUploaded).
		WithCompany(companyID, tool).
		WithResource(datasetID, "dataset").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("records", records).
		WithDescription(fmt.Sprintf("Dataset %s parsed with %d records", datasetID, records))

	return l.Log(ctx, event)
}

// LogDatasetRejected logs an upload the parser refused
func (l *auditLogger) LogDatasetRejected(ctx context.Context, companyID, tool string, err error) error {
	event := NewEvent(EventDatasetRejected).
		WithCompany(companyID, tool).
		WithError(err, "upload_rejected").
		WithDescription(fmt.Sprintf("Upload for %s rejected", tool))

	return l.Log(ctx, event)
}

// LogDatasetDuplicate logs an upload whose content was already stored
func (l *auditLogger) LogDatasetDuplicate(ctx context.Context, companyID, tool, existingID string) error {
	event := NewEvent(EventDatasetDuplicate).
		WithCompany(companyID, tool).
		WithResource(existingID, "dataset").
		WithResult(ResultDenied).
		WithDescription(fmt.Sprintf("Upload matched existing dataset %s", existingID))

	return l.Log(ctx, event)
}

// LogDatasetActivated logs a dataset activation swap
func (l *auditLogger) LogDatasetActivated(ctx context.Context, companyID, tool, datasetID string) error {
	event := NewEvent(EventDatasetActivated).
		WithCompany(companyID, tool).
		WithResource(datasetID, "dataset").
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Dataset %s activated", datasetID))

	return l.Log(ctx, event)
}

// LogModelTrained logs a completed training run
func (l *auditLogger) LogModelTrained(ctx context.Context, companyID, tool, modelID string, trainingSize int, duration time.Duration) error {
	event := NewEvent(EventModelTrained).
		WithCompany(companyID, tool).
		WithResource(modelID, "model").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("training_size", trainingSize).
		WithDescription(fmt.Sprintf("Model %s trained on %d daily rows", modelID, trainingSize))

	return l.Log(ctx, event)
}

// LogModelTrainingFailed logs a failed training run
func (l *auditLogger) LogModelTrainingFailed(ctx context.Context, companyID, tool, modelID string, err error) error {
	event := NewEvent(EventModelTrainingFailed).
		WithCompany(companyID, tool).
		WithResource(modelID, "model").
		WithError(err, "training_failed").
		WithDescription(fmt.Sprintf("Model %s training failed", modelID))

	return l.Log(ctx, event)
}

// LogAnomaliesDetected logs a scoring run's outcome
func (l *auditLogger) LogAnomaliesDetected(ctx context.Context, companyID, tool, modelID string, count int) error {
	event := NewEvent(EventAnomaliesDetected).
		WithCompany(companyID, tool).
		WithResource(modelID, "model").
		WithResult(ResultSuccess).
		WithMetadata("count", count).
		WithDescription(fmt.Sprintf("Model %s flagged %d anomalous days", modelID, count))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}

type correlationKey struct{}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
