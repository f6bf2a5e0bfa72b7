// Package app wires the full ingestion stack from configuration: logger,
// audit trail, SQLite store, parser registry, and the pipeline engine. The
// CLI entry point stays thin and delegates here.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sentraview/sentraview-core/internal/anomaly"
	"github.com/sentraview/sentraview-core/internal/audit"
	"github.com/sentraview/sentraview-core/internal/config"
	"github.com/sentraview/sentraview-core/internal/ingest"
	"github.com/sentraview/sentraview-core/internal/pipeline"
	"github.com/sentraview/sentraview-core/internal/store"
)

// viewCacheTTL bounds how stale a cached read view can get. Activations
// invalidate eagerly, so the TTL only covers the midnight rollover of
// relative windows.
const viewCacheTTL = time.Minute

// App holds the wired components for one process lifetime.
type App struct {
	Config *config.Config
	Log    *zap.Logger
	Store  store.Store
	Audit  audit.Logger
	Engine *pipeline.Engine
}

// New loads and validates configuration from the given path (empty means the
// default /etc/sentraview/config.yaml plus SENTRAVIEW_* environment
// variables) and builds the engine on top of it.
func New(ctx context.Context, configPath string) (*App, error) {
	var (
		manager config.ConfigManager
		err     error
	)
	if configPath == "" {
		manager, err = config.NewConfigManagerWithDefaults()
	} else {
		manager, err = config.NewConfigManager(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("create config manager: %w", err)
	}
	if err := manager.Load(ctx); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := manager.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	cfg := manager.Get(ctx)

	log, err := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	auditLog, err := audit.NewLogger(&audit.Config{
		AuditLogPath: cfg.Audit.AuditLogPath,
		AppLogPath:   cfg.Audit.AppLogPath,
		MaxSize:      cfg.Audit.MaxSizeMB,
		MaxBackups:   cfg.Audit.MaxBackups,
		MaxAge:       cfg.Audit.MaxAgeDays,
		Compress:     cfg.Audit.Compress,
		LogLevel:     cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("create audit logger: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		auditLog.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	eng := pipeline.New(st, ingest.DefaultRegistry(log), auditLog, log, pipeline.Options{
		Parse: ingest.ParseOptions{
			ChunkSize:    cfg.Ingest.ChunkSize,
			FastRowLimit: cfg.Ingest.FastRowLimit,
		},
		Anomaly: anomaly.Config{
			Trees:         cfg.Anomaly.Trees,
			SubSample:     cfg.Anomaly.SubSample,
			Contamination: cfg.Anomaly.Contamination,
			Seed:          cfg.Anomaly.Seed,
		},
		MinTrainingDays: cfg.Anomaly.MinTrainingDays,
		ViewCacheTTL:    viewCacheTTL,
	})

	log.Info("engine ready",
		zap.String("db_path", cfg.Database.SQLitePath),
		zap.Int("anomaly_trees", cfg.Anomaly.Trees),
	)
	return &App{
		Config: cfg,
		Log:    log,
		Store:  st,
		Audit:  auditLog,
		Engine: eng,
	}, nil
}

// Close releases the store and flushes logs. Safe to call once.
func (a *App) Close() error {
	var first error
	if err := a.Store.Close(); err != nil {
		first = err
	}
	if err := a.Audit.Close(); err != nil && first == nil {
		first = err
	}
	_ = a.Log.Sync()
	return first
}

func newLogger(levelName, format string) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "json"
	if format == "text" {
		zc.Encoding = "console"
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
