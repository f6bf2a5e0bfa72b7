package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentraview/sentraview-core/internal/anomaly"
	"github.com/sentraview/sentraview-core/internal/audit"
	"github.com/sentraview/sentraview-core/internal/cache"
	"github.com/sentraview/sentraview-core/internal/filter"
	"github.com/sentraview/sentraview-core/internal/ingest"
	"github.com/sentraview/sentraview-core/internal/metrics"
	"github.com/sentraview/sentraview-core/internal/record"
	"github.com/sentraview/sentraview-core/internal/sheet"
	"github.com/sentraview/sentraview-core/internal/store"
)

// ErrUnknownTool is returned when neither the caller nor sheet-name detection
// can name the source tool of an upload.
var ErrUnknownTool = errors.New("could not determine source tool from sheet names; declare one explicitly")

// ErrNoActiveDataset is returned by training and scoring when the (company,
// tool) pair has no active bundle to work from.
var ErrNoActiveDataset = errors.New("no active dataset")

// ErrNoActiveModel is returned by scoring when no trained model is active.
var ErrNoActiveModel = errors.New("no active anomaly model")

// Options tunes the engine.
type Options struct {
	// Parse is the baseline parse configuration; Ingest's mode argument
	// overrides the Mode field per call.
	Parse ingest.ParseOptions

	// Anomaly configures training runs.
	Anomaly anomaly.Config

	// MinTrainingDays is the smallest daily-row count a training run
	// accepts. Zero means any non-empty window trains.
	MinTrainingDays int

	// ViewCacheTTL enables read-view caching when positive. Cached views
	// expire after the TTL and are invalidated on activation.
	ViewCacheTTL time.Duration
}

// Engine orchestrates uploads, activation swaps, filtered reads, and the
// anomaly model lifecycle over one store.
type Engine struct {
	store    store.Store
	registry *ingest.Registry
	audit    audit.Logger
	log      *zap.Logger
	opts     Options

	// activation and training are serialized per key so concurrent calls
	// for the same tenant cannot interleave their read-then-swap steps.
	locks keyedMutex

	// views is nil unless Options.ViewCacheTTL enables it.
	views *cache.ViewCache
}

// New wires an engine. The audit logger may be nil; audit becomes a no-op.
func New(st store.Store, registry *ingest.Registry, auditLog audit.Logger, log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store:    st,
		registry: registry,
		audit:    auditLog,
		log:      log,
		opts:     opts,
	}
	if opts.ViewCacheTTL > 0 {
		e.views = cache.NewViewCache(opts.ViewCacheTTL)
	}
	return e
}

// ─── Ingestion ────────────────────────────────────────────────────────────────

// Ingest parses one uploaded workbook and stores it as an inactive bundle.
// The declared tool wins over sheet-name detection when both are present;
// with no declared tool the detected one is used. The returned ID identifies
// the stored bundle; a DuplicateUploadError carries the existing bundle's ID
// instead.
func (e *Engine) Ingest(ctx context.Context, companyID string, blob []byte, declaredTool record.ToolType, mode ingest.ProcessingMode) (string, error) {
	started := time.Now()

	wb, err := sheet.OpenXLSX(blob)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(string(declaredTool), "rejected").Inc()
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	detected := ingest.DetectTool(wb)
	tool := declaredTool
	if !tool.Valid() {
		tool = detected
	}
	if !tool.Valid() {
		metrics.UploadsTotal.WithLabelValues("unknown", "rejected").Inc()
		return "", ErrUnknownTool
	}

	parser, ok := e.registry.Lookup(tool)
	if !ok {
		metrics.UploadsTotal.WithLabelValues(string(tool), "rejected").Inc()
		return "", fmt.Errorf("no parser registered for tool %s", tool)
	}

	opts := e.opts.Parse
	opts.Mode = mode

	bundle, err := parser.Parse(ctx, wb, opts)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(string(tool), "rejected").Inc()
		e.notify(func() error { return e.audit.LogDatasetRejected(ctx, companyID, string(tool), err) })
		return "", err
	}

	bundle.CompanyID = companyID
	bundle.ContentHash = ingest.BlobHash(blob)
	bundle.UploadedAt = time.Now().UTC()
	if detected.Valid() && detected != tool {
		bundle.Note("", fmt.Sprintf("sheet names look like a %s export, parsed as declared tool %s", detected, tool))
	}

	id, err := e.store.SaveDataset(ctx, bundle)
	if err != nil {
		var dup *store.DuplicateUploadError
		if errors.As(err, &dup) {
			metrics.UploadsTotal.WithLabelValues(string(tool), "duplicate").Inc()
			e.notify(func() error { return e.audit.LogDatasetDuplicate(ctx, companyID, string(tool), dup.ExistingID) })
		}
		return "", err
	}

	elapsed := time.Since(started)
	metrics.UploadsTotal.WithLabelValues(string(tool), "parsed").Inc()
	metrics.RecordsParsed.WithLabelValues(string(tool)).Add(float64(bundle.RecordCount()))
	metrics.ParseDuration.WithLabelValues(string(tool)).Observe(elapsed.Seconds())
	e.notify(func() error {
		return e.audit.LogDatasetUploaded(ctx, companyID, string(tool), id, bundle.RecordCount(), elapsed)
	})

	e.log.Info("dataset ingested",
		zap.String("company_id", companyID),
		zap.String("tool", string(tool)),
		zap.String("dataset_id", id),
		zap.Int("records", bundle.RecordCount()),
		zap.Duration("elapsed", elapsed),
	)
	return id, nil
}

// Activate swaps the active bundle for the dataset's (company, tool) pair.
func (e *Engine) Activate(ctx context.Context, datasetID string) error {
	b, err := e.store.GetDataset(ctx, datasetID)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("dataset %s not found", datasetID)
	}

	unlock := e.locks.lock(b.CompanyID + "|" + string(b.Tool))
	defer unlock()

	if err := e.store.ActivateDataset(ctx, datasetID); err != nil {
		return err
	}

	if e.views != nil {
		e.views.InvalidateCompany(b.CompanyID)
	}
	metrics.DatasetActivations.WithLabelValues(string(b.Tool)).Inc()
	e.notify(func() error { return e.audit.LogDatasetActivated(ctx, b.CompanyID, string(b.Tool), datasetID) })
	return nil
}

// ─── Reads ────────────────────────────────────────────────────────────────────

// Read returns a filtered, sanitized view of the company's active bundles.
// The spec's DataSource restricts the view to one tool; otherwise every tool
// with an active bundle is included.
func (e *Engine) Read(ctx context.Context, companyID string, spec filter.Spec) (map[record.ToolType]*record.Bundle, error) {
	started := time.Now()

	// Relative windows pinned to a caller-supplied clock bypass the cache;
	// those are replays, and their results never repeat.
	key := viewKey(companyID, spec)
	if e.views != nil && spec.Now.IsZero() {
		if view, ok := e.views.Get(key); ok {
			return view, nil
		}
	}

	tools := record.AllTools
	if spec.DataSource.Valid() {
		tools = []record.ToolType{spec.DataSource}
	}

	active := make(map[record.ToolType]*record.Bundle)
	for _, tool := range tools {
		b, err := e.store.GetActiveDataset(ctx, companyID, tool)
		if err != nil {
			return nil, err
		}
		if b != nil {
			active[tool] = b
		}
	}

	out := filter.Apply(active, spec)
	for _, b := range out {
		record.Sanitize(b)
	}

	for tool := range out {
		metrics.FilterRequests.WithLabelValues(string(tool), string(spec.TimeRange)).Inc()
		metrics.FilterDuration.WithLabelValues(string(tool)).Observe(time.Since(started).Seconds())
	}

	if e.views != nil && spec.Now.IsZero() {
		e.views.Set(key, companyID, out)
	}
	return out, nil
}

func viewKey(companyID string, spec filter.Spec) string {
	return cache.Key(companyID,
		string(spec.TimeRange),
		spec.CustomFrom.Format("2006-01-02"),
		spec.CustomTo.Format("2006-01-02"),
		string(spec.DataSource),
		string(spec.Aggregation),
		fmt.Sprintf("%t", spec.IncludeWeekends),
	)
}

// ─── Anomaly lifecycle ────────────────────────────────────────────────────────

// Train fits an isolation forest on the active bundle's daily feature rows
// and activates the resulting model. A failed run is persisted in the failed
// state with its reason and is never activated.
func (e *Engine) Train(ctx context.Context, companyID string, tool record.ToolType) (string, error) {
	unlock := e.locks.lock(companyID + "|" + string(tool) + "|" + anomaly.AlgorithmIsolationForest)
	defer unlock()

	started := time.Now()

	bundle, err := e.store.GetActiveDataset(ctx, companyID, tool)
	if err != nil {
		return "", err
	}
	if bundle == nil {
		return "", fmt.Errorf("%w for %s/%s", ErrNoActiveDataset, companyID, tool)
	}

	rec := &store.ModelRecord{
		CompanyID: companyID,
		Tool:      tool,
		Algorithm: anomaly.AlgorithmIsolationForest,
		State:     store.ModelStateTraining,
	}
	modelID, err := e.store.SaveModel(ctx, rec)
	if err != nil {
		return "", err
	}

	model, err := e.fit(tool, bundle)
	if err != nil {
		metrics.TrainingsTotal.WithLabelValues(string(tool), "failed").Inc()
		if stateErr := e.store.UpdateModelState(ctx, modelID, store.ModelStateFailed, err.Error()); stateErr != nil {
			e.log.Error("failed to persist training failure", zap.String("model_id", modelID), zap.Error(stateErr))
		}
		e.notify(func() error { return e.audit.LogModelTrainingFailed(ctx, companyID, string(tool), modelID, err) })
		return "", err
	}

	rec.Model = model
	rec.State = store.ModelStateTrained
	if _, err := e.store.SaveModel(ctx, rec); err != nil {
		return "", err
	}
	if err := e.store.ActivateModel(ctx, modelID); err != nil {
		return "", err
	}

	elapsed := time.Since(started)
	metrics.TrainingsTotal.WithLabelValues(string(tool), "trained").Inc()
	metrics.TrainingDuration.WithLabelValues(string(tool)).Observe(elapsed.Seconds())
	metrics.TrainingRows.WithLabelValues(string(tool)).Set(float64(model.TrainingSize))
	e.notify(func() error {
		return e.audit.LogModelTrained(ctx, companyID, string(tool), modelID, model.TrainingSize, elapsed)
	})

	e.log.Info("anomaly model trained",
		zap.String("company_id", companyID),
		zap.String("tool", string(tool)),
		zap.String("model_id", modelID),
		zap.Int("training_size", model.TrainingSize),
	)
	return modelID, nil
}

func (e *Engine) fit(tool record.ToolType, bundle *record.Bundle) (*anomaly.Model, error) {
	rows := anomaly.Extract(bundle)
	if min := e.opts.MinTrainingDays; min > 0 && len(rows) < min {
		return nil, &anomaly.TrainingFailedError{
			Reason: fmt.Sprintf("only %d dated days available, need at least %d", len(rows), min),
		}
	}
	return anomaly.Fit(tool, rows, e.opts.Anomaly)
}

// Score runs the active model over the active bundle's feature rows and
// persists the flagged days as new detections.
func (e *Engine) Score(ctx context.Context, companyID string, tool record.ToolType) ([]anomaly.Detection, error) {
	unlock := e.locks.lock(companyID + "|" + string(tool) + "|" + anomaly.AlgorithmIsolationForest)
	defer unlock()

	rec, err := e.store.GetActiveModel(ctx, companyID, tool, anomaly.AlgorithmIsolationForest)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Model == nil {
		return nil, fmt.Errorf("%w for %s/%s", ErrNoActiveModel, companyID, tool)
	}

	bundle, err := e.store.GetActiveDataset(ctx, companyID, tool)
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, fmt.Errorf("%w for %s/%s", ErrNoActiveDataset, companyID, tool)
	}

	detections := rec.Model.Predict(anomaly.Extract(bundle))
	if err := e.store.SaveDetections(ctx, rec.ID, detections); err != nil {
		metrics.ScoringRuns.WithLabelValues(string(tool), "failed").Inc()
		return nil, err
	}

	metrics.ScoringRuns.WithLabelValues(string(tool), "scored").Inc()
	for _, d := range detections {
		metrics.AnomaliesDetected.WithLabelValues(string(tool), d.Severity).Inc()
	}
	e.notify(func() error {
		return e.audit.LogAnomaliesDetected(ctx, companyID, string(tool), rec.ID, len(detections))
	})
	return detections, nil
}

// notify runs an audit call, logging but never propagating its failure.
func (e *Engine) notify(fn func() error) {
	if e.audit == nil {
		return
	}
	if err := fn(); err != nil {
		e.log.Warn("audit event dropped", zap.Error(err))
	}
}

// ─── Keyed locking ────────────────────────────────────────────────────────────

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
