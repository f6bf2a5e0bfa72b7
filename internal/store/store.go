package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sentraview/sentraview-core/internal/anomaly"
	"github.com/sentraview/sentraview-core/internal/record"
)

// Store is the persistence interface for the ingestion and anomaly layers.
type Store interface {
	DatasetStore
	ModelStore
	DetectionStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Datasets ─────────────────────────────────────────────────────────────────

// DuplicateUploadError reports that an upload's content hash already exists
// for the same (company, tool). It carries the existing bundle's ID so the
// caller can decide to reuse it.
type DuplicateUploadError struct {
	ExistingID string
}

func (e *DuplicateUploadError) Error() string {
	return fmt.Sprintf("duplicate upload: identical content already stored as bundle %s", e.ExistingID)
}

// DatasetStore persists parsed bundles keyed by (company, tool). Each
// (company, tool) has at most one active bundle.
type DatasetStore interface {
	// SaveDataset stores a bundle, assigning an ID when it has none, and
	// fails with DuplicateUploadError when the content hash is already
	// stored for the same (company, tool). New bundles are saved inactive.
	SaveDataset(ctx context.Context, b *record.Bundle) (string, error)

	// GetDataset loads one bundle by ID. Returns nil, nil when absent.
	GetDataset(ctx context.Context, id string) (*record.Bundle, error)

	// GetActiveDataset loads the active bundle for (company, tool).
	// Returns nil, nil when none is active.
	GetActiveDataset(ctx context.Context, companyID string, tool record.ToolType) (*record.Bundle, error)

	// ActivateDataset marks a bundle active and clears its siblings'
	// active flags in the same transaction.
	ActivateDataset(ctx context.Context, id string) error

	// ListDatasets returns all bundles for (company, tool), newest first.
	ListDatasets(ctx context.Context, companyID string, tool record.ToolType) ([]*record.Bundle, error)
}

// ─── Anomaly models ───────────────────────────────────────────────────────────

// Model lifecycle states. A failed training is terminal and never active.
const (
	ModelStateTraining = "training"
	ModelStateTrained  = "trained"
	ModelStateFailed   = "failed"
)

// ModelRecord is the persisted form of one training run: its lifecycle state
// plus, once trained, the serialized model.
type ModelRecord struct {
	ID        string          `json:"id"`
	CompanyID string          `json:"company_id"`
	Tool      record.ToolType `json:"tool"`
	Algorithm string          `json:"algorithm"`
	State     string          `json:"state"`
	Model     *anomaly.Model  `json:"model,omitempty"` // nil until trained
	IsActive  bool            `json:"is_active"`
	Message   string          `json:"message,omitempty"` // failure reason
	CreatedAt time.Time       `json:"created_at"`
}

// ModelStore persists anomaly models keyed by (company, tool, algorithm),
// with the same single-active swap semantics as datasets.
type ModelStore interface {
	// SaveModel stores a model record, assigning an ID when it has none.
	SaveModel(ctx context.Context, rec *ModelRecord) (string, error)

	// UpdateModelState transitions a model's lifecycle state, recording a
	// message for failures.
	UpdateModelState(ctx context.Context, id, state, message string) error

	// GetActiveModel loads the active model for the triple.
	// Returns nil, nil when none is active.
	GetActiveModel(ctx context.Context, companyID string, tool record.ToolType, algorithm string) (*ModelRecord, error)

	// ActivateModel marks a model active and clears its siblings' flags in
	// one transaction. A model that is not in the trained state cannot be
	// activated.
	ActivateModel(ctx context.Context, id string) error
}

// ─── Detections ───────────────────────────────────────────────────────────────

// Detection triage statuses. A detection starts new; once triaged it never
// returns to new.
const (
	DetectionStatusNew           = "new"
	DetectionStatusInvestigating = "investigating"
	DetectionStatusConfirmed     = "confirmed"
	DetectionStatusFalsePositive = "false_positive"
	DetectionStatusResolved      = "resolved"
)

// statusTransitions is the triage workflow.
var statusTransitions = map[string][]string{
	DetectionStatusNew:           {DetectionStatusInvestigating},
	DetectionStatusInvestigating: {DetectionStatusConfirmed, DetectionStatusFalsePositive, DetectionStatusResolved},
}

// ValidTransition reports whether a detection may move from one status to
// another.
func ValidTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DetectionRecord is one persisted anomalous day.
type DetectionRecord struct {
	ID          int64              `json:"id"`
	ModelID     string             `json:"model_id"`
	Date        time.Time          `json:"anomaly_date"`
	Score       float64            `json:"score"`
	Severity    string             `json:"severity"`
	Features    map[string]float64 `json:"feature_values"`
	Description string             `json:"description"`
	Status      string             `json:"status"`
	DetectedAt  time.Time          `json:"detected_at"`
}

// DetectionStore persists scored anomalies and their triage workflow.
type DetectionStore interface {
	// SaveDetections stores a scoring run's anomalies with status new.
	SaveDetections(ctx context.Context, modelID string, detections []anomaly.Detection) error

	// ListDetections returns a model's detections, newest day first.
	ListDetections(ctx context.Context, modelID string) ([]*DetectionRecord, error)

	// UpdateDetectionStatus applies a triage transition; it fails when the
	// workflow does not allow the move.
	UpdateDetectionStatus(ctx context.Context, id int64, status string) error
}
