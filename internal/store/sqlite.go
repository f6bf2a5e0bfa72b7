package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/sentraview/sentraview-core/internal/anomaly"
	"github.com/sentraview/sentraview-core/internal/record"
)

// Schema versions are tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS datasets (
    id            TEXT PRIMARY KEY,
    company_id    TEXT NOT NULL,
    tool          TEXT NOT NULL,
    content_hash  TEXT NOT NULL,
    kpis          TEXT NOT NULL DEFAULT '{}',
    details       TEXT NOT NULL DEFAULT '{}',
    analytics     TEXT NOT NULL DEFAULT '{}',
    log           TEXT NOT NULL DEFAULT '[]',
    is_active     BOOLEAN NOT NULL DEFAULT 0,
    uploaded_at   DATETIME NOT NULL,
    UNIQUE(company_id, tool, content_hash)
);
CREATE INDEX IF NOT EXISTS idx_datasets_company_tool ON datasets(company_id, tool, uploaded_at DESC);
CREATE INDEX IF NOT EXISTS idx_datasets_active ON datasets(company_id, tool, is_active);

CREATE TABLE IF NOT EXISTS anomaly_models (
    id               TEXT PRIMARY KEY,
    company_id       TEXT NOT NULL,
    tool             TEXT NOT NULL,
    algorithm        TEXT NOT NULL,
    state            TEXT NOT NULL DEFAULT 'training',
    feature_columns  TEXT NOT NULL DEFAULT '[]',
    scaler           TEXT NOT NULL DEFAULT '{}',
    forest           TEXT NOT NULL DEFAULT '{}',
    score_offset     REAL NOT NULL DEFAULT 0.0,
    contamination    REAL NOT NULL DEFAULT 0.0,
    training_size    INTEGER NOT NULL DEFAULT 0,
    is_active        BOOLEAN NOT NULL DEFAULT 0,
    message          TEXT NOT NULL DEFAULT '',
    created_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_models_triple ON anomaly_models(company_id, tool, algorithm, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_models_active ON anomaly_models(company_id, tool, algorithm, is_active);

CREATE TABLE IF NOT EXISTS anomaly_detections (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    model_id        TEXT NOT NULL REFERENCES anomaly_models(id) ON DELETE CASCADE,
    anomaly_date    DATETIME NOT NULL,
    score           REAL NOT NULL DEFAULT 0.0,
    severity        TEXT NOT NULL DEFAULT 'low',
    feature_values  TEXT NOT NULL DEFAULT '{}',
    description     TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'new',
    detected_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_detections_model ON anomaly_detections(model_id, anomaly_date DESC);
CREATE INDEX IF NOT EXISTS idx_detections_severity ON anomaly_detections(severity);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// Pragmas are per-connection, and a :memory: database exists per
	// connection, so the pool must stay at a single connection.
	db.SetMaxOpenConns(1)

	// WAL for concurrent read access while a parse is being saved.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Datasets ─────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveDataset(ctx context.Context, b *record.Bundle) (string, error) {
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM datasets WHERE company_id=? AND tool=? AND content_hash=?`,
		b.CompanyID, string(b.Tool), b.ContentHash,
	).Scan(&existing)
	switch {
	case err == nil:
		return "", &DuplicateUploadError{ExistingID: existing}
	case err != sql.ErrNoRows:
		return "", fmt.Errorf("check content hash: %w", err)
	}

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	kpis, err := json.Marshal(b.KPIs)
	if err != nil {
		return "", fmt.Errorf("marshal kpis: %w", err)
	}
	details, err := json.Marshal(b.Details)
	if err != nil {
		return "", fmt.Errorf("marshal details: %w", err)
	}
	analytics, err := json.Marshal(b.Analytics)
	if err != nil {
		return "", fmt.Errorf("marshal analytics: %w", err)
	}
	log, err := json.Marshal(b.Log)
	if err != nil {
		return "", fmt.Errorf("marshal log: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO datasets(id, company_id, tool, content_hash, kpis, details, analytics, log, is_active, uploaded_at)
        VALUES(?,?,?,?,?,?,?,?,0,?)
    `,
		b.ID, b.CompanyID, string(b.Tool), b.ContentHash,
		string(kpis), string(details), string(analytics), string(log),
		b.UploadedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert dataset: %w", err)
	}
	return b.ID, nil
}

func (s *sqliteStore) GetDataset(ctx context.Context, id string) (*record.Bundle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,company_id,tool,content_hash,kpis,details,analytics,log,is_active,uploaded_at FROM datasets WHERE id=?`, id)
	b, err := scanBundle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *sqliteStore) GetActiveDataset(ctx context.Context, companyID string, tool record.ToolType) (*record.Bundle, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,company_id,tool,content_hash,kpis,details,analytics,log,is_active,uploaded_at
         FROM datasets WHERE company_id=? AND tool=? AND is_active=1`,
		companyID, string(tool))
	b, err := scanBundle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *sqliteStore) ActivateDataset(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var companyID, tool string
	err = tx.QueryRowContext(ctx, `SELECT company_id, tool FROM datasets WHERE id=?`, id).
		Scan(&companyID, &tool)
	if err == sql.ErrNoRows {
		return fmt.Errorf("dataset %s not found", id)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE datasets SET is_active=0 WHERE company_id=? AND tool=? AND id<>?`,
		companyID, tool, id); err != nil {
		return fmt.Errorf("deactivate siblings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE datasets SET is_active=1 WHERE id=?`, id); err != nil {
		return fmt.Errorf("activate dataset: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteStore) ListDatasets(ctx context.Context, companyID string, tool record.ToolType) ([]*record.Bundle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,company_id,tool,content_hash,kpis,details,analytics,log,is_active,uploaded_at
         FROM datasets WHERE company_id=? AND tool=? ORDER BY uploaded_at DESC`,
		companyID, string(tool))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*record.Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBundle(row rowScanner) (*record.Bundle, error) {
	b := &record.Bundle{}
	var tool, kpis, details, analytics, log, uploadedAt string
	err := row.Scan(&b.ID, &b.CompanyID, &tool, &b.ContentHash,
		&kpis, &details, &analytics, &log, &b.IsActive, &uploadedAt)
	if err != nil {
		return nil, err
	}
	b.Tool = record.ParseTool(tool)
	if err := json.Unmarshal([]byte(kpis), &b.KPIs); err != nil {
		return nil, fmt.Errorf("unmarshal kpis: %w", err)
	}
	if err := json.Unmarshal([]byte(details), &b.Details); err != nil {
		return nil, fmt.Errorf("unmarshal details: %w", err)
	}
	if err := json.Unmarshal([]byte(analytics), &b.Analytics); err != nil {
		return nil, fmt.Errorf("unmarshal analytics: %w", err)
	}
	if err := json.Unmarshal([]byte(log), &b.Log); err != nil {
		return nil, fmt.Errorf("unmarshal log: %w", err)
	}
	b.UploadedAt, _ = parseTime(uploadedAt)
	return b, nil
}

// ─── Anomaly models ───────────────────────────────────────────────────────────

func (s *sqliteStore) SaveModel(ctx context.Context, rec *ModelRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.State == "" {
		rec.State = ModelStateTraining
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	columns, scaler, forest := []byte(`[]`), []byte(`{}`), []byte(`{}`)
	var offset, contamination float64
	var trainingSize int
	if m := rec.Model; m != nil {
		var err error
		if columns, err = json.Marshal(m.FeatureColumns); err != nil {
			return "", fmt.Errorf("marshal feature columns: %w", err)
		}
		if scaler, err = json.Marshal(m.Scaler); err != nil {
			return "", fmt.Errorf("marshal scaler: %w", err)
		}
		if forest, err = json.Marshal(m.Forest); err != nil {
			return "", fmt.Errorf("marshal forest: %w", err)
		}
		offset, contamination, trainingSize = m.Offset, m.Contamination, m.TrainingSize
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO anomaly_models(id, company_id, tool, algorithm, state, feature_columns, scaler, forest, score_offset, contamination, training_size, is_active, message, created_at)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            state           = excluded.state,
            feature_columns = excluded.feature_columns,
            scaler          = excluded.scaler,
            forest          = excluded.forest,
            score_offset    = excluded.score_offset,
            contamination   = excluded.contamination,
            training_size   = excluded.training_size,
            message         = excluded.message
    `,
		rec.ID, rec.CompanyID, string(rec.Tool), rec.Algorithm, rec.State,
		string(columns), string(scaler), string(forest),
		offset, contamination, trainingSize,
		rec.IsActive, rec.Message, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("upsert model: %w", err)
	}
	return rec.ID, nil
}

func (s *sqliteStore) UpdateModelState(ctx context.Context, id, state, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE anomaly_models SET state=?, message=? WHERE id=?`, state, message, id)
	if err != nil {
		return fmt.Errorf("update model state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("model %s not found", id)
	}
	return nil
}

func (s *sqliteStore) GetActiveModel(ctx context.Context, companyID string, tool record.ToolType, algorithm string) (*ModelRecord, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id,company_id,tool,algorithm,state,feature_columns,scaler,forest,score_offset,contamination,training_size,is_active,message,created_at
        FROM anomaly_models WHERE company_id=? AND tool=? AND algorithm=? AND is_active=1`,
		companyID, string(tool), algorithm)
	rec, err := scanModel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *sqliteStore) ActivateModel(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var companyID, tool, algorithm, state string
	err = tx.QueryRowContext(ctx,
		`SELECT company_id, tool, algorithm, state FROM anomaly_models WHERE id=?`, id).
		Scan(&companyID, &tool, &algorithm, &state)
	if err == sql.ErrNoRows {
		return fmt.Errorf("model %s not found", id)
	}
	if err != nil {
		return err
	}
	if state != ModelStateTrained {
		return fmt.Errorf("model %s is %s, only trained models can activate", id, state)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE anomaly_models SET is_active=0 WHERE company_id=? AND tool=? AND algorithm=? AND id<>?`,
		companyID, tool, algorithm, id); err != nil {
		return fmt.Errorf("deactivate siblings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE anomaly_models SET is_active=1 WHERE id=?`, id); err != nil {
		return fmt.Errorf("activate model: %w", err)
	}
	return tx.Commit()
}

func scanModel(row rowScanner) (*ModelRecord, error) {
	rec := &ModelRecord{}
	var tool, columns, scaler, forest, createdAt string
	var offset, contamination float64
	var trainingSize int
	err := row.Scan(&rec.ID, &rec.CompanyID, &tool, &rec.Algorithm, &rec.State,
		&columns, &scaler, &forest, &offset, &contamination, &trainingSize,
		&rec.IsActive, &rec.Message, &createdAt)
	if err != nil {
		return nil, err
	}
	rec.Tool = record.ParseTool(tool)
	rec.CreatedAt, _ = parseTime(createdAt)

	if rec.State == ModelStateTrained {
		m := &anomaly.Model{
			Tool:          rec.Tool,
			Algorithm:     rec.Algorithm,
			Offset:        offset,
			Contamination: contamination,
			TrainingSize:  trainingSize,
			TrainedAt:     rec.CreatedAt,
		}
		if err := json.Unmarshal([]byte(columns), &m.FeatureColumns); err != nil {
			return nil, fmt.Errorf("unmarshal feature columns: %w", err)
		}
		if err := json.Unmarshal([]byte(scaler), &m.Scaler); err != nil {
			return nil, fmt.Errorf("unmarshal scaler: %w", err)
		}
		if err := json.Unmarshal([]byte(forest), &m.Forest); err != nil {
			return nil, fmt.Errorf("unmarshal forest: %w", err)
		}
		rec.Model = m
	}
	return rec, nil
}

// ─── Detections ───────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveDetections(ctx context.Context, modelID string, detections []anomaly.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, d := range detections {
		features, err := json.Marshal(d.Features)
		if err != nil {
			return fmt.Errorf("marshal features: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
            INSERT INTO anomaly_detections(model_id, anomaly_date, score, severity, feature_values, description, status, detected_at)
            VALUES(?,?,?,?,?,?,?,?)
        `,
			modelID, d.Date.UTC(), d.Score, d.Severity,
			string(features), d.Description, DetectionStatusNew, now,
		)
		if err != nil {
			return fmt.Errorf("insert detection: %w", err)
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListDetections(ctx context.Context, modelID string) ([]*DetectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id,model_id,anomaly_date,score,severity,feature_values,description,status,detected_at
        FROM anomaly_detections WHERE model_id=? ORDER BY anomaly_date DESC`,
		modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*DetectionRecord
	for rows.Next() {
		rec := &DetectionRecord{}
		var date, features, detectedAt string
		if err := rows.Scan(&rec.ID, &rec.ModelID, &date, &rec.Score, &rec.Severity,
			&features, &rec.Description, &rec.Status, &detectedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(features), &rec.Features); err != nil {
			return nil, fmt.Errorf("unmarshal features: %w", err)
		}
		rec.Date, _ = parseTime(date)
		rec.DetectedAt, _ = parseTime(detectedAt)
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) UpdateDetectionStatus(ctx context.Context, id int64, status string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM anomaly_detections WHERE id=?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("detection %d not found", id)
	}
	if err != nil {
		return err
	}
	if !ValidTransition(current, status) {
		return fmt.Errorf("detection %d: invalid status transition %s -> %s", id, current, status)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE anomaly_detections SET status=? WHERE id=?`, status, id); err != nil {
		return fmt.Errorf("update detection status: %w", err)
	}
	return tx.Commit()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// parseTime handles the datetime formats SQLite hands back.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
