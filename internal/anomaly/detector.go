package anomaly

import (
	"math"
	"sort"
	"time"

	"github.com/sentraview/sentraview-core/internal/record"
)

// Training defaults. The seed is fixed so two trainings over the same rows
// produce the same model; configuration can override all of them.
const (
	DefaultTrees         = 150
	DefaultSubSample     = 256
	DefaultContamination = 0.1
	DefaultSeed          = 42

	// AlgorithmIsolationForest is the algorithm identifier models and
	// detections are keyed by.
	AlgorithmIsolationForest = "isolation_forest"
)

// Config tunes one training run.
type Config struct {
	Trees         int
	SubSample     int
	Contamination float64
	Seed          int64
}

func (c Config) withDefaults() Config {
	if c.Trees <= 0 {
		c.Trees = DefaultTrees
	}
	if c.SubSample <= 0 {
		c.SubSample = DefaultSubSample
	}
	if c.Contamination <= 0 || c.Contamination >= 1 {
		c.Contamination = DefaultContamination
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	return c
}

// Model is a fitted detector: the forest, the scaler, the exact ordered
// feature columns seen at training time, and the contamination-quantile
// offset the decision rule compares against. Everything here serializes, so
// a reloaded model scores identically.
type Model struct {
	Tool           record.ToolType    `json:"tool"`
	Algorithm      string             `json:"algorithm"`
	FeatureColumns []string           `json:"feature_columns"`
	Scaler         *Scaler            `json:"scaler"`
	Forest         *Forest            `json:"forest"`
	Offset         float64            `json:"offset"`
	Contamination  float64            `json:"contamination"`
	TrainingSize   int                `json:"training_size"`
	Importance     map[string]float64 `json:"importance,omitempty"`
	TrainedAt      time.Time          `json:"trained_at"`
}

// Detection is one anomalous day.
type Detection struct {
	Date time.Time `json:"date"`

	// Score is the continuous anomaly score in (-1, 0); more negative is
	// more anomalous. Decision is the score's position relative to the
	// trained contamination threshold; a day is anomalous iff it is
	// negative.
	Score    float64 `json:"score"`
	Decision float64 `json:"decision"`

	Severity    string             `json:"severity"`
	Features    map[string]float64 `json:"features"`
	Description string             `json:"description"`
}

// Fit trains a model on feature rows. It fails with TrainingFailedError when
// the rows carry nothing trainable; a failed fit never yields a model.
func Fit(tool record.ToolType, rows []FeatureRow, cfg Config) (*Model, error) {
	if len(rows) == 0 {
		return nil, &TrainingFailedError{Reason: "feature extraction yielded zero rows"}
	}
	columns := columnUnion(rows)
	if len(columns) == 0 {
		return nil, &TrainingFailedError{Reason: "feature rows carry no numeric columns"}
	}
	cfg = cfg.withDefaults()

	matrix := make([][]float64, len(rows))
	for i, row := range rows {
		matrix[i] = vectorize(row.Values, columns)
	}

	scaler := FitScaler(matrix)
	scaled := scaler.TransformAll(matrix)

	forest := NewForest(cfg.Trees, cfg.SubSample, cfg.Seed)
	forest.Fit(scaled)

	raw := make([]float64, len(scaled))
	for i, row := range scaled {
		raw[i] = forest.Score(row)
	}

	return &Model{
		Tool:           tool,
		Algorithm:      AlgorithmIsolationForest,
		FeatureColumns: columns,
		Scaler:         scaler,
		Forest:         forest,
		Offset:         quantile(raw, 1-cfg.Contamination),
		Contamination:  cfg.Contamination,
		TrainingSize:   len(rows),
		Importance:     importance(scaled, raw, columns),
		TrainedAt:      time.Now().UTC(),
	}, nil
}

// Predict scores feature rows against a fitted model and returns the
// anomalous days in date order. Rows are reindexed to the model's training
// columns: a missing column is zero, an extra column is ignored, order never
// changes.
func (m *Model) Predict(rows []FeatureRow) []Detection {
	var out []Detection
	for _, row := range rows {
		raw := m.Forest.Score(m.Scaler.Transform(vectorize(row.Values, m.FeatureColumns)))
		decision := m.Offset - raw
		if decision >= 0 {
			continue
		}
		score := -raw
		out = append(out, Detection{
			Date:        row.Day,
			Score:       score,
			Decision:    decision,
			Severity:    scoreSeverity(score),
			Features:    row.Values,
			Description: describe(m.Tool, row.Values),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// scoreSeverity buckets the continuous anomaly score.
func scoreSeverity(score float64) string {
	switch {
	case score < -0.5:
		return "critical"
	case score < -0.3:
		return "high"
	case score < -0.1:
		return "medium"
	default:
		return "low"
	}
}

// columnUnion returns the sorted union of column names across rows, so the
// model's feature order is deterministic regardless of map iteration.
func columnUnion(rows []FeatureRow) []string {
	set := make(map[string]bool)
	for _, row := range rows {
		for column := range row.Values {
			set[column] = true
		}
	}
	columns := make([]string, 0, len(set))
	for column := range set {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

// vectorize reindexes a value map onto an ordered column list, zero-filling
// absent columns and dropping unknown ones.
func vectorize(values map[string]float64, columns []string) []float64 {
	row := make([]float64, len(columns))
	for j, column := range columns {
		row[j] = values[column]
	}
	return row
}

// quantile returns the q-th quantile of the values (nearest-rank).
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// importance approximates per-feature weight as the absolute Pearson
// correlation between the scaled feature and the training scores. Diagnostic
// only; the decision rule never consults it.
func importance(scaled [][]float64, scores []float64, columns []string) map[string]float64 {
	out := make(map[string]float64, len(columns))
	n := float64(len(scores))
	if n < 2 {
		return out
	}

	meanScore := 0.0
	for _, s := range scores {
		meanScore += s
	}
	meanScore /= n

	for j, column := range columns {
		meanF := 0.0
		for _, row := range scaled {
			meanF += row[j]
		}
		meanF /= n

		var cov, varF, varS float64
		for i, row := range scaled {
			df := row[j] - meanF
			ds := scores[i] - meanScore
			cov += df * ds
			varF += df * df
			varS += ds * ds
		}
		if varF == 0 || varS == 0 {
			out[column] = 0
			continue
		}
		out[column] = math.Abs(cov / math.Sqrt(varF*varS))
	}
	return out
}
