package anomaly

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sentraview/sentraview-core/internal/record"
)

// day returns midnight UTC n days after 2025-03-01.
func day(n int) time.Time {
	return time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// siemDays builds 40 days of feature rows: 38 ordinary days plus a 10x spike
// in high-severity alerts on days 15 and 30.
func siemDays() []FeatureRow {
	rows := make([]FeatureRow, 0, 40)
	for i := 0; i < 40; i++ {
		values := map[string]float64{
			"total_records":          float64(18 + i%5),
			"critical_alerts":        float64(i % 2),
			"high_severity_alerts":   float64(2 + i%2),
			"medium_severity_alerts": float64(5 + i%3),
			"low_severity_alerts":    float64(8 + i%4),
			"unique_users":           float64(6 + i%3),
		}
		if i == 15 || i == 30 {
			values["high_severity_alerts"] = 20
			values["total_records"] = 38
			values["critical_alerts"] = 1
		}
		rows = append(rows, FeatureRow{Day: day(i), Values: values})
	}
	return rows
}

func TestFitPredict_FlagsSpikeDays(t *testing.T) {
	rows := siemDays()
	model, err := Fit(record.ToolSIEM, rows, Config{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if model.TrainingSize != 40 {
		t.Errorf("TrainingSize = %d, want 40", model.TrainingSize)
	}

	detections := model.Predict(rows)
	if len(detections) == 0 {
		t.Fatal("expected detections")
	}
	if len(detections) > 6 {
		t.Errorf("contamination 0.1 over 40 days should flag few days, got %d", len(detections))
	}

	byDate := make(map[time.Time]Detection, len(detections))
	for _, d := range detections {
		byDate[d.Date] = d
	}
	for _, spike := range []time.Time{day(15), day(30)} {
		d, ok := byDate[spike]
		if !ok {
			t.Fatalf("spike day %v not flagged; flagged: %v", spike, detections)
		}
		if d.Severity != "high" && d.Severity != "critical" {
			t.Errorf("spike day %v severity = %q, want high or critical (score %v)", spike, d.Severity, d.Score)
		}
		if !strings.Contains(d.Description, "high-severity") {
			t.Errorf("spike description should mention high-severity alerts, got %q", d.Description)
		}
		if d.Decision >= 0 {
			t.Errorf("flagged day must have a negative decision value, got %v", d.Decision)
		}
	}
}

func TestFit_Deterministic(t *testing.T) {
	rows := siemDays()
	a, err := Fit(record.ToolSIEM, rows, Config{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	b, err := Fit(record.ToolSIEM, rows, Config{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	if a.Offset != b.Offset {
		t.Errorf("fixed seed should reproduce the offset: %v vs %v", a.Offset, b.Offset)
	}
	da, db := a.Predict(rows), b.Predict(rows)
	if len(da) != len(db) {
		t.Fatalf("detection counts differ: %d vs %d", len(da), len(db))
	}
	for i := range da {
		if da[i].Score != db[i].Score {
			t.Errorf("detection %d scores differ: %v vs %v", i, da[i].Score, db[i].Score)
		}
	}
}

func TestModel_SerializationRoundTrip(t *testing.T) {
	rows := siemDays()
	model, err := Fit(record.ToolSIEM, rows, Config{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	blob, err := json.Marshal(model)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var restored Model
	if err := json.Unmarshal(blob, &restored); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want := model.Predict(rows)
	got := restored.Predict(rows)
	if len(got) != len(want) {
		t.Fatalf("detection counts differ after reload: %d vs %d", len(got), len(want))
	}
	for i := range got {
		if got[i].Score != want[i].Score || got[i].Severity != want[i].Severity {
			t.Errorf("detection %d differs after reload: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func TestPredict_MissingAndExtraColumns(t *testing.T) {
	rows := siemDays()
	model, err := Fit(record.ToolSIEM, rows, Config{})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	mangled := FeatureRow{Day: day(41), Values: map[string]float64{
		"high_severity_alerts": 20,
		"total_records":        38,
		"made_up_column":       999, // unknown at training time
		// every other training column missing, treated as zero
	}}
	// Must not panic; the row reindexes onto the training columns.
	_ = model.Predict([]FeatureRow{mangled})

	vec := vectorize(mangled.Values, model.FeatureColumns)
	if len(vec) != len(model.FeatureColumns) {
		t.Fatalf("vector width %d, want %d", len(vec), len(model.FeatureColumns))
	}
	for j, column := range model.FeatureColumns {
		switch column {
		case "high_severity_alerts":
			if vec[j] != 20 {
				t.Errorf("%s = %v, want 20", column, vec[j])
			}
		case "total_records":
			if vec[j] != 38 {
				t.Errorf("%s = %v, want 38", column, vec[j])
			}
		default:
			if vec[j] != 0 {
				t.Errorf("missing column %s should zero-fill, got %v", column, vec[j])
			}
		}
	}
}

func TestFit_Failures(t *testing.T) {
	var tf *TrainingFailedError

	_, err := Fit(record.ToolSIEM, nil, Config{})
	if !errors.As(err, &tf) {
		t.Errorf("zero rows should be TrainingFailedError, got %v", err)
	}

	_, err = Fit(record.ToolSIEM, []FeatureRow{{Day: day(0), Values: map[string]float64{}}}, Config{})
	if !errors.As(err, &tf) {
		t.Errorf("zero columns should be TrainingFailedError, got %v", err)
	}
}

func TestDescribe_Fallback(t *testing.T) {
	got := describe(record.ToolSIEM, map[string]float64{
		"total_records":          5,
		"total_records_7d_ratio": 2.4,
	})
	if got == "" {
		t.Fatal("description must never be empty")
	}
	if !strings.Contains(got, "2.4x") {
		t.Errorf("fallback should cite the elevated ratio, got %q", got)
	}

	generic := describe(record.ToolMDM, map[string]float64{"total_records": 1})
	if generic == "" {
		t.Error("generic fallback must never be empty")
	}
}

func TestQuantile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if q := quantile(values, 0.9); q != 9 {
		t.Errorf("quantile(0.9) = %v, want 9", q)
	}
	if q := quantile(values, 1); q != 10 {
		t.Errorf("quantile(1) = %v, want 10", q)
	}
}
