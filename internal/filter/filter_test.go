package filter

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sentraview/sentraview-core/internal/ingest"
	"github.com/sentraview/sentraview-core/internal/record"
	"github.com/sentraview/sentraview-core/internal/sheet"
)

// anchor is the pinned "now" for relative ranges: Wednesday 2025-04-16.
var anchor = time.Date(2025, time.April, 16, 12, 0, 0, 0, time.UTC)

func siemEvent(date, severity, user string) record.Record {
	return record.Record{
		"Date":       record.String(date),
		"Severity":   record.String(severity),
		"Alert Type": record.String("Intrusion"),
		"Username":   record.String(user),
	}
}

// siemBundle wraps events into a parsed-equivalent bundle with KPIs computed
// the same way the parser computes them.
func siemBundle(events []record.Record) *record.Bundle {
	details := record.Group{"siem data": events}
	return &record.Bundle{
		Tool:      record.ToolSIEM,
		Details:   details,
		KPIs:      ingest.ComputeKPIs(record.ToolSIEM, details),
		Analytics: ingest.ComputeAnalytics(record.ToolSIEM, details),
	}
}

func toolMap(b *record.Bundle) map[record.ToolType]*record.Bundle {
	return map[record.ToolType]*record.Bundle{b.Tool: b}
}

func TestApply_TodayWindowRecomputesKPIs(t *testing.T) {
	var events []record.Record
	for i := 0; i < 5; i++ {
		events = append(events, siemEvent("2025-04-16", "critical", fmt.Sprintf("today-%d", i)))
	}
	for i := 0; i < 5; i++ {
		events = append(events, siemEvent("2025-04-10", "critical", fmt.Sprintf("older-%d", i)))
	}
	for i := 0; i < 40; i++ {
		events = append(events, siemEvent("2025-03-01", "info", fmt.Sprintf("noise-%d", i)))
	}
	b := siemBundle(events)
	if b.KPIs["totalEvents"] != 50 {
		t.Fatalf("precondition: totalEvents = %v", b.KPIs["totalEvents"])
	}

	got := Apply(toolMap(b), Spec{TimeRange: RangeToday, Now: anchor})[record.ToolSIEM]
	if got.KPIs["totalEvents"] != 5 {
		t.Errorf("totalEvents = %v, want 5", got.KPIs["totalEvents"])
	}
	if got.KPIs["criticalAlerts"] != 5 {
		t.Errorf("criticalAlerts = %v, want 5", got.KPIs["criticalAlerts"])
	}
	if got.KPIs["infoAlerts"] != 0 {
		t.Errorf("infoAlerts = %v, want 0", got.KPIs["infoAlerts"])
	}

	// The input bundle is untouched.
	if b.KPIs["totalEvents"] != 50 || len(b.Details["siem data"]) != 50 {
		t.Error("Apply must not mutate its input")
	}
}

func TestApply_CustomWindowHalfOpen(t *testing.T) {
	from := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.April, 16, 0, 0, 0, 0, time.UTC)
	b := siemBundle([]record.Record{
		siemEvent("2025-04-10", "high", "at-from"), // inclusive
		siemEvent("2025-04-15", "high", "inside"),  // inside
		siemEvent("2025-04-16", "high", "at-to"),   // exclusive
		siemEvent("2025-04-09", "high", "before"),  // outside
	})

	got := Apply(toolMap(b), Spec{TimeRange: RangeCustom, CustomFrom: from, CustomTo: to})[record.ToolSIEM]
	if got.KPIs["totalEvents"] != 2 {
		t.Errorf("[from, to) should keep 2 events, got %v", got.KPIs["totalEvents"])
	}
}

func TestApply_UndatedRecordsDropFromRangedViewOnly(t *testing.T) {
	undated := record.Record{
		"Severity": record.String("low"),
		"Username": record.String("ghost"),
	}
	b := siemBundle([]record.Record{
		siemEvent("2025-04-16", "high", "alice"),
		undated,
	})

	ranged := Apply(toolMap(b), Spec{TimeRange: RangeWeek, Now: anchor})[record.ToolSIEM]
	if ranged.KPIs["totalEvents"] != 1 {
		t.Errorf("undated record should drop from a ranged view, got %v", ranged.KPIs["totalEvents"])
	}

	all := Apply(toolMap(b), Spec{TimeRange: RangeAll})[record.ToolSIEM]
	if all.KPIs["totalEvents"] != 2 {
		t.Errorf("undated record should survive the all range, got %v", all.KPIs["totalEvents"])
	}
}

func TestApply_AllRangeMatchesParserKPIs(t *testing.T) {
	wb := sheet.NewMemory().Add("siem data", [][]string{
		{"Date", "Severity", "Alert Type", "Username", "Status"},
		{"2025-04-16", "critical", "Brute Force", "alice", "Open"},
		{"2025-04-15", "high", "Malware", "bob", "Resolved"},
		{"2025-03-02", "info", "Heartbeat", "carol", "Closed"},
	})
	parsed, err := ingest.NewSIEMParser(zap.NewNop()).Parse(context.Background(), wb, ingest.ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got := Apply(toolMap(parsed), Spec{TimeRange: RangeAll})[record.ToolSIEM]
	if !reflect.DeepEqual(got.KPIs, parsed.KPIs) {
		t.Errorf("all-range KPIs must equal parser KPIs:\n got %v\nwant %v", got.KPIs, parsed.KPIs)
	}
}

func TestApply_Monotonic(t *testing.T) {
	var events []record.Record
	for d := 1; d <= 30; d++ {
		events = append(events, siemEvent(fmt.Sprintf("2025-04-%02d", d), "medium", fmt.Sprintf("u-%d", d)))
	}
	b := siemBundle(events)

	week := Apply(toolMap(b), Spec{TimeRange: RangeWeek, Now: anchor})[record.ToolSIEM]
	month := Apply(toolMap(b), Spec{TimeRange: RangeMonth, Now: anchor})[record.ToolSIEM]

	if week.KPIs["totalEvents"] >= month.KPIs["totalEvents"] {
		t.Fatalf("month window should hold more events: week=%v month=%v",
			week.KPIs["totalEvents"], month.KPIs["totalEvents"])
	}

	monthSet := make(map[string]bool)
	for _, rec := range month.Details["siem data"] {
		monthSet[ingest.Signature(record.ToolSIEM, rec)] = true
	}
	for _, rec := range week.Details["siem data"] {
		if !monthSet[ingest.Signature(record.ToolSIEM, rec)] {
			t.Errorf("record %v in week view missing from month view", rec["Username"])
		}
	}
}

func TestApply_Idempotent(t *testing.T) {
	var events []record.Record
	for d := 1; d <= 30; d++ {
		events = append(events, siemEvent(fmt.Sprintf("2025-04-%02d", d), "medium", fmt.Sprintf("u-%d", d)))
	}
	b := siemBundle(events)

	specs := []Spec{
		{TimeRange: RangeMonth, Now: anchor},
		{TimeRange: RangeMonth, Aggregation: AggWeekly, IncludeWeekends: true, Now: anchor},
		{TimeRange: RangeAll, Aggregation: AggMonthly, IncludeWeekends: true},
	}
	for _, spec := range specs {
		once := Apply(toolMap(b), spec)
		twice := Apply(once, spec)
		if !reflect.DeepEqual(once[record.ToolSIEM].Details, twice[record.ToolSIEM].Details) {
			t.Errorf("spec %+v: details changed on second application", spec)
		}
		if !reflect.DeepEqual(once[record.ToolSIEM].KPIs, twice[record.ToolSIEM].KPIs) {
			t.Errorf("spec %+v: KPIs changed on second application", spec)
		}
	}
}

func TestApply_DeduplicatesAcrossSheets(t *testing.T) {
	dup := siemEvent("2025-04-16", "high", "alice")
	b := &record.Bundle{
		Tool: record.ToolSIEM,
		Details: record.Group{
			"siem a": {dup},
			"siem b": {dup.Clone()},
		},
	}

	got := Apply(toolMap(b), Spec{TimeRange: RangeAll})[record.ToolSIEM]
	if got.KPIs["totalEvents"] != 1 {
		t.Errorf("cross-sheet duplicate should collapse, got %v events", got.KPIs["totalEvents"])
	}
}

func TestApply_DataSourceRestricts(t *testing.T) {
	bundles := map[record.ToolType]*record.Bundle{
		record.ToolSIEM: siemBundle([]record.Record{siemEvent("2025-04-16", "high", "alice")}),
		record.ToolEDR:  {Tool: record.ToolEDR, Details: record.Group{}},
	}

	got := Apply(bundles, Spec{TimeRange: RangeAll, DataSource: record.ToolSIEM})
	if len(got) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(got))
	}
	if _, ok := got[record.ToolSIEM]; !ok {
		t.Error("requested data source missing from result")
	}
}

func TestAggregate_WeeklyBucketsAndWeekends(t *testing.T) {
	// 2025-04-12/13 are Saturday/Sunday; 14th starts the following ISO week.
	events := []record.Record{
		siemEvent("2025-04-10", "high", "a"), // week 15
		siemEvent("2025-04-11", "high", "b"), // week 15
		siemEvent("2025-04-12", "high", "c"), // week 15, Saturday
		siemEvent("2025-04-14", "high", "d"), // week 16
	}
	for i, e := range events {
		e["Bytes"] = record.Number(float64((i + 1) * 10))
	}
	b := siemBundle(events)

	got := Apply(toolMap(b), Spec{
		TimeRange:   RangeAll,
		Aggregation: AggWeekly,
	})[record.ToolSIEM]

	recs := got.Details["siem data"]
	if len(recs) != 2 {
		t.Fatalf("expected 2 week buckets, got %d: %v", len(recs), recs)
	}
	w15, w16 := recs[0], recs[1]
	if w15["Period"].Str() != "2025-W15" || w16["Period"].Str() != "2025-W16" {
		t.Fatalf("bucket labels = %v, %v", w15["Period"], w16["Period"])
	}
	// Saturday row excluded: 2 records, bytes 10+20.
	if w15["Records"].Num() != 2 || w15["Bytes"].Num() != 30 {
		t.Errorf("week 15 = %v records / %v bytes, want 2 / 30", w15["Records"].Num(), w15["Bytes"].Num())
	}

	withWeekends := Apply(toolMap(b), Spec{
		TimeRange:       RangeAll,
		Aggregation:     AggWeekly,
		IncludeWeekends: true,
	})[record.ToolSIEM]
	if withWeekends.Details["siem data"][0]["Records"].Num() != 3 {
		t.Errorf("weekend row should count when IncludeWeekends is set")
	}
}

func TestAggregate_MonthlyAndPassThrough(t *testing.T) {
	undated := record.Record{"Severity": record.String("low"), "Username": record.String("ghost")}
	b := siemBundle([]record.Record{
		siemEvent("2025-03-03", "high", "a"),
		siemEvent("2025-04-01", "high", "b"),
		siemEvent("2025-04-02", "high", "c"),
		undated,
	})

	got := Apply(toolMap(b), Spec{
		TimeRange:       RangeAll,
		Aggregation:     AggMonthly,
		IncludeWeekends: true,
	})[record.ToolSIEM]

	recs := got.Details["siem data"]
	if len(recs) != 3 {
		t.Fatalf("expected 2 month buckets + 1 pass-through, got %d", len(recs))
	}
	if recs[0]["Period"].Str() != "2025-03" || recs[1]["Period"].Str() != "2025-04" {
		t.Errorf("bucket labels = %v, %v", recs[0]["Period"], recs[1]["Period"])
	}
	if recs[1]["Records"].Num() != 2 {
		t.Errorf("April bucket = %v records, want 2", recs[1]["Records"].Num())
	}
	if recs[2]["Username"].Str() != "ghost" {
		t.Errorf("undated record should pass through unchanged, got %v", recs[2])
	}
}
