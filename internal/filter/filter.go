package filter

import (
	"sort"
	"time"

	"github.com/sentraview/sentraview-core/internal/dates"
	"github.com/sentraview/sentraview-core/internal/ingest"
	"github.com/sentraview/sentraview-core/internal/record"
)

// TimeRange names a relative or custom date window.
type TimeRange string

const (
	RangeToday   TimeRange = "today"
	RangeWeek    TimeRange = "week"
	RangeMonth   TimeRange = "month"
	RangeQuarter TimeRange = "quarter"
	RangeYear    TimeRange = "year"
	RangeCustom  TimeRange = "custom"
	RangeAll     TimeRange = "all"
)

// Aggregation selects the time bucket surviving records are grouped into.
type Aggregation string

const (
	AggDaily   Aggregation = "daily"
	AggWeekly  Aggregation = "weekly"
	AggMonthly Aggregation = "monthly"
)

// Spec describes one filtered view of the active bundles.
type Spec struct {
	TimeRange  TimeRange
	CustomFrom time.Time // used when TimeRange is "custom"
	CustomTo   time.Time

	// DataSource restricts the view to one tool. Empty means all tools.
	DataSource record.ToolType

	Aggregation     Aggregation
	IncludeWeekends bool

	// Now anchors the relative ranges. Zero means the wall clock; tests and
	// replays pin it.
	Now time.Time
}

func (s Spec) aggregation() Aggregation {
	if s.Aggregation == "" {
		return AggDaily
	}
	return s.Aggregation
}

// window resolves the spec to a [from, to) interval. bounded is false for
// the "all" range, which skips date filtering entirely.
func (s Spec) window() (from, to time.Time, bounded bool) {
	now := s.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	day := dates.Day(now)
	end := day.AddDate(0, 0, 1) // end of today, exclusive

	switch s.TimeRange {
	case RangeToday:
		return day, end, true
	case RangeWeek:
		return day.AddDate(0, 0, -6), end, true
	case RangeMonth:
		return day.AddDate(0, -1, 0), end, true
	case RangeQuarter:
		return day.AddDate(0, -3, 0), end, true
	case RangeYear:
		return day.AddDate(-1, 0, 0), end, true
	case RangeCustom:
		return s.CustomFrom, s.CustomTo, true
	default:
		return time.Time{}, time.Time{}, false
	}
}

// Apply produces a filtered view of the given bundles: date-range filtering,
// signature deduplication, KPI recomputation from the surviving records, and
// optional week/month aggregation. Inputs are never mutated.
//
// Applying the same spec twice yields the same result, and widening the time
// window (same aggregation) only ever adds records.
func Apply(bundles map[record.ToolType]*record.Bundle, spec Spec) map[record.ToolType]*record.Bundle {
	out := make(map[record.ToolType]*record.Bundle, len(bundles))
	for tool, b := range bundles {
		if b == nil {
			continue
		}
		if spec.DataSource != "" && tool != spec.DataSource {
			continue
		}
		out[tool] = applyBundle(b, spec)
	}
	return out
}

func applyBundle(b *record.Bundle, spec Spec) *record.Bundle {
	// A bundle whose details are already aggregated was produced by this
	// engine under the same spec; re-filtering bucket rows would corrupt the
	// KPI block computed from the daily view.
	if aggregated(b.Details) {
		return b.Clone()
	}

	out := b.Clone()
	from, to, bounded := spec.window()
	candidates := ingest.DateCandidates[b.Tool]
	seen := make(map[string]bool)

	for _, name := range sheetNames(out.Details) {
		recs := out.Details[name]
		kept := recs[:0]
		for _, rec := range recs {
			if bounded {
				// Records with no resolvable date drop out of ranged views;
				// the "all" range keeps them.
				t, ok := dates.NormalizeField(rec, candidates)
				if !ok {
					continue
				}
				if t.Before(from) || !t.Before(to) {
					continue
				}
			}
			if !ingest.DedupExempt(b.Tool, name) {
				sig := ingest.Signature(b.Tool, rec)
				if seen[sig] {
					continue
				}
				seen[sig] = true
			}
			kept = append(kept, rec)
		}
		out.Details[name] = kept
	}

	out.KPIs = ingest.ComputeKPIs(b.Tool, out.Details)
	out.Analytics = ingest.ComputeAnalytics(b.Tool, out.Details)

	if agg := spec.aggregation(); agg != AggDaily {
		for name, recs := range out.Details {
			out.Details[name] = aggregate(recs, candidates, agg, spec.IncludeWeekends)
		}
	}
	return out
}

// sheetNames returns the group's sheet names sorted, so cross-sheet
// deduplication picks a deterministic representative.
func sheetNames(details record.Group) []string {
	names := make([]string, 0, len(details))
	for name := range details {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// aggregated reports whether the details already hold bucket rows.
func aggregated(details record.Group) bool {
	some := false
	for _, recs := range details {
		if len(recs) == 0 {
			continue
		}
		if _, ok := recs[0][periodField]; !ok {
			return false
		}
		some = true
	}
	return some
}
