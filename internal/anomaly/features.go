package anomaly

import (
	"sort"
	"strings"
	"time"

	"github.com/sentraview/sentraview-core/internal/dates"
	"github.com/sentraview/sentraview-core/internal/ingest"
	"github.com/sentraview/sentraview-core/internal/record"
)

// FeatureRow is one calendar day of aggregated activity for one tool.
type FeatureRow struct {
	Day    time.Time          `json:"day"`
	Values map[string]float64 `json:"values"`
}

// headlineColumns get 7-day rolling means and current/rolling ratios when
// enough history exists.
var headlineColumns = []string{"total_records", "critical_alerts", "high_severity_alerts"}

// categoryKeywords are the SIEM alert-category counters, matched as
// case-insensitive substrings of the alert type.
var categoryKeywords = map[string][]string{
	"malware_events":              {"malware", "virus", "trojan", "ransom"},
	"brute_force_events":          {"brute force", "brute-force", "password spray", "failed login"},
	"privilege_escalation_events": {"privilege", "escalation", "sudo", "admin grant"},
}

// Extract aggregates a bundle's records into per-day feature rows: volume and
// severity counts, unique users, SIEM category counters, calendar features,
// and rolling statistics. Rows come back in day order. Records with no
// resolvable date contribute nothing.
func Extract(b *record.Bundle) []FeatureRow {
	candidates := ingest.DateCandidates[b.Tool]
	byDay := make(map[time.Time][]record.Record)
	for _, recs := range b.Details {
		for _, rec := range recs {
			t, ok := dates.NormalizeField(rec, candidates)
			if !ok {
				continue
			}
			day := dates.Day(t)
			byDay[day] = append(byDay[day], rec)
		}
	}
	if len(byDay) == 0 {
		return nil
	}

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	rows := make([]FeatureRow, 0, len(days))
	for _, day := range days {
		values := dayFeatures(b.Tool, byDay[day])
		addCalendarFeatures(values, day)
		rows = append(rows, FeatureRow{Day: day, Values: values})
	}
	addRollingFeatures(rows)
	return rows
}

// dayFeatures computes the per-day activity columns.
func dayFeatures(tool record.ToolType, recs []record.Record) map[string]float64 {
	values := map[string]float64{
		"total_records":          float64(len(recs)),
		"critical_alerts":        0,
		"high_severity_alerts":   0,
		"medium_severity_alerts": 0,
		"low_severity_alerts":    0,
		"info_alerts":            0,
	}

	users := make(map[string]bool)
	for _, rec := range recs {
		code, _ := ingest.NormalizeSeverity(fieldValue(rec, []string{"Severity", "Priority", "Level"}))
		switch code {
		case ingest.SeverityCritical:
			values["critical_alerts"]++
		case ingest.SeverityHigh:
			values["high_severity_alerts"]++
		case ingest.SeverityMedium:
			values["medium_severity_alerts"]++
		case ingest.SeverityLow:
			values["low_severity_alerts"]++
		default:
			values["info_alerts"]++
		}
		if u := fieldText(rec, []string{"Username", "User", "Reported By", "Client"}); u != "" {
			users[strings.ToLower(u)] = true
		}
	}
	values["unique_users"] = float64(len(users))

	if tool == record.ToolSIEM {
		for column, keywords := range categoryKeywords {
			count := 0.0
			for _, rec := range recs {
				kind := strings.ToLower(fieldText(rec, []string{"Alert Type", "Event Type", "Category"}))
				for _, kw := range keywords {
					if strings.Contains(kind, kw) {
						count++
						break
					}
				}
			}
			values[column] = count
		}
	}
	return values
}

func addCalendarFeatures(values map[string]float64, day time.Time) {
	values["day_of_week"] = float64(int(day.Weekday()))
	values["month"] = float64(int(day.Month()))
	values["quarter"] = float64((int(day.Month())-1)/3 + 1)
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		values["is_weekend"] = 1
	} else {
		values["is_weekend"] = 0
	}
	if day.AddDate(0, 0, 1).Day() == 1 {
		values["is_month_end"] = 1
	} else {
		values["is_month_end"] = 0
	}
}

// addRollingFeatures appends, for each headline column, the trailing 7-day
// mean (current day included) and the current/rolling ratio.
func addRollingFeatures(rows []FeatureRow) {
	for i := range rows {
		lo := i - 6
		if lo < 0 {
			lo = 0
		}
		window := rows[lo : i+1]
		for _, column := range headlineColumns {
			sum := 0.0
			for _, r := range window {
				sum += r.Values[column]
			}
			mean := sum / float64(len(window))
			rows[i].Values[column+"_7d_avg"] = mean
			if mean > 0 {
				rows[i].Values[column+"_7d_ratio"] = rows[i].Values[column] / mean
			} else {
				rows[i].Values[column+"_7d_ratio"] = 0
			}
		}
	}
}

func fieldValue(rec record.Record, fields []string) record.Value {
	for _, f := range fields {
		if v, ok := rec[f]; ok && !v.IsNull() {
			return v
		}
	}
	return record.Null()
}

func fieldText(rec record.Record, fields []string) string {
	return fieldValue(rec, fields).Text()
}
