package anomaly

import (
	"fmt"
	"strings"

	"github.com/sentraview/sentraview-core/internal/record"
)

// thresholdRule fires when a day's feature value reaches Min; the first rule
// to fire provides the anomaly description.
type thresholdRule struct {
	Feature string
	Min     float64
	Format  string
}

// descriptionRules are checked in order per tool. Thresholds are absolute
// day-level counts tuned to the volumes the exports actually carry.
var descriptionRules = map[record.ToolType][]thresholdRule{
	record.ToolSIEM: {
		{Feature: "critical_alerts", Min: 5, Format: "Critical alert spike: %.0f critical alerts in one day"},
		{Feature: "high_severity_alerts", Min: 10, Format: "Unusual volume of high-severity alerts: %.0f"},
		{Feature: "brute_force_events", Min: 5, Format: "Brute-force activity burst: %.0f events"},
		{Feature: "malware_events", Min: 5, Format: "Malware detection burst: %.0f events"},
		{Feature: "privilege_escalation_events", Min: 3, Format: "Privilege-escalation activity: %.0f events"},
		{Feature: "total_records", Min: 200, Format: "Event volume spike: %.0f events in one day"},
		{Feature: "unique_users", Min: 50, Format: "Unusually broad user impact: %.0f distinct users"},
	},
	record.ToolGSuite: {
		{Feature: "total_records", Min: 50, Format: "High phishing/report volume: %.0f reports"},
		{Feature: "unique_users", Min: 20, Format: "Unusually many reporters: %.0f"},
	},
	record.ToolEDR: {
		{Feature: "critical_alerts", Min: 3, Format: "Critical threat spike: %.0f detections"},
		{Feature: "total_records", Min: 30, Format: "Detection volume spike: %.0f threats in one day"},
	},
	record.ToolSonicWall: {
		{Feature: "critical_alerts", Min: 10, Format: "Critical firewall events: %.0f"},
		{Feature: "total_records", Min: 500, Format: "Traffic event spike: %.0f events"},
	},
	record.ToolMeraki: {
		{Feature: "total_records", Min: 300, Format: "Network event spike: %.0f events"},
	},
}

// describe builds the anomaly description from the offending day's feature
// snapshot. When no rule fires, the most elevated headline column gives a
// generic description rather than an empty string.
func describe(tool record.ToolType, values map[string]float64) string {
	for _, rule := range descriptionRules[tool] {
		if v, ok := values[rule.Feature]; ok && v >= rule.Min {
			return fmt.Sprintf(rule.Format, v)
		}
	}

	best, bestRatio := "", 0.0
	for _, column := range headlineColumns {
		if r := values[column+"_7d_ratio"]; r > bestRatio {
			best, bestRatio = column, r
		}
	}
	if best != "" && bestRatio > 1 {
		return fmt.Sprintf("Unusual %s level: %.1fx the 7-day average",
			strings.ReplaceAll(best, "_", " "), bestRatio)
	}
	return "Unusual activity pattern compared to the trained baseline"
}
