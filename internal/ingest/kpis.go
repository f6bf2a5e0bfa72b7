package ingest

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sentraview/sentraview-core/internal/dates"
	"github.com/sentraview/sentraview-core/internal/record"
)

// KPI definitions live here, in one place, computed from a bundle's details
// alone. Parsers call ComputeKPIs after all sheets are extracted and the
// filter engine calls it again on the filtered details, so a recomputed KPI
// block always follows the same definitions the original parse used.
//
// Several formulas are estimated metrics, not ground truth: the source
// exports carry no reliable signal for them, so the pipeline derives a
// placeholder (suspicious-emails subset convention, response times from
// inter-event gaps, false-positive share from info-severity volume). They are
// flagged under analytics["estimatedMetrics"] and kept stable for
// compatibility rather than "fixed".

// DateCandidates lists, per tool, the field names tried in order when a
// record's date is resolved. Order is load-bearing: GSuite's "Date Reported"
// must win over a generic "Date", and EDR's synthesized "Date" (derived from
// "Scan Status" timestamps at parse time) must win over raw vendor fields.
var DateCandidates = map[record.ToolType][]string{
	record.ToolGSuite:    {"Date Reported", "Date", "Received Date", "Timestamp"},
	record.ToolMDM:       {"Last Seen", "Enrollment Date", "Last Check-In", "Date"},
	record.ToolSIEM:      {"Date", "Tag Time", "Timestamp", "Created"},
	record.ToolEDR:       {"Date", "Scan Status", "Detected At", "Last Seen"},
	record.ToolMeraki:    {"Occurred At", "Date", "Timestamp"},
	record.ToolSonicWall: {"Time", "Date", "Timestamp"},
}

// EstimatedMetrics names the KPI keys per tool that are heuristic
// placeholders rather than measured values.
var EstimatedMetrics = map[record.ToolType][]string{
	record.ToolGSuite: {"suspiciousEmails", "avgResponseHours"},
	record.ToolMDM:    {"avgResponseHours"},
	record.ToolSIEM:   {"avgResponseHours", "falsePositiveRate"},
	record.ToolEDR:    {"avgResponseHours"},
}

// ComputeKPIs derives the tool's KPI block from a details group.
func ComputeKPIs(tool record.ToolType, details record.Group) map[string]float64 {
	switch tool {
	case record.ToolGSuite:
		return gsuiteKPIs(details)
	case record.ToolMDM:
		return mdmKPIs(details)
	case record.ToolSIEM:
		return siemKPIs(details)
	case record.ToolEDR:
		return edrKPIs(details)
	case record.ToolMeraki:
		return merakiKPIs(details)
	case record.ToolSonicWall:
		return sonicwallKPIs(details)
	default:
		return map[string]float64{}
	}
}

// ComputeAnalytics derives the tool's aggregate views (severity distribution,
// monthly trends, top-N breakdowns) from a details group.
func ComputeAnalytics(tool record.ToolType, details record.Group) map[string]any {
	analytics := map[string]any{
		"severityDistribution": severityDistribution(details),
		"monthlyTrends":        monthlyTrends(tool, details),
	}
	if est := EstimatedMetrics[tool]; len(est) > 0 {
		analytics["estimatedMetrics"] = append([]string(nil), est...)
	}

	switch tool {
	case record.ToolSIEM:
		analytics["topUsers"] = topValues(details, []string{"Username"}, 5)
		analytics["topAlertTypes"] = topValues(details, []string{"Alert Type"}, 5)
	case record.ToolGSuite:
		analytics["topSenders"] = topValues(details, []string{"Sender", "From"}, 5)
	case record.ToolMDM:
		analytics["platformBreakdown"] = topValues(details, []string{"OS", "Platform", "OS Version"}, 10)
	case record.ToolEDR:
		analytics["topThreatTypes"] = topValues(details, []string{"Threat Type", "Threat Name", "Classification"}, 5)
	case record.ToolMeraki:
		analytics["topClients"] = topValues(details, []string{"Client", "Client Description"}, 5)
	case record.ToolSonicWall:
		analytics["topSources"] = topValues(details, []string{"Source", "Source IP"}, 5)
	}
	return analytics
}

// ─── GSuite ───────────────────────────────────────────────────────────────────

func gsuiteKPIs(details record.Group) map[string]float64 {
	scanned := sheetRows(details, "mail scanned")
	phishing := sheetRows(details, "phishing")
	malware := sheetRows(details, "malware")
	blocked := sheetRows(details, "blocked")

	phishingCount := float64(len(phishing))

	kpis := map[string]float64{
		"emailsScanned":     float64(len(scanned)),
		"phishingAttempted": phishingCount,
		// Subset convention inherited from the original reporting pipeline:
		// roughly a third of reported phishing is triaged as suspicious,
		// floored at one. Estimated metric, not ground truth.
		"suspiciousEmails": math.Max(1, math.Floor(phishingCount/3)),
		"malwareDetected":  float64(len(malware)),
		"blockedEmails":    float64(len(blocked)),
		"resolvedReports":  float64(countResolved(phishing)),
		"uniqueReporters":  float64(uniqueValues(phishing, []string{"Reported By", "Reporter", "Sender"})),
		"avgResponseHours": estimatedResponseHours(phishing, record.ToolGSuite),
	}
	return kpis
}

// ─── MDM ──────────────────────────────────────────────────────────────────────

func mdmKPIs(details record.Group) map[string]float64 {
	devices := sheetRows(details, "device")
	if len(devices) == 0 {
		devices = sheetRows(details, "compliance")
	}
	violations := sheetRows(details, "violation")

	total := float64(len(devices))
	compliant := 0.0
	encrypted := 0.0
	for _, rec := range devices {
		status := firstText(rec, []string{"Compliance Status", "Compliance", "Status"})
		s := strings.ToLower(status)
		if strings.Contains(s, "compliant") && !strings.Contains(s, "non") {
			compliant++
		}
		enc := strings.ToLower(firstText(rec, []string{"Encryption Status", "Encryption", "Encrypted"}))
		if strings.Contains(enc, "encrypted") || enc == "yes" || enc == "true" || enc == "enabled" {
			encrypted++
		}
	}

	rate := 0.0
	if total > 0 {
		// Compliance over the current population, so a filtered view reports
		// the compliance of the records in range, not of the original upload.
		rate = compliant / total * 100
	}

	return map[string]float64{
		"totalDevices":        total,
		"compliantDevices":    compliant,
		"nonCompliantDevices": total - compliant,
		"complianceRate":      rate,
		"encryptedDevices":    encrypted,
		"policyViolations":    float64(len(violations)),
		"uniquePlatforms":     float64(uniqueValues(devices, []string{"OS", "Platform", "OS Version"})),
		"avgResponseHours":    estimatedResponseHours(violations, record.ToolMDM),
	}
}

// ─── SIEM ─────────────────────────────────────────────────────────────────────

func siemKPIs(details record.Group) map[string]float64 {
	var events []record.Record
	for _, recs := range details {
		events = append(events, recs...)
	}

	buckets := make([]float64, SeverityCritical+1)
	for _, rec := range events {
		code, _ := NormalizeSeverity(rec["Severity"])
		buckets[code]++
	}

	total := float64(len(events))
	resolved := float64(countResolved(events))

	fpRate := 0.0
	if total > 0 {
		// Estimated: the export carries no analyst disposition, so the share
		// of info-severity noise stands in for the false-positive rate.
		fpRate = round2(buckets[SeverityInfo] / total * 100)
	}

	return map[string]float64{
		"totalEvents":       total,
		"criticalAlerts":    buckets[SeverityCritical],
		"highAlerts":        buckets[SeverityHigh],
		"mediumAlerts":      buckets[SeverityMedium],
		"lowAlerts":         buckets[SeverityLow],
		"infoAlerts":        buckets[SeverityInfo],
		"resolvedEvents":    resolved,
		"openEvents":        total - resolved,
		"uniqueUsers":       float64(uniqueValues(events, []string{"Username"})),
		"avgResponseHours":  estimatedResponseHours(events, record.ToolSIEM),
		"falsePositiveRate": fpRate,
	}
}

// ─── EDR ──────────────────────────────────────────────────────────────────────

func edrKPIs(details record.Group) map[string]float64 {
	endpoints := details[edrSheetEndpoints]
	threats := details[edrSheetThreats]
	statuses := details[edrSheetDetailedStatus]

	protected := 0.0
	for _, rec := range append(append([]record.Record{}, endpoints...), statuses...) {
		s := strings.ToLower(firstText(rec, []string{"Protection Status", "Agent Status", "Status"}))
		if strings.Contains(s, "protected") || strings.Contains(s, "enabled") || strings.Contains(s, "up to date") {
			protected++
		}
	}
	if protected > float64(len(endpoints)) && len(endpoints) > 0 {
		protected = float64(len(endpoints))
	}

	resolved := float64(countResolved(threats))

	return map[string]float64{
		"totalEndpoints":     float64(len(endpoints)),
		"threatsDetected":    float64(len(threats)),
		"activeThreats":      float64(len(threats)) - resolved,
		"resolvedThreats":    resolved,
		"protectedEndpoints": protected,
		"avgResponseHours":   estimatedResponseHours(threats, record.ToolEDR),
	}
}

// ─── Meraki ───────────────────────────────────────────────────────────────────

func merakiKPIs(details record.Group) map[string]float64 {
	var events []record.Record
	for _, recs := range details {
		events = append(events, recs...)
	}

	security := 0.0
	blocked := 0.0
	for _, rec := range events {
		cat := strings.ToLower(firstText(rec, []string{"Event Type", "Category", "Type"}))
		if strings.Contains(cat, "ids") || strings.Contains(cat, "security") || strings.Contains(cat, "rogue") || strings.Contains(cat, "malware") {
			security++
		}
		act := strings.ToLower(firstText(rec, []string{"Action", "Disposition"}))
		if strings.Contains(act, "block") || strings.Contains(act, "deny") || strings.Contains(act, "drop") {
			blocked++
		}
	}

	return map[string]float64{
		"totalEvents":    float64(len(events)),
		"securityEvents": security,
		"blockedEvents":  blocked,
		"uniqueClients":  float64(uniqueValues(events, []string{"Client", "Client Description", "Client MAC"})),
		"uniqueDevices":  float64(uniqueValues(events, []string{"Device", "Device Name", "AP"})),
	}
}

// ─── SonicWall ────────────────────────────────────────────────────────────────

func sonicwallKPIs(details record.Group) map[string]float64 {
	var events []record.Record
	for _, recs := range details {
		events = append(events, recs...)
	}

	blocked := 0.0
	criticalEvents := 0.0
	for _, rec := range events {
		act := strings.ToLower(firstText(rec, []string{"Action", "Message"}))
		if strings.Contains(act, "block") || strings.Contains(act, "drop") || strings.Contains(act, "deny") {
			blocked++
		}
		code, _ := NormalizeSeverity(firstValue(rec, []string{"Severity", "Priority"}))
		if code >= SeverityHigh {
			criticalEvents++
		}
	}

	return map[string]float64{
		"totalEvents":        float64(len(events)),
		"blockedThreats":     blocked,
		"criticalEvents":     criticalEvents,
		"uniqueSources":      float64(uniqueValues(events, []string{"Source", "Source IP", "Src"})),
		"uniqueDestinations": float64(uniqueValues(events, []string{"Destination", "Destination IP", "Dst"})),
	}
}

// ─── Shared helpers ───────────────────────────────────────────────────────────

// sheetRows concatenates the rows of every sheet whose name contains the
// given phrase (case-insensitive), in stable sheet-name order.
func sheetRows(details record.Group, phrase string) []record.Record {
	names := make([]string, 0, len(details))
	for name := range details {
		if strings.Contains(strings.ToLower(name), phrase) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []record.Record
	for _, name := range names {
		out = append(out, details[name]...)
	}
	return out
}

func countResolved(recs []record.Record) int {
	n := 0
	for _, rec := range recs {
		if IsResolvedStatus(firstValue(rec, []string{"Status", "State", "Resolution"})) {
			n++
		}
	}
	return n
}

func uniqueValues(recs []record.Record, fields []string) int {
	seen := make(map[string]bool)
	for _, rec := range recs {
		v := firstText(rec, fields)
		if v == "" {
			continue
		}
		seen[strings.ToLower(v)] = true
	}
	return len(seen)
}

func firstValue(rec record.Record, fields []string) record.Value {
	for _, f := range fields {
		if v, ok := rec[f]; ok && !v.IsNull() {
			return v
		}
	}
	return record.Null()
}

func firstText(rec record.Record, fields []string) string {
	return firstValue(rec, fields).Text()
}

// estimatedResponseHours derives a response-time placeholder from the mean
// gap between consecutive dated events, capped at 72h. Estimated metric: the
// exports carry no ticket timestamps to measure against.
func estimatedResponseHours(recs []record.Record, tool record.ToolType) float64 {
	candidates := DateCandidates[tool]
	var ts []time.Time
	for _, rec := range recs {
		if t, ok := dates.NormalizeField(rec, candidates); ok {
			ts = append(ts, t)
		}
	}
	if len(ts) < 2 {
		return 0
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	var totalGap time.Duration
	for i := 1; i < len(ts); i++ {
		totalGap += ts[i].Sub(ts[i-1])
	}
	hours := totalGap.Hours() / float64(len(ts)-1)
	if hours > 72 {
		hours = 72
	}
	return round2(hours)
}

func severityDistribution(details record.Group) map[string]int {
	dist := make(map[string]int, len(SeverityNames))
	for _, recs := range details {
		for _, rec := range recs {
			v := firstValue(rec, []string{"Severity", "Priority", "Level"})
			if v.IsNull() {
				continue
			}
			_, name := NormalizeSeverity(v)
			dist[name]++
		}
	}
	return dist
}

func monthlyTrends(tool record.ToolType, details record.Group) map[string]int {
	candidates := DateCandidates[tool]
	trends := make(map[string]int)
	for _, recs := range details {
		for _, rec := range recs {
			if t, ok := dates.NormalizeField(rec, candidates); ok {
				trends[t.Format("2006-01")]++
			}
		}
	}
	return trends
}

// topValues returns the N most frequent values of the first present field,
// formatted as "value (count)" entries in descending count order.
func topValues(details record.Group, fields []string, n int) []string {
	counts := make(map[string]int)
	for _, recs := range details {
		for _, rec := range recs {
			v := firstText(rec, fields)
			if v == "" {
				continue
			}
			counts[v]++
		}
	}

	type kv struct {
		key   string
		count int
	}
	sorted := make([]kv, 0, len(counts))
	for k, c := range counts {
		sorted = append(sorted, kv{k, c})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].key < sorted[j].key
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]string, len(sorted))
	for i, e := range sorted {
		out[i] = fmt.Sprintf("%s (%d)", e.key, e.count)
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
