package ingest

import (
	"strings"

	"github.com/sentraview/sentraview-core/internal/record"
)

// Severity scale shared by every tool: numeric code 0–4 plus a name form.
// Vendor exports use either; KPI rules need both.
const (
	SeverityInfo = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// SeverityNames indexes name forms by code.
var SeverityNames = [...]string{"info", "low", "medium", "high", "critical"}

var severitySynonyms = map[string]int{
	"info":          SeverityInfo,
	"informational": SeverityInfo,
	"information":   SeverityInfo,
	"debug":         SeverityInfo,
	"0":             SeverityInfo,
	"low":           SeverityLow,
	"notice":        SeverityLow,
	"minor":         SeverityLow,
	"1":             SeverityLow,
	"medium":        SeverityMedium,
	"med":           SeverityMedium,
	"moderate":      SeverityMedium,
	"warning":       SeverityMedium,
	"warn":          SeverityMedium,
	"2":             SeverityMedium,
	"high":          SeverityHigh,
	"error":         SeverityHigh,
	"major":         SeverityHigh,
	"3":             SeverityHigh,
	"critical":      SeverityCritical,
	"crit":          SeverityCritical,
	"severe":        SeverityCritical,
	"emergency":     SeverityCritical,
	"4":             SeverityCritical,
}

// NormalizeSeverity maps a textual level or 0–4 code onto the shared scale.
// Unmapped and missing values default to (0, "info"); this never fails.
func NormalizeSeverity(v record.Value) (int, string) {
	var key string
	switch v.Kind() {
	case record.KindNumber:
		n := int(v.Num())
		if n >= SeverityInfo && n <= SeverityCritical {
			return n, SeverityNames[n]
		}
		return SeverityInfo, SeverityNames[SeverityInfo]
	case record.KindString:
		key = strings.ToLower(strings.TrimSpace(v.Str()))
	default:
		return SeverityInfo, SeverityNames[SeverityInfo]
	}

	if code, ok := severitySynonyms[key]; ok {
		return code, SeverityNames[code]
	}
	return SeverityInfo, SeverityNames[SeverityInfo]
}

// resolvedStatuses are the status keywords that count an event as handled.
var resolvedStatuses = []string{"resolved", "closed", "done", "complete", "mitigated", "remediated", "fixed"}

// IsResolvedStatus reports whether a status value counts as resolved. Missing
// and unrecognized statuses count as open.
func IsResolvedStatus(v record.Value) bool {
	if v.Kind() != record.KindString {
		return false
	}
	s := strings.ToLower(strings.TrimSpace(v.Str()))
	for _, kw := range resolvedStatuses {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
