package record

import (
	"sort"
	"time"
)

// ToolType identifies which product exported a spreadsheet. It selects the
// parser, the KPI definitions, and the filter engine's date-candidate order.
type ToolType string

const (
	ToolGSuite    ToolType = "gsuite"
	ToolMDM       ToolType = "mdm"
	ToolSIEM      ToolType = "siem"
	ToolEDR       ToolType = "edr"
	ToolMeraki    ToolType = "meraki"
	ToolSonicWall ToolType = "sonicwall"
	ToolUnknown   ToolType = "unknown"
)

// AllTools lists every supported tool type in a stable order.
var AllTools = []ToolType{ToolGSuite, ToolMDM, ToolSIEM, ToolEDR, ToolMeraki, ToolSonicWall}

// ParseTool maps a string onto a ToolType, returning ToolUnknown for anything
// outside the supported set.
func ParseTool(s string) ToolType {
	switch ToolType(s) {
	case ToolGSuite, ToolMDM, ToolSIEM, ToolEDR, ToolMeraki, ToolSonicWall:
		return ToolType(s)
	default:
		return ToolUnknown
	}
}

// Valid reports whether t names one of the six supported tools.
func (t ToolType) Valid() bool { return t != ToolUnknown && t != "" }

// Record is one normalized row: column label → scalar value.
type Record map[string]Value

// Clone returns a shallow copy of the record. Values are immutable, so a
// shallow copy is safe to mutate key-wise.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// SortedKeys returns the record's column labels in lexical order.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Group maps sheet/category name to an ordered sequence of records.
type Group map[string][]Record

// LogEntry is one soft-failure note on a bundle's processing log. Partial
// sheet failures and unresolved dates land here instead of failing the parse.
type LogEntry struct {
	Sheet   string    `json:"sheet,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Bundle is the normalized output of parsing one spreadsheet for one tool.
// It is the unit of storage per (company, tool): created on successful parse,
// activated explicitly, superseded by newer uploads, never mutated in place.
type Bundle struct {
	ID          string             `json:"id"`
	CompanyID   string             `json:"company_id"`
	Tool        ToolType           `json:"tool"`
	KPIs        map[string]float64 `json:"kpis"`
	Details     Group              `json:"details"`
	Analytics   map[string]any     `json:"analytics"`
	Log         []LogEntry         `json:"log,omitempty"`
	ContentHash string             `json:"content_hash"`
	IsActive    bool               `json:"is_active"`
	UploadedAt  time.Time          `json:"uploaded_at"`
}

// RecordCount returns the total number of records across all sheets.
func (b *Bundle) RecordCount() int {
	n := 0
	for _, recs := range b.Details {
		n += len(recs)
	}
	return n
}

// Note appends a soft-failure entry to the processing log.
func (b *Bundle) Note(sheet, message string) {
	b.Log = append(b.Log, LogEntry{Sheet: sheet, Message: message, At: time.Now().UTC()})
}

// Clone deep-copies the bundle so the filter engine can rewrite details and
// KPIs without touching the stored original.
func (b *Bundle) Clone() *Bundle {
	out := *b
	out.KPIs = make(map[string]float64, len(b.KPIs))
	for k, v := range b.KPIs {
		out.KPIs[k] = v
	}
	out.Details = make(Group, len(b.Details))
	for sheet, recs := range b.Details {
		cp := make([]Record, len(recs))
		for i, r := range recs {
			cp[i] = r.Clone()
		}
		out.Details[sheet] = cp
	}
	out.Analytics = cloneAny(b.Analytics).(map[string]any)
	out.Log = append([]LogEntry(nil), b.Log...)
	return &out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneAny(e)
		}
		return out
	case map[string]float64:
		out := make(map[string]float64, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	case map[string]int:
		out := make(map[string]int, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}
