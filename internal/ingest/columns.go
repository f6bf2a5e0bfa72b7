package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sentraview/sentraview-core/internal/record"
	"github.com/sentraview/sentraview-core/internal/sheet"
)

// ColumnSpec declares one canonical column and the source labels, in priority
// order, that may carry it in a vendor export. Matching is case-insensitive
// substring containment, first match wins, and a source column already claimed
// by an earlier canonical name is never claimed twice. Keeping the matching in
// one declarative table per tool keeps it testable apart from the parsers.
type ColumnSpec struct {
	Canonical  string
	Candidates []string
}

// siemColumns maps the SIEM export's many column spellings onto the canonical
// set the filter engine and KPI rules expect.
var siemColumns = []ColumnSpec{
	{Canonical: "Severity", Candidates: []string{"severity", "priority", "level", "risk"}},
	{Canonical: "Username", Candidates: []string{"username", "user name", "user", "account", "affected user"}},
	{Canonical: "Alert Type", Candidates: []string{"alert type", "title", "alert name", "event type", "rule name", "category"}},
	{Canonical: "Date", Candidates: []string{"date", "tag time", "timestamp", "created", "event time", "time"}},
	{Canonical: "Status", Candidates: []string{"status", "state", "resolution", "disposition"}},
}

// ResolveColumns maps canonical names to header indexes according to specs.
// Canonical names with no matching source column are simply absent from the
// result; callers decide whether that is fatal.
func ResolveColumns(headers []string, specs []ColumnSpec) map[string]int {
	lowered := make([]string, len(headers))
	for i, h := range headers {
		lowered[i] = strings.ToLower(strings.TrimSpace(h))
	}

	resolved := make(map[string]int, len(specs))
	claimed := make(map[int]bool, len(specs))

	for _, spec := range specs {
	candidates:
		for _, cand := range spec.Candidates {
			for i, h := range lowered {
				if claimed[i] || h == "" {
					continue
				}
				if strings.Contains(h, cand) {
					resolved[spec.Canonical] = i
					claimed[i] = true
					break candidates
				}
			}
		}
	}
	return resolved
}

// isUnnamedHeader reports whether a header cell is empty or auto-generated
// ("Unnamed: 3", "Column7"), the shape produced when a wrong-format file is
// read as tabular data.
func isUnnamedHeader(h string) bool {
	h = strings.TrimSpace(h)
	if h == "" {
		return true
	}
	lower := strings.ToLower(h)
	if strings.HasPrefix(lower, "unnamed:") || lower == "unnamed" {
		return true
	}
	if rest, ok := strings.CutPrefix(lower, "column"); ok {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return true
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return true
		}
	}
	return false
}

// unnamedCount counts unnamed headers in a header row.
func unnamedCount(headers []string) int {
	n := 0
	for _, h := range headers {
		if isUnnamedHeader(h) {
			n++
		}
	}
	return n
}

// mostlyUnnamed reports whether more than half of the headers are unnamed.
func mostlyUnnamed(headers []string) bool {
	if len(headers) == 0 {
		return true
	}
	return unnamedCount(headers)*2 > len(headers)
}

// dedupeHeaders suffixes repeated header names (".1", ".2", ...) so every
// column label in a record is unique. SIEM exports routinely repeat columns
// when two appliance views are concatenated side by side.
func dedupeHeaders(headers []string) []string {
	seen := make(map[string]int, len(headers))
	out := make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			out[i] = fmt.Sprintf("%s.%d", h, n)
			continue
		}
		seen[h] = 1
		out[i] = h
	}
	return out
}

// cellValue converts a raw cell into a record value: sentinels become null,
// numeric text becomes a number, everything else stays a string. Dates are
// left as strings and resolved lazily by the date normalizer, because one
// column can mix conventions across rows.
func cellValue(raw string) record.Value {
	s := strings.TrimSpace(raw)
	if record.IsSentinel(s) {
		return record.Null()
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		return record.Number(f)
	}
	return record.String(s)
}

// rowsToRecords builds records from the rows in [start, end) of a sheet using
// the given header labels. Short rows are padded with nulls; fully empty rows
// are skipped.
func rowsToRecords(s sheet.Sheet, headers []string, start, end int) []record.Record {
	raw := s.Rows(start, end)
	out := make([]record.Record, 0, len(raw))
	for _, cells := range raw {
		rec := make(record.Record, len(headers))
		empty := true
		for i, h := range headers {
			if h == "" {
				continue
			}
			var v record.Value
			if i < len(cells) {
				v = cellValue(cells[i])
			}
			if !v.IsNull() {
				empty = false
			}
			rec[h] = v
		}
		if empty {
			continue
		}
		out = append(out, rec)
	}
	return out
}
