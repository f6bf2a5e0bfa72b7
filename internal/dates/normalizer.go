package dates

import (
	"strings"
	"time"

	"github.com/sentraview/sentraview-core/internal/record"
)

// Package dates normalizes the ad hoc datetime strings found in security-tool
// exports into canonical UTC instants.
//
// Every tool ships its own convention, sometimes several per file:
//   - GSuite phishing reports:  "Apr 16, 2025, 02:28 PM"
//   - GSuite mail-scan / MDM / SIEM: "16-04-2025 02.28.45 PM" (dot-separated time)
//   - Plain day-first dates:    "16-04-2025"
//   - Meraki:                   "2025/04/16 02:28:45.123456 +00:00"
//   - Assorted ISO and slash variants.
//
// Formats are tried in a fixed priority order with tool-specific layouts
// first, because "04-05-2025" is ambiguous between day-first and month-first:
// the exports in scope are day-first, so day-first layouts always win over
// month-first ones. Normalization is pure and total: any input that cannot be
// resolved yields ok=false, never a panic.

// layouts is the fixed priority list of supported formats.
var layouts = []string{
	// GSuite phishing: "MMM DD, YYYY, hh:mm AM/PM"
	"Jan 2, 2006, 03:04 PM",
	"Jan 2, 2006, 3:04 PM",
	"Jan 02, 2006, 03:04 PM",
	// Dot-separated times (GSuite mail-scan, MDM, SIEM)
	"02-01-2006 03.04.05 PM",
	"2-1-2006 03.04.05 PM",
	"02-01-2006 03.04 PM",
	"02/01/2006 03.04.05 PM",
	// Meraki: fractional seconds with a UTC offset
	"2006/01/02 15:04:05.000000 -07:00",
	"2006/01/02 15:04:05.000000 Z07:00",
	"2006/01/02 15:04:05 -07:00",
	// Day-first with clock
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"2-1-2006 15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	// Plain day-first dates
	"02-01-2006",
	"2-1-2006",
	"02/01/2006",
	"2/1/2006",
	// ISO and slash variants
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	// Long-form fallbacks
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// Normalize resolves an arbitrary cell value to a UTC instant. It accepts
// native times, record values, and strings; everything else is undated.
func Normalize(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return Normalize(*t)
	case record.Value:
		if ts, ok := t.Time(); ok {
			return ts.UTC(), true
		}
		if t.Kind() == record.KindString {
			return NormalizeString(t.Str())
		}
		return time.Time{}, false
	case string:
		return NormalizeString(t)
	default:
		return time.Time{}, false
	}
}

// NormalizeString resolves a raw string to a UTC instant by trying each
// supported layout in priority order. Sentinel values ("", "nan", "none",
// "nat", ...) are undated, not errors.
func NormalizeString(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if record.IsSentinel(s) {
		return time.Time{}, false
	}
	// Collapse doubled spaces that show up in hand-edited exports.
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeField resolves the first candidate field on rec that parses to an
// instant. Candidate order is significant: callers pass tool-ordered lists so
// a tool-specific field (for example GSuite's "Date Reported") is tried before
// a generic "Date" that may hold a different convention.
func NormalizeField(rec record.Record, candidates []string) (time.Time, bool) {
	for _, name := range candidates {
		v, ok := rec[name]
		if !ok || v.IsNull() {
			continue
		}
		if t, ok := Normalize(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// Day truncates an instant to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
