package record

import (
	"math"
	"strings"
)

// Sentinel strings that vendor exports use for "no value". They collapse to
// the empty string during sanitation and to null during date resolution.
var sentinels = map[string]struct{}{
	"nan":  {},
	"none": {},
	"nat":  {},
	"null": {},
	"n/a":  {},
	"-":    {},
}

// IsSentinel reports whether s is one of the known no-value markers
// (case-insensitive, surrounding whitespace ignored).
func IsSentinel(s string) bool {
	_, ok := sentinels[strings.ToLower(strings.TrimSpace(s))]
	return ok || strings.TrimSpace(s) == ""
}

// Sanitize rewrites a bundle in place so every contained value is
// representable in JSON: NaN/Inf numbers become null, sentinel strings
// collapse to empty. This pass is mandatory before a bundle leaves the core;
// it is not best-effort.
func Sanitize(b *Bundle) {
	for k, v := range b.KPIs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b.KPIs[k] = 0
		}
	}
	for _, recs := range b.Details {
		for _, rec := range recs {
			for k, v := range rec {
				rec[k] = SanitizeValue(v)
			}
		}
	}
	b.Analytics = sanitizeAny(b.Analytics).(map[string]any)
}

// SanitizeValue returns a JSON-safe copy of v.
func SanitizeValue(v Value) Value {
	switch v.Kind() {
	case KindString:
		if IsSentinel(v.Str()) {
			return String("")
		}
		return v
	case KindNumber:
		// Number() already rejects NaN/Inf, but values decoded from JSON or
		// built elsewhere pass through here too.
		return Number(v.Num())
	default:
		return v
	}
}

func sanitizeAny(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case float32:
		return sanitizeAny(float64(t))
	case string:
		if IsSentinel(t) {
			return ""
		}
		return t
	case Value:
		return SanitizeValue(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = sanitizeAny(e)
		}
		return out
	case map[string]float64:
		out := make(map[string]float64, len(t))
		for k, e := range t {
			if math.IsNaN(e) || math.IsInf(e, 0) {
				out[k] = 0
				continue
			}
			out[k] = e
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sanitizeAny(e)
		}
		return out
	default:
		return v
	}
}
