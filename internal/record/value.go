package record

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Package record defines the schema-free record model shared by every stage of
// the normalization pipeline.
//
// Vendor exports have no stable schema: column sets differ per tool, per sheet,
// and sometimes per export version of the same product. Rather than inventing a
// struct per tool, a record is a flat map from column label to a small closed
// Value variant. Parsers populate records, the filter engine reads them back,
// and the anomaly extractor aggregates them, all without a canonical schema.

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindInstant
)

// Value is a closed scalar variant: string, number, instant, or null.
// The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	ts   time.Time
}

// Null returns the null value.
func Null() Value { return Value{} }

// String wraps a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a numeric value. NaN and Inf are coerced to null so a Value is
// always representable in JSON.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: KindNumber, num: f}
}

// Instant wraps a concrete point in time.
func Instant(t time.Time) Value {
	if t.IsZero() {
		return Value{}
	}
	return Value{kind: KindInstant, ts: t.UTC()}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v holds nothing.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string form for KindString values, "" otherwise.
func (v Value) Str() string { return v.str }

// Num returns the numeric form for KindNumber values, 0 otherwise.
func (v Value) Num() float64 { return v.num }

// Time returns the instant and true for KindInstant values.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindInstant {
		return time.Time{}, false
	}
	return v.ts, true
}

// Text renders the value as display text. Null renders as the empty string.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindInstant:
		return v.ts.Format(time.RFC3339)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as a JSON scalar; instants use RFC 3339.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindInstant:
		return json.Marshal(v.ts.Format(time.RFC3339))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar back into a Value. Strings that parse as
// RFC 3339 instants round-trip back to KindInstant.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*v = Instant(t)
		return nil
	}
	*v = String(s)
	return nil
}
