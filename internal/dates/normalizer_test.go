package dates

import (
	"testing"
	"time"

	"github.com/sentraview/sentraview-core/internal/record"
)

func TestNormalizeString_SupportedFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "gsuite phishing",
			raw:  "Apr 16, 2025, 02:28 PM",
			want: time.Date(2025, 4, 16, 14, 28, 0, 0, time.UTC),
		},
		{
			name: "gsuite phishing single digit hour",
			raw:  "Jan 3, 2025, 9:05 AM",
			want: time.Date(2025, 1, 3, 9, 5, 0, 0, time.UTC),
		},
		{
			name: "dotted time pm",
			raw:  "16-04-2025 02.28.45 PM",
			want: time.Date(2025, 4, 16, 14, 28, 45, 0, time.UTC),
		},
		{
			name: "dotted time am",
			raw:  "01-12-2024 11.59.59 AM",
			want: time.Date(2024, 12, 1, 11, 59, 59, 0, time.UTC),
		},
		{
			name: "plain day first",
			raw:  "16-04-2025",
			want: time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "day first is preferred over month first",
			raw:  "04-05-2025",
			want: time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "meraki fractional with offset",
			raw:  "2025/04/16 02:28:45.123456 +00:00",
			want: time.Date(2025, 4, 16, 2, 28, 45, 123456000, time.UTC),
		},
		{
			name: "iso date",
			raw:  "2025-04-16",
			want: time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "iso datetime",
			raw:  "2025-04-16 14:28:00",
			want: time.Date(2025, 4, 16, 14, 28, 0, 0, time.UTC),
		},
		{
			name: "rfc3339",
			raw:  "2025-04-16T14:28:00Z",
			want: time.Date(2025, 4, 16, 14, 28, 0, 0, time.UTC),
		},
		{
			name: "slash date",
			raw:  "16/04/2025",
			want: time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "surrounding whitespace",
			raw:  "  2025-04-16  ",
			want: time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeString(tt.raw)
			if !ok {
				t.Fatalf("NormalizeString(%q) failed to resolve", tt.raw)
			}
			if !got.Equal(tt.want) {
				t.Errorf("NormalizeString(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeString_Sentinels(t *testing.T) {
	for _, raw := range []string{"", "nan", "NaN", "None", "NONE", "nat", "NaT", "null", "n/a", "-", "   "} {
		if _, ok := NormalizeString(raw); ok {
			t.Errorf("NormalizeString(%q) should not resolve", raw)
		}
	}
}

func TestNormalizeString_Garbage(t *testing.T) {
	for _, raw := range []string{"not a date", "99-99-9999", "hello world", "12345678901234567890", "@@##"} {
		if _, ok := NormalizeString(raw); ok {
			t.Errorf("NormalizeString(%q) should not resolve", raw)
		}
	}
}

func TestNormalize_NativeTypes(t *testing.T) {
	ts := time.Date(2025, 4, 16, 14, 28, 0, 0, time.UTC)

	if got, ok := Normalize(ts); !ok || !got.Equal(ts) {
		t.Errorf("Normalize(time.Time) = %v, %v", got, ok)
	}
	if got, ok := Normalize(&ts); !ok || !got.Equal(ts) {
		t.Errorf("Normalize(*time.Time) = %v, %v", got, ok)
	}
	if _, ok := Normalize((*time.Time)(nil)); ok {
		t.Error("nil *time.Time should not resolve")
	}
	if _, ok := Normalize(42); ok {
		t.Error("int should not resolve")
	}
	if got, ok := Normalize(record.Instant(ts)); !ok || !got.Equal(ts) {
		t.Errorf("Normalize(record.Instant) = %v, %v", got, ok)
	}
	if got, ok := Normalize(record.String("2025-04-16")); !ok || got.Day() != 16 {
		t.Errorf("Normalize(record.String) = %v, %v", got, ok)
	}
	if _, ok := Normalize(record.Null()); ok {
		t.Error("null value should not resolve")
	}
}

func TestNormalizeField_CandidateOrder(t *testing.T) {
	rec := record.Record{
		"Date":          record.String("01-01-2020"),
		"Date Reported": record.String("Apr 16, 2025, 02:28 PM"),
	}

	got, ok := NormalizeField(rec, []string{"Date Reported", "Date"})
	if !ok {
		t.Fatal("expected a resolvable date")
	}
	if got.Year() != 2025 {
		t.Errorf("candidate order not honored: got %v", got)
	}

	got, ok = NormalizeField(rec, []string{"Date", "Date Reported"})
	if !ok || got.Year() != 2020 {
		t.Errorf("reversed order should pick the generic field: got %v, %v", got, ok)
	}

	if _, ok := NormalizeField(rec, []string{"Missing"}); ok {
		t.Error("missing candidates should not resolve")
	}
}

func TestDay(t *testing.T) {
	ts := time.Date(2025, 4, 16, 23, 59, 59, 0, time.UTC)
	want := time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC)
	if got := Day(ts); !got.Equal(want) {
		t.Errorf("Day(%v) = %v, want %v", ts, got, want)
	}
}
