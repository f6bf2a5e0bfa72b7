package filter

import (
	"fmt"
	"sort"
	"time"

	"github.com/sentraview/sentraview-core/internal/dates"
	"github.com/sentraview/sentraview-core/internal/record"
)

// Bucket-row field names. The period label doubles as the marker that a
// sheet has already been aggregated.
const (
	periodField      = "Period"
	periodStartField = "Period Start"
	recordsField     = "Records"
)

// aggregate groups dated records into week or month buckets, summing numeric
// columns and counting rows per bucket. Undated records pass through
// unchanged after the bucket rows.
func aggregate(recs []record.Record, candidates []string, agg Aggregation, includeWeekends bool) []record.Record {
	type bucket struct {
		start time.Time
		count int
		sums  map[string]float64
	}
	buckets := make(map[string]*bucket)
	var passThrough []record.Record

	for _, rec := range recs {
		t, ok := dates.NormalizeField(rec, candidates)
		if !ok {
			passThrough = append(passThrough, rec)
			continue
		}
		if !includeWeekends {
			if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
		}

		key, start := bucketOf(t, agg)
		bk := buckets[key]
		if bk == nil {
			bk = &bucket{start: start, sums: make(map[string]float64)}
			buckets[key] = bk
		}
		bk.count++
		for field, v := range rec {
			if v.Kind() == record.KindNumber {
				bk.sums[field] += v.Num()
			}
		}
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]record.Record, 0, len(keys)+len(passThrough))
	for _, key := range keys {
		bk := buckets[key]
		rec := record.Record{
			periodField:      record.String(key),
			periodStartField: record.Instant(bk.start),
			recordsField:     record.Number(float64(bk.count)),
		}
		for field, sum := range bk.sums {
			rec[field] = record.Number(sum)
		}
		out = append(out, rec)
	}
	return append(out, passThrough...)
}

// bucketOf returns the bucket label and start day for a timestamp: ISO week
// ("2025-W16") or calendar month ("2025-04").
func bucketOf(t time.Time, agg Aggregation) (string, time.Time) {
	if agg == AggMonthly {
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
		return t.Format("2006-01"), start
	}
	year, week := t.ISOWeek()
	day := dates.Day(t)
	offset := (int(day.Weekday()) + 6) % 7 // days since Monday
	return fmt.Sprintf("%d-W%02d", year, week), day.AddDate(0, 0, -offset)
}
