package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentraview/sentraview-core/internal/record"
	"github.com/sentraview/sentraview-core/internal/sheet"
)

// SIEMParser handles SIEM appliance exports, the messiest format in scope:
// header rows buried under banner text, duplicated column names from
// concatenated appliance views, and half a dozen spellings for every column.
type SIEMParser struct {
	log *zap.Logger
}

// NewSIEMParser returns a parser for SIEM exports.
func NewSIEMParser(log *zap.Logger) *SIEMParser {
	return &SIEMParser{log: log}
}

func (p *SIEMParser) Tool() record.ToolType { return record.ToolSIEM }

// headerScanRows is how deep the smart header scan looks for the real header.
const headerScanRows = 10

// headerKeywords are the column keywords the header scan matches on. A row
// containing at least three of them is taken as the header row.
var headerKeywords = []string{"date", "severity", "title", "username", "tag time"}

func (p *SIEMParser) Parse(ctx context.Context, wb sheet.Workbook, opts ParseOptions) (*record.Bundle, error) {
	matched := matchSheetsByKeyword(wb, keywordSheets[record.ToolSIEM])
	if len(matched) == 0 {
		// A declared SIEM upload vouches for the workbook even when no
		// sheet name carries the keyword; the format checks below still
		// reject wrong-format files.
		matched = dataSheetNames(wb)
	}
	if len(matched) == 0 {
		return nil, rejectNoSheet(record.ToolSIEM, "at least one data sheet")
	}

	bundle := &record.Bundle{
		Tool:       record.ToolSIEM,
		Details:    make(record.Group, len(matched)),
		UploadedAt: time.Now().UTC(),
	}
	seen := make(map[string]bool)
	parsedSheets := 0
	var lastErr error

	for _, name := range matched {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, ok := wb.Sheet(name)
		if !ok {
			continue
		}

		recs, err := p.parseSheet(s)
		if err != nil {
			var reject *FormatRejectedError
			if errors.As(err, &reject) {
				return nil, err
			}
			lastErr = err
			bundle.Note(name, err.Error())
			p.log.Warn("siem sheet skipped",
				zap.String("sheet", name),
				zap.Error(err),
			)
			continue
		}

		bundle.Details[name] = dedupRecords(record.ToolSIEM, name, recs, seen)
		parsedSheets++
	}

	if parsedSheets == 0 {
		return nil, fmt.Errorf("no siem sheet could be parsed: %w", lastErr)
	}

	bundle.KPIs = ComputeKPIs(record.ToolSIEM, bundle.Details)
	bundle.Analytics = ComputeAnalytics(record.ToolSIEM, bundle.Details)
	return bundle, nil
}

// parseSheet locates the header row, canonicalizes the columns, and extracts
// the data rows beneath it.
func (p *SIEMParser) parseSheet(s sheet.Sheet) ([]record.Record, error) {
	if s.RowCount() == 0 {
		return nil, &PartialSheetError{Sheet: s.Name(), Err: fmt.Errorf("sheet is empty")}
	}

	headerRow := findHeaderRow(s)
	// The unnamed check runs on the raw row: deduping renames repeated
	// blank cells to ".1", ".2", ... which would no longer count as unnamed.
	raw := s.Row(headerRow)
	if mostlyUnnamed(raw) {
		return nil, rejectUnnamed(record.ToolSIEM, s.Name(), unnamedCount(raw), len(raw))
	}
	headers := dedupeHeaders(raw)

	headers = canonicalizeHeaders(headers, siemColumns)
	recs := rowsToRecords(s, headers, headerRow+1, s.RowCount())
	if len(recs) == 0 {
		return nil, &PartialSheetError{Sheet: s.Name(), Err: fmt.Errorf("no data rows below header row %d", headerRow)}
	}
	return recs, nil
}

// findHeaderRow scans the first rows for one containing at least three of
// the expected column keywords. Row 0 is the fallback when nothing matches.
func findHeaderRow(s sheet.Sheet) int {
	limit := headerScanRows
	if limit > s.RowCount() {
		limit = s.RowCount()
	}
	for i := 0; i < limit; i++ {
		hits := 0
		for _, cell := range s.Row(i) {
			lower := strings.ToLower(cell)
			for _, kw := range headerKeywords {
				if strings.Contains(lower, kw) {
					hits++
					break
				}
			}
		}
		if hits >= 3 {
			return i
		}
	}
	return 0
}

// canonicalizeHeaders renames resolved source labels to their canonical
// names. Unresolved headers keep their original label so no data is lost,
// and a rename is skipped when another column already carries the canonical
// name verbatim, so two columns never collapse onto one key.
func canonicalizeHeaders(headers []string, specs []ColumnSpec) []string {
	resolved := ResolveColumns(headers, specs)
	out := append([]string(nil), headers...)
	for canonical, idx := range resolved {
		if headerTaken(out, idx, canonical) {
			continue
		}
		out[idx] = canonical
	}
	return out
}

func headerTaken(headers []string, skip int, name string) bool {
	for i, h := range headers {
		if i != skip && strings.EqualFold(strings.TrimSpace(h), name) {
			return true
		}
	}
	return false
}

// matchSheetsByKeyword returns sheet names containing any keyword, in file
// order, skipping known non-data sheets.
func matchSheetsByKeyword(wb sheet.Workbook, keywords []string) []string {
	var out []string
	for _, name := range dataSheetNames(wb) {
		lower := strings.ToLower(name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, name)
				break
			}
		}
	}
	return out
}
