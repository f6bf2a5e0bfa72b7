package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sentraview/sentraview-core/internal/record"
	"github.com/sentraview/sentraview-core/internal/sheet"
)

// gsuitePhrases are the four sheet-name phrase patterns a GSuite export is
// recognized by. Matching is case-insensitive substring containment because
// admins rename sheets ("Phishing Attempted data (Q2)") without warning.
var gsuitePhrases = []string{"mail scanned", "phishing", "malware", "blocked"}

// GSuiteParser handles Google Workspace email-security exports. The
// mail-scan sheet can run to hundreds of thousands of rows, so full mode
// processes it in chunks with a compaction checkpoint between chunks, and
// fast mode caps the largest sheet for latency-sensitive paths.
type GSuiteParser struct {
	log *zap.Logger
}

// NewGSuiteParser returns a parser for GSuite exports.
func NewGSuiteParser(log *zap.Logger) *GSuiteParser {
	return &GSuiteParser{log: log}
}

func (p *GSuiteParser) Tool() record.ToolType { return record.ToolGSuite }

func (p *GSuiteParser) Parse(ctx context.Context, wb sheet.Workbook, opts ParseOptions) (*record.Bundle, error) {
	matched := matchSheetsByKeyword(wb, gsuitePhrases)
	if len(matched) == 0 {
		return nil, rejectNoSheet(record.ToolGSuite, "sheets named for mail-scan, phishing, malware, or blocked-email data")
	}

	bundle := &record.Bundle{
		Tool:       record.ToolGSuite,
		Details:    make(record.Group, len(matched)),
		UploadedAt: time.Now().UTC(),
	}
	seen := make(map[string]bool)
	parsedSheets := 0
	var lastErr error

	largest := largestSheet(wb, matched)

	for _, name := range matched {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, ok := wb.Sheet(name)
		if !ok {
			continue
		}

		rowCap := s.RowCount()
		if opts.Mode == ModeFast && name == largest && rowCap-1 > opts.fastRowLimit() {
			rowCap = opts.fastRowLimit() + 1 // header plus the row cap
		}

		recs, err := p.parseSheet(s, rowCap, opts)
		if err != nil {
			var reject *FormatRejectedError
			if errors.As(err, &reject) {
				return nil, err
			}
			lastErr = err
			bundle.Note(name, err.Error())
			p.log.Warn("gsuite sheet skipped", zap.String("sheet", name), zap.Error(err))
			continue
		}

		bundle.Details[name] = dedupRecords(record.ToolGSuite, name, recs, seen)
		parsedSheets++
	}

	if parsedSheets == 0 {
		return nil, fmt.Errorf("no gsuite sheet could be parsed: %w", lastErr)
	}

	bundle.KPIs = ComputeKPIs(record.ToolGSuite, bundle.Details)
	bundle.Analytics = ComputeAnalytics(record.ToolGSuite, bundle.Details)
	return bundle, nil
}

// parseSheet extracts rows [1, rowCap) beneath the header, one chunk at a
// time, with a compaction checkpoint after each chunk.
func (p *GSuiteParser) parseSheet(s sheet.Sheet, rowCap int, opts ParseOptions) ([]record.Record, error) {
	if s.RowCount() == 0 {
		return nil, &PartialSheetError{Sheet: s.Name(), Err: fmt.Errorf("sheet is empty")}
	}

	// Raw row: deduping would rename repeated blank cells out of the
	// unnamed shapes the check counts.
	raw := s.Row(0)
	if mostlyUnnamed(raw) {
		return nil, rejectUnnamed(record.ToolGSuite, s.Name(), unnamedCount(raw), len(raw))
	}
	headers := dedupeHeaders(raw)

	chunk := opts.chunkSize()
	var recs []record.Record
	for start := 1; start < rowCap; start += chunk {
		end := start + chunk
		if end > rowCap {
			end = rowCap
		}
		recs = append(recs, rowsToRecords(s, headers, start, end)...)
		opts.checkpoint()
	}

	if len(recs) == 0 {
		return nil, &PartialSheetError{Sheet: s.Name(), Err: fmt.Errorf("no data rows")}
	}
	return recs, nil
}

// largestSheet returns the matched sheet with the most rows.
func largestSheet(wb sheet.Workbook, names []string) string {
	best, bestRows := "", -1
	for _, name := range names {
		if s, ok := wb.Sheet(name); ok && s.RowCount() > bestRows {
			best, bestRows = name, s.RowCount()
		}
	}
	return best
}
