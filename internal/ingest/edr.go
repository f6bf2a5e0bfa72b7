package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentraview/sentraview-core/internal/dates"
	"github.com/sentraview/sentraview-core/internal/record"
	"github.com/sentraview/sentraview-core/internal/sheet"
)

// EDR exports ship a fixed three-sheet layout with these literal names.
const (
	edrSheetEndpoints      = "Endpoints"
	edrSheetDetailedStatus = "Detailed Status"
	edrSheetThreats        = "Threats"
)

// EDRParser handles endpoint-protection exports. Two quirks set it apart:
// the usable event date is buried inside the "Scan Status" text and is
// synthesized into a "Date" field at parse time, and threat rows are exempt
// from deduplication because distinct detections can be field-identical.
type EDRParser struct {
	log *zap.Logger
}

// NewEDRParser returns a parser for EDR exports.
func NewEDRParser(log *zap.Logger) *EDRParser {
	return &EDRParser{log: log}
}

func (p *EDRParser) Tool() record.ToolType { return record.ToolEDR }

func (p *EDRParser) Parse(ctx context.Context, wb sheet.Workbook, opts ParseOptions) (*record.Bundle, error) {
	var matched []string
	for _, name := range wb.SheetNames() {
		for _, known := range edrSheetNames {
			if strings.EqualFold(strings.TrimSpace(name), known) {
				matched = append(matched, name)
				break
			}
		}
	}
	if len(matched) == 0 {
		return nil, rejectNoSheet(record.ToolEDR, `sheets named "Endpoints", "Detailed Status", "Threats"`)
	}

	bundle := &record.Bundle{
		Tool:       record.ToolEDR,
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
			p.log.Warn("edr sheet skipped", zap.String("sheet", name), zap.Error(err))
			continue
		}

		canonical := canonicalEDRSheet(name)
		bundle.Details[canonical] = dedupRecords(record.ToolEDR, canonical, recs, seen)
		parsedSheets++
	}

	if parsedSheets == 0 {
		return nil, fmt.Errorf("no edr sheet could be parsed: %w", lastErr)
	}

	bundle.KPIs = ComputeKPIs(record.ToolEDR, bundle.Details)
	bundle.Analytics = ComputeAnalytics(record.ToolEDR, bundle.Details)
	return bundle, nil
}

func (p *EDRParser) parseSheet(s sheet.Sheet) ([]record.Record, error) {
	if s.RowCount() == 0 {
		return nil, &PartialSheetError{Sheet: s.Name(), Err: fmt.Errorf("sheet is empty")}
	}

	// Raw row: deduping would rename repeated blank cells out of the
	// unnamed shapes the check counts.
	raw := s.Row(0)
	if mostlyUnnamed(raw) {
		return nil, rejectUnnamed(record.ToolEDR, s.Name(), unnamedCount(raw), len(raw))
	}
	headers := dedupeHeaders(raw)

	recs := rowsToRecords(s, headers, 1, s.RowCount())
	if len(recs) == 0 {
		return nil, &PartialSheetError{Sheet: s.Name(), Err: fmt.Errorf("no data rows")}
	}

	for _, rec := range recs {
		synthesizeEDRDate(rec)
	}
	return recs, nil
}

// synthesizeEDRDate derives a "Date" field from the "Scan Status" text
// ("Completed: 16-04-2025 02.28.45 PM"). The synthesized field takes
// priority over raw vendor timestamp fields during range filtering, so it is
// only set when the record does not already carry a usable Date.
func synthesizeEDRDate(rec record.Record) {
	if v, ok := rec["Date"]; ok && !v.IsNull() {
		if _, resolvable := dates.Normalize(v); resolvable {
			return
		}
	}

	status, ok := rec["Scan Status"]
	if !ok || status.Kind() != record.KindString {
		return
	}

	raw := status.Str()
	if t, ok := dates.NormalizeString(raw); ok {
		rec["Date"] = record.Instant(t)
		return
	}
	// Strip a leading status word ("Completed: ...", "Last scan - ...").
	for _, sep := range []string{":", "-", "—"} {
		if _, rest, found := strings.Cut(raw, sep); found {
			if t, ok := dates.NormalizeString(strings.TrimSpace(rest)); ok {
				rec["Date"] = record.Instant(t)
				return
			}
		}
	}
}

// canonicalEDRSheet normalizes a matched sheet name to its literal form so
// KPI rules can index details deterministically.
func canonicalEDRSheet(name string) string {
	for _, known := range edrSheetNames {
		if strings.EqualFold(strings.TrimSpace(name), known) {
			return known
		}
	}
	return name
}
