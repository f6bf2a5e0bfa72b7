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

// MDMParser handles mobile-device-management exports: a fixed family of
// sheets covering device inventory, compliance, encryption, applications,
// and policy violations.
type MDMParser struct {
	log *zap.Logger
}

// NewMDMParser returns a parser for MDM exports.
func NewMDMParser(log *zap.Logger) *MDMParser {
	return &MDMParser{log: log}
}

func (p *MDMParser) Tool() record.ToolType { return record.ToolMDM }

func (p *MDMParser) Parse(ctx context.Context, wb sheet.Workbook, opts ParseOptions) (*record.Bundle, error) {
	var matched []string
	for _, name := range wb.SheetNames() {
		for _, known := range mdmSheetNames {
			if strings.EqualFold(strings.TrimSpace(name), known) {
				matched = append(matched, name)
				break
			}
		}
	}
	if len(matched) == 0 {
		return nil, rejectNoSheet(record.ToolMDM, "MDM inventory sheets (Devices, Compliance Status, OS Summary, ...)")
	}

	bundle := &record.Bundle{
		Tool:       record.ToolMDM,
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

		recs, err := extractPlainSheet(record.ToolMDM, s)
		if err != nil {
			var reject *FormatRejectedError
			if errors.As(err, &reject) {
				return nil, err
			}
			lastErr = err
			bundle.Note(name, err.Error())
			p.log.Warn("mdm sheet skipped", zap.String("sheet", name), zap.Error(err))
			continue
		}

		bundle.Details[name] = dedupRecords(record.ToolMDM, name, recs, seen)
		parsedSheets++
	}

	if parsedSheets == 0 {
		return nil, fmt.Errorf("no mdm sheet could be parsed: %w", lastErr)
	}

	bundle.KPIs = ComputeKPIs(record.ToolMDM, bundle.Details)
	bundle.Analytics = ComputeAnalytics(record.ToolMDM, bundle.Details)
	return bundle, nil
}

// extractPlainSheet is the shared extraction path for tools whose sheets
// carry the header in row 0 with no banner rows above it.
func extractPlainSheet(tool record.ToolType, s sheet.Sheet) ([]record.Record, error) {
	if s.RowCount() == 0 {
		return nil, &PartialSheetError{Sheet: s.Name(), Err: fmt.Errorf("sheet is empty")}
	}

	// The unnamed check runs on the raw row: deduping renames repeated
	// blank cells to ".1", ".2", ... which would no longer count as unnamed.
	raw := s.Row(0)
	if mostlyUnnamed(raw) {
		return nil, rejectUnnamed(tool, s.Name(), unnamedCount(raw), len(raw))
	}
	headers := dedupeHeaders(raw)

	recs := rowsToRecords(s, headers, 1, s.RowCount())
	if len(recs) == 0 {
		return nil, &PartialSheetError{Sheet: s.Name(), Err: fmt.Errorf("no data rows")}
	}
	return recs, nil
}
