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

// MerakiParser handles Meraki network-event exports. Sheet names are
// free-form, so matching is by keyword; rows are plain header-first tables
// with the vendor's fractional-second UTC-offset timestamps in "Occurred At".
type MerakiParser struct {
	log *zap.Logger
}

// NewMerakiParser returns a parser for Meraki exports.
func NewMerakiParser(log *zap.Logger) *MerakiParser {
	return &MerakiParser{log: log}
}

func (p *MerakiParser) Tool() record.ToolType { return record.ToolMeraki }

func (p *MerakiParser) Parse(ctx context.Context, wb sheet.Workbook, opts ParseOptions) (*record.Bundle, error) {
	return parseKeywordTool(ctx, p.log, record.ToolMeraki, wb,
		keywordSheets[record.ToolMeraki],
		`a sheet name containing "meraki" or "network events"`)
}

// parseKeywordTool is the shared parse path for keyword-matched tools with
// plain header-first sheets (Meraki, SonicWall).
func parseKeywordTool(ctx context.Context, log *zap.Logger, tool record.ToolType, wb sheet.Workbook, keywords []string, expectation string) (*record.Bundle, error) {
	matched := matchSheetsByKeyword(wb, keywords)
	if len(matched) == 0 {
		return nil, rejectNoSheet(tool, expectation)
	}

	bundle := &record.Bundle{
		Tool:       tool,
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

		recs, err := extractPlainSheet(tool, s)
		if err != nil {
			var reject *FormatRejectedError
			if errors.As(err, &reject) {
				return nil, err
			}
			lastErr = err
			bundle.Note(name, err.Error())
			log.Warn("sheet skipped",
				zap.String("tool", string(tool)),
				zap.String("sheet", name),
				zap.Error(err),
			)
			continue
		}

		bundle.Details[name] = dedupRecords(tool, name, recs, seen)
		parsedSheets++
	}

	if parsedSheets == 0 {
		return nil, fmt.Errorf("no %s sheet could be parsed: %w", tool, lastErr)
	}

	bundle.KPIs = ComputeKPIs(tool, bundle.Details)
	bundle.Analytics = ComputeAnalytics(tool, bundle.Details)
	return bundle, nil
}
