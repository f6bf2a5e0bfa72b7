package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/sentraview/sentraview-core/internal/record"
	"github.com/sentraview/sentraview-core/internal/sheet"
)

// SonicWallParser handles SonicWall firewall log exports: keyword-matched
// sheets of connection/threat logs with action and severity columns.
type SonicWallParser struct {
	log *zap.Logger
}

// NewSonicWallParser returns a parser for SonicWall exports.
func NewSonicWallParser(log *zap.Logger) *SonicWallParser {
	return &SonicWallParser{log: log}
}

func (p *SonicWallParser) Tool() record.ToolType { return record.ToolSonicWall }

func (p *SonicWallParser) Parse(ctx context.Context, wb sheet.Workbook, opts ParseOptions) (*record.Bundle, error) {
	return parseKeywordTool(ctx, p.log, record.ToolSonicWall, wb,
		keywordSheets[record.ToolSonicWall],
		`a sheet name containing "sonicwall" or "firewall"`)
}
