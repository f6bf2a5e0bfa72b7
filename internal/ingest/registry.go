package ingest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sentraview/sentraview-core/internal/record"
	"github.com/sentraview/sentraview-core/internal/sheet"
)

// ProcessingMode selects between full and fast spreadsheet processing.
type ProcessingMode int

const (
	// ModeFull reads entire sheets, chunking very large ones with explicit
	// compaction checkpoints between chunks.
	ModeFull ProcessingMode = iota

	// ModeFast caps the largest sheet at a configurable row limit for
	// latency-sensitive paths. KPI shape is identical to full mode; only
	// completeness differs for very large inputs.
	ModeFast
)

const (
	// DefaultChunkSize is the row-chunk size for full-mode processing.
	DefaultChunkSize = 5000

	// DefaultFastRowLimit caps the largest sheet in fast mode.
	DefaultFastRowLimit = 1000
)

// ParseOptions tunes a single parse.
type ParseOptions struct {
	Mode         ProcessingMode
	ChunkSize    int
	FastRowLimit int

	// Compactor, when set, is called after each processed chunk as a
	// "maybe compact now" checkpoint. It is a resource-management hook, not
	// a correctness dependency: parsers behave identically when it is nil.
	Compactor func()
}

func (o ParseOptions) chunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return DefaultChunkSize
}

func (o ParseOptions) fastRowLimit() int {
	if o.FastRowLimit > 0 {
		return o.FastRowLimit
	}
	return DefaultFastRowLimit
}

func (o ParseOptions) checkpoint() {
	if o.Compactor != nil {
		o.Compactor()
	}
}

// Parser turns one workbook into a normalized bundle for one tool.
type Parser interface {
	// Tool returns the tool type this parser handles.
	Tool() record.ToolType

	// Parse extracts a bundle or fails with a FormatRejectedError (hard
	// reject) or a wrapped PartialSheetError (every matched sheet failed).
	Parse(ctx context.Context, wb sheet.Workbook, opts ParseOptions) (*record.Bundle, error)
}

// Registry holds the parser for each tool type. It is constructed once at
// startup and passed to whatever dispatches uploads; there is no ambient
// global parser state.
type Registry struct {
	mu      sync.RWMutex
	parsers map[record.ToolType]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[record.ToolType]Parser)}
}

// Register adds or replaces the parser for its tool type.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.Tool()] = p
}

// Lookup returns the parser for a tool type.
func (r *Registry) Lookup(tool record.ToolType) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[tool]
	return p, ok
}

// DefaultRegistry returns a registry with all six tool parsers registered.
func DefaultRegistry(log *zap.Logger) *Registry {
	r := NewRegistry()
	r.Register(NewGSuiteParser(log))
	r.Register(NewMDMParser(log))
	r.Register(NewSIEMParser(log))
	r.Register(NewEDRParser(log))
	r.Register(NewMerakiParser(log))
	r.Register(NewSonicWallParser(log))
	return r
}
