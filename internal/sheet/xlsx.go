package sheet

import (
	"bytes"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// xlsxWorkbook adapts an excelize file to the Workbook interface. Rows are
// materialized per sheet on first access; vendor exports top out in the tens
// of thousands of rows, well inside memory for a single request.
type xlsxWorkbook struct {
	f      *excelize.File
	cached map[string]*MemorySheet
}

// OpenXLSX reads an .xlsx workbook from raw bytes.
func OpenXLSX(blob []byte) (Workbook, error) {
	return OpenXLSXReader(bytes.NewReader(blob))
}

// OpenXLSXReader reads an .xlsx workbook from a reader.
func OpenXLSXReader(r io.Reader) (Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	return &xlsxWorkbook{f: f, cached: make(map[string]*MemorySheet)}, nil
}

func (w *xlsxWorkbook) SheetNames() []string {
	return w.f.GetSheetList()
}

func (w *xlsxWorkbook) Sheet(name string) (Sheet, bool) {
	if s, ok := w.cached[name]; ok {
		return s, true
	}
	if idx, err := w.f.GetSheetIndex(name); err != nil || idx < 0 {
		return nil, false
	}
	rows, err := w.f.GetRows(name)
	if err != nil {
		return nil, false
	}
	s := &MemorySheet{name: name, rows: rows}
	w.cached[name] = s
	return s, true
}

func (w *xlsxWorkbook) Close() error {
	return w.f.Close()
}
