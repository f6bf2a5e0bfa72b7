package sheet

// Package sheet abstracts the spreadsheet sources the pipeline ingests.
//
// The core only needs three capabilities from an upload: sheet enumeration,
// header reads, and row access. Everything else (cell styling, formulas,
// streaming writes) is irrelevant, so the interface stays deliberately small.
// Production uploads arrive as .xlsx blobs handled by the excelize adapter;
// tests build Memory workbooks directly.

// Workbook is one uploaded spreadsheet: a set of named sheets.
type Workbook interface {
	// SheetNames returns sheet names in file order.
	SheetNames() []string

	// Sheet returns the named sheet, or false when absent.
	Sheet(name string) (Sheet, bool)

	// Close releases underlying resources.
	Close() error
}

// Sheet is one tab of tabular data. Row 0 is the first physical row; header
// detection is the caller's concern because some exports bury the header
// under banner rows.
type Sheet interface {
	// Name returns the sheet name.
	Name() string

	// RowCount returns the number of physical rows.
	RowCount() int

	// Row returns the raw cells of row i. Out-of-range indexes return nil.
	Row(i int) []string

	// Rows returns rows in the half-open range [start, end), clamped to the
	// sheet bounds. This is the paging primitive large-sheet parsing chunks on.
	Rows(start, end int) [][]string
}
