package ingest

import (
	"fmt"

	"github.com/sentraview/sentraview-core/internal/record"
)

// FormatRejectedError is a hard reject: the workbook has no sheet matching the
// requested tool, or a matched sheet is mostly unnamed columns. It always
// names the failed expectation so the caller can tell the user which sheet or
// format check failed, never a generic "processing error".
type FormatRejectedError struct {
	Tool   record.ToolType
	Sheet  string // offending sheet, when one was matched
	Reason string
}

func (e *FormatRejectedError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("%s upload rejected: sheet %q: %s", e.Tool, e.Sheet, e.Reason)
	}
	return fmt.Sprintf("%s upload rejected: %s", e.Tool, e.Reason)
}

// rejectNoSheet builds the reject for a workbook with no matching sheet.
func rejectNoSheet(tool record.ToolType, expectation string) error {
	return &FormatRejectedError{Tool: tool, Reason: "no matching sheet found, expected " + expectation}
}

// rejectUnnamed builds the reject for a sheet whose header row is mostly
// unnamed or auto-generated columns, which signals a wrong-format upload.
func rejectUnnamed(tool record.ToolType, sheetName string, unnamed, total int) error {
	pct := 0
	if total > 0 {
		pct = unnamed * 100 / total
	}
	return &FormatRejectedError{
		Tool:   tool,
		Sheet:  sheetName,
		Reason: fmt.Sprintf("%d of %d columns (%d%%) are unnamed, file does not look like a %s export", unnamed, total, pct, tool),
	}
}

// PartialSheetError is a soft failure: one sheet inside an otherwise-valid
// workbook could not be parsed. Parsers log it onto the bundle's processing
// log and continue; it only fails the parse when every matched sheet fails.
type PartialSheetError struct {
	Sheet string
	Err   error
}

func (e *PartialSheetError) Error() string {
	return fmt.Sprintf("sheet %q could not be parsed: %v", e.Sheet, e.Err)
}

func (e *PartialSheetError) Unwrap() error { return e.Err }
