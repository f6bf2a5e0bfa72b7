package ingest

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sentraview/sentraview-core/internal/metrics"
	"github.com/sentraview/sentraview-core/internal/record"
)

// signatureFields lists, per tool, the identifying fields a record signature
// is built from, in order. Two records are "the same" iff these field values
// match exactly. Records carrying none of the named fields fall back to all
// fields in lexical key order.
var signatureFields = map[record.ToolType][]string{
	record.ToolGSuite:    {"Date Reported", "Subject", "Sender", "Recipient", "Date"},
	record.ToolMDM:       {"Device Name", "Serial Number", "User", "Last Seen"},
	record.ToolSIEM:      {"Date", "Alert Type", "Username", "Severity"},
	record.ToolEDR:       {"Endpoint", "Hostname", "Scan Status", "Date"},
	record.ToolMeraki:    {"Occurred At", "Client", "Device", "Event Type"},
	record.ToolSonicWall: {"Time", "Source", "Destination", "Category"},
}

// Signature builds a content hash identifying a record within a tool scope.
// It runs twice in the pipeline: while parsing, to suppress rows repeated
// across concatenated sheet sections, and while range-filtering, to avoid
// re-counting a record whose date matches under more than one tried format.
func Signature(tool record.ToolType, rec record.Record) string {
	h := sha256.New()

	named := signatureFields[tool]
	wrote := false
	for _, f := range named {
		v, ok := rec[f]
		if !ok || v.IsNull() {
			continue
		}
		h.Write([]byte(f))
		h.Write([]byte{0})
		h.Write([]byte(v.Text()))
		h.Write([]byte{0})
		wrote = true
	}

	if !wrote {
		for _, k := range rec.SortedKeys() {
			h.Write([]byte(k))
			h.Write([]byte{0})
			h.Write([]byte(rec[k].Text()))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DedupExempt reports whether records of this sheet skip signature-based
// deduplication. EDR threat rows are exempt: distinct detections can share
// every non-unique field, so deduplicating them would silently drop real
// threats.
func DedupExempt(tool record.ToolType, sheetName string) bool {
	return tool == record.ToolEDR && sheetName == edrSheetThreats
}

// dedupRecords drops records whose signature was already seen, preserving
// order. The seen set is shared across sheets of one parse so an overlapping
// section concatenated into two sheets is counted once.
func dedupRecords(tool record.ToolType, sheetName string, recs []record.Record, seen map[string]bool) []record.Record {
	if DedupExempt(tool, sheetName) {
		return recs
	}
	out := recs[:0]
	dropped := 0
	for _, rec := range recs {
		sig := Signature(tool, rec)
		if seen[sig] {
			dropped++
			continue
		}
		seen[sig] = true
		out = append(out, rec)
	}
	if dropped > 0 {
		metrics.DuplicateRecordsDropped.WithLabelValues(string(tool)).Add(float64(dropped))
	}
	return out
}

// BlobHash is the duplicate-upload digest of a raw spreadsheet: uploads with
// an identical byte stream hash identically, a one-byte change hashes apart.
func BlobHash(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
