package ingest

import (
	"strings"

	"github.com/sentraview/sentraview-core/internal/record"
	"github.com/sentraview/sentraview-core/internal/sheet"
)

// File-type detection classifies an uploaded workbook into one of the six
// tool types before a parser is chosen. Exact sheet-name matching runs first
// (GSuite, MDM, EDR ship fixed sheet sets), then keyword scoring for the
// tools whose exports carry free-form sheet names. Nothing scoring means
// ToolUnknown; the detector never guesses.

// Known non-data sheets injected by assessment tooling; they carry attack
// surface summaries, not tool records, and are excluded from scoring.
var ignoredSheetKeywords = []string{"surface", "deep"}

// Exact sheet-name sets per tool.
var (
	gsuiteSheetNames = []string{
		"Total Number of Mail Scanned",
		"Phishing Attempted data",
		"Malware Attempted data",
		"Blocked Emails data",
	}
	mdmSheetNames = []string{
		"Devices",
		"Compliance Status",
		"OS Summary",
		"Encryption Status",
		"Applications",
		"Policy Violations",
	}
	edrSheetNames = []string{
		edrSheetEndpoints,
		edrSheetDetailedStatus,
		edrSheetThreats,
	}
)

// Keyword fallbacks for the tools without fixed sheet sets.
var keywordSheets = map[record.ToolType][]string{
	record.ToolSIEM:      {"siem", "seim"},
	record.ToolSonicWall: {"sonicwall", "sonic wall", "firewall"},
	record.ToolMeraki:    {"meraki", "network events"},
}

// DetectTool classifies a workbook by its sheet names.
func DetectTool(wb sheet.Workbook) record.ToolType {
	names := dataSheetNames(wb)
	if len(names) == 0 {
		return record.ToolUnknown
	}

	gsuite := countExactMatches(names, gsuiteSheetNames)
	mdm := countExactMatches(names, mdmSheetNames)
	edr := countExactMatches(names, edrSheetNames)

	// A full EDR sheet set is the strongest signal and is evaluated before
	// the generic scoring below.
	if edr >= 3 {
		return record.ToolEDR
	}

	type candidate struct {
		tool  record.ToolType
		score int
	}
	var winners []candidate
	if gsuite >= 2 {
		winners = append(winners, candidate{record.ToolGSuite, gsuite})
	}
	if mdm >= 3 {
		winners = append(winners, candidate{record.ToolMDM, mdm})
	}
	if edr >= 2 {
		winners = append(winners, candidate{record.ToolEDR, edr})
	}

	// Ambiguity resolves toward the tool with the most exact matches.
	best := candidate{tool: record.ToolUnknown}
	for _, c := range winners {
		if c.score > best.score {
			best = c
		}
	}
	if best.tool != record.ToolUnknown {
		return best.tool
	}

	for _, tool := range []record.ToolType{record.ToolSIEM, record.ToolSonicWall, record.ToolMeraki} {
		if countKeywordMatches(names, keywordSheets[tool]) > 0 {
			return tool
		}
	}
	return record.ToolUnknown
}

// dataSheetNames returns the workbook's sheet names with known non-data
// sheets filtered out.
func dataSheetNames(wb sheet.Workbook) []string {
	var out []string
	for _, name := range wb.SheetNames() {
		lower := strings.ToLower(name)
		ignored := false
		for _, kw := range ignoredSheetKeywords {
			if strings.Contains(lower, kw) {
				ignored = true
				break
			}
		}
		if !ignored {
			out = append(out, name)
		}
	}
	return out
}

func countExactMatches(names, known []string) int {
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[strings.ToLower(k)] = true
	}
	n := 0
	for _, name := range names {
		if set[strings.ToLower(strings.TrimSpace(name))] {
			n++
		}
	}
	return n
}

func countKeywordMatches(names, keywords []string) int {
	n := 0
	for _, name := range names {
		lower := strings.ToLower(name)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				n++
				break
			}
		}
	}
	return n
}
