package ingest

import (
	"testing"

	"github.com/sentraview/sentraview-core/internal/record"
	"github.com/sentraview/sentraview-core/internal/sheet"
)

func wbWithSheets(names ...string) *sheet.Memory {
	wb := sheet.NewMemory()
	for _, n := range names {
		wb.Add(n, [][]string{{"A", "B"}, {"1", "2"}})
	}
	return wb
}

func TestDetectTool(t *testing.T) {
	tests := []struct {
		name   string
		sheets []string
		want   record.ToolType
	}{
		{
			name:   "gsuite two exact matches",
			sheets: []string{"Total Number of Mail Scanned", "Phishing Attempted data", "Notes"},
			want:   record.ToolGSuite,
		},
		{
			name:   "gsuite one match is not enough",
			sheets: []string{"Phishing Attempted data", "Random"},
			want:   record.ToolUnknown,
		},
		{
			name:   "mdm three exact matches",
			sheets: []string{"Devices", "Compliance Status", "OS Summary"},
			want:   record.ToolMDM,
		},
		{
			name:   "mdm two matches is not enough",
			sheets: []string{"Devices", "Compliance Status"},
			want:   record.ToolUnknown,
		},
		{
			name:   "edr full sheet set",
			sheets: []string{"Endpoints", "Detailed Status", "Threats"},
			want:   record.ToolEDR,
		},
		{
			name:   "edr two of three",
			sheets: []string{"Endpoints", "Threats"},
			want:   record.ToolEDR,
		},
		{
			name:   "siem keyword",
			sheets: []string{"SIEM Events Q2"},
			want:   record.ToolSIEM,
		},
		{
			name:   "siem misspelled keyword",
			sheets: []string{"Seim export"},
			want:   record.ToolSIEM,
		},
		{
			name:   "sonicwall keyword",
			sheets: []string{"SonicWall Logs"},
			want:   record.ToolSonicWall,
		},
		{
			name:   "meraki keyword",
			sheets: []string{"Meraki Network Events"},
			want:   record.ToolMeraki,
		},
		{
			name:   "surface sheets are ignored",
			sheets: []string{"Attack Surface", "Deep Scan", "Meraki Events"},
			want:   record.ToolMeraki,
		},
		{
			name:   "nothing scores",
			sheets: []string{"Summary", "Sheet1"},
			want:   record.ToolUnknown,
		},
		{
			name:   "ambiguity resolves to most exact matches",
			sheets: []string{"Endpoints", "Threats", "Devices", "Compliance Status", "OS Summary", "Applications"},
			want:   record.ToolMDM,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectTool(wbWithSheets(tt.sheets...))
			if got != tt.want {
				t.Errorf("DetectTool(%v) = %s, want %s", tt.sheets, got, tt.want)
			}
		})
	}
}

func TestDetectTool_FullEDRSetBeatsMDM(t *testing.T) {
	// A complete EDR sheet set is checked before the generic scoring, even
	// when MDM also clears its threshold.
	wb := wbWithSheets("Endpoints", "Detailed Status", "Threats",
		"Devices", "Compliance Status", "OS Summary", "Applications")
	if got := DetectTool(wb); got != record.ToolEDR {
		t.Errorf("full EDR set should win, got %s", got)
	}
}
