package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/sentraview/sentraview-core/internal/sheet"
)

// gsuiteRows builds a header plus n distinct data rows for one sheet.
func gsuiteRows(prefix string, n int) [][]string {
	rows := [][]string{{"Date Reported", "Subject", "Reported By"}}
	for i := 0; i < n; i++ {
		rows = append(rows, []string{
			"Apr 16, 2025, 02:28 PM",
			fmt.Sprintf("%s subject %d", prefix, i),
			fmt.Sprintf("reporter-%d", i%5),
		})
	}
	return rows
}

func TestGSuiteParser_KPIs(t *testing.T) {
	wb := sheet.NewMemory().
		Add("Total Number of Mail Scanned", gsuiteRows("scan", 120)).
		Add("Phishing Attempted data", gsuiteRows("phish", 30))

	b, err := NewGSuiteParser(zap.NewNop()).Parse(context.Background(), wb, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := map[string]float64{
		"emailsScanned":     120,
		"phishingAttempted": 30,
		"suspiciousEmails":  10, // floor(30/3)
		"malwareDetected":   0,
		"blockedEmails":     0,
		"uniqueReporters":   5,
	}
	for k, v := range want {
		if b.KPIs[k] != v {
			t.Errorf("KPIs[%q] = %v, want %v", k, b.KPIs[k], v)
		}
	}
}

func TestGSuiteParser_SuspiciousEmailsFloorsAtOne(t *testing.T) {
	wb := sheet.NewMemory().Add("Phishing Attempted data", gsuiteRows("phish", 2))

	b, err := NewGSuiteParser(zap.NewNop()).Parse(context.Background(), wb, ParseOptions{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if b.KPIs["suspiciousEmails"] != 1 {
		t.Errorf("suspiciousEmails = %v, want floor of 1", b.KPIs["suspiciousEmails"])
	}
}

func TestGSuiteParser_FastModeCapsLargestSheet(t *testing.T) {
	wb := sheet.NewMemory().
		Add("Total Number of Mail Scanned", gsuiteRows("scan", 120)).
		Add("Phishing Attempted data", gsuiteRows("phish", 30))

	b, err := NewGSuiteParser(zap.NewNop()).Parse(context.Background(), wb, ParseOptions{
		Mode:         ModeFast,
		FastRowLimit: 50,
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if b.KPIs["emailsScanned"] != 50 {
		t.Errorf("largest sheet should be capped at 50 rows, got %v", b.KPIs["emailsScanned"])
	}
	// The cap applies only to the largest sheet.
	if b.KPIs["phishingAttempted"] != 30 {
		t.Errorf("phishingAttempted = %v, want 30", b.KPIs["phishingAttempted"])
	}
}

func TestGSuiteParser_ChunkCheckpoints(t *testing.T) {
	wb := sheet.NewMemory().Add("Total Number of Mail Scanned", gsuiteRows("scan", 120))

	checkpoints := 0
	b, err := NewGSuiteParser(zap.NewNop()).Parse(context.Background(), wb, ParseOptions{
		ChunkSize: 10,
		Compactor: func() { checkpoints++ },
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if b.KPIs["emailsScanned"] != 120 {
		t.Errorf("chunking must not drop rows: emailsScanned = %v", b.KPIs["emailsScanned"])
	}
	if checkpoints != 12 {
		t.Errorf("expected 12 chunk checkpoints for 120 rows at chunk size 10, got %d", checkpoints)
	}
}

func TestGSuiteParser_RepeatedEmptyHeadersRejected(t *testing.T) {
	wb := sheet.NewMemory().Add("Phishing Attempted data", [][]string{
		{"Date Reported", "", "", ""},
		{"Apr 16, 2025, 02:28 PM", "a", "b", "c"},
	})

	_, err := NewGSuiteParser(zap.NewNop()).Parse(context.Background(), wb, ParseOptions{})
	var reject *FormatRejectedError
	if !errors.As(err, &reject) {
		t.Fatalf("expected FormatRejectedError, got %v", err)
	}
}

func TestGSuiteParser_NoMatchingSheet(t *testing.T) {
	wb := sheet.NewMemory().Add("Random", [][]string{{"A"}, {"1"}})

	_, err := NewGSuiteParser(zap.NewNop()).Parse(context.Background(), wb, ParseOptions{})
	if err == nil {
		t.Fatal("expected reject for workbook without gsuite sheets")
	}
}
