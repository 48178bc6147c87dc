package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/WilsonNous/NousCard/internal/models"
)

func createTestStatistics() *models.RunStatistics {
	return &models.RunStatistics{
		SettledCount:          3,
		TolerantCount:         1,
		PartialCount:          2,
		ConsolidatedCount:     4,
		StillPendingSaleCount: 5,
		StillOpenReceiptCount: 1,
		SkippedSaleCount:      1,
		Notes:                 []string{"sale 42 skipped: sale net amount must be positive, got 0"},
		Duration:              1234 * time.Millisecond,
	}
}

func TestNewReportGenerator(t *testing.T) {
	generator, err := NewReportGenerator(nil)
	if err != nil {
		t.Fatalf("Expected default config to work, got %v", err)
	}
	if generator == nil {
		t.Fatal("Expected a generator")
	}

	_, err = NewReportGenerator(&ReportConfig{Format: "xml"})
	if err == nil {
		t.Error("Expected an unsupported format to be rejected")
	}
}

func TestGenerateConsoleReport(t *testing.T) {
	generator, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestStatistics(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"RECONCILIATION RUN",
		"Exact:        3",
		"Tolerant:     1",
		"Partial:      2",
		"Consolidated: 4",
		"Open sales:    5",
		"sale 42 skipped",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected console output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestGenerateConsoleReportTimeout(t *testing.T) {
	generator, _ := NewReportGenerator(nil)

	stats := createTestStatistics()
	stats.PartialTimeout = true

	var buf bytes.Buffer
	if err := generator.GenerateReport(stats, &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}
	if !strings.Contains(buf.String(), "time budget") {
		t.Error("Expected the timeout warning in console output")
	}
}

func TestGenerateJSONReport(t *testing.T) {
	generator, err := NewReportGenerator(&ReportConfig{Format: FormatJSON, IncludeNotes: true})
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestStatistics(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	var decoded models.RunStatistics
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Expected valid JSON, got %v:\n%s", err, buf.String())
	}
	if decoded.SettledCount != 3 || decoded.ConsolidatedCount != 4 {
		t.Errorf("Unexpected decoded counts: %+v", decoded)
	}
	if len(decoded.Notes) != 1 {
		t.Errorf("Expected notes preserved, got %v", decoded.Notes)
	}
}

func TestGenerateJSONReportWithoutNotes(t *testing.T) {
	generator, _ := NewReportGenerator(&ReportConfig{Format: FormatJSON, IncludeNotes: false})

	var buf bytes.Buffer
	if err := generator.GenerateReport(createTestStatistics(), &buf); err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	var decoded models.RunStatistics
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if len(decoded.Notes) != 0 {
		t.Errorf("Expected notes stripped, got %v", decoded.Notes)
	}
}

func TestGenerateReportRejectsNil(t *testing.T) {
	generator, _ := NewReportGenerator(nil)

	var buf bytes.Buffer
	if err := generator.GenerateReport(nil, &buf); err == nil {
		t.Error("Expected nil statistics to be rejected")
	}
}
