// Package reporter renders the statistics of a reconciliation run for the
// CLI, either as a human-readable console summary or as JSON for
// programmatic consumption.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/WilsonNous/NousCard/internal/models"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	// IncludeNotes controls whether per-item processing notes (skipped
	// anomalies, timeout) appear in the output.
	IncludeNotes bool `json:"include_notes"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:       FormatConsole,
		IncludeNotes: true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// ReportGenerator renders run statistics in the configured format
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{config: config}, nil
}

// GenerateReport renders the run statistics and writes them to the provided writer
func (rg *ReportGenerator) GenerateReport(stats *models.RunStatistics, writer io.Writer) error {
	if stats == nil {
		return fmt.Errorf("run statistics cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(stats, writer)
	case FormatJSON:
		return rg.generateJSONReport(stats, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// generateConsoleReport renders a human-readable run summary
func (rg *ReportGenerator) generateConsoleReport(stats *models.RunStatistics, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION RUN\n")
	fmt.Fprintf(writer, "Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration:  %v\n", stats.Duration)
	if stats.PartialTimeout {
		fmt.Fprintf(writer, "NOTE: run hit its time budget; results are partial\n")
	}
	fmt.Fprintf(writer, "\n=== MATCHES ===\n")
	fmt.Fprintf(writer, "  Exact:        %d\n", stats.SettledCount)
	fmt.Fprintf(writer, "  Tolerant:     %d\n", stats.TolerantCount)
	fmt.Fprintf(writer, "  Partial:      %d\n", stats.PartialCount)
	fmt.Fprintf(writer, "  Consolidated: %d\n", stats.ConsolidatedCount)
	fmt.Fprintf(writer, "  Sales matched: %d\n", stats.MatchedSaleCount())

	fmt.Fprintf(writer, "\n=== REMAINING BACKLOG ===\n")
	fmt.Fprintf(writer, "  Open sales:    %d\n", stats.StillPendingSaleCount)
	fmt.Fprintf(writer, "  Open receipts: %d\n", stats.StillOpenReceiptCount)

	if stats.SkippedSaleCount > 0 || stats.SkippedReceiptCount > 0 {
		fmt.Fprintf(writer, "\n=== SKIPPED ===\n")
		fmt.Fprintf(writer, "  Sales:    %d\n", stats.SkippedSaleCount)
		fmt.Fprintf(writer, "  Receipts: %d\n", stats.SkippedReceiptCount)
	}

	if rg.config.IncludeNotes && len(stats.Notes) > 0 {
		fmt.Fprintf(writer, "\n=== NOTES ===\n")
		for _, note := range stats.Notes {
			fmt.Fprintf(writer, "  - %s\n", note)
		}
	}

	return nil
}

// generateJSONReport renders the statistics as indented JSON
func (rg *ReportGenerator) generateJSONReport(stats *models.RunStatistics, writer io.Writer) error {
	out := *stats
	if !rg.config.IncludeNotes {
		out.Notes = nil
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&out)
}
