// Package reporter writes the results of a WBS-AUC reconciliation.
//
// Two kinds of output are produced:
//   - Output tables: the cleaned and Non-PO tables as XLSX or CSV files
//   - Summary reports: the reconciliation counters in a chosen format
//
// Supported summary formats:
//   - Console: human-readable tables for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: label/value records for spreadsheet applications
//   - YAML: structured data for configuration-style tooling
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"gopkg.in/yaml.v3"

	"wbs-auc-reconciliation/internal/reconciler"
)

// OutputFormat represents the supported summary output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatYAML    OutputFormat = "yaml"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatYAML:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" yaml:"format" mapstructure:"format"`

	// Detail level options
	IncludeTotals          bool `json:"include_totals" yaml:"include_totals" mapstructure:"include_totals"`
	IncludeDiagnostics     bool `json:"include_diagnostics" yaml:"include_diagnostics" mapstructure:"include_diagnostics"`
	IncludeProcessingStats bool `json:"include_processing_stats" yaml:"include_processing_stats" mapstructure:"include_processing_stats"`

	// Anomalies listed individually in console output
	MaxAnomalies int `json:"max_anomalies" yaml:"max_anomalies" mapstructure:"max_anomalies"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" yaml:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" yaml:"csv_headers" mapstructure:"csv_headers"`

	// Files written for the result, shown in reports when set
	Outputs *OutputFiles `json:"-" yaml:"-" mapstructure:"-"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeTotals:          true,
		IncludeDiagnostics:     true,
		IncludeProcessingStats: false,
		MaxAnomalies:           10,
		CSVDelimiter:           ',',
		CSVHeaders:             true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxAnomalies < 0 {
		return fmt.Errorf("max anomalies cannot be negative, got %d", c.MaxAnomalies)
	}

	if c.Format == FormatCSV && (c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n') {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// ReportGenerator generates summary reports in various formats
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

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport writes the summary of a result to the provided writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	case FormatYAML:
		return rg.generateYAMLReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// SummaryDocument is the structured form of a summary report
type SummaryDocument struct {
	RunID       string         `json:"run_id" yaml:"run_id"`
	ProcessedAt string         `json:"processed_at" yaml:"processed_at"`
	Source      string         `json:"source,omitempty" yaml:"source,omitempty"`
	Format      string         `json:"format,omitempty" yaml:"format,omitempty"`
	Sheet       string         `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Summary     SummaryCounts  `json:"summary" yaml:"summary"`
	Totals      *SummaryTotals `json:"totals,omitempty" yaml:"totals,omitempty"`
	Diagnostics *Diagnostics   `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
	Timing      *Timing        `json:"timing,omitempty" yaml:"timing,omitempty"`
	Outputs     *OutputFiles   `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// SummaryCounts mirrors models.Summary with its display order
type SummaryCounts struct {
	Original           int `json:"original" yaml:"original"`
	POs                int `json:"pos" yaml:"pos"`
	NonPOs             int `json:"non_pos" yaml:"non_pos"`
	ExcludedCS         int `json:"excluded_cs" yaml:"excluded_cs"`
	OffsetPairsRemoved int `json:"offset_pairs_removed" yaml:"offset_pairs_removed"`
}

// SummaryTotals are the net amounts of the output tables
type SummaryTotals struct {
	Cleaned string `json:"cleaned" yaml:"cleaned"`
	NonPO   string `json:"non_po" yaml:"non_po"`
}

// Diagnostics reports values that did not affect the counters
type Diagnostics struct {
	UnparseableAmounts int `json:"unparseable_amounts" yaml:"unparseable_amounts"`
	ZeroAmounts        int `json:"zero_amounts" yaml:"zero_amounts"`
	UnbalancedGroups   int `json:"unbalanced_groups" yaml:"unbalanced_groups"`
	RaggedRows         int `json:"ragged_rows" yaml:"ragged_rows"`
	SkippedEmptyRows   int `json:"skipped_empty_rows" yaml:"skipped_empty_rows"`
}

// Timing reports processing durations
type Timing struct {
	Parsing   string `json:"parsing" yaml:"parsing"`
	Transform string `json:"transform" yaml:"transform"`
	Total     string `json:"total" yaml:"total"`
}

// BuildSummaryDocument converts a result into its structured report form
func (rg *ReportGenerator) BuildSummaryDocument(result *reconciler.ReconciliationResult) *SummaryDocument {
	doc := &SummaryDocument{
		RunID:       result.RunID,
		ProcessedAt: result.ProcessedAt.Format(time.RFC3339),
		Summary: SummaryCounts{
			Original:           result.Summary.Original,
			POs:                result.Summary.POs,
			NonPOs:             result.Summary.NonPOs,
			ExcludedCS:         result.Summary.ExcludedCS,
			OffsetPairsRemoved: result.Summary.OffsetPairsRemoved,
		},
		Outputs: rg.config.Outputs,
	}

	if result.Input != nil {
		doc.Source = result.Input.Source
		doc.Format = result.Input.Format.String()
		doc.Sheet = result.Input.Sheet
	}

	if rg.config.IncludeTotals {
		doc.Totals = &SummaryTotals{
			Cleaned: result.Totals.Cleaned.StringFixed(2),
			NonPO:   result.Totals.NonPO.StringFixed(2),
		}
	}

	if rg.config.IncludeDiagnostics {
		doc.Diagnostics = &Diagnostics{
			UnparseableAmounts: result.Stats.UnparseableAmounts,
			ZeroAmounts:        result.Stats.ZeroAmounts,
			UnbalancedGroups:   result.Stats.UnbalancedGroups,
		}
		if result.Input != nil && result.Input.Parse != nil {
			doc.Diagnostics.RaggedRows = result.Input.Parse.RaggedRows
			doc.Diagnostics.SkippedEmptyRows = result.Input.Parse.SkippedEmptyRows
		}
	}

	if rg.config.IncludeProcessingStats && result.ProcessingStats != nil {
		doc.Timing = &Timing{
			Parsing:   result.ProcessingStats.ParsingTime.String(),
			Transform: result.ProcessingStats.TransformTime.String(),
			Total:     result.ProcessingStats.TotalProcessingTime.String(),
		}
	}

	return doc
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	doc := rg.BuildSummaryDocument(result)

	fmt.Fprintf(writer, "WBS-AUC RECONCILIATION SUMMARY\n")
	fmt.Fprintf(writer, "Run ID:    %s\n", doc.RunID)
	fmt.Fprintf(writer, "Generated: %s\n", doc.ProcessedAt)
	if doc.Source != "" {
		fmt.Fprintf(writer, "Source:    %s (%s)\n", doc.Source, doc.Format)
	}
	fmt.Fprintf(writer, "\n")

	rows := make([][]string, 0, 5)
	for _, item := range result.Summary.Items() {
		rows = append(rows, []string{item.Label, fmt.Sprintf("%d", item.Value)})
	}
	if err := renderTable(writer, []string{"Metric", "Count"}, rows); err != nil {
		return fmt.Errorf("failed to render summary table: %w", err)
	}

	if doc.Totals != nil {
		fmt.Fprintf(writer, "\n")
		totals := [][]string{
			{"Cleaned", doc.Totals.Cleaned},
			{"Non PO", doc.Totals.NonPO},
		}
		if err := renderTable(writer, []string{"Table", "Net ValCOArCur"}, totals); err != nil {
			return fmt.Errorf("failed to render totals table: %w", err)
		}
	}

	if doc.Outputs != nil {
		fmt.Fprintf(writer, "\nCleaned report: %s\n", doc.Outputs.Cleaned)
		fmt.Fprintf(writer, "Non-PO report:  %s\n", doc.Outputs.NonPO)
	}

	if doc.Diagnostics != nil && doc.Diagnostics.UnparseableAmounts > 0 {
		fmt.Fprintf(writer, "\nWARNING: %d amount(s) could not be parsed and were never cancelled\n",
			doc.Diagnostics.UnparseableAmounts)
		if result.EdgeCases != nil {
			for i, anomaly := range result.EdgeCases.UnparseableAmounts {
				if i >= rg.config.MaxAnomalies {
					fmt.Fprintf(writer, "  ... and %d more\n", len(result.EdgeCases.UnparseableAmounts)-i)
					break
				}
				fmt.Fprintf(writer, "  line %d: %q\n", anomaly.Line, anomaly.RawAmount)
			}
		}
	}

	if doc.Timing != nil {
		fmt.Fprintf(writer, "\nProcessing time: %s (parse %s, transform %s)\n",
			doc.Timing.Total, doc.Timing.Parsing, doc.Timing.Transform)
	}

	return nil
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.BuildSummaryDocument(result))
}

// generateYAMLReport generates a structured YAML report
func (rg *ReportGenerator) generateYAMLReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)

	if err := encoder.Encode(rg.BuildSummaryDocument(result)); err != nil {
		return fmt.Errorf("failed to encode YAML report: %w", err)
	}
	return encoder.Close()
}

// generateCSVReport writes one label/value record per counter
func (rg *ReportGenerator) generateCSVReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write([]string{"Metric", "Value"}); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	records := make([][]string, 0, 10)
	for _, item := range result.Summary.Items() {
		records = append(records, []string{item.Label, fmt.Sprintf("%d", item.Value)})
	}
	if rg.config.IncludeTotals {
		records = append(records,
			[]string{"Cleaned Net Amount", result.Totals.Cleaned.StringFixed(2)},
			[]string{"Non PO Net Amount", result.Totals.NonPO.StringFixed(2)},
		)
	}
	if rg.config.IncludeDiagnostics {
		records = append(records, []string{"Unparseable Amounts", fmt.Sprintf("%d", result.Stats.UnparseableAmounts)})
	}

	for _, record := range records {
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write summary record %q: %w", record[0], err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// renderTable prints headers verbatim; the column names come from the dump
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewTable(w, tablewriter.WithHeaderAutoFormat(tw.Off))

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	table.Header(header...)

	for _, row := range rows {
		cells := make([]any, len(row))
		for i, cell := range row {
			cells[i] = cell
		}
		if err := table.Append(cells...); err != nil {
			return err
		}
	}

	return table.Render()
}
