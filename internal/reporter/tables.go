package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/transform"

	"wbs-auc-reconciliation/internal/models"
	"wbs-auc-reconciliation/internal/parsers"
	"wbs-auc-reconciliation/internal/reconciler"
	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

// TableFormat is the file format of the output tables
type TableFormat string

const (
	TableFormatAuto TableFormat = "auto"
	TableFormatXLSX TableFormat = "xlsx"
	TableFormatCSV  TableFormat = "csv"
)

// IsValid checks if the table format is supported
func (f TableFormat) IsValid() bool {
	switch f {
	case TableFormatAuto, TableFormatXLSX, TableFormatCSV:
		return true
	default:
		return false
	}
}

// Extension returns the file extension including the dot
func (f TableFormat) Extension() string {
	if f == TableFormatCSV {
		return ".csv"
	}
	return ".xlsx"
}

const (
	DefaultCleanedName = "WBS_Cleaned_Report"
	DefaultNonPOName   = "WBS_Non_PO_Report"
	DefaultSheetName   = "Sheet1"

	minColumnWidth  = 10
	maxColumnWidth  = 60
	widthSampleRows = 500
)

// TableWriterConfig holds configuration for writing the output tables
type TableWriterConfig struct {
	Format       TableFormat `json:"format" yaml:"format" mapstructure:"format"`
	OutputDir    string      `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`
	CleanedName  string      `json:"cleaned_name" yaml:"cleaned_name" mapstructure:"cleaned_name"`
	NonPOName    string      `json:"non_po_name" yaml:"non_po_name" mapstructure:"non_po_name"`
	SheetName    string      `json:"sheet_name" yaml:"sheet_name" mapstructure:"sheet_name"`
	CSVDelimiter rune        `json:"csv_delimiter" yaml:"csv_delimiter" mapstructure:"csv_delimiter"`

	// Encoding of CSV tables; set to the input encoding so that reports
	// open the same way as the export they came from
	Encoding string `json:"encoding" yaml:"encoding" mapstructure:"encoding"`

	// NumericColumns are written as numbers in XLSX when they parse
	NumericColumns []string `json:"numeric_columns" yaml:"numeric_columns" mapstructure:"numeric_columns"`
}

// DefaultTableWriterConfig returns a default table writer configuration
func DefaultTableWriterConfig() *TableWriterConfig {
	return &TableWriterConfig{
		Format:         TableFormatAuto,
		OutputDir:      ".",
		CleanedName:    DefaultCleanedName,
		NonPOName:      DefaultNonPOName,
		SheetName:      DefaultSheetName,
		CSVDelimiter:   ',',
		Encoding:       parsers.EncodingUTF8,
		NumericColumns: []string{models.ColumnAmount},
	}
}

// Validate validates the table writer configuration
func (c *TableWriterConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid table format: %s", c.Format)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output directory is required")
	}
	if strings.TrimSpace(c.CleanedName) == "" || strings.TrimSpace(c.NonPOName) == "" {
		return fmt.Errorf("output file names are required")
	}
	if c.CleanedName == c.NonPOName {
		return fmt.Errorf("cleaned and Non-PO outputs must have different names")
	}
	if strings.TrimSpace(c.SheetName) == "" {
		return fmt.Errorf("sheet name is required")
	}
	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\r' || c.CSVDelimiter == '\n' {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	if !slices.Contains(parsers.SupportedEncodings(), strings.ToLower(strings.TrimSpace(c.Encoding))) {
		return fmt.Errorf("unsupported CSV encoding %q", c.Encoding)
	}
	return nil
}

// OutputFiles lists the files written for one result
type OutputFiles struct {
	Cleaned string      `json:"cleaned" yaml:"cleaned"`
	NonPO   string      `json:"non_po" yaml:"non_po"`
	Format  TableFormat `json:"format" yaml:"format"`
}

// TableWriter writes the cleaned and Non-PO tables to disk
type TableWriter struct {
	config *TableWriterConfig
	logger logger.Logger
}

// NewTableWriter creates a new table writer
func NewTableWriter(config *TableWriterConfig) (*TableWriter, error) {
	if config == nil {
		config = DefaultTableWriterConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"table_writer_config",
			config.Format,
			err,
		).WithSuggestion("Check the output directory, file names and table format")
	}

	return &TableWriter{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("table_writer"),
	}, nil
}

// ResolveFormat picks the output format for an input format. Spreadsheet
// inputs produce XLSX and CSV inputs produce CSV unless a format is forced.
func (tw *TableWriter) ResolveFormat(input parsers.Format) TableFormat {
	if tw.config.Format != TableFormatAuto {
		return tw.config.Format
	}
	if input == parsers.FormatCSV {
		return TableFormatCSV
	}
	return TableFormatXLSX
}

// OutputPaths returns the target paths for a format
func (tw *TableWriter) OutputPaths(format TableFormat) OutputFiles {
	return OutputFiles{
		Cleaned: filepath.Join(tw.config.OutputDir, tw.config.CleanedName+format.Extension()),
		NonPO:   filepath.Join(tw.config.OutputDir, tw.config.NonPOName+format.Extension()),
		Format:  format,
	}
}

// WriteTables writes both output tables of a result
func (tw *TableWriter) WriteTables(result *reconciler.ReconciliationResult) (*OutputFiles, error) {
	if result == nil || result.Cleaned == nil || result.NonPO == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "result_tables", nil, nil).
			WithSuggestion("Run the reconciliation before writing output tables")
	}

	var input parsers.Format
	if result.Input != nil {
		input = result.Input.Format
	}
	format := tw.ResolveFormat(input)
	paths := tw.OutputPaths(format)

	if err := os.MkdirAll(tw.config.OutputDir, 0755); err != nil {
		return nil, errors.OutputError(errors.CodeWriteFailed, tw.config.OutputDir, err)
	}

	if err := tw.WriteTable(result.Cleaned, paths.Cleaned, format); err != nil {
		return nil, err
	}
	if err := tw.WriteTable(result.NonPO, paths.NonPO, format); err != nil {
		return nil, err
	}

	tw.logger.WithFields(logger.Fields{
		"run_id":       result.RunID,
		"format":       string(format),
		"cleaned_file": paths.Cleaned,
		"non_po_file":  paths.NonPO,
		"cleaned_rows": result.Cleaned.Len(),
		"non_po_rows":  result.NonPO.Len(),
	}).Info("Output tables written")

	return &paths, nil
}

// WriteTable writes one table to path in the given format
func (tw *TableWriter) WriteTable(table *models.Table, path string, format TableFormat) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.OutputError(errors.CodeWriteFailed, path, err)
	}

	switch format {
	case TableFormatCSV:
		err = tw.EncodeCSV(table, file)
	default:
		err = tw.EncodeXLSX(table, file)
	}

	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return errors.OutputError(errors.CodeWriteFailed, path, err)
	}
	return nil
}

// EncodeCSV writes a table as delimited text in the configured encoding.
// A value the encoding cannot represent fails the write.
func (tw *TableWriter) EncodeCSV(table *models.Table, w io.Writer) error {
	var encoder *transform.Writer
	if cm := parsers.Charmap(tw.config.Encoding); cm != nil {
		encoder = transform.NewWriter(w, cm.NewEncoder())
		w = encoder
	}

	writer := csv.NewWriter(w)
	writer.Comma = tw.config.CSVDelimiter

	if err := writer.Write(table.Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = row.Get(i)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", row.Line, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write CSV as %s: %w", tw.config.Encoding, err)
	}
	if encoder != nil {
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("failed to write CSV as %s: %w", tw.config.Encoding, err)
		}
	}
	return nil
}

// EncodeXLSX writes a table as a single-sheet workbook with a bold
// header row.
func (tw *TableWriter) EncodeXLSX(table *models.Table, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := tw.config.SheetName
	if sheet != DefaultSheetName {
		if err := f.SetSheetName(DefaultSheetName, sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	numeric := make(map[int]bool)
	for _, name := range tw.config.NumericColumns {
		if idx := table.ColumnIndex(name); idx != -1 {
			numeric[idx] = true
		}
	}

	for colIdx, header := range table.Columns {
		cell, _ := excelize.CoordinatesToCellName(colIdx+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("failed to write header %q: %w", header, err)
		}
	}

	for rowIdx, row := range table.Rows {
		for colIdx := range table.Columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := f.SetCellValue(sheet, cell, cellValue(row.Get(colIdx), numeric[colIdx])); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}

	if len(table.Columns) > 0 {
		style, err := f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: true},
		})
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		last, _ := excelize.CoordinatesToCellName(len(table.Columns), 1)
		if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}

		for i, width := range columnWidths(table) {
			colName, _ := excelize.ColumnNumberToName(i + 1)
			if err := f.SetColWidth(sheet, colName, colName, width); err != nil {
				return fmt.Errorf("failed to set width of column %s: %w", colName, err)
			}
		}
	}

	return f.Write(w)
}

// cellValue returns a float for numeric cells that parse and the raw text
// otherwise.
func cellValue(raw string, numeric bool) interface{} {
	if !numeric {
		return raw
	}
	amount := models.ParseAmount(raw)
	if !amount.Valid {
		return raw
	}
	return amount.Decimal.InexactFloat64()
}

// columnWidths approximates a width per column from the header and a
// sample of rows
func columnWidths(table *models.Table) []float64 {
	widths := make([]float64, len(table.Columns))
	for i, header := range table.Columns {
		longest := utf8.RuneCountInString(header)
		for r, row := range table.Rows {
			if r >= widthSampleRows {
				break
			}
			if n := utf8.RuneCountInString(row.Get(i)); n > longest {
				longest = n
			}
		}

		width := longest + 2
		if width < minColumnWidth {
			width = minColumnWidth
		}
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		widths[i] = float64(width)
	}
	return widths
}
