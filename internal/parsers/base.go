// Package parsers reads WBS-AUC transaction exports into in-memory tables.
//
// Exports arrive as Excel workbooks (.xlsx, legacy .xls) or delimited text.
// The format is detected from the file content, headers are cleaned and
// matched against the configured column names, and every data row is kept
// as raw cell text. Typing of cells is left to the reconciler.
//
// Example usage:
//
//	parser, err := NewTableParser(DefaultTableParserConfig())
//	result, err := parser.ParseFile(ctx, "wbs_dump.xlsx")
//	fmt.Println(result.Stats)
package parsers

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"wbs-auc-reconciliation/internal/models"
	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

const cancelCheckInterval = 1000

// recordSource yields raw records of a table one at a time. Next returns
// io.EOF after the last record. line is the 1-based source position.
type recordSource interface {
	Next() (record []string, line int, err error)
	Close() error
}

// ParseContext holds state during parsing operations
type ParseContext struct {
	Source    string
	Headers   []string
	HeaderMap map[string]int
	ctx       context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context, source string) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Source:    source,
		Headers:   make([]string, 0),
		HeaderMap: make(map[string]int),
		ctx:       ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	select {
	case <-pc.ctx.Done():
		return true
	default:
		return false
	}
}

// SetHeaders cleans the header row and rebuilds the lookup map. When a
// header repeats, lookups resolve to its first occurrence.
func (pc *ParseContext) SetHeaders(headers []string) {
	pc.Headers = CleanHeaders(headers)
	pc.HeaderMap = make(map[string]int, len(pc.Headers))
	for i, h := range pc.Headers {
		if _, exists := pc.HeaderMap[h]; !exists {
			pc.HeaderMap[h] = i
		}
	}
}

// GetColumnIndex returns the index of a column by name, or -1 if not found
func (pc *ParseContext) GetColumnIndex(name string) int {
	name = cleanHeader(name)
	if index, exists := pc.HeaderMap[name]; exists {
		return index
	}

	// Try case-insensitive lookup
	for i, header := range pc.Headers {
		if strings.EqualFold(header, name) {
			return i
		}
	}

	return -1
}

// CleanHeaders trims whitespace and applies Unicode NFC normalization so
// visually identical headers compare equal.
func CleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = cleanHeader(header)
	}
	return cleaned
}

func cleanHeader(header string) string {
	header = strings.TrimPrefix(header, "\ufeff")
	return norm.NFC.String(strings.TrimSpace(header))
}

// ResolveColumns locates every required column in a header row. Each
// configured header is tried exactly, then case-insensitively, then via
// its aliases. All missing columns are reported in one schema error.
func ResolveColumns(headers []string, columns *ColumnConfig, source string) (models.ColumnIndex, error) {
	if columns == nil {
		columns = DefaultColumnConfig()
	}

	pc := NewParseContext(context.Background(), source)
	pc.SetHeaders(headers)

	lookup := func(header string) int {
		for _, candidate := range columns.Candidates(header) {
			if idx := pc.GetColumnIndex(candidate); idx != -1 {
				return idx
			}
		}
		return -1
	}

	var missing []string
	resolve := func(header string) int {
		idx := lookup(header)
		if idx == -1 {
			missing = append(missing, header)
		}
		return idx
	}

	index := models.ColumnIndex{
		PurchaseDoc:       resolve(columns.PurchaseDoc),
		DocType:           resolve(columns.DocType),
		WBSElement:        resolve(columns.WBSElement),
		PurchaseOrderText: resolve(columns.PurchaseOrderText),
		OffsetAccountName: resolve(columns.OffsetAccountName),
		Amount:            resolve(columns.Amount),
	}

	if len(missing) > 0 {
		return models.ColumnIndex{}, errors.SchemaError(source, missing, pc.Headers).
			WithContext("expected_columns", columns.Required())
	}
	return index, nil
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalRows        int `json:"total_rows" yaml:"total_rows"`
	DataRows         int `json:"data_rows" yaml:"data_rows"`
	SkippedEmptyRows int `json:"skipped_empty_rows" yaml:"skipped_empty_rows"`
	RaggedRows       int `json:"ragged_rows" yaml:"ragged_rows"`
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Read %d rows: %d data, %d empty skipped, %d ragged",
		ps.TotalRows, ps.DataRows, ps.SkippedEmptyRows, ps.RaggedRows)
}

// tableBuilder assembles a models.Table from a record source
type tableBuilder struct {
	config *TableParserConfig
	logger logger.Logger
}

func (tb *tableBuilder) build(ctx context.Context, src recordSource, source string) (*models.Table, models.ColumnIndex, *ParseStats, error) {
	parseCtx := NewParseContext(ctx, source)
	stats := &ParseStats{}

	// The first non-empty record is the header row
	var headerLine int
	for {
		record, line, err := src.Next()
		if err == io.EOF {
			return nil, models.ColumnIndex{}, stats, errors.ParseError(errors.CodeEmptyInput, source, 0, "", "", nil)
		}
		if err != nil {
			return nil, models.ColumnIndex{}, stats, err
		}
		stats.TotalRows++
		if isEmptyRecord(record) {
			continue
		}
		parseCtx.SetHeaders(record)
		headerLine = line
		break
	}

	tb.logger.WithFields(logger.Fields{
		"source":      source,
		"header_line": headerLine,
		"headers":     parseCtx.Headers,
	}).Debug("Read header row")

	index, err := ResolveColumns(parseCtx.Headers, tb.config.Columns, source)
	if err != nil {
		tb.logger.WithError(err).WithField("available_headers", parseCtx.Headers).Error("Required columns are missing")
		return nil, models.ColumnIndex{}, stats, err
	}

	var progress *logger.RowProgress
	if tb.config.ReportProgress {
		progress = logger.NewRowProgress(tb.logger, source, 0)
	}

	table := models.NewTable(parseCtx.Headers)
	width := len(parseCtx.Headers)

	for {
		if stats.DataRows%cancelCheckInterval == 0 && parseCtx.IsCancelled() {
			tb.logger.WithField("rows_read", stats.TotalRows).Debug("Row reading cancelled by context")
			cancelErr := errors.ReconciliationError(errors.CodeCancelled, "reading "+source, parseCtx.ctx.Err())
			if progress != nil {
				progress.Done(cancelErr)
			}
			return nil, models.ColumnIndex{}, stats, cancelErr
		}

		record, line, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if progress != nil {
				progress.Done(err)
			}
			return nil, models.ColumnIndex{}, stats, err
		}
		stats.TotalRows++

		if tb.config.SkipEmptyRows && isEmptyRecord(record) {
			stats.SkippedEmptyRows++
			continue
		}

		if len(record) != width {
			if len(record) > width && !isEmptyRecord(record[width:]) {
				stats.RaggedRows++
				tb.logger.WithFields(logger.Fields{
					"line":    line,
					"cells":   len(record),
					"columns": width,
				}).Warn("Row has more cells than the header, surplus cells dropped")
			}
			record = fitRecord(record, width)
		}

		table.Append(record, line)
		stats.DataRows++
		if progress != nil {
			progress.Row()
		}
	}

	if progress != nil {
		progress.Done(nil)
	}

	return table, index, stats, nil
}

// fitRecord pads or truncates a record to the header width
func fitRecord(record []string, width int) []string {
	fitted := make([]string, width)
	copy(fitted, record)
	return fitted
}
