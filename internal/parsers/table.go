package parsers

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"wbs-auc-reconciliation/internal/models"
	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

// ParseResult is a parsed export together with its source metadata
type ParseResult struct {
	Table   *models.Table      `json:"-"`
	Columns models.ColumnIndex `json:"-"`
	Stats   *ParseStats        `json:"stats"`
	Format  Format             `json:"format"`
	Sheet   string             `json:"sheet,omitempty"`
	Source  string             `json:"source"`
}

// TableParser reads WBS-AUC exports in any supported format
type TableParser struct {
	config  *TableParserConfig
	builder *tableBuilder
	logger  logger.Logger
}

// NewTableParser creates a new TableParser with the given configuration
func NewTableParser(config *TableParserConfig) (*TableParser, error) {
	if config == nil {
		config = DefaultTableParserConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"table_parser_config",
			config.Encoding,
			err,
		).WithSuggestion("check the delimiter, encoding and column settings")
	}

	log := logger.GetGlobalLogger().WithComponent("table_parser")
	log.WithFields(logger.Fields{
		"delimiter": string(config.Delimiter),
		"encoding":  config.Encoding,
		"sheet":     config.Sheet,
	}).Debug("Created table parser")

	return &TableParser{
		config:  config,
		builder: &tableBuilder{config: config, logger: log},
		logger:  log,
	}, nil
}

// ParseFile reads the export at filePath. The format is detected from
// the file content.
func (tp *TableParser) ParseFile(ctx context.Context, filePath string) (*ParseResult, error) {
	tp.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"operation": "parse_table",
	}).Info("Starting table parsing")

	format, err := DetectFileFormat(filePath)
	if err != nil {
		tp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to detect file format")
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, openError(filePath, err)
	}
	defer file.Close()

	return tp.parse(ctx, file, filePath, format)
}

// ParseReader reads an export from r. name is used for format detection
// by extension and in error messages.
func (tp *TableParser) ParseReader(ctx context.Context, r io.Reader, name string) (*ParseResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, name, err)
	}

	head := data
	if len(head) > 8 {
		head = head[:8]
	}
	format, err := DetectFormat(name, head)
	if err != nil {
		return nil, err
	}

	return tp.parse(ctx, bytes.NewReader(data), name, format)
}

func (tp *TableParser) parse(ctx context.Context, r io.Reader, source string, format Format) (*ParseResult, error) {
	src, sheet, err := tp.open(r, source, format)
	if err != nil {
		tp.logger.WithError(err).WithField("file_path", source).Error("Failed to open table")
		return nil, err
	}
	defer src.Close()

	table, columns, stats, err := tp.builder.build(ctx, src, filepath.Base(source))
	if err != nil {
		if re, ok := errors.AsReconcilerError(err); ok {
			re.WithContext("file_path", source)
		}
		return nil, err
	}

	tp.logger.WithFields(logger.Fields{
		"file_path": source,
		"format":    format,
		"sheet":     sheet,
		"columns":   len(table.Columns),
		"rows":      stats.DataRows,
		"skipped":   stats.SkippedEmptyRows,
		"ragged":    stats.RaggedRows,
	}).Info("Completed table parsing")

	return &ParseResult{
		Table:   table,
		Columns: columns,
		Stats:   stats,
		Format:  format,
		Sheet:   sheet,
		Source:  source,
	}, nil
}

func (tp *TableParser) open(r io.Reader, source string, format Format) (recordSource, string, error) {
	sheet := strings.TrimSpace(tp.config.Sheet)

	switch format {
	case FormatXLSX:
		src, err := newXLSXSource(r, source, sheet)
		if err != nil {
			return nil, "", err
		}
		return src, src.sheet, nil
	case FormatXLS:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, "", errors.FileError(errors.CodeFileCorrupted, source, err)
		}
		src, name, err := newXLSSource(data, source, sheet)
		if err != nil {
			return nil, "", err
		}
		return src, name, nil
	case FormatCSV:
		return newCSVSource(r, source, tp.config), "", nil
	default:
		return nil, "", errors.ParseError(errors.CodeInvalidFormat, source, 0, "", string(format), nil)
	}
}
