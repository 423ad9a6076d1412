package reconciler

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"wbs-auc-reconciliation/internal/matcher"
	"wbs-auc-reconciliation/internal/models"
	"wbs-auc-reconciliation/internal/parsers"
	"wbs-auc-reconciliation/pkg/logger"
)

// ReconciliationService runs the complete reconciliation of one export:
// parsing, transform and result assembly.
type ReconciliationService struct {
	transformer *Transformer
	config      *Config
	logger      logger.Logger
}

// Config holds configuration options for the reconciliation transform
type Config struct {
	// ExcludedDocTypes lists DocTyp values dropped before cancellation
	ExcludedDocTypes []string `json:"excluded_doc_types" yaml:"excluded_doc_types" mapstructure:"excluded_doc_types"`

	// StatusColumn names the classification column added to the outputs
	StatusColumn string `json:"status_column" yaml:"status_column" mapstructure:"status_column"`

	Columns *parsers.ColumnConfig `json:"columns" yaml:"columns" mapstructure:"columns"`
	Offset  *matcher.OffsetConfig `json:"offset" yaml:"offset" mapstructure:"offset"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		ExcludedDocTypes: []string{"CS"},
		StatusColumn:     models.ColumnPOStatus,
		Columns:          parsers.DefaultColumnConfig(),
		Offset:           matcher.DefaultOffsetConfig(),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StatusColumn) == "" {
		return fmt.Errorf("status column name is required")
	}

	for i, docType := range c.ExcludedDocTypes {
		if strings.TrimSpace(docType) == "" {
			return fmt.Errorf("excluded document type %d is empty", i)
		}
	}

	if c.Columns == nil {
		return fmt.Errorf("column configuration is required")
	}
	if err := c.Columns.Validate(); err != nil {
		return fmt.Errorf("invalid column configuration: %w", err)
	}
	for _, required := range c.Columns.Required() {
		if required == c.StatusColumn {
			return fmt.Errorf("status column %q collides with required column", c.StatusColumn)
		}
	}

	if c.Offset == nil {
		return fmt.Errorf("offset configuration is required")
	}
	return c.Offset.Validate()
}

// ReconciliationRequest represents a request for reconciliation. Either
// InputFile or Reader must be set; Name labels a Reader in logs and errors.
type ReconciliationRequest struct {
	InputFile string
	Reader    io.Reader
	Name      string

	ParserConfig *parsers.TableParserConfig
}

// Validate validates the reconciliation request
func (r *ReconciliationRequest) Validate() error {
	if r.InputFile == "" && r.Reader == nil {
		return fmt.Errorf("input file path is required")
	}

	if r.InputFile != "" && r.Reader != nil {
		return fmt.Errorf("input file and reader are mutually exclusive")
	}

	// Columns are supplied by the service
	if r.ParserConfig != nil {
		config := *r.ParserConfig
		if config.Columns == nil {
			config.Columns = parsers.DefaultColumnConfig()
		}
		if err := config.Validate(); err != nil {
			return fmt.Errorf("invalid parser configuration: %w", err)
		}
	}

	return nil
}

// source returns the label used for the request input
func (r *ReconciliationRequest) source() string {
	if r.InputFile != "" {
		return r.InputFile
	}
	if r.Name != "" {
		return r.Name
	}
	return "input"
}

// ReconciliationResult contains the complete results of reconciliation
type ReconciliationResult struct {
	RunID string `json:"run_id" yaml:"run_id"`

	Input *InputInfo `json:"input" yaml:"input"`

	Summary models.Summary `json:"summary" yaml:"summary"`
	Totals  AmountTotals   `json:"totals" yaml:"totals"`
	Stats   TransformStats `json:"stats" yaml:"stats"`

	// Output tables, written by the reporter
	Cleaned *models.Table `json:"-" yaml:"-"`
	NonPO   *models.Table `json:"-" yaml:"-"`

	EdgeCases *matcher.EdgeCaseReport `json:"-" yaml:"-"`

	ProcessingStats *ProcessingStats `json:"processing_stats" yaml:"processing_stats"`
	ProcessedAt     time.Time        `json:"processed_at" yaml:"processed_at"`
}

// InputInfo describes the parsed source
type InputInfo struct {
	Source string              `json:"source" yaml:"source"`
	Format parsers.Format      `json:"format" yaml:"format"`
	Sheet  string              `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Parse  *parsers.ParseStats `json:"parse" yaml:"parse"`
}

// ProcessingStats contains detailed processing statistics
type ProcessingStats struct {
	ParsingTime         time.Duration `json:"parsing_time" yaml:"parsing_time"`
	TransformTime       time.Duration `json:"transform_time" yaml:"transform_time"`
	TotalProcessingTime time.Duration `json:"total_processing_time" yaml:"total_processing_time"`
	RowsPerSecond       float64       `json:"rows_per_second" yaml:"rows_per_second"`
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(config *Config) (*ReconciliationService, error) {
	if config == nil {
		config = DefaultConfig()
	}

	transformer, err := NewTransformer(config)
	if err != nil {
		return nil, err
	}

	return &ReconciliationService{
		transformer: transformer,
		config:      config,
		logger:      logger.GetGlobalLogger().WithComponent("reconciliation_service"),
	}, nil
}

// Process performs the complete reconciliation of one export. The context
// is checked between stages and while rows are read.
func (rs *ReconciliationService) Process(
	ctx context.Context,
	request *ReconciliationRequest,
) (*ReconciliationResult, error) {
	return rs.process(ctx, request, nil)
}

// ProcessTable runs the transform on an already loaded table
func (rs *ReconciliationService) ProcessTable(
	ctx context.Context,
	table *models.Table,
	source string,
) (*ReconciliationResult, error) {
	if err := checkContext(ctx, "transform"); err != nil {
		return nil, err
	}

	startTime := time.Now()
	result := rs.newResult(startTime)
	result.Input = &InputInfo{Source: source}

	output, err := rs.safeTransform(table)
	if err != nil {
		return nil, err
	}

	rs.buildFinalResult(result, output, 0, time.Since(startTime))
	return result, nil
}

// GetConfiguration returns the configuration the service was built with
func (rs *ReconciliationService) GetConfiguration() *Config {
	return rs.config
}
