package reconciler

import (
	"fmt"

	"github.com/shopspring/decimal"

	"wbs-auc-reconciliation/internal/matcher"
	"wbs-auc-reconciliation/internal/models"
	"wbs-auc-reconciliation/internal/parsers"
	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

// TransformOutput holds everything produced by one transform
type TransformOutput struct {
	Cleaned   *models.Table
	NonPO     *models.Table
	Summary   models.Summary
	Totals    AmountTotals
	Stats     TransformStats
	EdgeCases *matcher.EdgeCaseReport
	Pairs     []*matcher.OffsetPair
}

// AmountTotals are the net ValCOArCur sums of the output tables. Missing
// amounts contribute nothing.
type AmountTotals struct {
	Cleaned decimal.Decimal `json:"cleaned" yaml:"cleaned"`
	NonPO   decimal.Decimal `json:"non_po" yaml:"non_po"`
}

// TransformStats carries diagnostics that are not part of the summary
type TransformStats struct {
	UnparseableAmounts int `json:"unparseable_amounts" yaml:"unparseable_amounts"`
	ZeroAmounts        int `json:"zero_amounts" yaml:"zero_amounts"`
	OffsetGroups       int `json:"offset_groups" yaml:"offset_groups"`
	CandidateGroups    int `json:"candidate_groups" yaml:"candidate_groups"`
	UnbalancedGroups   int `json:"unbalanced_groups" yaml:"unbalanced_groups"`
}

// Transformer runs the WBS-AUC reconciliation transform on a table
type Transformer struct {
	config       *Config
	preprocessor *DataPreprocessor
	matcher      *matcher.OffsetMatcher
	edgeHandler  *matcher.EdgeCaseHandler
	logger       logger.Logger
}

// NewTransformer creates a transformer with the given configuration
func NewTransformer(config *Config) (*Transformer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", config.ExcludedDocTypes, err)
	}

	offsetMatcher, err := matcher.NewOffsetMatcher(config.Offset)
	if err != nil {
		return nil, err
	}

	return &Transformer{
		config:       config,
		preprocessor: NewDataPreprocessor(&PreprocessingConfig{ExcludedDocTypes: config.ExcludedDocTypes}),
		matcher:      offsetMatcher,
		edgeHandler:  matcher.NewEdgeCaseHandler(config.Offset),
		logger:       logger.GetGlobalLogger().WithComponent("transformer"),
	}, nil
}

// Transform classifies rows, drops excluded document types, cancels
// offsetting pairs and materializes the cleaned and Non-PO tables. The
// input table is not modified. A missing required column is reported as
// a schema error and nothing is produced.
func (t *Transformer) Transform(table *models.Table) (*TransformOutput, error) {
	if table == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "table", nil, nil)
	}

	columns, err := parsers.ResolveColumns(table.Columns, t.config.Columns, "input table")
	if err != nil {
		return nil, err
	}

	rows := t.preprocessor.Preprocess(table, columns)
	cancellation := t.matcher.Cancel(rows.Retained)
	edgeCases := t.edgeHandler.Analyze(rows.Retained)

	if edgeCases.HasAnomalies() {
		sample := edgeCases.UnparseableAmounts[0]
		t.logger.WithFields(logger.Fields{
			"count":       len(edgeCases.UnparseableAmounts),
			"first_line":  sample.Line,
			"first_value": sample.RawAmount,
		}).Warn("Some amounts could not be parsed and were treated as missing")
	}

	output := &TransformOutput{
		EdgeCases: edgeCases,
		Pairs:     cancellation.Pairs,
		Stats: TransformStats{
			UnparseableAmounts: len(edgeCases.UnparseableAmounts),
			ZeroAmounts:        edgeCases.ZeroAmounts,
			OffsetGroups:       cancellation.Index.Groups,
			CandidateGroups:    cancellation.Index.CandidateGroups,
			UnbalancedGroups:   len(edgeCases.UnbalancedGroups),
		},
	}

	t.materialize(table, rows.Retained, cancellation, output)

	output.Summary.Original = table.Len()
	output.Summary.ExcludedCS = rows.Stats.Excluded
	output.Summary.OffsetPairsRemoved = cancellation.PairCount()

	if err := output.Summary.Validate(); err != nil {
		return nil, errors.ReconciliationError(errors.CodeDataInconsistent, "transform", err)
	}

	t.logger.WithFields(logger.Fields{
		"original":      output.Summary.Original,
		"pos":           output.Summary.POs,
		"non_pos":       output.Summary.NonPOs,
		"excluded":      output.Summary.ExcludedCS,
		"pairs_removed": output.Summary.OffsetPairsRemoved,
		"rows_removed":  cancellation.CancelledRows(),
	}).Info("Transform completed")

	return output, nil
}

// materialize builds the output tables from the rows that survived. Both
// tables share row values, so the Non-PO table is a subset of the cleaned
// one by identity.
func (t *Transformer) materialize(table *models.Table, retained []*models.TransactionRow,
	cancellation *matcher.CancellationResult, output *TransformOutput) {

	outColumns, statusIdx := t.outputColumns(table.Columns)
	output.Cleaned = models.NewTable(outColumns)
	output.NonPO = models.NewTable(outColumns)

	for _, tr := range retained {
		if cancellation.IsCancelled(tr) {
			continue
		}

		values := make([]string, len(outColumns))
		copy(values, tr.Source.Values)
		values[statusIdx] = tr.POStatus.String()

		row := &models.Row{Index: tr.Source.Index, Line: tr.Source.Line, Values: values}
		output.Cleaned.Rows = append(output.Cleaned.Rows, row)

		if tr.HasAmount() {
			output.Totals.Cleaned = output.Totals.Cleaned.Add(tr.Amount.Decimal)
		}

		if tr.POStatus == models.POStatusPO {
			output.Summary.POs++
			continue
		}
		output.Summary.NonPOs++
		output.NonPO.Rows = append(output.NonPO.Rows, row)
		if tr.HasAmount() {
			output.Totals.NonPO = output.Totals.NonPO.Add(tr.Amount.Decimal)
		}
	}
}

// outputColumns returns the input columns plus the status column. An
// existing status column is reused in place.
func (t *Transformer) outputColumns(input []string) ([]string, int) {
	columns := make([]string, len(input), len(input)+1)
	copy(columns, input)

	for i, c := range columns {
		if c == t.config.StatusColumn {
			return columns, i
		}
	}
	return append(columns, t.config.StatusColumn), len(columns)
}

// Transform runs the reconciliation transform with the default configuration
func Transform(table *models.Table) (*TransformOutput, error) {
	transformer, err := NewTransformer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create transformer: %w", err)
	}
	return transformer.Transform(table)
}
