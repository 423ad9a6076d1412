package reconciler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"wbs-auc-reconciliation/internal/models"
	"wbs-auc-reconciliation/internal/parsers"
	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

// stageFunc is notified when a processing stage starts
type stageFunc func(stage Stage, result *ReconciliationResult)

func (rs *ReconciliationService) process(
	ctx context.Context,
	request *ReconciliationRequest,
	notify stageFunc,
) (*ReconciliationResult, error) {
	if notify == nil {
		notify = func(Stage, *ReconciliationResult) {}
	}

	if request == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "reconciliation_request", nil, nil)
	}

	startTime := time.Now()
	result := rs.newResult(startTime)

	notify(StageValidate, result)
	if err := request.Validate(); err != nil {
		return nil, errors.ValidationError(
			errors.CodeInvalidConfig,
			"reconciliation_request",
			request.source(),
			err,
		).WithSuggestion("Provide an input file and a valid parser configuration")
	}

	log := rs.logger.WithRun(result.RunID).WithField("input", request.source())
	log.Info("Starting reconciliation")

	// Step 1: Parse the export
	if err := checkContext(ctx, "parse_input"); err != nil {
		return nil, err
	}
	notify(StageParse, result)

	parseStart := time.Now()
	parsed, err := rs.parseInput(ctx, request)
	if err != nil {
		log.WithError(err).Error("Failed to parse input")
		return nil, err
	}
	parseDuration := time.Since(parseStart)

	result.Input = &InputInfo{
		Source: parsed.Source,
		Format: parsed.Format,
		Sheet:  parsed.Sheet,
		Parse:  parsed.Stats,
	}

	// Step 2: Run the transform
	if err := checkContext(ctx, "transform"); err != nil {
		return nil, err
	}
	notify(StageTransform, result)

	output, err := rs.safeTransform(parsed.Table)
	if err != nil {
		log.WithError(err).Error("Transform failed")
		return nil, err
	}

	// Step 3: Assemble the result
	if err := checkContext(ctx, "summarize"); err != nil {
		return nil, err
	}
	notify(StageSummarize, result)

	rs.buildFinalResult(result, output, parseDuration, time.Since(startTime))

	log.WithFields(logger.Fields{
		"summary":  result.Summary.String(),
		"duration": result.ProcessingStats.TotalProcessingTime,
	}).Info("Reconciliation completed")

	notify(StageCompleted, result)
	return result, nil
}

// parseInput reads the request input with the request's parser settings.
// Column settings always come from the service so the parser and the
// transform agree on the schema.
func (rs *ReconciliationService) parseInput(
	ctx context.Context,
	request *ReconciliationRequest,
) (*parsers.ParseResult, error) {
	parserConfig := parsers.DefaultTableParserConfig()
	if request.ParserConfig != nil {
		copied := *request.ParserConfig
		parserConfig = &copied
	}
	parserConfig.Columns = rs.config.Columns

	parser, err := parsers.NewTableParser(parserConfig)
	if err != nil {
		return nil, err
	}

	if request.Reader != nil {
		return parser.ParseReader(ctx, request.Reader, request.source())
	}
	return parser.ParseFile(ctx, request.InputFile)
}

// safeTransform runs the transform and converts a panic into an internal
// error.
func (rs *ReconciliationService) safeTransform(table *models.Table) (output *TransformOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			rs.logger.WithFields(logger.Fields{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("Transform panicked")

			output = nil
			err = errors.InternalError(
				errors.CodeUnexpectedError,
				"transform",
				fmt.Errorf("panic: %v", r),
			)
		}
	}()

	return rs.transformer.Transform(table)
}

func (rs *ReconciliationService) newResult(startTime time.Time) *ReconciliationResult {
	return &ReconciliationResult{
		RunID:           uuid.New().String(),
		ProcessedAt:     startTime,
		ProcessingStats: &ProcessingStats{},
	}
}

// buildFinalResult copies the transform output into the result
func (rs *ReconciliationService) buildFinalResult(
	result *ReconciliationResult,
	output *TransformOutput,
	parseDuration time.Duration,
	total time.Duration,
) {
	result.Summary = output.Summary
	result.Totals = output.Totals
	result.Stats = output.Stats
	result.Cleaned = output.Cleaned
	result.NonPO = output.NonPO
	result.EdgeCases = output.EdgeCases

	result.ProcessingStats.ParsingTime = parseDuration
	result.ProcessingStats.TransformTime = total - parseDuration
	result.ProcessingStats.TotalProcessingTime = total
	if total > 0 {
		result.ProcessingStats.RowsPerSecond = float64(output.Summary.Original) / total.Seconds()
	}
}

func checkContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return errors.ReconciliationError(errors.CodeCancelled, operation, err).
			WithSuggestion("The operation was cancelled before it completed")
	}
	return nil
}
