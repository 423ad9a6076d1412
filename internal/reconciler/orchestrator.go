// Package reconciler runs the WBS-AUC reconciliation of an accounting export.
//
// The package coordinates the whole workflow:
//   - Parsing the export through the parsers package
//   - Classifying rows and dropping excluded document types
//   - Cancelling offsetting debit/credit pairs
//   - Building the cleaned and Non-PO tables and the summary
//
// The ReconciliationOrchestrator wraps a ReconciliationService and reports
// stage progress to registered callbacks.
//
// Example usage:
//
//	service, _ := reconciler.NewReconciliationService(nil)
//	orchestrator, _ := reconciler.NewReconciliationOrchestrator(service)
//	orchestrator.AddProgressCallback(func(progress *reconciler.ReconciliationProgress) {
//		fmt.Printf("Progress: %.1f%% - %s\n", progress.PercentComplete, progress.CurrentStep)
//	})
//
//	result, err := orchestrator.ProcessReconciliation(ctx, &reconciler.ReconciliationRequest{
//		InputFile: "wbs_auc.xlsx",
//	})
package reconciler

import (
	"context"
	"sync"
	"time"

	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

// Stage identifies a step of the reconciliation workflow
type Stage string

const (
	StageValidate  Stage = "Validating request"
	StageParse     Stage = "Parsing input"
	StageTransform Stage = "Transforming rows"
	StageSummarize Stage = "Building summary"
	StageCompleted Stage = "Completed"
)

// stageOrder gives the number of completed steps when a stage starts
var stageOrder = map[Stage]int{
	StageValidate:  0,
	StageParse:     1,
	StageTransform: 2,
	StageSummarize: 3,
	StageCompleted: 4,
}

const totalSteps = 4

// ReconciliationOrchestrator runs reconciliations with progress tracking
type ReconciliationOrchestrator struct {
	service *ReconciliationService
	logger  logger.Logger

	progressCallbacks []ProgressCallback
	currentProgress   *ReconciliationProgress
	progressMutex     sync.RWMutex
}

// ReconciliationProgress tracks the progress of reconciliation operations
type ReconciliationProgress struct {
	RunID              string        `json:"run_id"`
	TotalSteps         int           `json:"total_steps"`
	CompletedSteps     int           `json:"completed_steps"`
	CurrentStep        Stage         `json:"current_step"`
	PercentComplete    float64       `json:"percent_complete"`
	StartTime          time.Time     `json:"start_time"`
	ElapsedTime        time.Duration `json:"elapsed_time"`
	EstimatedRemaining time.Duration `json:"estimated_remaining"`

	// Known once the input has been parsed
	RowsRead int `json:"rows_read"`
	// Known once the transform has run
	PairsRemoved int `json:"pairs_removed"`
}

// ProgressCallback is called to report reconciliation progress
type ProgressCallback func(*ReconciliationProgress)

// NewReconciliationOrchestrator creates a new reconciliation orchestrator
func NewReconciliationOrchestrator(service *ReconciliationService) (*ReconciliationOrchestrator, error) {
	if service == nil {
		return nil, errors.ValidationError(
			errors.CodeMissingField,
			"reconciliation_service",
			nil,
			nil,
		).WithSuggestion("Provide a valid ReconciliationService instance")
	}

	log := logger.GetGlobalLogger().WithComponent("reconciliation_orchestrator")
	log.Debug("Creating reconciliation orchestrator")

	return &ReconciliationOrchestrator{
		service: service,
		logger:  log,
	}, nil
}

// AddProgressCallback adds a progress callback function
func (ro *ReconciliationOrchestrator) AddProgressCallback(callback ProgressCallback) {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()
	ro.progressCallbacks = append(ro.progressCallbacks, callback)
}

// ProcessReconciliation runs one reconciliation and reports every stage
func (ro *ReconciliationOrchestrator) ProcessReconciliation(
	ctx context.Context,
	request *ReconciliationRequest,
) (*ReconciliationResult, error) {
	ro.initializeProgress()

	return ro.service.process(ctx, request, ro.updateProgress)
}

// GetProgress returns a snapshot of the current progress
func (ro *ReconciliationOrchestrator) GetProgress() ReconciliationProgress {
	ro.progressMutex.RLock()
	defer ro.progressMutex.RUnlock()

	if ro.currentProgress == nil {
		return ReconciliationProgress{TotalSteps: totalSteps}
	}
	return *ro.currentProgress
}

func (ro *ReconciliationOrchestrator) initializeProgress() {
	ro.progressMutex.Lock()
	defer ro.progressMutex.Unlock()

	ro.currentProgress = &ReconciliationProgress{
		TotalSteps: totalSteps,
		StartTime:  time.Now(),
	}
}

func (ro *ReconciliationOrchestrator) updateProgress(stage Stage, result *ReconciliationResult) {
	ro.progressMutex.Lock()

	progress := ro.currentProgress
	completed := stageOrder[stage]
	elapsed := time.Since(progress.StartTime)

	progress.RunID = result.RunID
	progress.CurrentStep = stage
	progress.CompletedSteps = completed
	progress.ElapsedTime = elapsed
	progress.PercentComplete = float64(completed) / float64(progress.TotalSteps) * 100

	if completed > 0 && completed < progress.TotalSteps {
		avgTimePerStep := elapsed / time.Duration(completed)
		progress.EstimatedRemaining = avgTimePerStep * time.Duration(progress.TotalSteps-completed)
	} else {
		progress.EstimatedRemaining = 0
	}

	if result.Input != nil && result.Input.Parse != nil {
		progress.RowsRead = result.Input.Parse.DataRows
	}
	if stage == StageCompleted {
		progress.PairsRemoved = result.Summary.OffsetPairsRemoved
	}

	ro.logger.WithFields(logger.Fields{
		"run_id":  progress.RunID,
		"step":    string(stage),
		"percent": progress.PercentComplete,
	}).Debug("Reconciliation progress")

	snapshot := *progress
	callbacks := append([]ProgressCallback(nil), ro.progressCallbacks...)
	ro.progressMutex.Unlock()

	for _, callback := range callbacks {
		callback(&snapshot)
	}
}
