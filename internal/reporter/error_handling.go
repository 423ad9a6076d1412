package reporter

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"wbs-auc-reconciliation/internal/reconciler"
	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

// SafeReportGenerator renders summaries with two fallbacks: a failing
// format is replaced by the console format, and a summary file that cannot
// be created is written to the temp directory instead.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		var format OutputFormat
		if config != nil {
			format = config.Format
		}
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "summary_format", format, err).
			WithSuggestion("Use one of: console, json, csv, yaml")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely renders the summary of result to w
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.ReconciliationResult, w io.Writer) error {
	if err := checkReportable(result, w); err != nil {
		srg.logger.WithError(err).Error("Summary not reportable")
		return err
	}

	log := srg.logger.WithRun(result.RunID).WithField("format", srg.config.Format)
	log.Debug("Rendering summary")

	if err := srg.render(result, w); err != nil {
		log.WithError(err).Error("Rendering summary failed")
		return err
	}
	return nil
}

// WriteReportFile renders the summary into path and returns the path that
// was actually written. The summary is rendered in memory first, so a
// failed render leaves no partial file behind.
func (srg *SafeReportGenerator) WriteReportFile(result *reconciler.ReconciliationResult, path string) (string, error) {
	if err := checkReportable(result, io.Discard); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := srg.render(result, &buf); err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.OutputError(errors.CodeWriteFailed, dir, err)
		}
	}

	err := os.WriteFile(path, buf.Bytes(), 0o644)
	if err == nil {
		return path, nil
	}
	if !recoverableWriteError(err) {
		return "", errors.OutputError(errors.CodeWriteFailed, path, err)
	}

	backup := backupPath(path, result.RunID)
	if backupErr := os.WriteFile(backup, buf.Bytes(), 0o644); backupErr != nil {
		return "", errors.OutputError(errors.CodeWriteFailed, path, err).
			WithContext("backup_path", backup).
			WithContext("backup_error", backupErr.Error())
	}

	srg.logger.WithRun(result.RunID).WithError(err).WithFields(logger.Fields{
		"summary_file": path,
		"backup_file":  backup,
	}).Warn("Summary file not writable, saved to backup location")
	return backup, nil
}

func checkReportable(result *reconciler.ReconciliationResult, w io.Writer) error {
	if result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("Provide a valid reconciliation result")
	}
	if w == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}
	if err := result.Summary.Validate(); err != nil {
		return errors.ReconciliationError(errors.CodeDataInconsistent, "report_generation", err)
	}
	return nil
}

// render writes the configured format, or the console format with a note
// when the configured one fails.
func (srg *SafeReportGenerator) render(result *reconciler.ReconciliationResult, w io.Writer) error {
	var primary bytes.Buffer
	err := srg.GenerateReport(result, &primary)
	if err == nil {
		_, err = w.Write(primary.Bytes())
		return wrapRenderError(err)
	}
	if srg.config.Format == FormatConsole {
		return wrapRenderError(err)
	}

	srg.logger.WithError(err).WithField("fallback_format", FormatConsole).Warn("Summary format failed, using console format")

	fallbackConfig := *srg.config
	fallbackConfig.Format = FormatConsole
	fallback, newErr := NewReportGenerator(&fallbackConfig)
	if newErr != nil {
		return wrapRenderError(err)
	}

	fmt.Fprintf(w, "NOTE: %s summary failed (%v), showing console summary\n\n", srg.config.Format, err)
	if fallbackErr := fallback.GenerateReport(result, w); fallbackErr != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "report_fallback",
			fmt.Errorf("primary=%v, fallback=%w", err, fallbackErr))
	}
	return nil
}

func wrapRenderError(err error) error {
	if err == nil {
		return nil
	}
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}
	return errors.InternalError(errors.CodeProcessingError, "report_generation", err).
		WithSuggestion("Check the output destination and report format settings")
}

// recoverableWriteError reports whether writing elsewhere may succeed
func recoverableWriteError(err error) bool {
	return stderrors.Is(err, os.ErrPermission) ||
		stderrors.Is(err, os.ErrNotExist) ||
		stderrors.Is(err, syscall.ENOSPC) ||
		stderrors.Is(err, syscall.EROFS) ||
		strings.Contains(err.Error(), "no space left")
}

// backupPath names the temp-dir copy of a summary file after the run, so
// concurrent runs do not overwrite each other's backups.
func backupPath(path, runID string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	if len(runID) > 8 {
		runID = runID[:8]
	}
	if runID == "" {
		return filepath.Join(os.TempDir(), name+"_backup"+ext)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s_backup_%s%s", name, runID, ext))
}
