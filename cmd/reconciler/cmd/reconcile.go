package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"wbs-auc-reconciliation/cmd/reconciler/config"
	"wbs-auc-reconciliation/internal/reconciler"
	"wbs-auc-reconciliation/internal/reporter"
	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

func newReconcileCmd(c *cli) *cobra.Command {
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Clean a WBS-AUC export and write the reports",
		Long: `Reconcile reads a WBS-AUC ledger export (XLSX, XLS or CSV), drops the
excluded document types, cancels offsetting positive/negative rows and writes:

- the cleaned report with a PO_Status column
- the Non-PO report (cleaned rows without a purchasing document)
- a summary with the five reconciliation counters

Examples:
  # Basic run, reports are written next to the working directory
  reconciler reconcile --input wbs_auc.xlsx

  # CSV export with semicolons, CSV reports in ./out
  reconciler reconcile --input export.csv --delimiter ";" --output-dir out

  # JSON summary written to a file
  reconciler reconcile --input wbs_auc.xlsx --summary-format json --summary-file summary.json

  # Additional excluded document types
  reconciler reconcile --input wbs_auc.xlsx --exclude-doc-types CS,ZP --progress`,
		Args:    cobra.NoArgs,
		PreRunE: c.validateReconcileFlags,
		RunE:    c.runReconcile,
	}

	flags := reconcileCmd.Flags()
	flags.StringP("input", "i", "", "path to the WBS-AUC export: .xlsx, .xls or .csv (required)")
	flags.StringP("output-dir", "o", ".", "directory for the cleaned and Non-PO reports")
	flags.String("table-format", "auto", "report file format: auto, xlsx, csv")
	flags.StringP("summary-format", "f", "console", "summary format: console, json, csv, yaml")
	flags.String("summary-file", "", "summary file path (default: stdout)")
	flags.String("sheet", "", "worksheet to read (default: first sheet)")
	flags.String("delimiter", ",", "CSV delimiter, \"tab\" for tab-separated input")
	flags.String("encoding", "utf-8", "CSV encoding: utf-8, latin1, windows-1252")
	flags.StringSlice("exclude-doc-types", []string{"CS"}, "document types removed before cancellation")
	flags.Bool("progress", false, "show progress indicators")

	c.bindFlag(config.KeyInput, flags.Lookup("input"))
	c.bindFlag(config.KeyOutputDir, flags.Lookup("output-dir"))
	c.bindFlag(config.KeyTableFormat, flags.Lookup("table-format"))
	c.bindFlag(config.KeySummaryFormat, flags.Lookup("summary-format"))
	c.bindFlag(config.KeySummaryFile, flags.Lookup("summary-file"))
	c.bindFlag(config.KeySheet, flags.Lookup("sheet"))
	c.bindFlag(config.KeyDelimiter, flags.Lookup("delimiter"))
	c.bindFlag(config.KeyEncoding, flags.Lookup("encoding"))
	c.bindFlag(config.KeyExcludeDocTypes, flags.Lookup("exclude-doc-types"))
	c.bindFlag(config.KeyProgress, flags.Lookup("progress"))

	return reconcileCmd
}

func (c *cli) validateReconcileFlags(cmd *cobra.Command, args []string) error {
	cfg := c.cfg

	if cfg.Input == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "input", "", nil).
			WithSuggestion("Pass the export with --input or set RECONCILER_INPUT")
	}

	if err := validateFileExists(cfg.Input, "input file"); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "reconcile", err.Error(), err)
	}

	if cfg.SummaryFile != "" {
		dir := filepath.Dir(cfg.SummaryFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.ConfigurationError(errors.CodeInvalidConfig, "summary_file", cfg.SummaryFile,
					fmt.Errorf("output directory does not exist: %s", dir))
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, "", nil)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()

	return nil
}

func (c *cli) runReconcile(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := c.cfg
	log := logger.WithComponent("cli")
	log.WithFields(logger.Fields{
		"input":          cfg.Input,
		"output_dir":     cfg.OutputDir,
		"table_format":   cfg.TableFormat,
		"summary_format": cfg.SummaryFormat,
		"excluded":       cfg.ExcludeDocTypes,
	}).Info("Starting reconciliation")

	result, err := c.reconcile(ctx, cfg)
	if err != nil {
		return err
	}

	writer, err := reporter.NewTableWriter(cfg.CreateTableWriterConfig())
	if err != nil {
		return err
	}
	outputs, err := writer.WriteTables(result)
	if err != nil {
		return err
	}

	reportConfig := cfg.CreateReportConfig()
	reportConfig.Outputs = outputs
	generator, err := reporter.NewSafeReportGenerator(reportConfig, nil)
	if err != nil {
		return err
	}

	if cfg.SummaryFile == "" {
		if err := generator.GenerateReportSafely(result, c.stdout); err != nil {
			return err
		}
	} else {
		written, err := generator.WriteReportFile(result, cfg.SummaryFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stderr, "Summary written to %s\n", written)
	}

	log.WithFields(logger.Fields{
		"run_id":  result.RunID,
		"cleaned": outputs.Cleaned,
		"non_po":  outputs.NonPO,
		"elapsed": result.ProcessingStats.TotalProcessingTime,
	}).Info("Reconciliation completed")

	return nil
}

func (c *cli) reconcile(ctx context.Context, cfg *config.AppConfig) (*reconciler.ReconciliationResult, error) {
	parserConfig, err := cfg.CreateParserConfig()
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", err.Error(), err)
	}

	service, err := reconciler.NewReconciliationService(cfg.CreateReconcilerConfig())
	if err != nil {
		return nil, err
	}

	orchestrator, err := reconciler.NewReconciliationOrchestrator(service)
	if err != nil {
		return nil, err
	}

	if cfg.Progress {
		orchestrator.AddProgressCallback(func(progress *reconciler.ReconciliationProgress) {
			fmt.Fprintf(c.stderr, "\r[%d/%d] %-20s (%5.1f%% complete)",
				progress.CompletedSteps, progress.TotalSteps,
				progress.CurrentStep, progress.PercentComplete)
			if progress.CurrentStep == reconciler.StageCompleted {
				fmt.Fprintf(c.stderr, "\n")
			}
		})
	}

	return orchestrator.ProcessReconciliation(ctx, &reconciler.ReconciliationRequest{
		InputFile:    cfg.Input,
		ParserConfig: parserConfig,
	})
}
