package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"wbs-auc-reconciliation/internal/models"
	"wbs-auc-reconciliation/pkg/errors"
	"wbs-auc-reconciliation/pkg/logger"
)

// CLIErrorHandler turns command errors into messages and exit codes
type CLIErrorHandler struct {
	logger  logger.Logger
	out     io.Writer
	verbose bool
}

// NewCLIErrorHandler creates a new CLI error handler writing to out
func NewCLIErrorHandler(out io.Writer, verbose bool) *CLIErrorHandler {
	if out == nil {
		out = os.Stderr
	}
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		out:     out,
		verbose: verbose,
	}
}

// HandleError prints err and returns the process exit code for it
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	h.logger.WithError(err).Debug("Command failed")

	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return h.handleReconcilerError(reconcilerErr)
	}

	return h.handleGenericError(err)
}

func (h *CLIErrorHandler) handleReconcilerError(err *errors.ReconcilerError) int {
	if err.Category == errors.CategoryInternal && !h.verbose {
		fmt.Fprintf(h.out, "Error: an unexpected internal error occurred (%s)\n", err.Code)
		fmt.Fprintf(h.out, "\nRun again with --verbose for details.\n")
		return err.GetExitCode()
	}

	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if path, ok := err.Context["file_path"].(string); ok && err.Code == errors.CodeFileNotFound && err.Cause != nil {
		fmt.Fprintf(h.out, "\n%s", FormatFileError(path, err.Cause))
	}

	if len(err.Context) > 0 {
		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range err.ContextKeys() {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err))

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %+v\n", err.Cause)
	}

	return err.GetExitCode()
}

// osFailure describes a plain OS error the CLI explains without a
// ReconcilerError around it.
type osFailure struct {
	match      func(error) bool
	message    string
	suggestion string
}

var osFailures = []osFailure{
	{
		match: func(err error) bool {
			return stderrors.Is(err, os.ErrNotExist) || strings.Contains(err.Error(), "no such file or directory")
		},
		message:    "File not found",
		suggestion: "Check if the file path is correct and the file exists",
	},
	{
		match: func(err error) bool {
			msg := err.Error()
			return stderrors.Is(err, os.ErrPermission) ||
				strings.Contains(msg, "permission denied") || strings.Contains(msg, "access denied")
		},
		message:    "Permission denied",
		suggestion: "Check file permissions and ensure you have read access",
	},
	{
		match: func(err error) bool {
			msg := strings.ToLower(err.Error())
			return stderrors.Is(err, syscall.ENOSPC) ||
				strings.Contains(msg, "no space left") || strings.Contains(msg, "disk full")
		},
		message:    "Insufficient disk space",
		suggestion: "Free up disk space and try again",
	},
}

func (h *CLIErrorHandler) handleGenericError(err error) int {
	for _, f := range osFailures {
		if f.match(err) {
			fmt.Fprintf(h.out, "Error: %s\nSuggestion: %s\n", f.message, f.suggestion)
			return 2
		}
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	fmt.Fprintf(h.out, "Run 'reconciler --help' for usage.\n")
	return 1
}

// parseHelp refines the parse category help for specific codes
var parseHelp = map[errors.ErrorCode]string{
	errors.CodeEncodingError: `Encoding help:
• Excel on Windows usually saves CSV as windows-1252
• Pass --encoding latin1 or --encoding windows-1252, or save as UTF-8`,
	errors.CodeMissingSheet: `Sheet help:
• Omit --sheet to read the first worksheet
• Sheet names are case sensitive`,
}

var categoryHelp = map[errors.ErrorCategory]string{
	errors.CategoryFile: `File help:
• Check that the export exists and is readable
• Relative paths are resolved from the current directory`,
	errors.CategoryParse: `Parse error help:
• Provide an .xlsx, .xls or .csv export with a header row
• For CSV files check --delimiter and --encoding`,
	errors.CategoryValidation: `Validation help:
• Provide the missing value and run again`,
	errors.CategoryConfiguration: `Configuration help:
• Flags override RECONCILER_* variables, which override the --config file
• Use 'reconciler config show' to inspect the effective configuration
• Use 'reconciler reconcile --help' to see all available options`,
	errors.CategoryReconciliation: `Reconciliation error help:
• Re-run the command; cancelled runs do not write reports
• Check the row counts of the export against the source system`,
	errors.CategoryOutput: `Output error help:
• Check that --output-dir exists or can be created
• Close the reports if they are open in Excel and try again`,
}

func (h *CLIErrorHandler) getCategoryHelp(err *errors.ReconcilerError) string {
	category := err.Category
	if category == errors.CategoryParse {
		if err.Code == errors.CodeMissingColumn {
			return schemaHelp(err)
		}
		if help, ok := parseHelp[err.Code]; ok {
			return help
		}
	}
	if help, ok := categoryHelp[category]; ok {
		return help
	}
	return `For more help:
• Use 'reconciler --help' for general help
• Use 'reconciler reconcile --help' for command-specific help`
}

// schemaHelp lists the headers the failed run looked for, falling back to
// the default export layout.
func schemaHelp(err *errors.ReconcilerError) string {
	expected, ok := err.Context["expected_columns"].([]string)
	if !ok || len(expected) == 0 {
		expected = models.RequiredColumns()
	}
	quoted := make([]string, len(expected))
	for i, column := range expected {
		quoted[i] = fmt.Sprintf("'%s'", column)
	}

	var help strings.Builder
	help.WriteString("Schema help:\n")
	fmt.Fprintf(&help, "• The export needs the columns %s\n", strings.Join(quoted, ", "))
	help.WriteString("• Headers are matched after trimming; rename columns in the config file\n")
	help.WriteString("  under 'columns:' if your export uses other headers\n")
	help.WriteString("• Use 'reconciler config show' to see the expected headers")
	return help.String()
}

// FormatFileError formats file-related errors with helpful information
func FormatFileError(filePath string, err error) string {
	baseName := filepath.Base(filePath)
	dir := filepath.Dir(filePath)

	var message strings.Builder
	message.WriteString(fmt.Sprintf("Error with file '%s':\n", baseName))
	message.WriteString(fmt.Sprintf("  Path: %s\n", filePath))
	message.WriteString(fmt.Sprintf("  Error: %v\n", err))

	if stderrors.Is(err, os.ErrNotExist) {
		message.WriteString("  Suggestion: Check if the file exists in the specified location\n")

		// List files with the same extension
		if entries, dirErr := os.ReadDir(dir); dirErr == nil {
			ext := strings.ToLower(filepath.Ext(baseName))
			var similar []string
			for _, entry := range entries {
				if !entry.IsDir() && ext != "" && strings.ToLower(filepath.Ext(entry.Name())) == ext {
					similar = append(similar, entry.Name())
				}
			}
			sort.Strings(similar)
			if len(similar) > 0 {
				message.WriteString("  Similar files found:\n")
				for _, name := range similar[:min(len(similar), 3)] {
					message.WriteString(fmt.Sprintf("    - %s\n", name))
				}
			}
		}
	} else if stderrors.Is(err, os.ErrPermission) {
		message.WriteString("  Suggestion: Check file permissions - you may need read access\n")
	}

	return message.String()
}
