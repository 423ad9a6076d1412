package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryOutput         ErrorCategory = "output"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"
	CodeDirectoryError ErrorCode = "directory_error"

	// Parse errors
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeEmptyInput    ErrorCode = "empty_input"
	CodeEncodingError ErrorCode = "encoding_error"
	CodeMissingSheet  ErrorCode = "missing_sheet"

	// Validation errors
	CodeMissingField ErrorCode = "missing_field"
	CodeOutOfRange   ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Reconciliation errors
	CodeDataInconsistent ErrorCode = "data_inconsistent"
	CodeProcessingError  ErrorCode = "processing_error"
	CodeCancelled        ErrorCode = "cancelled"

	// Output errors
	CodeWriteFailed ErrorCode = "write_failed"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

var exitCodes = map[ErrorCategory]int{
	CategoryFile:           2,
	CategoryOutput:         2,
	CategoryParse:          3,
	CategoryValidation:     3,
	CategoryConfiguration:  4,
	CategoryReconciliation: 5,
	CategoryInternal:       5,
}

// GetExitCode maps the category to the process exit code, 1 if unknown
func (e *ReconcilerError) GetExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// ContextKeys returns the context keys in a stable order for display.
func (e *ReconcilerError) ContextKeys() []string {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func newOrWrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// template is the message and suggestion registered for an error code.
// Messages may use the placeholders {path}, {line} and {value}.
type template struct {
	category   ErrorCategory
	message    string
	suggestion string
}

var templates = map[ErrorCode]template{
	CodeFileNotFound:   {CategoryFile, "file not found: {path}", "check if the file path is correct and the file exists"},
	CodeFilePermission: {CategoryFile, "permission denied accessing file: {path}", "check file permissions and ensure you have read access"},
	CodeFileCorrupted:  {CategoryFile, "file could not be read: {path}", "re-export the WBS dump from the source system and try again"},
	CodeDirectoryError: {CategoryFile, "directory error: {path}", "ensure the directory exists and is accessible"},

	CodeInvalidFormat: {CategoryParse, "unsupported or unreadable table format in {path}", "provide an .xlsx, .xls or .csv export"},
	CodeMissingColumn: {CategoryParse, "missing required column(s) {value} in {path}", "verify the export contains all required columns with their original headers"},
	CodeEmptyInput:    {CategoryParse, "no header row found in {path}", "ensure the file contains a header row followed by data rows"},
	CodeEncodingError: {CategoryParse, "encoding error in {path} at line {line}", "save the file as UTF-8 or pass --encoding latin1"},
	CodeMissingSheet:  {CategoryParse, "sheet \"{value}\" not found in {path}", "omit --sheet to use the first sheet, or check the sheet name"},

	CodeMissingField: {CategoryValidation, "required field '{path}' is missing or empty", "provide a value for this required field"},
	CodeOutOfRange:   {CategoryValidation, "value out of range in field '{path}': {value}", "ensure the value is within the acceptable range"},

	CodeInvalidConfig:  {CategoryConfiguration, "invalid configuration for '{path}': {value}", "run 'reconciler config show' to inspect the effective configuration"},
	CodeMissingConfig:  {CategoryConfiguration, "missing required configuration: {path}", "provide this setting as a flag, environment variable or in the config file"},
	CodeConfigConflict: {CategoryConfiguration, "configuration conflict with setting '{path}': {value}", "resolve the conflicting settings or use default values"},

	CodeDataInconsistent: {CategoryReconciliation, "data inconsistency detected during {path}", "verify the row counts of the export and re-run"},
	CodeProcessingError:  {CategoryReconciliation, "processing error during {path}", "check the input data and try again"},
	CodeCancelled:        {CategoryReconciliation, "{path} was cancelled", "re-run the command to completion"},

	CodeWriteFailed: {CategoryOutput, "failed to write report: {path}", "check that the output directory exists and is writable"},

	CodeUnexpectedError: {CategoryInternal, "unexpected error during {path}", "this is likely a bug, please report it with the error details"},
}

// fallbacks apply when a constructor receives a code of another category
var fallbacks = map[ErrorCategory]template{
	CategoryFile:           {CategoryFile, "file error: {path}", "check the file and try again"},
	CategoryParse:          {CategoryParse, "parse error in {path} at line {line}", "check the file format and data integrity"},
	CategoryValidation:     {CategoryValidation, "validation error in field '{path}': {value}", "check the field value and format"},
	CategoryConfiguration:  {CategoryConfiguration, "configuration error: {path}", "check your configuration and try again"},
	CategoryReconciliation: {CategoryReconciliation, "reconciliation error during {path}", "review the data and configuration"},
	CategoryOutput:         {CategoryOutput, "failed to write report: {path}", "check that the output directory exists and is writable"},
	CategoryInternal:       {CategoryInternal, "internal error during {path}", "try again or contact support if the problem persists"},
}

func build(category ErrorCategory, code ErrorCode, path string, line int, value interface{}, err error) *ReconcilerError {
	t, ok := templates[code]
	if !ok || t.category != category {
		t = fallbacks[category]
	}
	message := strings.NewReplacer(
		"{path}", path,
		"{line}", fmt.Sprint(line),
		"{value}", fmt.Sprint(value),
	).Replace(t.message)
	return newOrWrap(err, category, code, message).WithSuggestion(t.suggestion)
}

// FileError reports a problem with the file at path
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	return build(CategoryFile, code, path, 0, nil, err).WithContext("file_path", path)
}

// ParseError reports a problem reading file. line and column are added to
// the context when set.
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *ReconcilerError {
	result := build(CategoryParse, code, file, line, value, err).WithContext("file", file)
	if line > 0 {
		result.WithContext("line", line)
	}
	if column != "" {
		result.WithContext("column", column)
	}
	return result
}

// SchemaError reports required columns that are absent from an input table.
func SchemaError(file string, missing, available []string) *ReconcilerError {
	quoted := make([]string, len(missing))
	for i, m := range missing {
		quoted[i] = fmt.Sprintf("'%s'", m)
	}
	return ParseError(CodeMissingColumn, file, 1, "headers", strings.Join(quoted, ", "), nil).
		WithContext("missing_columns", missing).
		WithContext("available_columns", available)
}

func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	return build(CategoryValidation, code, field, 0, value, err).
		WithContext("field", field).
		WithContext("value", value)
}

func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	return build(CategoryConfiguration, code, setting, 0, value, err).
		WithContext("setting", setting).
		WithContext("value", value)
}

func ReconciliationError(code ErrorCode, operation string, err error) *ReconcilerError {
	return build(CategoryReconciliation, code, operation, 0, nil, err).WithContext("operation", operation)
}

// OutputError reports a failure writing a report to path
func OutputError(code ErrorCode, path string, err error) *ReconcilerError {
	return build(CategoryOutput, code, path, 0, nil, err).WithContext("output_path", path)
}

// InternalError marks a bug, such as a recovered panic
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	return build(CategoryInternal, code, operation, 0, nil, err).WithContext("operation", operation)
}

// IsReconcilerError checks if an error is a ReconcilerError
func IsReconcilerError(err error) bool {
	_, ok := AsReconcilerError(err)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given error code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		re, ok := AsReconcilerError(err)
		if !ok {
			return false
		}
		if re.Code == code {
			return true
		}
		err = re.Cause
	}
	return false
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
