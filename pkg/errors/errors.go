// Package errors defines the categorized application errors surfaced by the
// period reconciliation tooling. The calculator itself never fails; these
// errors come from the edges: reading files, decoding payloads, talking to the
// backend API and validating configuration.
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
	CategoryNetwork        ErrorCategory = "network"
	CategoryInternal       ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"

	// Parse errors
	CodeInvalidFormat     ErrorCode = "invalid_format"
	CodeMissingColumn     ErrorCode = "missing_column"
	CodeInvalidData       ErrorCode = "invalid_data"
	CodeEncodingError     ErrorCode = "encoding_error"
	CodeUnsupportedFormat ErrorCode = "unsupported_format"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Reconciliation errors
	CodeDataInconsistent ErrorCode = "data_inconsistent"
	CodeProcessingError  ErrorCode = "processing_error"

	// Network errors
	CodeConnectionFailed   ErrorCode = "connection_failed"
	CodeTimeout            ErrorCode = "timeout"
	CodeServiceUnavailable ErrorCode = "service_unavailable"
	CodeBadResponse        ErrorCode = "bad_response"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
	CodeCancelled       ErrorCode = "cancelled"
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

// GetExitCode returns the process exit code for the error category
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	case CategoryNetwork:
		return 6
	default:
		return 1
	}
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

// template pairs a message format (one %s or %v verb for the subject) with
// the default suggestion shown to the user.
type template struct {
	format     string
	suggestion string
}

var templates = map[ErrorCode]template{
	CodeFileNotFound:   {"file not found: %s", "check if the file path is correct and the file exists"},
	CodeFilePermission: {"permission denied accessing file: %s", "check file permissions and ensure you have read access"},
	CodeFileCorrupted:  {"file appears to be corrupted: %s", "verify the file integrity and try using a backup copy"},

	CodeInvalidFormat:     {"invalid format %s", "check the data format and ensure it matches the expected structure"},
	CodeMissingColumn:     {"missing required column %s", "verify the file has all required columns with correct headers"},
	CodeInvalidData:       {"invalid data %s", "correct the data format or remove the invalid entry"},
	CodeEncodingError:     {"encoding error %s", "ensure the file is saved in UTF-8 encoding"},
	CodeUnsupportedFormat: {"unsupported input format %s", "use a .json or .csv file or pass --format explicitly"},

	CodeInvalidAmount: {"invalid amount in field %s", "ensure amounts are valid decimal numbers (e.g., '-12.34')"},
	CodeInvalidDate:   {"invalid date in field %s", "use date format YYYY-MM-DD or an RFC3339 timestamp"},
	CodeMissingField:  {"required field %s is missing or empty", "provide a value for this required field"},
	CodeOutOfRange:    {"value out of range in field %s", "ensure the value is within the acceptable range"},

	CodeInvalidConfig:  {"invalid configuration for %s", "check the configuration documentation for valid values"},
	CodeMissingConfig:  {"missing required configuration: %s", "provide this configuration setting or use a config file"},
	CodeConfigConflict: {"configuration conflict with setting %s", "resolve the conflicting settings or use default values"},

	CodeDataInconsistent: {"data inconsistency detected during %s", "verify the period history for overlapping versions"},
	CodeProcessingError:  {"processing error during %s", "check the input data and try again"},

	CodeConnectionFailed:   {"connection failed to %s", "check network connectivity and endpoint availability"},
	CodeTimeout:            {"timeout connecting to %s", "increase the request timeout or check network speed"},
	CodeServiceUnavailable: {"service unavailable: %s", "try again later or contact the service administrator"},
	CodeBadResponse:        {"unexpected response from %s", "check the API base URL and the backend version"},

	CodeUnexpectedError: {"unexpected error during %s", "this is likely a bug - please report it with the error details"},
	CodeCancelled:       {"operation cancelled during %s", "rerun the command; it was interrupted before completion"},
}

func build(category ErrorCategory, code ErrorCode, subject string, err error) *ReconcilerError {
	tpl, ok := templates[code]
	if !ok {
		tpl = template{format: string(category) + " error: %s", suggestion: "check the input and try again"}
	}

	message := fmt.Sprintf(tpl.format, subject)
	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, category, code, message)
	} else {
		result = New(category, code, message)
	}
	return result.WithSuggestion(tpl.suggestion)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *ReconcilerError {
	return build(CategoryFile, code, path, err).WithContext("file_path", path)
}

// ParseError creates a parsing-related error. line is 0 when the problem is
// not tied to a single row.
func ParseError(code ErrorCode, file string, line int, column string, value string, err error) *ReconcilerError {
	subject := fmt.Sprintf("in %s", file)
	if column != "" {
		subject = fmt.Sprintf("'%s' in %s", column, file)
	}
	if line > 0 {
		subject = fmt.Sprintf("%s at line %d", subject, line)
	}
	if value != "" {
		subject = fmt.Sprintf("%s: '%s'", subject, value)
	}

	return build(CategoryParse, code, subject, err).
		WithContext("file", file).
		WithContext("line", line).
		WithContext("column", column).
		WithContext("value", value)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	subject := fmt.Sprintf("'%s'", field)
	if value != nil && code != CodeMissingField {
		subject = fmt.Sprintf("'%s': %v", field, value)
	}
	return build(CategoryValidation, code, subject, err).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	subject := setting
	if value != nil && code != CodeMissingConfig {
		subject = fmt.Sprintf("'%s': %v", setting, value)
	}
	return build(CategoryConfiguration, code, subject, err).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ReconciliationError creates a reconciliation-related error
func ReconciliationError(code ErrorCode, operation string, err error) *ReconcilerError {
	return build(CategoryReconciliation, code, operation, err).WithContext("operation", operation)
}

// NetworkError creates a network-related error
func NetworkError(code ErrorCode, endpoint string, err error) *ReconcilerError {
	return build(CategoryNetwork, code, endpoint, err).WithContext("endpoint", endpoint)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	return build(CategoryInternal, code, operation, err).WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ReconcilerError    `json:"errors"`
	SampleErrors []*ReconcilerError    `json:"sample_errors,omitempty"`
}

const maxSampleErrors = 5

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if summary.Errors == nil {
		summary.Errors = []*ReconcilerError{}
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	if len(errs) > maxSampleErrors {
		summary.SampleErrors = errs[:maxSampleErrors]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	switch es.Total {
	case 0:
		return "no errors"
	case 1:
		return es.Errors[0].Error()
	}

	categories := make([]string, 0, len(es.ByCategory))
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
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
