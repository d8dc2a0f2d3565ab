package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an engine error
type ErrorType string

const (
	ErrTypeBuild      ErrorType = "BUILD"
	ErrTypeSplit      ErrorType = "SPLIT"
	ErrTypeMerge      ErrorType = "MERGE"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeParsing    ErrorType = "PARSING"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeInvariant  ErrorType = "INVARIANT"
)

// Stable error codes. Contract violations (empty window, bad merge
// declarations) abort a run; per-record anomalies never carry these codes,
// they are dropped and counted in diagnostics instead.
const (
	CodeEmptyWindow             = "EMPTY_WINDOW"
	CodeInvalidPeriod           = "INVALID_PERIOD"
	CodeUnknownTransformParam   = "UNKNOWN_TRANSFORM_PARAMETER"
	CodeMissingRequiredField    = "MISSING_REQUIRED_FIELD"
	CodeUnknownTimeUnit         = "UNKNOWN_TIME_UNIT"
	CodeInsufficientPanels      = "INSUFFICIENT_PANELS"
	CodeColumnCountMismatch     = "COLUMN_COUNT_MISMATCH"
	CodeConflictingNaming       = "CONFLICTING_NAMING"
	CodeSubjectSetMismatch      = "SUBJECT_SET_MISMATCH"
	CodeFatalInvariantViolation = "FATAL_INVARIANT_VIOLATION"
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	switch {
	case e.Code != "" && e.Cause != nil:
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	case e.Code != "":
		return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
	case e.Cause != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	default:
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewCodedError creates a new application error carrying a stable code
func NewCodedError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:    errType,
		Code:    code,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// HasCode reports whether err is an AppError with the given code
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// TypeOf returns the ErrorType of err, or "" for non-AppError values
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// Helper constructors for the engine stages

// NewBuildError creates a period-builder contract error
func NewBuildError(code, message string) *AppError {
	return NewCodedError(ErrTypeBuild, code, message)
}

// NewSplitError creates an event-splitter contract error
func NewSplitError(code, message string) *AppError {
	return NewCodedError(ErrTypeSplit, code, message)
}

// NewMergeError creates a panel-merger contract error
func NewMergeError(code, message string) *AppError {
	return NewCodedError(ErrTypeMerge, code, message)
}

// NewInvariantError creates a fatal invariant violation raised under
// strict validation mode
func NewInvariantError(message string) *AppError {
	return NewCodedError(ErrTypeInvariant, CodeFatalInvariantViolation, message)
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}
