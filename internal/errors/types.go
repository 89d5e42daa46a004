package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeSyntax            ErrorType = "syntax"
	ErrorTypeExecution         ErrorType = "execution"
	ErrorTypeProvenance        ErrorType = "provenance"
	ErrorTypeMissingDependency ErrorType = "missing_dependency"
	ErrorTypeIO                ErrorType = "io"
	ErrorTypeConfig            ErrorType = "config"
	ErrorTypeUsage             ErrorType = "usage"
)

// PrmakeError is a structured error type with context.
type PrmakeError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	FilePath string
	Line     int
}

// Error implements the error interface.
func (e *PrmakeError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location+":")
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PrmakeError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison. Two PrmakeErrors match when type and code agree.
func (e *PrmakeError) Is(target error) bool {
	var t *PrmakeError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PrmakeError) WithContext(key string, value interface{}) *PrmakeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *PrmakeError) WithLocation(filePath string, line int) *PrmakeError {
	e.FilePath = filePath
	e.Line = line

	return e
}

// Error creation functions

// NewSyntaxError creates an error for malformed directive usage.
func NewSyntaxError(code, message string, line int) *PrmakeError {
	return &PrmakeError{
		Type:    ErrorTypeSyntax,
		Code:    code,
		Message: message,
		Line:    line,
	}
}

// NewExecutionError creates an error for a block whose interpreter failed.
func NewExecutionError(code, message string, cause error) *PrmakeError {
	return &PrmakeError{
		Type:    ErrorTypeExecution,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewProvenanceConflict creates an error for an output file prmake does not own.
func NewProvenanceConflict(path, message string) *PrmakeError {
	return &PrmakeError{
		Type:     ErrorTypeProvenance,
		Code:     CodeForeignOutput,
		Message:  message,
		FilePath: path,
	}
}

// NewMissingDependencyError creates an error for an absent source or include file.
func NewMissingDependencyError(path string, cause error) *PrmakeError {
	return &PrmakeError{
		Type:     ErrorTypeMissingDependency,
		Code:     CodeMissingFile,
		Message:  "file does not exist",
		Cause:    cause,
		FilePath: path,
	}
}

// NewIOError creates an IO error.
func NewIOError(code, message string, cause error) *PrmakeError {
	return &PrmakeError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PrmakeError {
	return &PrmakeError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewUsageError creates an error for bad command line usage.
func NewUsageError(code, message string) *PrmakeError {
	return &PrmakeError{
		Type:    ErrorTypeUsage,
		Code:    code,
		Message: message,
	}
}

// IsType reports whether any PrmakeError in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var pe *PrmakeError
		if !errors.As(err, &pe) {
			return false
		}
		if pe.Type == errType {
			return true
		}
		err = pe.Cause
	}

	return false
}

// Error codes
const (
	CodeNestedBlock     = "NESTED_BLOCK"
	CodeMissingCommand  = "MISSING_COMMAND"
	CodeUnmatchedClose  = "UNMATCHED_CLOSE"
	CodeMissingClose    = "MISSING_CLOSE"
	CodeCommandFailed   = "COMMAND_FAILED"
	CodeBadOutput       = "BAD_OUTPUT"
	CodeForeignOutput   = "FOREIGN_OUTPUT"
	CodeMissingFile     = "MISSING_FILE"
	CodeTempFile        = "TEMP_FILE"
	CodePublish         = "PUBLISH"
	CodeReadFile        = "READ_FILE"
	CodeInvalidValue    = "INVALID_VALUE"
	CodeUnknownOption   = "UNKNOWN_OPTION"
	CodeMismatchedFiles = "MISMATCHED_FILES"
	CodeBadExtension    = "BAD_EXTENSION"
)
