// Package errors provides the error taxonomy used across the asset pipeline.
//
// Every failure that crosses a package boundary is an *AssetError carrying a
// category, a short code and, when known, the file it concerns. Transform
// failures additionally carry the BuildError diagnostics reported by the
// external processor.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeTransform ErrorType = "transform"
	ErrorTypeResolve   ErrorType = "resolve"
	ErrorTypeIO        ErrorType = "io"
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeInternal  ErrorType = "internal"
)

// Error codes shared between packages.
const (
	CodeStageFailed    = "STAGE_FAILED"
	CodeBundleFailed   = "BUNDLE_FAILED"
	CodeWriteFailed    = "WRITE_FAILED"
	CodeReadFailed     = "READ_FAILED"
	CodeHashFailed     = "HASH_FAILED"
	CodeGlobFailed     = "GLOB_FAILED"
	CodeInvalidConfig  = "INVALID_CONFIG"
	CodeCommandMissing = "COMMAND_MISSING"
)

// AssetError is a structured error type with context.
type AssetError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	File        string
	Stage       string
	Diagnostics []BuildError
	Context     map[string]interface{}
}

// Error implements the error interface.
func (e *AssetError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Stage != "" {
		parts = append(parts, "stage:"+e.Stage)
	}
	if e.File != "" {
		parts = append(parts, e.File)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if len(e.Diagnostics) > 0 {
		result += ": " + e.Diagnostics[0].Error()
		if n := len(e.Diagnostics) - 1; n > 0 {
			result += fmt.Sprintf(" (and %d more)", n)
		}
	} else if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *AssetError) Unwrap() error {
	return e.Cause
}

// Is reports a match when type and code agree.
func (e *AssetError) Is(target error) bool {
	var t *AssetError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *AssetError) WithContext(key string, value interface{}) *AssetError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithFile records the file the error concerns.
func (e *AssetError) WithFile(file string) *AssetError {
	e.File = file

	return e
}

// WithStage records the pipeline stage that failed.
func (e *AssetError) WithStage(stage string) *AssetError {
	e.Stage = stage

	return e
}

// WithDiagnostics attaches processor diagnostics.
func (e *AssetError) WithDiagnostics(diags []BuildError) *AssetError {
	e.Diagnostics = append(e.Diagnostics, diags...)

	return e
}

// NewTransformError creates a transform error for a failed stage or bundle.
func NewTransformError(code, message string, cause error) *AssetError {
	return &AssetError{
		Type:    ErrorTypeTransform,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewResolveError creates an error for a module that could not be scanned.
func NewResolveError(file string, cause error) *AssetError {
	return &AssetError{
		Type:    ErrorTypeResolve,
		Code:    CodeReadFailed,
		Message: "module unreadable during partial resolution",
		Cause:   cause,
		File:    file,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *AssetError {
	return &AssetError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *AssetError {
	return &AssetError{
		Type:    ErrorTypeConfig,
		Code:    CodeInvalidConfig,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *AssetError {
	return &AssetError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsTransformError checks if an error came from a compiler stage.
func IsTransformError(err error) bool {
	var ae *AssetError
	if errors.As(err, &ae) {
		return ae.Type == ErrorTypeTransform
	}

	return false
}

// IsIOError checks if an error is an I/O failure.
func IsIOError(err error) bool {
	var ae *AssetError
	if errors.As(err, &ae) {
		return ae.Type == ErrorTypeIO
	}

	return false
}

// GetType returns the category of err, or ErrorTypeInternal for foreign errors.
func GetType(err error) ErrorType {
	var ae *AssetError
	if errors.As(err, &ae) {
		return ae.Type
	}

	return ErrorTypeInternal
}
