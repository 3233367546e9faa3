// Package errors provides a lightweight structured error type (SyncError)
// for category-based classification of pipeline stage failures.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a SyncError for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// External collaborator errors
	CategoryProvision ErrorCategory = "provision"
	CategoryBuilder   ErrorCategory = "builder"
	CategorySync      ErrorCategory = "sync"
	CategoryGit       ErrorCategory = "git"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryDaemon   ErrorCategory = "daemon"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops the run
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Run continues, outcome carries the warning
)

// SyncError is a structured error with category, severity, and context
type SyncError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Stage    string        `json:"stage,omitempty"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for SyncError
type ContextFields map[string]any

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *SyncError) WithContext(key string, value any) *SyncError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// WithStage records the pipeline stage the error occurred in
func (e *SyncError) WithStage(stage string) *SyncError {
	e.Stage = stage
	return e
}

// New creates a new SyncError
func New(category ErrorCategory, severity ErrorSeverity, message string) *SyncError {
	return &SyncError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new SyncError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *SyncError {
	return &SyncError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// Fatal creates a new fatal SyncError
func Fatal(category ErrorCategory, message string) *SyncError {
	return New(category, SeverityFatal, message)
}

// WrapFatal creates a new fatal SyncError that wraps an existing error
func WrapFatal(err error, category ErrorCategory, message string) *SyncError {
	return Wrap(err, category, SeverityFatal, message)
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if se, ok := err.(*SyncError); ok {
		return se.Category == category
	}
	return false
}

// IsFatal reports whether an error carries fatal severity. Plain errors
// are treated as fatal so an unclassified failure never passes silently.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*SyncError); ok {
		return se.Severity == SeverityFatal
	}
	return true
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a SyncError
func GetCategory(err error) ErrorCategory {
	if se, ok := err.(*SyncError); ok {
		return se.Category
	}
	return CategoryInternal
}

// GetStage extracts the stage from an error, or "" if not recorded.
func GetStage(err error) string {
	if se, ok := err.(*SyncError); ok {
		return se.Stage
	}
	return ""
}
