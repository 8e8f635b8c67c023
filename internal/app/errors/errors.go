package errors

import (
	"fmt"
)

// Common error kinds surfaced by the pipeline
var (
	// Model and warm-up errors
	ErrModelNotFound = New("model not found")
	ErrWarmUpFailed  = New("model warm-up failed")

	// Engine cache errors
	ErrCacheCreationFailed = New("engine creation failed")

	// Recording session errors
	ErrEmptyRecording  = New("recording is empty")
	ErrStagingIO       = New("staging file IO failed")
	ErrSessionFinished = New("recording session already finished")
	ErrNotRecording    = New("session is not recording")

	// Strategy selection errors
	ErrStrategyMismatch = New("forced strategy unsatisfiable")

	// Refinement errors (non-fatal, recovered per window)
	ErrRefinementTimeout = New("refinement pass timed out")

	// External backend errors
	ErrExternalBackend = New("external transcription backend failed")
)

// Error represents a standardized error
type Error struct {
	message string
	cause   error
}

// New creates a new error
func New(message string) *Error {
	return &Error{message: message}
}

// Newf creates a new formatted error
func Newf(format string, args ...interface{}) *Error {
	return &Error{message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		message: message,
		cause:   err,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{
		message: fmt.Sprintf(format, args...),
		cause:   err,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// Is checks if the error matches target
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.message == t.message
}
