package apperrors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Application exit codes define the standard exit statuses for the application.
// These codes are used to signal the outcome of the program execution to the OS.
const (
	ExitSuccess       = 0   // Indicates successful execution.
	ExitErrorGeneric  = 1   // Indicates a generic error.
	ExitErrorTimeout  = 2   // Indicates the operation timed out.
	ExitErrorFit      = 3   // Indicates a data analysis (fit) failure.
	ExitErrorConfig   = 4   // Indicates a configuration error.
	ExitErrorCanceled = 130 // Indicates the operation was canceled (e.g., SIGINT).
)

// ConfigError represents a user configuration error, such as invalid flags or
// values. It indicates that the application cannot proceed due to incorrect user input.
type ConfigError struct {
	// Message explains the specific configuration error.
	Message string
}

// Error returns the error message for a ConfigError.
func (e ConfigError) Error() string { return e.Message }

// NewConfigError creates a new ConfigError with a formatted message.
//
// Parameters:
//   - format: A format string (see fmt.Sprintf).
//   - a: Arguments to be formatted into the string.
//
// Returns:
//   - error: A new ConfigError instance containing the formatted message.
func NewConfigError(format string, a ...any) error {
	return ConfigError{Message: fmt.Sprintf(format, a...)}
}

// ExecutionError encapsulates a failure while executing a pulse program on the
// control system, preserving the original cause. This allows for structured
// error handling and inspection of what went wrong during the run.
type ExecutionError struct {
	// Cause is the underlying error reported by the driver.
	Cause error
}

// Error returns the error message from the underlying cause.
func (e ExecutionError) Error() string { return e.Cause.Error() }

// Unwrap returns the original wrapped error, allowing for error chain
// inspection (e.g., using errors.Is or errors.As).
func (e ExecutionError) Unwrap() error { return e.Cause }

// FitError represents a data analysis failure for a single qubit: the measured
// trace could not be described by the node's physical model.
type FitError struct {
	// Qubit is the name of the qubit whose trace failed to fit.
	Qubit string
	// Reason explains why the fit was rejected.
	Reason string
}

// Error returns a formatted message describing the fit failure.
func (e FitError) Error() string {
	if e.Qubit == "" {
		return fmt.Sprintf("fit failed: %s", e.Reason)
	}
	return fmt.Sprintf("fit failed for qubit %q: %s", e.Qubit, e.Reason)
}

// NewFitError creates a FitError for the given qubit with a formatted reason.
func NewFitError(qubit, format string, a ...any) error {
	return FitError{Qubit: qubit, Reason: fmt.Sprintf(format, a...)}
}

// TimeoutError represents an execution timeout. It captures the operation
// name and the duration limit that was exceeded.
type TimeoutError struct {
	// Operation is the name of the operation that timed out.
	Operation string
	// Limit is the duration after which the operation was considered timed out.
	Limit time.Duration
}

// Error returns a formatted message describing the timeout.
func (e TimeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out after %s", e.Operation, e.Limit)
}

// ValidationError represents an input validation failure. It identifies which
// field failed validation and provides a human-readable explanation.
type ValidationError struct {
	// Field is the name of the field that failed validation.
	Field string
	// Message explains the validation failure.
	Message string
}

// Error returns a formatted message describing the validation failure.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for %q: %s", e.Field, e.Message)
}

// StateNotFoundError indicates that a requested calibration snapshot does not
// exist in the store (e.g., an empty store or an unknown version id).
type StateNotFoundError struct {
	// ID is the requested snapshot id; empty when the active snapshot was requested.
	ID string
}

// Error returns a formatted message describing the missing snapshot.
func (e StateNotFoundError) Error() string {
	if e.ID == "" {
		return "no active calibration snapshot in store"
	}
	return fmt.Sprintf("calibration snapshot %q not found", e.ID)
}

// WrapError wraps an error with additional context using fmt.Errorf and %w.
// This allows the wrapped error to be unwrapped with errors.Unwrap() and
// checked with errors.Is() and errors.As().
func WrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsContextError checks if the error is a context cancellation or deadline exceeded error.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ClassifyExitCode maps an error to the application exit code that best
// describes it. A nil error maps to ExitSuccess.
func ClassifyExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ExitErrorCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ExitErrorTimeout
	}
	var (
		cfgErr ConfigError
		valErr ValidationError
		fitErr FitError
		toErr  TimeoutError
	)
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &valErr):
		return ExitErrorConfig
	case errors.As(err, &fitErr):
		return ExitErrorFit
	case errors.As(err, &toErr):
		return ExitErrorTimeout
	}
	return ExitErrorGeneric
}
