// Package apperrors provides tests for application error types.
package apperrors

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfigError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		err         error
		expected    string
		checkTypeAs bool
	}{
		{
			name:     "Error returns message",
			err:      ConfigError{Message: "invalid flag value"},
			expected: "invalid flag value",
		},
		{
			name:     "NewConfigError creates formatted error",
			err:      NewConfigError("invalid value %g for flag %s", 2.5, "--max-amp-factor"),
			expected: "invalid value 2.5 for flag --max-amp-factor",
		},
		{
			name:        "ConfigError type assertion",
			err:         NewConfigError("test error"),
			expected:    "test error",
			checkTypeAs: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.err.Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, tt.err.Error())
			}
			if tt.checkTypeAs {
				var configErr ConfigError
				if !errors.As(tt.err, &configErr) {
					t.Error("expected error to be ConfigError type")
				}
			}
		})
	}
}

func TestExecutionError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		cause       error
		expectedMsg string
		checkIs     error
		checkUnwrap bool
	}{
		{
			name:        "Error returns cause message",
			cause:       errors.New("stream buffer overflow"),
			expectedMsg: "stream buffer overflow",
		},
		{
			name:        "Unwrap returns cause",
			cause:       errors.New("original error"),
			expectedMsg: "original error",
			checkUnwrap: true,
		},
		{
			name:        "errors.Is works with wrapped error",
			cause:       context.Canceled,
			expectedMsg: "context canceled",
			checkIs:     context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ExecutionError{Cause: tt.cause}
			if err.Error() != tt.expectedMsg {
				t.Errorf("expected %q, got %q", tt.expectedMsg, err.Error())
			}
			if tt.checkUnwrap && !errors.Is(err, tt.cause) {
				t.Error("Unwrap should expose the original cause")
			}
			if tt.checkIs != nil && !errors.Is(err, tt.checkIs) {
				t.Errorf("errors.Is(err, %v) should be true", tt.checkIs)
			}
		})
	}
}

func TestFitError(t *testing.T) {
	t.Parallel()
	t.Run("with qubit name", func(t *testing.T) {
		err := NewFitError("q1", "trace is flat (ptp %.3f)", 0.001)
		expected := `fit failed for qubit "q1": trace is flat (ptp 0.001)`
		if err.Error() != expected {
			t.Errorf("expected %q, got %q", expected, err.Error())
		}
	})
	t.Run("without qubit name", func(t *testing.T) {
		err := FitError{Reason: "too few points"}
		if err.Error() != "fit failed: too few points" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})
}

func TestTimeoutError(t *testing.T) {
	t.Parallel()
	err := TimeoutError{Operation: "power_rabi_ef", Limit: 100 * time.Second}
	expected := `operation "power_rabi_ef" timed out after 1m40s`
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
}

func TestStateNotFoundError(t *testing.T) {
	t.Parallel()
	t.Run("active snapshot", func(t *testing.T) {
		err := StateNotFoundError{}
		if err.Error() != "no active calibration snapshot in store" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})
	t.Run("by id", func(t *testing.T) {
		err := StateNotFoundError{ID: "abc"}
		if err.Error() != `calibration snapshot "abc" not found` {
			t.Errorf("unexpected message %q", err.Error())
		}
	})
}

func TestWrapError(t *testing.T) {
	t.Parallel()
	t.Run("nil error returns nil", func(t *testing.T) {
		if WrapError(nil, "context") != nil {
			t.Error("WrapError(nil) should return nil")
		}
	})
	t.Run("wrapped error unwraps to cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := WrapError(cause, "loading state from %q", "quam.json")
		if !errors.Is(err, cause) {
			t.Error("wrapped error should match cause with errors.Is")
		}
		expected := `loading state from "quam.json": boom`
		if err.Error() != expected {
			t.Errorf("expected %q, got %q", expected, err.Error())
		}
	})
}

func TestIsContextError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"canceled", context.Canceled, true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped canceled", WrapError(context.Canceled, "run"), true},
		{"other", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsContextError(tt.err); got != tt.want {
				t.Errorf("IsContextError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyExitCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"canceled", context.Canceled, ExitErrorCanceled},
		{"deadline", context.DeadlineExceeded, ExitErrorTimeout},
		{"config", NewConfigError("bad flag"), ExitErrorConfig},
		{"validation", ValidationError{Field: "shots", Message: "must be > 0"}, ExitErrorConfig},
		{"fit", NewFitError("q1", "flat trace"), ExitErrorFit},
		{"timeout type", TimeoutError{Operation: "execute", Limit: time.Second}, ExitErrorTimeout},
		{"generic", errors.New("boom"), ExitErrorGeneric},
		{"wrapped fit", WrapError(NewFitError("q2", "diverged"), "analysis"), ExitErrorFit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyExitCode(tt.err); got != tt.want {
				t.Errorf("ClassifyExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
