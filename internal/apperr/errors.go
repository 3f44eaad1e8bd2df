// Package apperr defines the error taxonomy shared by every mapforge component
// and the process exit codes derived from it.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfig       = errors.New("configuration error")
	ErrMissingInput = errors.New("missing required input")
	ErrNotFound     = errors.New("not found")
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitInternal     = 1
	ExitConfig       = 2
	ExitMissingInput = 3
	ExitStepFailed   = 4
)

// StepError reports a planned command that ran and failed.
type StepError struct {
	Command  string
	Output   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step failed: %s", e.Command)
	switch {
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	case e.ExitCode != 0:
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, "\n--- STDERR ---\n%s", s)
	}
	return b.String()
}

func (e *StepError) Unwrap() error { return e.Err }

// Configf returns an error wrapping ErrConfig.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// MissingInputf returns an error wrapping ErrMissingInput.
func MissingInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMissingInput, fmt.Sprintf(format, args...))
}

// ExitCode maps err to the process exit status. Step failures take
// precedence over the sentinel they may wrap.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var stepErr *StepError
	switch {
	case errors.As(err, &stepErr):
		return ExitStepFailed
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, ErrMissingInput):
		return ExitMissingInput
	default:
		return ExitInternal
	}
}
