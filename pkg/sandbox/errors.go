package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInterpreter is returned when the default interpreter is not an absolute path
	ErrInvalidInterpreter = errors.New("invalid interpreter (must be an absolute path)")

	// ErrInvalidTimeout is returned when a timeout is invalid
	ErrInvalidTimeout = errors.New("invalid timeout (must be >= 0 and default <= max)")

	// ErrEmptyScript is returned when a request carries no script body
	ErrEmptyScript = errors.New("script body is empty")

	// ErrStageFailed is returned when the script cannot be written to disk
	ErrStageFailed = errors.New("failed to stage script")

	// ErrStartFailed is returned when the interpreter cannot be started
	ErrStartFailed = errors.New("failed to start script")

	// ErrExecutionTimeout is returned when execution times out
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrExecutionCanceled is returned when the caller's context ends first
	ErrExecutionCanceled = errors.New("execution canceled")
)

// ExitError is returned when a script exits with a non-zero code
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("script execution failed with exit code %d: %s", e.ExitCode, e.Stderr)
}
