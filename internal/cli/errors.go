package cli

import (
	"errors"
	"fmt"

	"github.com/vk/dpgraph/internal/app"
)

// Exit codes.
const (
	ExitGeneral    = 1
	ExitConfig     = 2
	ExitValidation = 3
	ExitEvaluation = 4
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func configError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// runError classifies an error from a validate or release flow.
func runError(msg string, err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	if app.IsValidationError(err) {
		return &ExitError{Code: ExitValidation, Message: msg, Err: err}
	}
	return &ExitError{Code: ExitEvaluation, Message: msg, Err: err}
}
