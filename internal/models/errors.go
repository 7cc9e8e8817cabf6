package models

import "fmt"

// ErrorType identifies the category of pipeline failure.
type ErrorType string

const (
	// Stage contract violations
	ErrPreconditionFailed  ErrorType = "precondition_failed"
	ErrPostconditionFailed ErrorType = "postcondition_failed"

	// Container lifecycle
	ErrBuildFailed   ErrorType = "build_failed"
	ErrConvertFailed ErrorType = "convert_failed"

	// Stage execution
	ErrCommandFailed   ErrorType = "command_failed"
	ErrTransportFailed ErrorType = "transport_failed"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// StageError is a fatal pipeline failure tied to a named stage or container.
// Path carries the implicated input, output, artifact, or URL.
type StageError struct {
	Type  ErrorType
	Stage string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: stage %q: %s: %s", e.Type, e.Stage, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: stage %q: %s", e.Type, e.Stage, e.Path)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
