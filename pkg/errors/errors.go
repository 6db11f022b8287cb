// Package errors provides structured error types for pyshim.
//
// Every failure the core can report carries a [Code] so callers (the CLI and
// the shim entry point) can decide how to present it without string matching:
//
//   - INVALID_REQUIREMENT: a requirement line could not be parsed
//   - NO_REQUIREMENT_FOUND: no .python-version and no global default
//   - TOOLCHAIN_NOT_INSTALLED: nothing installed satisfies the requirement
//   - UNKNOWN_SHIM_TARGET: the shim was invoked under an unrecognised name
//   - BINARY_MISSING: the toolchain lacks the requested command
//   - STAGE_FAILED: an install pipeline stage exited non-zero
//   - IO: otherwise-unclassified filesystem or process-spawn failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidRequirement, "invalid requirement %q", text)
//	if errors.Is(err, errors.ErrCodeInvalidRequirement) {
//	    // Handle parse error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeIO, origErr, "read %s", path)
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the resolution, dispatch, and install paths.
const (
	// Resolution errors
	ErrCodeInvalidRequirement    Code = "INVALID_REQUIREMENT"
	ErrCodeNoRequirementFound    Code = "NO_REQUIREMENT_FOUND"
	ErrCodeToolchainNotInstalled Code = "TOOLCHAIN_NOT_INSTALLED"

	// Shim errors
	ErrCodeUnknownShimTarget Code = "UNKNOWN_SHIM_TARGET"
	ErrCodeBinaryMissing     Code = "BINARY_MISSING"

	// Pipeline errors
	ErrCodeStageFailed Code = "STAGE_FAILED"

	// Generic errors
	ErrCodeIO       Code = "IO"
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeNetwork  Code = "NETWORK"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error or *StageError with a matching code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the chain holds no coded error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var se *StageError
	if errors.As(err, &se) {
		return ErrCodeStageFailed
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message (and cause) without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s", e.Message, UserMessage(e.Cause))
		}
		return e.Message
	}
	return err.Error()
}

// StageError reports an install pipeline stage whose external process
// exited with a non-zero status.
type StageError struct {
	Stage      string   // Pipeline stage name (e.g. "make")
	ExitStatus int      // Exit status of the stage's process
	OutputTail []string // Last captured output lines, oldest first
}

// Error implements the error interface.
func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: stage %s exited with status %d", ErrCodeStageFailed, e.Stage, e.ExitStatus)
	if len(e.OutputTail) == 0 {
		return msg
	}
	return msg + "\n" + strings.Join(e.OutputTail, "\n")
}

// StageFailed creates a StageError.
func StageFailed(stage string, status int, tail []string) *StageError {
	return &StageError{Stage: stage, ExitStatus: status, OutputTail: tail}
}
