// Package errors defines the structured error types used across prmake.
//
// Every fatal condition surfaces as a *PrmakeError carrying an ErrorType, so
// the command layer can classify failures and pick an exit status without
// string matching.
package errors

import (
	"errors"
	"os/exec"
)

// ExitFailure is the process status for any fatal preprocessing error.
const ExitFailure = 1

// Wrap wraps an error with additional context, creating a PrmakeError if the input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *PrmakeError {
	if err == nil {
		return nil
	}

	var pe *PrmakeError
	if errors.As(err, &pe) {
		return &PrmakeError{
			Type:     errType,
			Code:     code,
			Message:  message,
			Cause:    pe,
			Context:  pe.Context,
			FilePath: pe.FilePath,
			Line:     pe.Line,
		}
	}

	return &PrmakeError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WrapIO wraps an error as an IO error for the given path.
func WrapIO(err error, code, path string) *PrmakeError {
	pe := Wrap(err, ErrorTypeIO, code, "i/o failure")
	if pe != nil {
		pe.FilePath = path
	}
	return pe
}

// ExitCode maps an error to the process status prmake should exit with.
// A nil error is success. Every other error is ExitFailure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return ExitFailure
}

// ChildExitCode extracts the exit status of a child process from err.
// It reports false when err did not come from a process that ran and exited.
func ChildExitCode(err error) (int, bool) {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), true
	}
	return 0, false
}
