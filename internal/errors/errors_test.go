package errors

import (
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrmakeErrorError(t *testing.T) {
	testCases := []struct {
		name     string
		err      *PrmakeError
		expected string
	}{
		{
			name:     "code and message",
			err:      &PrmakeError{Type: ErrorTypeSyntax, Code: CodeNestedBlock, Message: "nested block"},
			expected: "[NESTED_BLOCK] nested block",
		},
		{
			name:     "with location",
			err:      NewSyntaxError(CodeMissingClose, "missing close", 12).WithLocation("Makefile.pr", 12),
			expected: "[MISSING_CLOSE] Makefile.pr:12: missing close",
		},
		{
			name:     "with cause",
			err:      NewExecutionError(CodeCommandFailed, "block failed", errors.New("exit status 2")),
			expected: "[COMMAND_FAILED] block failed: exit status 2",
		},
		{
			name:     "path without line",
			err:      NewProvenanceConflict("Makefile", "not generated by prmake"),
			expected: "[FOREIGN_OUTPUT] Makefile: not generated by prmake",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.err.Error())
		})
	}
}

func TestPrmakeErrorIs(t *testing.T) {
	err := NewSyntaxError(CodeNestedBlock, "nested block", 3)
	wrapped := fmt.Errorf("building: %w", err)

	assert.True(t, errors.Is(wrapped, &PrmakeError{Type: ErrorTypeSyntax, Code: CodeNestedBlock}))
	assert.False(t, errors.Is(wrapped, &PrmakeError{Type: ErrorTypeSyntax, Code: CodeMissingClose}))
}

func TestWithContext(t *testing.T) {
	err := NewExecutionError(CodeCommandFailed, "failed", nil).
		WithContext("command", "python").
		WithContext("exit_code", 2)

	assert.Equal(t, "python", err.Context["command"])
	assert.Equal(t, 2, err.Context["exit_code"])
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrorTypeIO, CodeReadFile, "read"))
	})

	t.Run("plain error becomes cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := Wrap(cause, ErrorTypeIO, CodeReadFile, "read failed")
		require.NotNil(t, err)
		assert.Equal(t, cause, err.Unwrap())
		assert.Equal(t, ErrorTypeIO, err.Type)
	})

	t.Run("location is preserved", func(t *testing.T) {
		inner := NewSyntaxError(CodeUnmatchedClose, "unmatched close", 7).WithLocation("a.pr", 7)
		err := Wrap(inner, ErrorTypeSyntax, CodeUnmatchedClose, "expand failed")
		assert.Equal(t, "a.pr", err.FilePath)
		assert.Equal(t, 7, err.Line)
	})
}

func TestIsType(t *testing.T) {
	conflict := NewProvenanceConflict("Makefile", "hand edited")
	wrapped := Wrap(conflict, ErrorTypeIO, CodePublish, "build failed")

	assert.True(t, IsType(conflict, ErrorTypeProvenance))
	assert.True(t, IsType(wrapped, ErrorTypeProvenance))
	assert.True(t, IsType(wrapped, ErrorTypeIO))
	assert.False(t, IsType(wrapped, ErrorTypeSyntax))
	assert.False(t, IsType(errors.New("plain"), ErrorTypeSyntax))
	assert.False(t, IsType(nil, ErrorTypeSyntax))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("anything")))
}

func TestChildExitCode(t *testing.T) {
	_, ok := ChildExitCode(errors.New("not a process"))
	assert.False(t, ok)

	err := exec.Command("sh", "-c", "exit 3").Run()
	code, ok := ChildExitCode(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	assert.Equal(t, 3, code)
}
