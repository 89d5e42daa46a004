// Package runner executes a code block's interpreter and captures its output.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Runner executes command with scriptPath appended and returns its stdout.
// A child that exits non-zero must be reported as an error.
type Runner interface {
	Run(ctx context.Context, command, scriptPath string) ([]byte, error)
}

// ShellRunner runs block commands through the platform shell, so a command
// such as "python3 -u" or "/usr/bin/env gawk -f" works as written.
type ShellRunner struct {
	// Dir is the working directory of the child. Empty means the current one.
	Dir string
	// Stderr receives the child's standard error. Nil means os.Stderr.
	Stderr io.Writer
	// Env is the child's environment. Nil inherits the parent's.
	Env []string
}

// NewShellRunner creates a runner executing in dir.
func NewShellRunner(dir string) *ShellRunner {
	return &ShellRunner{Dir: dir}
}

// Run executes "<command> <scriptPath>" and waits for it to finish.
func (r *ShellRunner) Run(ctx context.Context, command, scriptPath string) ([]byte, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("empty command")
	}

	name, args := shellCommand(command + " " + quote(scriptPath))
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Env = r.Env

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s cancelled: %w", command, ctx.Err())
		}
		return nil, fmt.Errorf("%s failed: %w", command, err)
	}

	return stdout.Bytes(), nil
}

func shellCommand(line string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", line}
	}
	return "/bin/sh", []string{"-c", line}
}

// quote protects a path from shell word splitting.
func quote(path string) string {
	if runtime.GOOS == "windows" {
		return `"` + path + `"`
	}
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// Verify that ShellRunner implements the Runner interface.
var _ Runner = (*ShellRunner)(nil)
