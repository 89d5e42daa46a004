// Package executor invokes the downstream build tool on generated files.
package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	prerrors "github.com/conneroisu/prmake/internal/errors"
)

// Executor runs the build tool with stdio attached to the given streams.
type Executor struct {
	// Make is the executable, optionally followed by its own arguments.
	Make   string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// New creates an executor for the named build tool using the process's stdio.
func New(makeCmd string) *Executor {
	return &Executor{
		Make:   makeCmd,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Command returns the argument vector for running the build tool on
// makefiles with the forwarded args.
func (e *Executor) Command(makefiles, args []string) []string {
	argv := strings.Fields(e.Make)
	for _, m := range makefiles {
		argv = append(argv, "-f", m)
	}
	return append(argv, args...)
}

// Run executes the build tool and returns its exit status. The error is
// non-nil only when the tool could not be run at all.
func (e *Executor) Run(ctx context.Context, makefiles, args []string) (int, error) {
	argv := e.Command(makefiles, args)
	if len(argv) == 0 {
		return prerrors.ExitFailure, prerrors.NewConfigError(prerrors.CodeInvalidValue, "make executable cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.Dir
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if code, ok := prerrors.ChildExitCode(err); ok && code >= 0 {
		return code, nil
	}
	return prerrors.ExitFailure, prerrors.NewExecutionError(prerrors.CodeCommandFailed,
		fmt.Sprintf("cannot run %s", argv[0]), err)
}
