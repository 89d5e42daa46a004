package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/prmake/internal/cliargs"
	"github.com/conneroisu/prmake/internal/discovery"
	prerrors "github.com/conneroisu/prmake/internal/errors"
	"github.com/conneroisu/prmake/internal/executor"
	"github.com/conneroisu/prmake/internal/services"
)

// rootCmd represents the base command when called without any subcommands.
// It parses its own arguments so that everything prmake does not recognise
// reaches make untouched.
var rootCmd = &cobra.Command{
	Use:   "prmake [prmake options] [make arguments]",
	Short: "Preprocess Makefile.pr into Makefile, then run make",
	Long: `prmake processes a prfile (usually called "Makefile.pr") and creates a
post-processed Makefile (usually called "Makefile"), then invokes make on it.

A prfile is an ordinary makefile with three extra line directives:

  #begincode <command>   start a block; its lines are written to a temporary
                         file and "<command> <file>" is run
  #includecode <file>    inside a block, insert the contents of <file>
  #endcode               end the block; the command's standard output
                         replaces the block in the generated makefile

The generated makefile is only rebuilt when the prfile or an included file is
newer, and prmake refuses to overwrite a makefile it did not generate or that
has been edited by hand.

Subcommands (use "prmake -- <name>" to run a make target with the same name):
  status    report whether each generated makefile is up to date
  watch     rebuild whenever a prfile or included file changes
  version   show version information`,
	DisableFlagParsing: true,
	Args:               cobra.ArbitraryArgs,
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE:               runMake,
}

// exitStatus carries a status the process should exit with after output
// has already been written.
type exitStatus struct {
	code int
}

func (e *exitStatus) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	// Leave "prmake help" to make's own help target.
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	return execute(rootCmd, os.Args[1:])
}

// execute runs root with args. A nil args runs with no arguments rather
// than cobra's fallback to os.Args.
func execute(root *cobra.Command, args []string) int {
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return 0
	}

	var status *exitStatus
	if errors.As(err, &status) {
		return status.code
	}

	fmt.Fprintf(root.ErrOrStderr(), "prmake: %v\n", err)
	if prerrors.IsType(err, prerrors.ErrorTypeUsage) {
		fmt.Fprint(root.ErrOrStderr(), "\n"+cliargs.Usage())
	}
	return prerrors.ExitCode(err)
}

func runMake(cmd *cobra.Command, args []string) error {
	opts, err := cliargs.Parse(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Help {
		fmt.Fprintf(out, "%s\n\nUsage: %s\n\n%s", cmd.Long, cmd.Use, cliargs.Usage())
		return nil
	}

	cfg, logger, err := setup(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	tool := newExecutor(cmd, cfg.Make, cfg.WorkDir)

	pairs, err := discovery.Resolve(discoveryRequest(cfg))
	if errors.Is(err, discovery.ErrNoSource) {
		fmt.Fprintf(out, "no GNUmakefile%[1]s, makefile%[1]s or Makefile%[1]s found, invoking ordinary make instead...\n", cfg.Ext)
		return runExecutor(ctx, out, tool, nil, opts.MakeArgs)
	}
	if err != nil {
		return err
	}

	svc := newBuildService(cmd, cfg, logger)
	buildOpts := buildOptions(cfg)
	buildOpts.Started = func(pair discovery.Pair) {
		fmt.Fprintf(out, "Building: %s\n", pair.Output)
	}

	for _, pair := range pairs {
		result, err := svc.Build(ctx, pair, buildOpts)
		if err != nil {
			return err
		}
		report(out, result)
	}

	return runExecutor(ctx, out, tool, discovery.Outputs(pairs), opts.MakeArgs)
}

// report prints the outcome of a build that did not publish anything.
func report(w io.Writer, result *services.BuildResult) {
	switch {
	case result.Skipped:
		fmt.Fprintf(w, "No %s, so not rebuilding %s\n", result.Pair.Source, result.Pair.Output)
	case result.UpToDate:
		fmt.Fprintf(w, "%s is up to date\n", result.Pair.Output)
	}
}

func newExecutor(cmd *cobra.Command, makeCmd, dir string) *executor.Executor {
	e := executor.New(makeCmd)
	e.Dir = dir
	e.Stdin = cmd.InOrStdin()
	e.Stdout = cmd.OutOrStdout()
	e.Stderr = cmd.ErrOrStderr()
	return e
}

// runExecutor runs make and turns a non-zero status into an exitStatus.
func runExecutor(ctx context.Context, out io.Writer, e *executor.Executor, makefiles, args []string) error {
	fmt.Fprintf(out, "Running: %s\n", strings.Join(e.Command(makefiles, args), " "))
	code, err := e.Run(ctx, makefiles, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return &exitStatus{code: code}
	}
	return nil
}
