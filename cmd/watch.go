package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/prmake/internal/cliargs"
	"github.com/conneroisu/prmake/internal/config"
	"github.com/conneroisu/prmake/internal/discovery"
	"github.com/conneroisu/prmake/internal/executor"
	"github.com/conneroisu/prmake/internal/logging"
	"github.com/conneroisu/prmake/internal/services"
	"github.com/conneroisu/prmake/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] [-- make arguments]",
	Short: "Rebuild generated makefiles when their sources change",
	Long: `Build every generated makefile, then watch each prfile and every file
it includes, rebuilding whenever one of them changes. When make arguments
are given after "--", make is run after every successful rebuild.

Examples:
  prmake watch                     # Keep Makefile in sync with Makefile.pr
  prmake watch -- all              # Also run "make all" after each rebuild
  prmake watch --debounce 1s       # Wait for a second of quiet before rebuilding`,
	RunE: runWatch,
}

var (
	watchOpts     cliargs.Options
	watchDebounce time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchOpts.Bind(watchCmd.Flags())
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "quiet period before rebuilding (default from watch.debounce)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	watchOpts.Record(cmd.Flags())
	cfg, logger, err := setup(&watchOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("debounce") {
		cfg.Watch.Debounce = watchDebounce
	}

	pairs, err := discovery.Resolve(discoveryRequest(cfg))
	if errors.Is(err, discovery.ErrNoSource) {
		return fmt.Errorf("nothing to watch: %w", err)
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := &watchSession{
		out:       cmd.OutOrStdout(),
		logger:    logger.WithComponent("watch"),
		svc:       newBuildService(cmd, cfg, logger),
		tool:      newExecutor(cmd, cfg.Make, cfg.WorkDir),
		pairs:     pairs,
		buildOpts: buildOptions(cfg),
		makeArgs:  args,
	}
	return session.run(ctx, cfg)
}

// watchSession rebuilds a fixed set of pairs whenever a dependency changes.
type watchSession struct {
	out       io.Writer
	logger    logging.Logger
	svc       *services.BuildService
	tool      *executor.Executor
	pairs     []discovery.Pair
	buildOpts services.BuildOptions
	makeArgs  []string
}

func (s *watchSession) run(ctx context.Context, cfg *config.Config) error {
	fileWatcher, err := watcher.NewFileWatcher(cfg.Watch.Debounce, s.logger)
	if err != nil {
		return err
	}
	defer fileWatcher.Stop()

	fileWatcher.AddFilter(watcher.NoTempFilter)

	s.rebuild(ctx)
	if err := fileWatcher.Track(s.dependencies()); err != nil {
		return err
	}

	fileWatcher.AddHandler(func(events []watcher.ChangeEvent) error {
		for _, event := range events {
			fmt.Fprintf(s.out, "%s: %s\n", event.Type, event.Path)
		}
		s.rebuild(ctx)
		// Includes may have been added or removed.
		return fileWatcher.Track(s.dependencies())
	})

	if err := fileWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	fmt.Fprintf(s.out, "Watching %d file(s) for changes (Ctrl+C to stop)\n", len(fileWatcher.Tracked()))

	<-ctx.Done()
	fmt.Fprintln(s.out, "Stopping")
	return fileWatcher.Stop()
}

// rebuild builds every pair and runs make when asked to. Failures are
// reported and watching continues.
func (s *watchSession) rebuild(ctx context.Context) {
	opts := s.buildOpts
	opts.Started = func(pair discovery.Pair) {
		fmt.Fprintf(s.out, "Building: %s\n", pair.Output)
	}

	results, err := s.svc.BuildAll(ctx, s.pairs, opts)
	for _, result := range results {
		report(s.out, result)
	}
	if err != nil {
		fmt.Fprintf(s.out, "prmake: %v\n", err)
		return
	}

	if len(s.makeArgs) > 0 {
		if err := runExecutor(ctx, s.out, s.tool, discovery.Outputs(s.pairs), s.makeArgs); err != nil {
			fmt.Fprintf(s.out, "prmake: %v\n", err)
		}
	}
}

// dependencies returns every file the pairs depend on. Pairs whose status
// cannot be read contribute their source so that fixing it is noticed.
func (s *watchSession) dependencies() []string {
	var deps []string
	for _, pair := range s.pairs {
		status, err := s.svc.Status(pair, false)
		if err != nil || len(status.Dependencies) == 0 {
			deps = append(deps, pair.Source)
			continue
		}
		deps = append(deps, status.Dependencies...)
	}
	return deps
}
