// Package services holds the operations the command layer runs: building a
// generated makefile from its prfile and reporting whether that is needed.
package services

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/prmake/internal/discovery"
	prerrors "github.com/conneroisu/prmake/internal/errors"
	"github.com/conneroisu/prmake/internal/expander"
	"github.com/conneroisu/prmake/internal/logging"
	"github.com/conneroisu/prmake/internal/provenance"
	"github.com/conneroisu/prmake/internal/runner"
	"github.com/conneroisu/prmake/internal/version"
)

// BuildService regenerates makefiles from prfiles.
type BuildService struct {
	runner  runner.Runner
	logger  logging.Logger
	dir     string
	version string
}

// NewBuildService creates a build service that executes blocks with r and
// resolves includes against dir.
func NewBuildService(r runner.Runner, logger logging.Logger, dir string) *BuildService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &BuildService{
		runner:  r,
		logger:  logger.WithComponent("build"),
		dir:     dir,
		version: version.GetVersion(),
	}
}

// BuildOptions contains options for the build process
type BuildOptions struct {
	Force    bool
	KeepTemp bool
	TempDir  string
	Encoding string
	// Started, when set, is called once a pair is known to need rebuilding
	// and before any of its blocks run.
	Started func(pair discovery.Pair)
}

// BuildResult contains the result of a build operation
type BuildResult struct {
	Pair discovery.Pair
	// Built is set when a new output was published.
	Built    bool
	UpToDate bool
	// Skipped is set when there is no source and the existing output is used.
	Skipped      bool
	Reason       string
	Dependencies []string
	Notes        []string
	Duration     time.Duration
	RunID        string
}

// Build brings pair.Output up to date with pair.Source.
func (s *BuildService) Build(ctx context.Context, pair discovery.Pair, opts BuildOptions) (*BuildResult, error) {
	startTime := time.Now()
	result := &BuildResult{Pair: pair, RunID: uuid.NewString()}
	defer func() { result.Duration = time.Since(startTime) }()

	logger := s.logger.With("run_id", result.RunID, "source", pair.Source, "output", pair.Output)

	srcExists, err := exists(pair.Source)
	if err != nil {
		return result, err
	}
	if !srcExists {
		outExists, err := exists(pair.Output)
		if err != nil {
			return result, err
		}
		if !outExists {
			return result, prerrors.NewMissingDependencyError(pair.Source, nil).
				WithContext("output", pair.Output)
		}
		result.Skipped = true
		result.Reason = "no source"
		logger.Debug(ctx, "source missing, using existing output")
		return result, nil
	}

	lines, err := readLines(pair.Source)
	if err != nil {
		return result, err
	}

	exp, err := expander.New(s.runner, expander.Options{
		Dir:        s.dir,
		TempDir:    opts.TempDir,
		KeepTemp:   opts.KeepTemp,
		Encoding:   opts.Encoding,
		SourceName: pair.Source,
		Logger:     logger,
	})
	if err != nil {
		return result, err
	}

	result.Dependencies = append([]string{pair.Source}, exp.Dependencies(lines)...)
	staleness := provenance.Evaluate(pair.Output, result.Dependencies, opts.Force)
	result.Notes = staleness.Notes
	for _, missing := range staleness.Missing {
		logger.Warn(ctx, missing, "dependency missing, rebuilding")
	}
	if !staleness.Stale {
		result.UpToDate = true
		logger.Debug(ctx, "output is up to date")
		return result, nil
	}
	for _, note := range staleness.Notes {
		logger.Debug(ctx, "rebuild needed", "reason", note)
	}

	if err := provenance.Guard(pair.Output); err != nil {
		return result, err
	}
	if opts.Started != nil {
		opts.Started(pair)
	}

	op := logging.StartOperation(logger, "expand")
	body, err := exp.Expand(ctx, lines)
	if err != nil {
		op.EndWithError(ctx, err)
		return result, err
	}
	op.End(ctx)

	stamp := provenance.Stamp{Source: pair.Source, Version: s.version}
	if err := provenance.Publish(body, pair.Output, stamp); err != nil {
		return result, err
	}

	result.Built = true
	logger.Info(ctx, "generated makefile", "dependencies", len(result.Dependencies))
	return result, nil
}

// BuildAll builds each pair in order and stops at the first failure. Outputs
// published before the failure are kept.
func (s *BuildService) BuildAll(ctx context.Context, pairs []discovery.Pair, opts BuildOptions) ([]*BuildResult, error) {
	results := make([]*BuildResult, 0, len(pairs))
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := s.Build(ctx, pair, opts)
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// UpToDate reports whether pair.Output is current without building it.
func (s *BuildService) UpToDate(pair discovery.Pair, force bool) (bool, error) {
	status, err := s.Status(pair, force)
	if err != nil {
		return false, err
	}
	return !status.Stale, nil
}

// PairStatus describes a pair without changing anything on disk.
type PairStatus struct {
	Source       string   `json:"source"                 yaml:"source"`
	Output       string   `json:"output"                 yaml:"output"`
	SourceExists bool     `json:"source_exists"          yaml:"source_exists"`
	Ownership    string   `json:"ownership"              yaml:"ownership"`
	Stale        bool     `json:"stale"                  yaml:"stale"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Notes        []string `json:"notes,omitempty"        yaml:"notes,omitempty"`
}

// Status inspects pair. A pair without a source is never stale: its
// existing output, if any, is used as is.
func (s *BuildService) Status(pair discovery.Pair, force bool) (*PairStatus, error) {
	status := &PairStatus{Source: pair.Source, Output: pair.Output}

	ins, err := provenance.Inspect(pair.Output)
	if err != nil {
		return nil, err
	}
	status.Ownership = ins.Ownership.String()

	status.SourceExists, err = exists(pair.Source)
	if err != nil {
		return nil, err
	}
	if !status.SourceExists {
		if ins.Ownership == provenance.Missing {
			return nil, prerrors.NewMissingDependencyError(pair.Source, nil).
				WithContext("output", pair.Output)
		}
		status.Notes = []string{"no source, existing output is used"}
		return status, nil
	}

	lines, err := readLines(pair.Source)
	if err != nil {
		return nil, err
	}
	exp, err := expander.New(s.runner, expander.Options{Dir: s.dir})
	if err != nil {
		return nil, err
	}
	status.Dependencies = append([]string{pair.Source}, exp.Dependencies(lines)...)
	status.Stale, status.Notes = provenance.IsStale(pair.Output, status.Dependencies, force)
	return status, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, prerrors.WrapIO(err, prerrors.CodeReadFile, path)
	}
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, prerrors.WrapIO(err, prerrors.CodeReadFile, path)
	}
	return expander.SplitLines(string(data)), nil
}
