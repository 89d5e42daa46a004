package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/prmake/internal/cliargs"
	"github.com/conneroisu/prmake/internal/discovery"
	"github.com/conneroisu/prmake/internal/services"
)

var (
	statusFormat string
	statusOpts   cliargs.Options
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether generated makefiles are up to date",
	Long: `Report, for every prfile/makefile pair, whether the makefile would be
rebuilt, who owns it and which files it depends on. Nothing is written.

The pairs are chosen exactly as for a normal run, so --prfile, --file and
--prext work here too.

Examples:
  prmake status
  prmake status --format json
  prmake status --file=gen.mk --format yaml`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusOpts.Bind(statusCmd.Flags())
	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "Output format (text, json, yaml)")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	statusOpts.Record(cmd.Flags())
	switch statusFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json, yaml)", statusFormat)
	}

	cfg, logger, err := setup(&statusOpts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	pairs, err := discovery.Resolve(discoveryRequest(cfg))
	if err != nil && !errors.Is(err, discovery.ErrNoSource) {
		return err
	}

	svc := newBuildService(cmd, cfg, logger)
	statuses := make([]*services.PairStatus, 0, len(pairs))
	for _, pair := range pairs {
		status, err := svc.Status(pair, cfg.Force)
		if err != nil {
			return err
		}
		statuses = append(statuses, status)
	}

	return writeStatus(cmd.OutOrStdout(), statusFormat, cfg.Ext, statuses)
}

func writeStatus(w io.Writer, format, ext string, statuses []*services.PairStatus) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(statuses)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(statuses); err != nil {
			return err
		}
		return encoder.Close()
	}

	if len(statuses) == 0 {
		_, err := fmt.Fprintf(w, "no GNUmakefile%[1]s, makefile%[1]s or Makefile%[1]s found\n", ext)
		return err
	}
	for _, s := range statuses {
		state := "up to date"
		switch {
		case !s.SourceExists:
			state = "no source"
		case s.Stale:
			state = "stale"
		}
		fmt.Fprintf(w, "%s -> %s: %s (%s)\n", s.Source, s.Output, state, s.Ownership)
		if len(s.Dependencies) > 0 {
			fmt.Fprintf(w, "  depends on: %s\n", strings.Join(s.Dependencies, ", "))
		}
		for _, note := range s.Notes {
			fmt.Fprintf(w, "  %s\n", note)
		}
	}
	return nil
}
