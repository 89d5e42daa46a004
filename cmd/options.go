package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/prmake/internal/cliargs"
	"github.com/conneroisu/prmake/internal/config"
	"github.com/conneroisu/prmake/internal/discovery"
	prerrors "github.com/conneroisu/prmake/internal/errors"
	"github.com/conneroisu/prmake/internal/logging"
	"github.com/conneroisu/prmake/internal/runner"
	"github.com/conneroisu/prmake/internal/services"
)

// initConfig initializes the configuration system.
//
// Configuration file, highest priority first:
//  1. --prconfig
//  2. the PRMAKE_CONFIG_FILE environment variable
//  3. .prmake.yml in the current directory, if present
//
// Every key can also be set through a PRMAKE_ environment variable, for
// example PRMAKE_MAKE=gmake or PRMAKE_WATCH_DEBOUNCE=1s.
func initConfig(cfgFile string) error {
	viper.Reset()

	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("PRMAKE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".prmake")
	}

	config.BindEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return nil
		}
		return prerrors.Wrap(err, prerrors.ErrorTypeConfig, prerrors.CodeInvalidValue, "cannot read configuration file")
	}
	return nil
}

// setup loads configuration, applies command line options over it and
// creates a logger writing to stderr.
func setup(opts *cliargs.Options, stderr io.Writer) (*config.Config, logging.Logger, error) {
	if err := initConfig(opts.ConfigFile); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	applyOptions(cfg, opts)
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  cfg.Level(),
		Format: "text",
		Output: stderr,
	})
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Debug(context.Background(), "using config file", "path", used)
	}
	return cfg, logger, nil
}

// applyOptions overrides configuration with the options given on the
// command line.
func applyOptions(cfg *config.Config, opts *cliargs.Options) {
	if opts.Changed("prforce") {
		cfg.Force = opts.Force
	}
	if opts.Changed("prkeep") {
		cfg.KeepTemp = opts.KeepTemp
	}
	if opts.Changed("prext") {
		cfg.Ext = opts.Ext
	}
	if opts.Changed("prencoding") {
		cfg.Encoding = opts.Encoding
	}
	if opts.Changed("prloglevel") {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.Changed("make") {
		cfg.Make = opts.Make
	}
	cfg.Prfiles = opts.Prfiles
	cfg.Makefiles = opts.Makefiles
}

func newBuildService(cmd *cobra.Command, cfg *config.Config, logger logging.Logger) *services.BuildService {
	r := runner.NewShellRunner(cfg.WorkDir)
	r.Stderr = cmd.ErrOrStderr()
	return services.NewBuildService(r, logger, cfg.WorkDir)
}

func discoveryRequest(cfg *config.Config) discovery.Request {
	return discovery.Request{
		Prfiles:   cfg.Prfiles,
		Makefiles: cfg.Makefiles,
		Ext:       cfg.Ext,
		Dir:       cfg.WorkDir,
	}
}

func buildOptions(cfg *config.Config) services.BuildOptions {
	return services.BuildOptions{
		Force:    cfg.Force,
		KeepTemp: cfg.KeepTemp,
		TempDir:  cfg.TempDir,
		Encoding: cfg.Encoding,
	}
}
