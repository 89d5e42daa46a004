// Package config provides configuration management for prmake using Viper
// for loading from a YAML file, PRMAKE_ environment variables, and
// command-line options.
//
// Precedence, highest first: command-line options, environment variables,
// the configuration file (.prmake.yml unless overridden), built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	prerrors "github.com/conneroisu/prmake/internal/errors"
	"github.com/conneroisu/prmake/internal/logging"
)

// Defaults.
const (
	DefaultExt      = ".pr"
	DefaultMake     = "make"
	DefaultEncoding = "utf-8"
	DefaultDebounce = 300 * time.Millisecond
)

// EnvPrefix prefixes the environment variable of every key, so that
// watch.debounce is read from PRMAKE_WATCH_DEBOUNCE.
const EnvPrefix = "PRMAKE"

// Keys lists the configuration keys prmake reads.
var Keys = []string{"force", "keep_temp", "ext", "make", "encoding", "temp_dir", "log_level", "watch.debounce"}

type Config struct {
	Force    bool        `mapstructure:"force" yaml:"force"`
	KeepTemp bool        `mapstructure:"keep_temp" yaml:"keep_temp"`
	Ext      string      `mapstructure:"ext" yaml:"ext"`
	Make     string      `mapstructure:"make" yaml:"make"`
	Encoding string      `mapstructure:"encoding" yaml:"encoding"`
	TempDir  string      `mapstructure:"temp_dir" yaml:"temp_dir"`
	LogLevel string      `mapstructure:"log_level" yaml:"log_level"`
	Watch    WatchConfig `mapstructure:"watch" yaml:"watch"`

	// Set from the command line only.
	WorkDir   string   `mapstructure:"-" yaml:"-"`
	Prfiles   []string `mapstructure:"-" yaml:"-"`
	Makefiles []string `mapstructure:"-" yaml:"-"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// BindEnv makes every key settable from the environment, including keys
// that appear in no configuration file.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range Keys {
		_ = viper.BindEnv(key)
	}
}

// Load reads the configuration viper has collected and applies defaults.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, prerrors.Wrap(err, prerrors.ErrorTypeConfig, prerrors.CodeInvalidValue, "cannot decode configuration")
	}

	// Handle booleans set via environment (viper only reports them through Get)
	if viper.IsSet("force") {
		config.Force = viper.GetBool("force")
	}
	if viper.IsSet("keep_temp") {
		config.KeepTemp = viper.GetBool("keep_temp")
	}

	if config.Ext == "" {
		config.Ext = DefaultExt
	}
	if config.Make == "" {
		config.Make = DefaultMake
	}
	if config.Encoding == "" {
		config.Encoding = DefaultEncoding
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Watch.Debounce == 0 {
		config.Watch.Debounce = DefaultDebounce
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks configuration values.
func Validate(config *Config) error {
	if config.Ext == "" || strings.ContainsAny(config.Ext, `/\`) {
		return prerrors.NewConfigError(prerrors.CodeInvalidValue,
			fmt.Sprintf("ext %q must be a non-empty file name suffix", config.Ext))
	}

	if strings.TrimSpace(config.Make) == "" {
		return prerrors.NewConfigError(prerrors.CodeInvalidValue, "make executable cannot be empty")
	}

	if _, err := logging.ParseLevel(config.LogLevel); err != nil {
		return prerrors.NewConfigError(prerrors.CodeInvalidValue, err.Error())
	}

	if config.Watch.Debounce < 0 {
		return prerrors.NewConfigError(prerrors.CodeInvalidValue,
			fmt.Sprintf("watch.debounce must not be negative, got %s", config.Watch.Debounce))
	}

	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logging.LogLevel {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}
