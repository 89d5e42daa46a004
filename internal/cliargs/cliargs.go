// Package cliargs separates prmake's own options from the arguments that are
// forwarded to the build tool.
//
// prmake options start with "--pr" (or "-pr"). The makefile selectors -f,
// --file= and --makefile= are shared with make: they name the generated files
// and are re-added when make runs. --make= picks the build tool and -h asks
// for help. All other arguments are forwarded unchanged and in order.
package cliargs

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"

	prerrors "github.com/conneroisu/prmake/internal/errors"
)

// Options holds the parsed command line.
type Options struct {
	Force      bool
	KeepTemp   bool
	Ext        string
	Prfiles    []string
	Makefiles  []string
	Make       string
	Encoding   string
	ConfigFile string
	LogLevel   string
	Help       bool

	// MakeArgs are forwarded to the build tool verbatim.
	MakeArgs []string

	changed map[string]bool
}

// Changed reports whether the named option was given on the command line.
func (o *Options) Changed(name string) bool {
	return o.changed[name]
}

// Parse splits and parses args, which exclude the program name.
func Parse(args []string) (*Options, error) {
	opts := &Options{changed: make(map[string]bool)}

	var own []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			opts.MakeArgs = append(opts.MakeArgs, args[i+1:]...)
			i = len(args)
		case strings.HasPrefix(arg, "--pr"):
			own = append(own, arg)
		case strings.HasPrefix(arg, "-pr"):
			own = append(own, "-"+arg)
		case strings.HasPrefix(arg, "--make="):
			own = append(own, arg)
		case arg == "-h":
			opts.Help = true
		case arg == "-f":
			if i+1 >= len(args) {
				return nil, prerrors.NewUsageError(prerrors.CodeInvalidValue, "option -f requires a file name")
			}
			own = append(own, "--file="+args[i+1])
			i++
		case strings.HasPrefix(arg, "--file="):
			own = append(own, arg)
		case strings.HasPrefix(arg, "--makefile="):
			own = append(own, "--file="+strings.TrimPrefix(arg, "--makefile="))
		default:
			opts.MakeArgs = append(opts.MakeArgs, arg)
		}
	}

	fs := newFlagSet(opts)
	if err := fs.Parse(own); err != nil {
		return nil, prerrors.Wrap(err, prerrors.ErrorTypeUsage, prerrors.CodeUnknownOption, "invalid prmake option")
	}
	if extra := fs.Args(); len(extra) > 0 {
		return nil, prerrors.NewUsageError(prerrors.CodeInvalidValue,
			fmt.Sprintf("unexpected value %q; prmake options take the form --prname=value", extra[0]))
	}

	opts.Record(fs)

	return opts, nil
}

func newFlagSet(opts *Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("prmake", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts.Bind(fs)
	return fs
}

// Bind registers prmake's options on fs, storing their values in o.
// Subcommands use it to accept the same options as the default action.
func (o *Options) Bind(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Force, "prforce", false, "rebuild the generated makefile even when it is up to date")
	fs.BoolVar(&o.KeepTemp, "prkeep", false, "keep temporary block files and print their locations")
	fs.StringVar(&o.Ext, "prext", "", `extension of prfiles (default ".pr")`)
	fs.StringArrayVar(&o.Prfiles, "prfile", nil, "prfile to process; may be repeated")
	fs.StringVar(&o.Encoding, "prencoding", "", `character set of block output (default "utf-8")`)
	fs.StringVar(&o.ConfigFile, "prconfig", "", "configuration file (default .prmake.yml)")
	fs.StringVar(&o.LogLevel, "prloglevel", "", "log level (debug, info, warn, error)")
	fs.StringVar(&o.Make, "make", "", `build tool to run (default "make")`)
	fs.StringArrayVar(&o.Makefiles, "file", nil, "generated makefile; may be repeated")
}

// Record marks the options set on fs as changed, replacing any earlier record.
func (o *Options) Record(fs *pflag.FlagSet) {
	o.changed = make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) { o.changed[f.Name] = true })
}

// Usage describes the options Parse understands.
func Usage() string {
	var b strings.Builder
	b.WriteString("prmake options (all other arguments are passed to make):\n")
	b.WriteString("  -f <Makefile>, --file=<Makefile>, --makefile=<Makefile>\n")
	b.WriteString("                        generated makefile; the prfile is <Makefile><ext>\n")
	fs := newFlagSet(&Options{})
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "file" {
			return
		}
		fmt.Fprintf(&b, "  --%-20s %s\n", f.Name, f.Usage)
	})
	b.WriteString("  -h                     show this help\n")
	return b.String()
}
