// Package expander turns an annotated prfile into plain build-file text.
//
// Text outside code blocks is copied unchanged. The body of each block is
// written to a temporary file, run through the block's interpreter, and the
// interpreter's standard output replaces the block. Blocks run one at a time,
// in source order, each to completion before scanning continues.
package expander

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/conneroisu/prmake/internal/directive"
	prerrors "github.com/conneroisu/prmake/internal/errors"
	"github.com/conneroisu/prmake/internal/logging"
	"github.com/conneroisu/prmake/internal/runner"
)

// Options controls expansion.
type Options struct {
	// Dir resolves relative include paths. Empty means the current directory.
	Dir string
	// TempDir holds block scripts. Empty means os.TempDir().
	TempDir string
	// KeepTemp leaves block scripts on disk and logs where they are.
	KeepTemp bool
	// Encoding names the charset of interpreter output. Empty means utf-8.
	Encoding string
	// SourceName labels error locations.
	SourceName string
	Logger     logging.Logger
}

// Expander expands prfile lines.
type Expander struct {
	runner  runner.Runner
	opts    Options
	logger  logging.Logger
	decoder *encoding.Decoder
}

// block is the code block currently being accumulated.
type block struct {
	command string
	line    int
	body    strings.Builder
}

// New creates an expander that executes blocks with r.
func New(r runner.Runner, opts Options) (*Expander, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	e := &Expander{
		runner: r,
		opts:   opts,
		logger: logger.WithComponent("expander"),
	}

	if !isUTF8(opts.Encoding) {
		enc, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			return nil, prerrors.NewConfigError(prerrors.CodeInvalidValue,
				fmt.Sprintf("unknown output encoding %q", opts.Encoding))
		}
		e.decoder = enc.NewDecoder()
	}

	return e, nil
}

func isUTF8(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// Dependencies returns the include files named anywhere in lines, resolved
// against Options.Dir.
func (e *Expander) Dependencies(lines []string) []string {
	names := directive.Includes(lines)
	deps := make([]string, len(names))
	for i, name := range names {
		deps[i] = e.resolve(name)
	}
	return deps
}

// Expand processes lines, each carrying its own terminator, and returns the
// expanded text. On error no partial text is returned.
func (e *Expander) Expand(ctx context.Context, lines []string) (string, error) {
	var out strings.Builder
	var current *block

	for i, line := range lines {
		lineNum := i + 1
		d, ok := directive.Parse(line)
		if !ok {
			if current != nil {
				current.body.WriteString(line)
			} else {
				out.WriteString(line)
			}
			continue
		}

		switch d.Kind {
		case directive.KindOpen:
			if current != nil {
				return "", e.syntaxError(prerrors.CodeNestedBlock,
					fmt.Sprintf("nested %s (block opened at line %d)", directive.OpenMarker, current.line), lineNum)
			}
			if d.Arg == "" {
				return "", e.syntaxError(prerrors.CodeMissingCommand,
					fmt.Sprintf("missing command in %s", directive.OpenMarker), lineNum)
			}
			current = &block{command: d.Arg, line: lineNum}

		case directive.KindClose:
			if current == nil {
				return "", e.syntaxError(prerrors.CodeUnmatchedClose,
					fmt.Sprintf("%s without matching %s", directive.CloseMarker, directive.OpenMarker), lineNum)
			}
			text, err := e.execute(ctx, current)
			if err != nil {
				return "", err
			}
			out.WriteString(text)
			current = nil

		case directive.KindInclude:
			if current == nil {
				// Outside a block an include is ordinary text.
				out.WriteString(line)
				continue
			}
			if err := e.include(ctx, current, d, lineNum); err != nil {
				return "", err
			}
		}
	}

	if current != nil {
		return "", e.syntaxError(prerrors.CodeMissingClose,
			fmt.Sprintf("missing %s for block opened at line %d", directive.CloseMarker, current.line), len(lines))
	}

	return out.String(), nil
}

func (e *Expander) include(ctx context.Context, b *block, d directive.Directive, lineNum int) error {
	if d.Arg == "" {
		e.logger.Warn(ctx, nil, "include without a file name skipped", "line", lineNum)
		return nil
	}
	if len(d.Extra) > 0 {
		e.logger.Warn(ctx, nil, "extra include arguments ignored",
			"line", lineNum, "file", d.Arg, "ignored", strings.Join(d.Extra, " "))
	}

	path := e.resolve(d.Arg)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return prerrors.NewMissingDependencyError(path, err).
				WithContext("source", e.opts.SourceName).
				WithContext("line", lineNum)
		}
		return prerrors.WrapIO(err, prerrors.CodeReadFile, path)
	}

	b.body.Write(data)
	return nil
}

// execute runs one block and returns its decoded output.
func (e *Expander) execute(ctx context.Context, b *block) (string, error) {
	tf, err := os.CreateTemp(e.opts.TempDir, "prmake-block-*")
	if err != nil {
		return "", prerrors.NewIOError(prerrors.CodeTempFile, "cannot create temporary file", err)
	}
	script := tf.Name()

	_, werr := tf.WriteString(b.body.String())
	cerr := tf.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(script)
		if werr == nil {
			werr = cerr
		}
		return "", prerrors.NewIOError(prerrors.CodeTempFile, "cannot write temporary file", werr)
	}

	if e.opts.KeepTemp {
		e.logger.Info(ctx, "keeping temporary file", "command", b.command, "file", script)
	} else {
		defer os.Remove(script)
	}

	e.logger.Debug(ctx, "running block", "command", b.command, "line", b.line)
	raw, err := e.runner.Run(ctx, b.command, script)
	if err != nil {
		pe := prerrors.NewExecutionError(prerrors.CodeCommandFailed,
			fmt.Sprintf("block command %q failed", b.command), err).
			WithLocation(e.opts.SourceName, b.line).
			WithContext("command", b.command)
		if code, ok := prerrors.ChildExitCode(err); ok {
			pe.WithContext("exit_code", code)
		}
		if e.opts.KeepTemp {
			pe.WithContext("script", script)
		}
		return "", pe
	}

	return e.decode(raw, b)
}

func (e *Expander) decode(raw []byte, b *block) (string, error) {
	if e.decoder == nil {
		if !utf8.Valid(raw) {
			return "", prerrors.NewExecutionError(prerrors.CodeBadOutput,
				fmt.Sprintf("output of %q is not valid utf-8", b.command), nil).
				WithLocation(e.opts.SourceName, b.line)
		}
		return string(raw), nil
	}

	text, err := e.decoder.Bytes(raw)
	if err != nil {
		return "", prerrors.NewExecutionError(prerrors.CodeBadOutput,
			fmt.Sprintf("cannot decode output of %q", b.command), err).
			WithLocation(e.opts.SourceName, b.line)
	}
	return string(text), nil
}

func (e *Expander) syntaxError(code, message string, line int) error {
	return prerrors.NewSyntaxError(code, message, line).WithLocation(e.opts.SourceName, line)
}

func (e *Expander) resolve(name string) string {
	if filepath.IsAbs(name) || e.opts.Dir == "" {
		return name
	}
	return filepath.Join(e.opts.Dir, name)
}

// SplitLines splits text into lines that keep their terminators, so joining
// the result reproduces text exactly.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
