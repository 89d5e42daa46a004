// Package discovery pairs prfiles with the build files generated from them.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	prerrors "github.com/conneroisu/prmake/internal/errors"
)

// Candidates are the build file names probed, in order, when none is given.
var Candidates = []string{"GNUmakefile", "makefile", "Makefile"}

// ErrNoSource means no prfile was named and none of the candidates exist.
var ErrNoSource = errors.New("no prfile found")

// Pair is a prfile and the build file generated from it.
type Pair struct {
	Source string `json:"source" yaml:"source"`
	Output string `json:"output" yaml:"output"`
}

// Request describes what the user asked for.
type Request struct {
	Prfiles   []string
	Makefiles []string
	Ext       string
	// Dir is probed for candidates and resolves relative names. Empty means ".".
	Dir string
}

// Resolve turns a request into source/output pairs.
func Resolve(req Request) ([]Pair, error) {
	ext := req.Ext
	if ext == "" {
		return nil, prerrors.NewConfigError(prerrors.CodeInvalidValue, "prfile extension cannot be empty")
	}

	switch {
	case len(req.Prfiles) == 0 && len(req.Makefiles) == 0:
		return probe(req.Dir, ext)

	case len(req.Prfiles) == 0:
		pairs := make([]Pair, 0, len(req.Makefiles))
		for _, m := range req.Makefiles {
			pairs = append(pairs, Pair{Source: join(req.Dir, m+ext), Output: join(req.Dir, m)})
		}
		return pairs, nil

	case len(req.Makefiles) == 0:
		pairs := make([]Pair, 0, len(req.Prfiles))
		for _, p := range req.Prfiles {
			if !strings.HasSuffix(p, ext) || len(p) == len(ext) {
				return nil, prerrors.NewUsageError(prerrors.CodeBadExtension, fmt.Sprintf(
					"cannot derive a makefile name because prfile %q does not end in %q", p, ext))
			}
			pairs = append(pairs, Pair{Source: join(req.Dir, p), Output: join(req.Dir, strings.TrimSuffix(p, ext))})
		}
		return pairs, nil

	default:
		if len(req.Prfiles) != len(req.Makefiles) {
			return nil, prerrors.NewUsageError(prerrors.CodeMismatchedFiles, fmt.Sprintf(
				"specified %d makefiles but %d prfiles", len(req.Makefiles), len(req.Prfiles)))
		}
		pairs := make([]Pair, len(req.Prfiles))
		for i := range req.Prfiles {
			pairs[i] = Pair{Source: join(req.Dir, req.Prfiles[i]), Output: join(req.Dir, req.Makefiles[i])}
		}
		return pairs, nil
	}
}

func probe(dir, ext string) ([]Pair, error) {
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, prerrors.WrapIO(err, prerrors.CodeReadFile, dir)
	}

	// Exact names only: a case-insensitive filesystem must not turn a
	// makefile.pr into a match for Makefile.pr.
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = true
	}

	for _, name := range Candidates {
		if present[name+ext] {
			return []Pair{{Source: join(dir, name+ext), Output: join(dir, name)}}, nil
		}
	}
	return nil, ErrNoSource
}

func join(dir, name string) string {
	if dir == "" || dir == "." || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// Outputs returns the output path of every pair.
func Outputs(pairs []Pair) []string {
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Output
	}
	return out
}
