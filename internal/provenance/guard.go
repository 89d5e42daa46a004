package provenance

import (
	"bufio"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"

	prerrors "github.com/conneroisu/prmake/internal/errors"
)

// Ownership describes who owns an output path.
type Ownership int

const (
	// Missing means nothing exists at the path.
	Missing Ownership = iota
	// Foreign means the file was not generated by prmake.
	Foreign
	// Legacy means the file carries the marker without a checksum.
	Legacy
	// Valid means the file carries the marker and a matching checksum.
	Valid
	// Tampered means the marker is present but the checksum is malformed or wrong.
	Tampered
)

// String returns a short name for the ownership state.
func (o Ownership) String() string {
	switch o {
	case Missing:
		return "missing"
	case Foreign:
		return "foreign"
	case Legacy:
		return "legacy"
	case Valid:
		return "valid"
	case Tampered:
		return "tampered"
	default:
		return "unknown"
	}
}

// Owned reports whether prmake may overwrite a file in this state.
func (o Ownership) Owned() bool {
	return o == Missing || o == Legacy || o == Valid
}

// Inspection is the result of examining an output path.
type Inspection struct {
	Ownership Ownership
	Header    Header
	// Actual is the checksum recomputed from the file body.
	Actual uint32
}

// Checksum computes the CRC-32 (IEEE) of everything r yields.
func Checksum(r io.Reader) (uint32, error) {
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum32(), nil
}

// Inspect examines path and reports its ownership.
func Inspect(path string) (Inspection, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Inspection{Ownership: Missing}, nil
		}
		return Inspection{}, prerrors.WrapIO(err, prerrors.CodeReadFile, path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	first, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return Inspection{}, prerrors.WrapIO(err, prerrors.CodeReadFile, path)
	}

	ins := Inspection{Header: ParseHeader(first)}
	switch ins.Header.Kind {
	case NotGenerated:
		ins.Ownership = Foreign
		return ins, nil
	case GeneratedLegacy:
		ins.Ownership = Legacy
		return ins, nil
	case Malformed:
		ins.Ownership = Tampered
		return ins, nil
	}

	sum, err := Checksum(br)
	if err != nil {
		return Inspection{}, prerrors.WrapIO(err, prerrors.CodeReadFile, path)
	}
	ins.Actual = sum
	if sum == ins.Header.Checksum {
		ins.Ownership = Valid
	} else {
		ins.Ownership = Tampered
	}
	return ins, nil
}

// CanOverwrite reports whether prmake may replace path.
func CanOverwrite(path string) (bool, error) {
	ins, err := Inspect(path)
	if err != nil {
		return false, err
	}
	return ins.Ownership.Owned(), nil
}

// Guard returns a ProvenanceConflict error when path must not be overwritten.
func Guard(path string) error {
	ins, err := Inspect(path)
	if err != nil {
		return err
	}

	switch ins.Ownership {
	case Foreign:
		return prerrors.NewProvenanceConflict(path,
			"already exists and is not output from prmake; rename or delete it, or use make instead of prmake")
	case Tampered:
		return prerrors.NewProvenanceConflict(path, fmt.Sprintf(
			"has been modified since prmake generated it (checksum %08x, recorded %08x); rename or delete it to regenerate",
			ins.Actual, ins.Header.Checksum)).
			WithContext("recorded", ins.Header.Checksum).
			WithContext("actual", ins.Actual)
	}
	return nil
}

// Stamp describes the generator of a published file.
type Stamp struct {
	Source  string
	Version string
}

func preamble(source string) string {
	var b strings.Builder
	b.WriteString("##########################\n")
	fmt.Fprintf(&b, "# Generated from %s by prmake.\n", source)
	fmt.Fprintf(&b, "# %s is the source: edit it, not this file.\n", source)
	b.WriteString("#\n")
	b.WriteString("# The checksum on the first line covers the rest of this file.\n")
	b.WriteString("# Once this file is edited by hand prmake refuses to overwrite it.\n")
	b.WriteString("# To take ownership, delete the first line.\n")
	b.WriteString("##########################\n")
	b.WriteString("\n")
	return b.String()
}

// Publish writes body to outputPath behind a fresh header. All writes go to a
// staging file in the same directory, which is renamed over outputPath only
// once complete, so outputPath never holds a partial file.
func Publish(body, outputPath string, stamp Stamp) (err error) {
	dir := filepath.Dir(outputPath)
	staging, err := os.CreateTemp(dir, "."+filepath.Base(outputPath)+".prmake-*")
	if err != nil {
		return prerrors.NewIOError(prerrors.CodePublish, "cannot create staging file", err)
	}
	stagingPath := staging.Name()

	defer func() {
		if err != nil {
			_ = staging.Close()
			_ = os.Remove(stagingPath)
		}
	}()

	header := formatHeader(stamp.Version, placeholder)
	digitsAt := int64(len(header) - crcDigits)
	if _, err = io.WriteString(staging, header+"\n"); err != nil {
		return prerrors.WrapIO(err, prerrors.CodePublish, stagingPath)
	}

	h := crc32.NewIEEE()
	w := bufio.NewWriter(io.MultiWriter(staging, h))
	if _, err = w.WriteString(preamble(stamp.Source)); err != nil {
		return prerrors.WrapIO(err, prerrors.CodePublish, stagingPath)
	}
	if _, err = w.WriteString(body); err != nil {
		return prerrors.WrapIO(err, prerrors.CodePublish, stagingPath)
	}
	if err = w.Flush(); err != nil {
		return prerrors.WrapIO(err, prerrors.CodePublish, stagingPath)
	}

	if _, err = staging.WriteAt([]byte(fmt.Sprintf("%08x", h.Sum32())), digitsAt); err != nil {
		return prerrors.WrapIO(err, prerrors.CodePublish, stagingPath)
	}
	if err = staging.Sync(); err != nil {
		return prerrors.WrapIO(err, prerrors.CodePublish, stagingPath)
	}
	if err = staging.Chmod(0o644); err != nil {
		return prerrors.WrapIO(err, prerrors.CodePublish, stagingPath)
	}
	if err = staging.Close(); err != nil {
		return prerrors.WrapIO(err, prerrors.CodePublish, stagingPath)
	}

	if err = os.Rename(stagingPath, outputPath); err != nil {
		return prerrors.WrapIO(err, prerrors.CodePublish, outputPath)
	}
	return nil
}

// Staleness is the outcome of comparing an output with its dependencies.
type Staleness struct {
	Stale bool
	Notes []string
	// Missing holds a MissingDependency error for every dependency that
	// cannot be read. Each one forces a rebuild.
	Missing []error
}

// Evaluate compares outputPath with deps. Dependencies are checked even when
// the output is missing or force is set, so Missing is always complete.
func Evaluate(outputPath string, deps []string, force bool) Staleness {
	var s Staleness
	out, outErr := os.Stat(outputPath)
	switch {
	case force:
		s.Stale = true
		s.Notes = append(s.Notes, "rebuild forced")
	case outErr != nil:
		s.Stale = true
		s.Notes = append(s.Notes, fmt.Sprintf("%s does not exist", outputPath))
	}

	for _, dep := range deps {
		info, err := os.Stat(dep)
		if err != nil {
			s.Stale = true
			s.Notes = append(s.Notes, fmt.Sprintf("dependency %s cannot be read: %v", dep, err))
			s.Missing = append(s.Missing, prerrors.NewMissingDependencyError(dep, err))
			continue
		}
		if force || outErr != nil {
			continue
		}
		if !info.ModTime().Before(out.ModTime()) {
			s.Stale = true
			s.Notes = append(s.Notes, fmt.Sprintf("%s is newer than %s", dep, outputPath))
		}
	}
	return s
}

// IsStale reports whether outputPath must be regenerated from deps, with a
// note for each reason.
func IsStale(outputPath string, deps []string, force bool) (bool, []string) {
	s := Evaluate(outputPath, deps, force)
	return s.Stale, s.Notes
}
