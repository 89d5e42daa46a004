// Package provenance decides when a generated build file must be rebuilt and
// whether prmake may overwrite it.
//
// A generated file starts with a header line holding a fixed marker, the
// generating tool's version, and a CRC-32 of every byte after that line. A file
// whose first line lacks the marker, or whose checksum no longer matches, is
// treated as hand-written and is never overwritten.
package provenance

import (
	"fmt"
	"strconv"
	"strings"
)

// Marker identifies a file generated by prmake. It must start the first line.
const Marker = "# created automatically by prmake"

const (
	crcToken    = "CRC 0x"
	crcDigits   = 8
	placeholder = "00000000"
)

// HeaderKind classifies a first line.
type HeaderKind int

const (
	// NotGenerated means the marker is absent.
	NotGenerated HeaderKind = iota
	// GeneratedLegacy carries the marker but no checksum, as older prmake wrote.
	GeneratedLegacy
	// GeneratedWithChecksum carries the marker and a well-formed checksum.
	GeneratedWithChecksum
	// Malformed carries the marker and a CRC token that does not parse.
	Malformed
)

// String returns a short name for the kind.
func (k HeaderKind) String() string {
	switch k {
	case NotGenerated:
		return "not-generated"
	case GeneratedLegacy:
		return "generated-legacy"
	case GeneratedWithChecksum:
		return "generated"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Header is a parsed first line.
type Header struct {
	Kind     HeaderKind
	Version  string
	Checksum uint32
}

// ParseHeader classifies line, which may still carry its terminator.
func ParseHeader(line string) Header {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, Marker) {
		return Header{Kind: NotGenerated}
	}

	h := Header{Kind: GeneratedLegacy, Version: parseVersion(line)}

	idx := strings.Index(line, "CRC")
	if idx < 0 {
		return h
	}

	rest := line[idx:]
	if !strings.HasPrefix(rest, crcToken) {
		h.Kind = Malformed
		return h
	}
	digits := rest[len(crcToken):]
	if len(digits) < crcDigits || (len(digits) > crcDigits && !isSpace(digits[crcDigits])) {
		h.Kind = Malformed
		return h
	}
	sum, err := strconv.ParseUint(digits[:crcDigits], 16, 32)
	if err != nil {
		h.Kind = Malformed
		return h
	}

	h.Kind = GeneratedWithChecksum
	h.Checksum = uint32(sum)
	return h
}

func parseVersion(line string) string {
	fields := strings.Fields(line[len(Marker):])
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "version" {
			return fields[i+1]
		}
	}
	return ""
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

// FormatHeader renders a header line, without terminator, for version and sum.
func FormatHeader(version string, sum uint32) string {
	return formatHeader(version, fmt.Sprintf("%08x", sum))
}

func formatHeader(version, digits string) string {
	if version == "" {
		version = "unknown"
	}
	return fmt.Sprintf("%s  <--- prmake checks for this string, version %s %s%s", Marker, version, crcToken, digits)
}
