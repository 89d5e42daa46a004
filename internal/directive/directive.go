// Package directive recognises the three prmake directive lines.
//
// A line is a directive when its first whitespace-delimited token equals one
// of the reserved markers. Leading whitespace is allowed; anything else on the
// line that is not the marker is the directive's argument.
package directive

import "strings"

// Reserved markers.
const (
	OpenMarker    = "#begincode"
	IncludeMarker = "#includecode"
	CloseMarker   = "#endcode"
)

// Kind identifies a directive.
type Kind int

const (
	KindNone Kind = iota
	KindOpen
	KindInclude
	KindClose
)

// String returns the marker text for the kind.
func (k Kind) String() string {
	switch k {
	case KindOpen:
		return OpenMarker
	case KindInclude:
		return IncludeMarker
	case KindClose:
		return CloseMarker
	default:
		return "text"
	}
}

// Directive is a classified directive line.
type Directive struct {
	Kind Kind
	// Arg is the interpreter command for KindOpen and the file name for
	// KindInclude. It is empty when nothing follows the marker.
	Arg string
	// Extra holds tokens after the file name of an include, which are ignored.
	Extra []string
}

// Parse classifies line. The second result is false for ordinary text.
func Parse(line string) (Directive, bool) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return Directive{}, false
	}

	switch words[0] {
	case OpenMarker:
		// The command keeps its internal spacing: only the marker is removed.
		command := strings.Replace(line, OpenMarker, "", 1)
		return Directive{Kind: KindOpen, Arg: strings.TrimSpace(command)}, true
	case IncludeMarker:
		d := Directive{Kind: KindInclude}
		if len(words) > 1 {
			d.Arg = words[1]
		}
		if len(words) > 2 {
			d.Extra = words[2:]
		}
		return d, true
	case CloseMarker:
		return Directive{Kind: KindClose}, true
	default:
		return Directive{}, false
	}
}

// Includes returns every file named by an include directive in lines,
// deduplicated and in first-seen order. Includes without a file name are
// skipped.
func Includes(lines []string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, line := range lines {
		d, ok := Parse(line)
		if !ok || d.Kind != KindInclude || d.Arg == "" {
			continue
		}
		if seen[d.Arg] {
			continue
		}
		seen[d.Arg] = true
		names = append(names, d.Arg)
	}
	return names
}
