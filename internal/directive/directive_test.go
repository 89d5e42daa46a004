package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   Directive
		wantOK bool
	}{
		{"plain text", "all: build\n", Directive{}, false},
		{"blank", "   \n", Directive{}, false},
		{"open", "#begincode python3\n", Directive{Kind: KindOpen, Arg: "python3"}, true},
		{"open keeps arguments", "#begincode  /usr/bin/env  python3 -u\n", Directive{Kind: KindOpen, Arg: "/usr/bin/env  python3 -u"}, true},
		{"open indented", "\t#begincode gawk -f\n", Directive{Kind: KindOpen, Arg: "gawk -f"}, true},
		{"open without command", "#begincode\n", Directive{Kind: KindOpen}, true},
		{"close", "#endcode\n", Directive{Kind: KindClose}, true},
		{"close with trailing words", "#endcode  of block\n", Directive{Kind: KindClose}, true},
		{"include", "#includecode rules.py\n", Directive{Kind: KindInclude, Arg: "rules.py"}, true},
		{"include without file", "#includecode\n", Directive{Kind: KindInclude}, true},
		{"include extra tokens", "#includecode a.py b.py c\n", Directive{Kind: KindInclude, Arg: "a.py", Extra: []string{"b.py", "c"}}, true},
		{"marker must be a whole token", "#begincodepython\n", Directive{}, false},
		{"marker must be first token", "echo #endcode\n", Directive{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "#begincode", KindOpen.String())
	assert.Equal(t, "#includecode", KindInclude.String())
	assert.Equal(t, "#endcode", KindClose.String())
	assert.Equal(t, "text", KindNone.String())
}

func TestIncludes(t *testing.T) {
	lines := []string{
		"#includecode outside.mk\n",
		"#begincode python3\n",
		"#includecode helpers.py\n",
		"#includecode\n",
		"#includecode helpers.py\n",
		"print('x')\n",
		"#endcode\n",
		"#begincode sh\n",
		"#includecode gen.sh extra\n",
		"#endcode\n",
	}

	assert.Equal(t, []string{"outside.mk", "helpers.py", "gen.sh"}, Includes(lines))
	assert.Nil(t, Includes([]string{"no directives\n"}))
}
