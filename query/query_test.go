package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		lang     string
		line     string
		column   int
		anchor   int
		text     string
		boundary string
	}{
		{"after dot", "go", "  foo.ba", 9, 6, "ba", "."},
		{"line start", "go", "foo", 4, 0, "foo", ""},
		{"boundary at index zero", "go", ".ab", 4, 1, "ab", "."},
		{"just typed boundary", "go", "foo.", 5, 4, "", "."},
		{"space separated", "go", "return value", 13, 7, "value", " "},
		{"dash is identifier", "css", "  font-we", 10, 2, "font-we", " "},
		{"cursor mid line", "go", "abc.def ghi", 7, 4, "de", "."},
		{"dollar breaks default", "go", "x$ab", 5, 2, "ab", "$"},
		{"dollar kept for javascript", "javascript", "x $ab", 6, 2, "$ab", " "},
		{"dollar kept for typescript", "typescript", "($el", 5, 1, "$el", "("},
		{"empty line", "go", "", 1, 0, "", ""},
		{"column past line end", "go", "ab", 10, 0, "ab", ""},
	}

	e := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := e.Extract(tt.lang, tt.line, tt.column)
			assert.Equal(t, tt.anchor, q.AnchorColumn)
			assert.Equal(t, tt.text, q.Text)
			assert.Equal(t, tt.boundary, q.BoundaryChar)
		})
	}
}

func TestExtract_EmptyQuery(t *testing.T) {
	q := Extract(DefaultBoundary, "foo(", 5)
	assert.True(t, q.Empty())
	assert.Equal(t, 4, q.AnchorColumn)
}

func TestExtract_MultibyteBoundary(t *testing.T) {
	line := "a→bc"
	q := Extract(DefaultBoundary, line, len(line)+1)
	assert.Equal(t, "bc", q.Text)
	assert.Equal(t, "→", q.BoundaryChar)
	assert.Equal(t, len("a→"), q.AnchorColumn)
}

func TestExtractor_Register(t *testing.T) {
	e := NewExtractor()
	require.NoError(t, e.Register("lisp", `[\s()']`))

	q := e.Extract("lisp", "(set-car! x", 10)
	assert.Equal(t, "set-car!", q.Text)

	assert.Error(t, e.Register("bad", `[`))
	assert.Same(t, DefaultBoundary, e.Boundary("unknown"))
}

func TestExtract_Idempotent(t *testing.T) {
	e := NewExtractor()
	for _, c := range []struct {
		lang, line string
		column     int
	}{
		{"go", "  foo.ba", 9},
		{"typescript", "($el", 5},
		{"go", "foo.", 5},
		{"go", "", 1},
	} {
		first := e.Extract(c.lang, c.line, c.column)
		second := e.Extract(c.lang, c.line, c.column)
		assert.Equal(t, first, second, "%s %q at %d", c.lang, c.line, c.column)
	}
}
