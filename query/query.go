// Package query extracts the identifier being typed at the cursor.
package query

import (
	"regexp"
	"sync"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/ThaneAcheron/veonim/types"
)

// DefaultBoundary matches any character that cannot be part of an identifier.
var DefaultBoundary = regexp.MustCompile(`[^\w\-]`)

var languageBoundaries = map[string]string{
	"javascript": `[^\w\$\-]`,
	"typescript": `[^\w\$\-]`,
}

// Extractor resolves the boundary pattern per language kind.
type Extractor struct {
	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

func NewExtractor() *Extractor {
	e := &Extractor{patterns: make(map[string]*regexp.Regexp)}
	for lang, pattern := range languageBoundaries {
		e.patterns[lang] = regexp.MustCompile(pattern)
	}
	return e
}

// Register overrides the boundary pattern for lang.
func (e *Extractor) Register(lang, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errors.Wrapf(err, "boundary pattern for %s", lang)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.patterns[lang] = re
	return nil
}

// Boundary returns the pattern used for lang.
func (e *Extractor) Boundary(lang string) *regexp.Regexp {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if re, ok := e.patterns[lang]; ok {
		return re
	}
	return DefaultBoundary
}

func (e *Extractor) Extract(lang, line string, column int) types.Query {
	return Extract(e.Boundary(lang), line, column)
}

// Extract finds the token ending just before the 1-indexed byte column.
// The scan starts at the last typed character (column-2) and walks left to
// the nearest boundary; the anchor sits right after it, or at 0.
func Extract(boundary *regexp.Regexp, line string, column int) types.Query {
	end := min(max(column-1, 0), len(line))

	anchor := 0
	var boundaryChar string
	for i := min(column-2, len(line)-1); i >= 0; i-- {
		if !utf8.RuneStart(line[i]) {
			continue
		}
		_, size := utf8.DecodeRuneInString(line[i:])
		if ch := line[i : i+size]; boundary.MatchString(ch) {
			anchor = i + size
			boundaryChar = ch
			break
		}
	}

	var text string
	if anchor < end {
		text = line[anchor:end]
	}
	return types.Query{
		AnchorColumn: anchor,
		Text:         text,
		BoundaryChar: boundaryChar,
	}
}
