// Package srcfiles tracks the source text of a Malloy document and the
// diagnostics the compiler attaches to offsets within it.  The import
// loader runs outside the compiler, so a compilation sees exactly one
// source; its AST nodes carry [pos, end) offsets into that text.
package srcfiles

import (
	"sort"
	"strings"
)

// A Source is one Malloy document's text with a line index for
// rendering positions.
type Source struct {
	Name  string
	Text  string
	lines []int

	errors ErrorList
}

// New builds a Source over text, indexing line starts.
func New(name, text string) *Source {
	lines := []int{0}
	for off, b := range []byte(text) {
		if b == '\n' {
			lines = append(lines, off+1)
		}
	}
	return &Source{Name: name, Text: text, lines: lines}
}

// AddError attaches a diagnostic to the [pos, end) range.
func (s *Source) AddError(msg string, pos, end int) {
	s.errors = append(s.errors, &Error{Msg: msg, Pos: pos, End: end, src: s})
}

// Errors returns the diagnostics logged so far, in logging order.
func (s *Source) Errors() ErrorList {
	return s.errors
}

// Error returns all diagnostics as a single error, or nil when the
// compilation logged none.
func (s *Source) Error() error {
	if len(s.errors) == 0 {
		return nil
	}
	return s.errors
}

// Position converts a byte offset to a 1-based line and column.
func (s *Source) Position(pos int) (line, column int) {
	if pos < 0 || len(s.lines) == 0 {
		return -1, -1
	}
	i := sort.Search(len(s.lines), func(i int) bool { return s.lines[i] > pos }) - 1
	return i + 1, pos - s.lines[i] + 1
}

// Line returns the text of the line containing pos, without its
// trailing newline.
func (s *Source) Line(pos int) string {
	i := sort.Search(len(s.lines), func(i int) bool { return s.lines[i] > pos }) - 1
	if i < 0 {
		return ""
	}
	end := len(s.Text)
	if i+1 < len(s.lines) {
		end = s.lines[i+1]
	}
	return strings.TrimRight(s.Text[s.lines[i]:end], "\n")
}
