package srcfiles

import (
	"fmt"
	"strings"
)

// An Error is one diagnostic anchored to a source range.
type Error struct {
	Msg string
	Pos int
	End int
	src *Source
}

func (e *Error) Error() string {
	if e.src == nil {
		return e.Msg
	}
	line, col := e.src.Position(e.Pos)
	var b strings.Builder
	b.WriteString(e.Msg)
	if e.src.Name != "" {
		fmt.Fprintf(&b, " in %s", e.src.Name)
	}
	text := e.src.Line(e.Pos)
	fmt.Fprintf(&b, " at line %d, column %d:\n%s\n", line, col, text)
	endLine, endCol := e.src.Position(e.End)
	b.WriteString(strings.Repeat(" ", col-1))
	n := 1
	if e.End > e.Pos {
		if endLine == line {
			n = endCol - col
		} else {
			n = len(text) - col + 1
		}
	}
	if n < 1 {
		n = 1
	}
	b.WriteString(strings.Repeat("~", n))
	return b.String()
}

// ErrorList is the ordered list of diagnostics from one compilation.
type ErrorList []*Error

// Error concatenates the list with a newline between entries.
func (e ErrorList) Error() string {
	var b strings.Builder
	for i, err := range e {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Messages returns just the diagnostic texts, for tests that assert on
// content without positions.
func (e ErrorList) Messages() []string {
	out := make([]string, 0, len(e))
	for _, err := range e {
		out = append(out, err.Msg)
	}
	return out
}
