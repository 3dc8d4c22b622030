package semantic

import (
	"github.com/malloydata/malloy/compiler/plan"
)

// Sentinel values stand in for results that could not be computed.  A
// stage that hits an error logs one diagnostic and substitutes a
// sentinel so later stages see a well-formed shape and stay quiet; the
// driver decides whether the collected diagnostics are fatal.

const errorStructName = "~malformed~"

// ErrorStructDef returns a sentinel schema.
func ErrorStructDef() *plan.StructDef {
	return &plan.StructDef{
		Name:         errorStructName,
		Dialect:      "~malformed~",
		Source:       plan.StructSource{Type: "table", Name: "//undefined_error_table//"},
		Relationship: plan.Relationship{Type: "basetable"},
	}
}

// IsErrorStructDef reports whether s is the sentinel schema.
func IsErrorStructDef(s *plan.StructDef) bool {
	return s != nil && s.Name == errorStructName
}

// ErrorReduceSegment returns a sentinel reduce segment.
func ErrorReduceSegment() *plan.ReduceSegment {
	return plan.NewReduceSegment()
}

// ErrorProjectSegment returns a sentinel project segment.
func ErrorProjectSegment() *plan.ProjectSegment {
	return plan.NewProjectSegment()
}

// ErrorIndexSegment returns a sentinel index segment.
func ErrorIndexSegment() *plan.IndexSegment {
	return plan.NewIndexSegment()
}

// ErrorQuery returns a sentinel query.
func ErrorQuery() *plan.Query {
	return &plan.Query{
		StructRef: ErrorStructDef(),
		Pipeline:  plan.Pipeline{Segments: []plan.PipeSegment{ErrorReduceSegment()}},
	}
}
