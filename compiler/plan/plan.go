// Package plan defines the language-independent query plan produced by
// semantic analysis.  A plan is a typed, canonicalized model of a
// query — sources, pipelines, and segments — that a per-dialect SQL
// writer translates without further name resolution or type checking.
package plan

import (
	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler/ast"
)

// A FieldDef is one field of a StructDef or of a segment's field list:
// an atomic column, a nested struct (join), a named query (turtle), or
// a by-name reference to a field of the input.
type FieldDef interface {
	FieldName() string
	fieldNode()
}

type (
	// A ColumnDef is an atomic field, either a physical column (nil
	// Expr) or a field defined by expression.
	ColumnDef struct {
		Name     string            `json:"name"`
		Type     malloy.AtomicType `json:"type"`
		Expr     Expr              `json:"expr,omitempty"`
		ExprKind malloy.ExprKind   `json:"expr_kind,omitempty"`
		Location ast.Loc           `json:"location,omitzero"`
	}
	// A TurtleDef is a named query stored as a field of a source.
	TurtleDef struct {
		Name     string   `json:"name"`
		Pipeline Pipeline `json:"pipeline"`
		Location ast.Loc  `json:"location,omitzero"`
	}
	// A FieldRef names a field of the segment's input by path; the
	// output column takes the path's last element as its name.
	FieldRef struct {
		Path []string `json:"path"`
	}
)

func (c *ColumnDef) FieldName() string { return c.Name }
func (t *TurtleDef) FieldName() string { return t.Name }
func (f *FieldRef) FieldName() string  { return f.Path[len(f.Path)-1] }
func (s *StructDef) FieldName() string { return s.Name }

func (*ColumnDef) fieldNode() {}
func (*TurtleDef) fieldNode() {}
func (*FieldRef) fieldNode()  {}
func (*StructDef) fieldNode() {}

// A StructSource says where a struct's rows come from.
type StructSource struct {
	Type  string `json:"type"` // "table", "sql", "query", or "nested"
	Name  string `json:"name,omitempty"`
	Query *Query `json:"query,omitempty"`
}

// A Relationship says how a struct relates to its parent: the base
// table of a query, a joined table, a nested (one-to-many) struct, or
// an inline record.
type Relationship struct {
	Type string `json:"type"` // "basetable", "join", "nested", or "inline"
	On   Expr   `json:"on,omitempty"`
}

// A Parameter is a declared input of a source.  A value parameter
// carries a value once bound or defaulted; a condition parameter
// carries a partial-comparison expression.  A parameter with neither is
// required at reference time.
type Parameter struct {
	Name        string            `json:"name"`
	Type        malloy.AtomicType `json:"type"`
	Value       Expr              `json:"value,omitempty"`
	Condition   Expr              `json:"condition,omitempty"`
	Constant    bool              `json:"constant,omitempty"`
	IsCondition bool              `json:"is_condition,omitempty"`
}

// Required reports whether p still needs a binding.
func (p *Parameter) Required() bool {
	if p.IsCondition {
		return p.Condition == nil
	}
	return p.Value == nil
}

// A FilterCondition is one boolean filter expression together with the
// expression kind it was compiled at, which determines whether it
// belongs in WHERE or HAVING.
type FilterCondition struct {
	Expr Expr            `json:"expr"`
	Kind malloy.ExprKind `json:"expr_kind"`
}

// A StructDef is a table-like schema: the resolved shape of a source,
// a join, or a segment's output.
type StructDef struct {
	Name         string             `json:"name"`
	Dialect      string             `json:"dialect,omitempty"`
	Fields       []FieldDef         `json:"fields"`
	PrimaryKey   string             `json:"primary_key,omitempty"`
	Parameters   []*Parameter       `json:"parameters,omitempty"`
	Filters      []*FilterCondition `json:"filter_list,omitempty"`
	Source       StructSource       `json:"struct_source"`
	Relationship Relationship       `json:"struct_relationship"`
	Location     ast.Loc            `json:"location,omitzero"`
}

// FieldByName returns the field named name, or nil.
func (s *StructDef) FieldByName(name string) FieldDef {
	for _, f := range s.Fields {
		if f.FieldName() == name {
			return f
		}
	}
	return nil
}

// Clone returns a copy of s sharing field definitions but with its own
// fields, parameters, and filter slices, so a refinement can extend the
// copy without mutating the original.
func (s *StructDef) Clone() *StructDef {
	c := *s
	c.Fields = append([]FieldDef(nil), s.Fields...)
	c.Parameters = append([]*Parameter(nil), s.Parameters...)
	c.Filters = append([]*FilterCondition(nil), s.Filters...)
	return &c
}

// An OrderBy orders segment output by a named output column or a
// 1-based ordinal.
type OrderBy struct {
	Field   string `json:"field,omitempty"`
	Ordinal int    `json:"ordinal,omitempty"`
	Dir     string `json:"dir,omitempty"`
}

// A By orders a reduce segment's top rows by a named output field or
// an aggregate expression.
type By struct {
	Name string `json:"name,omitempty"`
	Expr Expr   `json:"expr,omitempty"`
}

// A Sampling limits an index scan to a sample of source rows.
type Sampling struct {
	Rows    int     `json:"rows,omitempty"`
	Percent float64 `json:"percent,omitempty"`
	Enable  bool    `json:"enable,omitempty"`
}

// A PipeSegment is one stage of a pipeline.
type PipeSegment interface {
	SegmentKind() string
	segmentNode()
}

type (
	// A ReduceSegment groups and aggregates.
	ReduceSegment struct {
		Kind         string             `json:"type"`
		Fields       []FieldDef         `json:"fields"`
		Filters      []*FilterCondition `json:"filter_list,omitempty"`
		OrderBy      []OrderBy          `json:"order_by,omitempty"`
		By           *By                `json:"by,omitempty"`
		Limit        int                `json:"limit,omitempty"`
		ExtendSource []FieldDef         `json:"extend_source,omitempty"`
	}
	// A ProjectSegment selects row-level values; its fields never
	// contain aggregates or turtles.
	ProjectSegment struct {
		Kind         string             `json:"type"`
		Fields       []FieldDef         `json:"fields"`
		Filters      []*FilterCondition `json:"filter_list,omitempty"`
		OrderBy      []OrderBy          `json:"order_by,omitempty"`
		Limit        int                `json:"limit,omitempty"`
		ExtendSource []FieldDef         `json:"extend_source,omitempty"`
	}
	// An IndexSegment scans columns for a search index; Fields is a
	// deduplicated, insertion-ordered list of column and wildcard
	// references.
	IndexSegment struct {
		Kind          string             `json:"type"`
		Fields        []string           `json:"fields"`
		WeightMeasure string             `json:"weight_measure,omitempty"`
		Sample        *Sampling          `json:"sample,omitempty"`
		Filters       []*FilterCondition `json:"filter_list,omitempty"`
		Limit         int                `json:"limit,omitempty"`
	}
)

func (s *ReduceSegment) SegmentKind() string  { return "reduce" }
func (s *ProjectSegment) SegmentKind() string { return "project" }
func (s *IndexSegment) SegmentKind() string   { return "index" }

func (*ReduceSegment) segmentNode()  {}
func (*ProjectSegment) segmentNode() {}
func (*IndexSegment) segmentNode()   {}

// NewReduceSegment makes an empty reduce segment with its kind tag set.
func NewReduceSegment() *ReduceSegment {
	return &ReduceSegment{Kind: "reduce"}
}

func NewProjectSegment() *ProjectSegment {
	return &ProjectSegment{Kind: "project"}
}

func NewIndexSegment() *IndexSegment {
	return &IndexSegment{Kind: "index"}
}

// A PipeHead references a turtle whose pipeline runs before this
// pipeline's own segments.  A head is mutually exclusive with inline
// head refinement; refinement materializes the turtle's segments
// instead.
type PipeHead struct {
	Name string `json:"name"`
}

// A Pipeline is the ordered list of segments a query runs.
type Pipeline struct {
	Head     *PipeHead     `json:"pipe_head,omitempty"`
	Segments []PipeSegment `json:"pipeline"`
}

// A StructRef locates the input of a query: a reference to a named,
// exported source or an inline StructDef.
type StructRef interface {
	structRefNode()
}

// A NamedRef references a model source by name.
type NamedRef struct {
	Name string `json:"name"`
}

func (*NamedRef) structRefNode()  {}
func (*StructDef) structRefNode() {}

// A Query is a complete compiled query: its input source and its
// pipeline.
type Query struct {
	StructRef StructRef `json:"struct_ref"`
	Pipeline
	Location ast.Loc `json:"location,omitzero"`
}
