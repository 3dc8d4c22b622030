package semantic

import (
	"fmt"

	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
)

// A TypeDesc is what expression evaluation needs to know about a
// looked-up name.
type TypeDesc struct {
	Type  malloy.AtomicType
	Kind  malloy.ExprKind
	Space malloy.EvalSpace
}

// A SpaceEntry is one name in a field space.
type SpaceEntry interface {
	TypeDesc() TypeDesc
	entryNode()
}

type (
	// A ColumnField is an atomic column of the wrapped schema, or a
	// fully compiled expression field.
	ColumnField struct {
		Def *plan.ColumnDef
	}
	// A StructField is a nested struct (join); Space exposes its
	// fields for path walking.
	StructField struct {
		Def   *plan.StructDef
		space FieldSpace
	}
	// A TurtleField is a compiled named query stored as a field.
	TurtleField struct {
		Def *plan.TurtleDef
	}
	// A PendingTurtle is a turtle declared during refinement; its
	// pipeline compiles when the owning space finalizes.
	PendingTurtle struct {
		a     *Analyzer
		decl  *ast.TurtleDecl
		owner *DynamicSpace
	}
	// A ReferenceField passes a projected input reference through to a
	// segment's output under the path's final name.
	ReferenceField struct {
		Path  []string
		Entry SpaceEntry
	}
	// A WildField is an unexpanded * or ** reference in a project
	// segment; the result space expands it when rendering its fields.
	WildField struct {
		Wild *ast.Wildcard
	}
	// A RenameField aliases another entry under a new name.
	RenameField struct {
		Name  string
		Entry SpaceEntry
	}
	// A JoinField is a join declared during refinement whose on
	// expression resolves in the fixup pass, once the owning space is
	// structurally complete.
	JoinField struct {
		a      *Analyzer
		decl   *ast.JoinDecl
		def    *plan.StructDef
		onDone bool
	}
	// An ExprField is a field defined by expression, compiled lazily
	// the first time its definition is needed so that forward and
	// circular references resolve against the complete space.
	ExprField struct {
		a     *Analyzer
		decl  *ast.FieldDecl
		owner FieldSpace

		def       *plan.ColumnDef
		compiling bool
		done      bool
	}
	// An AbstractParameter is declared but not yet bound.
	AbstractParameter struct {
		Decl *ast.ParamDecl
	}
	// A DefinedParameter carries its binding or default.
	DefinedParameter struct {
		Param *plan.Parameter
	}
)

func (*ColumnField) entryNode()       {}
func (*StructField) entryNode()       {}
func (*TurtleField) entryNode()       {}
func (*PendingTurtle) entryNode()     {}
func (*ReferenceField) entryNode()    {}
func (*WildField) entryNode()         {}
func (*RenameField) entryNode()       {}
func (*JoinField) entryNode()         {}
func (*ExprField) entryNode()         {}
func (*AbstractParameter) entryNode() {}
func (*DefinedParameter) entryNode()  {}

func (f *ColumnField) TypeDesc() TypeDesc {
	kind := f.Def.ExprKind
	if kind == "" {
		kind = malloy.Scalar
	}
	return TypeDesc{Type: f.Def.Type, Kind: kind, Space: malloy.InputSpace}
}

func (f *StructField) TypeDesc() TypeDesc {
	return TypeDesc{Type: malloy.TypeUnsupported, Kind: malloy.Scalar, Space: malloy.InputSpace}
}

func (f *TurtleField) TypeDesc() TypeDesc {
	return TypeDesc{Type: malloy.TypeUnsupported, Kind: malloy.Scalar, Space: malloy.InputSpace}
}

func (f *PendingTurtle) TypeDesc() TypeDesc {
	return TypeDesc{Type: malloy.TypeUnsupported, Kind: malloy.Scalar, Space: malloy.InputSpace}
}

func (f *ReferenceField) TypeDesc() TypeDesc {
	return f.Entry.TypeDesc()
}

func (f *WildField) TypeDesc() TypeDesc {
	return TypeDesc{Type: malloy.TypeUnsupported, Kind: malloy.Scalar, Space: malloy.InputSpace}
}

func (f *RenameField) TypeDesc() TypeDesc {
	return f.Entry.TypeDesc()
}

func (f *JoinField) TypeDesc() TypeDesc {
	return TypeDesc{Type: malloy.TypeUnsupported, Kind: malloy.Scalar, Space: malloy.InputSpace}
}

func (f *ExprField) TypeDesc() TypeDesc {
	def := f.resolve()
	kind := def.ExprKind
	if kind == "" {
		kind = malloy.Scalar
	}
	return TypeDesc{Type: def.Type, Kind: kind, Space: malloy.InputSpace}
}

func (p *AbstractParameter) TypeDesc() TypeDesc {
	return TypeDesc{Type: p.Decl.Type, Kind: malloy.Scalar, Space: malloy.ConstantSpace}
}

func (p *DefinedParameter) TypeDesc() TypeDesc {
	return TypeDesc{Type: p.Param.Type, Kind: malloy.Scalar, Space: malloy.ConstantSpace}
}

// Space returns the field space over the join's schema, building it on
// first use.
func (f *StructField) Space(a *Analyzer) FieldSpace {
	if f.space == nil {
		f.space = NewStaticSpace(a, f.Def)
	}
	return f.space
}

// resolve compiles the field's defining expression once.  The owning
// space is wrapped in a DefSpace so a reference back to the name being
// defined (directly or through another mid-compilation field) produces
// a single circular-reference diagnostic instead of unbounded
// recursion.
func (f *ExprField) resolve() *plan.ColumnDef {
	if f.done {
		return f.def
	}
	if f.compiling {
		// A cycle through another mid-compilation field re-enters here.
		f.a.errorf(f.decl, "circular reference to %q in definition", f.decl.Name)
		return &plan.ColumnDef{Name: f.decl.Name, Type: malloy.TypeError, Expr: plan.ErrorExpr()}
	}
	f.compiling = true
	defer func() { f.compiling = false }()
	def := &DefSpace{FieldSpace: f.owner, Defining: f.decl.Name}
	v := f.a.evalExpr(def, f.decl.Expr)
	kind := v.kind
	if f.decl.IsMeasure && !kind.IsCalculation() {
		if !def.Circular {
			f.a.errorf(f.decl, "measure %q must be an aggregate expression", f.decl.Name)
		}
		kind = malloy.Aggregate
	}
	f.def = &plan.ColumnDef{
		Name:     f.decl.Name,
		Type:     v.typ,
		Expr:     v.value,
		ExprKind: kind,
		Location: f.decl.Loc,
	}
	f.done = true
	return f.def
}

// fieldDef renders an entry as the plan field it contributes to a
// finalized StructDef, or nil for entries that contribute none.
func fieldDef(a *Analyzer, name string, e SpaceEntry) plan.FieldDef {
	switch e := e.(type) {
	case *ColumnField:
		return e.Def
	case *ExprField:
		return e.resolve()
	case *StructField:
		return e.Def
	case *JoinField:
		return e.def
	case *TurtleField:
		return e.Def
	case *ReferenceField:
		return &plan.FieldRef{Path: e.Path}
	case *RenameField:
		inner := fieldDef(a, e.Name, e.Entry)
		if inner == nil {
			return nil
		}
		return renameFieldDef(inner, e.Name)
	case *AbstractParameter, *DefinedParameter, *WildField, *PendingTurtle:
		return nil
	default:
		panic(fmt.Sprintf("unknown space entry %T", e))
	}
}

func renameFieldDef(def plan.FieldDef, name string) plan.FieldDef {
	switch def := def.(type) {
	case *plan.ColumnDef:
		c := *def
		if c.Expr == nil {
			// A renamed physical column still reads the old column.
			c.Expr = plan.Expr{plan.Field(def.Name)}
		}
		c.Name = name
		return &c
	case *plan.StructDef:
		c := def.Clone()
		c.Name = name
		return c
	case *plan.TurtleDef:
		c := *def
		c.Name = name
		return &c
	default:
		return def
	}
}
