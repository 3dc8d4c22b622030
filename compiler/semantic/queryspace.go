package semantic

import (
	"strings"

	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
)

// A QuerySpace is the input side of one pipeline segment: the previous
// stage's schema plus anything the segment declares or joins inline.
// Inline additions flow into the finalized segment's extend_source in
// insertion order.
type QuerySpace struct {
	*DynamicSpace
	// nestParent is the enclosing query's input space when this query
	// is nested inside a reduce segment.
	nestParent *QuerySpace
	// result is the output space of the segment reading this input.
	result     *ResultSpace
	extendList []string
}

func NewQuerySpace(a *Analyzer, input *plan.StructDef, nestParent *QuerySpace) *QuerySpace {
	return &QuerySpace{
		DynamicSpace: NewDynamicSpace(a, input),
		nestParent:   nestParent,
	}
}

// ExtendWithField declares a dimension or measure scoped to this
// segment.
func (s *QuerySpace) ExtendWithField(decl *ast.FieldDecl) {
	e := &ExprField{a: s.a, decl: decl, owner: s}
	if s.NewEntry(decl, decl.Name, e) == nil {
		s.extendList = append(s.extendList, decl.Name)
	}
}

// ExtendWithJoin joins a source scoped to this segment.  The join's on
// expression compiles immediately against this space, which already
// holds the join itself, so self-referential conditions resolve.
func (s *QuerySpace) ExtendWithJoin(decl ast.JoinDecl) {
	def := s.a.resolveSourceValue(decl.Source)
	if def == nil {
		return
	}
	def = def.Clone()
	def.Name = decl.Name
	def.Relationship = plan.Relationship{Type: "join"}
	j := &JoinField{a: s.a, decl: &decl, def: def, onDone: true}
	if s.NewEntry(&decl, decl.Name, j) != nil {
		return
	}
	s.extendList = append(s.extendList, decl.Name)
	if decl.On != nil {
		v := s.a.evalExpr(s, decl.On)
		if v.typ != malloy.TypeBoolean && v.typ != malloy.TypeError {
			s.a.errorf(&decl, "join %q on expression must be boolean, not %s", decl.Name, v.typ)
		}
		def.Relationship.On = v.value
	}
}

// ExtendedFields returns the plan fields added inline within this
// segment, in insertion order.
func (s *QuerySpace) ExtendedFields() []plan.FieldDef {
	var out []plan.FieldDef
	for _, name := range s.extendList {
		if f := fieldDef(s.a, name, s.entry(name)); f != nil {
			out = append(out, f)
		}
	}
	return out
}

// segmentKind tells a result space what it may contain.
type segmentKind int

const (
	reduceKind segmentKind = iota
	projectKind
	indexKind
)

// itemMode records which property list a query item arrived in, which
// fixes the expression kinds it may carry.
type itemMode int

const (
	groupByMode itemMode = iota
	aggregateMode
	projectMode
)

// A ResultSpace is the output side of a segment: a dynamic space that
// starts empty and accumulates the segment's output columns.  Name
// lookups that miss the output fall through to the expression space,
// so definitions can reference both input fields and already-defined
// output names.
type ResultSpace struct {
	*DynamicSpace
	kind      segmentKind
	exprSpace *QuerySpace
}

func NewReduceFieldSpace(a *Analyzer, in *QuerySpace) *ResultSpace {
	return newResultSpace(a, in, reduceKind)
}

func NewProjectFieldSpace(a *Analyzer, in *QuerySpace) *ResultSpace {
	return newResultSpace(a, in, projectKind)
}

func newResultSpace(a *Analyzer, in *QuerySpace, kind segmentKind) *ResultSpace {
	r := &ResultSpace{
		DynamicSpace: newBareDynamicSpace(a, in.EmptyStructDef()),
		kind:         kind,
		exprSpace:    in,
	}
	in.result = r
	return r
}

// Lookup resolves against this segment's output first, then the input.
func (r *ResultSpace) Lookup(n ast.Node, path []string) LookupResult {
	if len(path) == 1 {
		if e := r.entry(path[0]); e != nil {
			return found(e)
		}
	}
	return r.exprSpace.Lookup(n, path)
}

// HasOutput reports whether name is one of this segment's output
// columns.
func (r *ResultSpace) HasOutput(name string) bool {
	return r.entry(name) != nil
}

// NestParentResult returns the result space of the enclosing query, or
// nil at the top level.
func (r *ResultSpace) NestParentResult() *ResultSpace {
	if r.exprSpace.nestParent == nil {
		return nil
	}
	return r.exprSpace.nestParent.result
}

// AddItems places query items into the output space, enforcing the
// expression-kind rules of the property they arrived in.
func (r *ResultSpace) AddItems(items []ast.QueryItem, mode itemMode) {
	for _, item := range items {
		switch item := item.(type) {
		case *ast.FieldRef:
			r.addRef(item, mode)
		case *ast.FieldDecl:
			r.addDecl(item, mode)
		case *ast.Wildcard:
			if r.kind != projectKind {
				r.a.errorf(item, "wildcard references require a project segment")
				continue
			}
			r.NewEntry(item, wildcardKey(item), &WildField{Wild: item})
		default:
			r.a.errorf(item, "unexpected query item")
		}
	}
}

func (r *ResultSpace) addRef(ref *ast.FieldRef, mode itemMode) {
	res := r.exprSpace.Lookup(ref, ref.Path)
	if res.Error != "" {
		r.a.errorf(ref, "%s", res.Error)
		return
	}
	name := ref.Path[len(ref.Path)-1]
	switch e := res.Entry.(type) {
	case *TurtleField, *PendingTurtle:
		if r.kind == projectKind {
			r.a.errorf(ref, "cannot nest queries in project")
			return
		}
		if mode != groupByMode {
			r.a.errorf(ref, "query %q must be referenced with nest", name)
			return
		}
	case *AbstractParameter, *DefinedParameter:
		r.a.errorf(ref, "parameter %q cannot be a query field", name)
		return
	case *StructField, *JoinField:
		r.a.errorf(ref, "join %q cannot be a query field", name)
		return
	default:
		td := e.TypeDesc()
		if !r.kindAllowed(ref, name, td.Kind, mode) {
			return
		}
	}
	r.NewEntry(ref, name, &ReferenceField{Path: ref.Path, Entry: res.Entry})
}

func (r *ResultSpace) addDecl(decl *ast.FieldDecl, mode itemMode) {
	e := &ExprField{a: r.a, decl: decl, owner: r}
	td := e.TypeDesc()
	if td.Type != malloy.TypeError && !r.kindAllowed(decl, decl.Name, td.Kind, mode) {
		r.NewEntry(decl, decl.Name, errorEntry(decl))
		return
	}
	r.NewEntry(decl, decl.Name, e)
}

// kindAllowed enforces what may appear where: group_by takes scalars,
// aggregate takes calculations, and project never takes aggregates.
func (r *ResultSpace) kindAllowed(n ast.Node, name string, kind malloy.ExprKind, mode itemMode) bool {
	if r.kind == projectKind {
		if kind.IsCalculation() {
			r.a.errorf(n, "cannot add aggregate measures to project")
			return false
		}
		return true
	}
	switch mode {
	case groupByMode:
		if kind.IsCalculation() {
			r.a.errorf(n, "cannot group by aggregate %q", name)
			return false
		}
	case aggregateMode:
		if !kind.IsCalculation() {
			r.a.errorf(n, "%q is not an aggregate; use group_by", name)
			return false
		}
	}
	return true
}

// AddNest places a compiled nested query in the output.
func (r *ResultSpace) AddNest(n ast.Node, def *plan.TurtleDef) {
	if r.kind == projectKind {
		r.a.errorf(n, "cannot nest queries in project")
		return
	}
	r.NewEntry(n, def.Name, &TurtleField{Def: def})
}

func errorEntry(decl *ast.FieldDecl) SpaceEntry {
	return &ColumnField{Def: &plan.ColumnDef{
		Name:     decl.Name,
		Type:     malloy.TypeError,
		Expr:     plan.ErrorExpr(),
		Location: decl.Loc,
	}}
}

// QueryFieldDefs renders the segment's field list in insertion order,
// expanding project wildcards into references to the input's atomic
// fields.
func (r *ResultSpace) QueryFieldDefs() []plan.FieldDef {
	var out []plan.FieldDef
	for _, name := range r.order {
		switch e := r.names[name].(type) {
		case *WildField:
			out = append(out, r.expandWildcard(e.Wild)...)
		default:
			if f := fieldDef(r.a, name, e); f != nil {
				out = append(out, f)
			}
		}
	}
	return out
}

// expandWildcard resolves * against the referenced space's atomic
// fields; ** recurses through joins, qualifying each path.
func (r *ResultSpace) expandWildcard(w *ast.Wildcard) []plan.FieldDef {
	space := FieldSpace(r.exprSpace)
	if len(w.JoinPath) > 0 {
		res := r.exprSpace.Lookup(w, w.JoinPath)
		if res.Error != "" {
			r.a.errorf(w, "%s", res.Error)
			return nil
		}
		switch e := res.Entry.(type) {
		case *StructField:
			space = e.Space(r.a)
		case *JoinField:
			space = NewStaticSpace(r.a, e.def)
		default:
			r.a.errorf(w, "%q cannot be expanded with a wildcard", strings.Join(w.JoinPath, "."))
			return nil
		}
	}
	var out []plan.FieldDef
	for _, path := range wildcardPaths(space.StructDef(), w.JoinPath, w.DoubleStar) {
		out = append(out, &plan.FieldRef{Path: path})
	}
	return out
}

func wildcardPaths(def *plan.StructDef, prefix []string, deep bool) [][]string {
	var out [][]string
	for _, f := range def.Fields {
		switch f := f.(type) {
		case *plan.ColumnDef:
			out = append(out, append(append([]string(nil), prefix...), f.Name))
		case *plan.FieldRef:
			out = append(out, append(append([]string(nil), prefix...), f.FieldName()))
		case *plan.StructDef:
			if deep {
				out = append(out, wildcardPaths(f, append(append([]string(nil), prefix...), f.Name), true)...)
			}
		}
	}
	return out
}

func wildcardKey(w *ast.Wildcard) string {
	star := "*"
	if w.DoubleStar {
		star = "**"
	}
	if len(w.JoinPath) > 0 {
		return strings.Join(w.JoinPath, ".") + "." + star
	}
	return star
}

// An IndexFieldSpace collects the column and wildcard references of an
// index segment.  It keeps names only — no definitions — deduplicated
// by exact reference string in insertion order.
type IndexFieldSpace struct {
	*DynamicSpace
	exprSpace *QuerySpace
	refs      []string
	seen      map[string]bool
}

func NewIndexFieldSpace(a *Analyzer, in *QuerySpace) *IndexFieldSpace {
	return &IndexFieldSpace{
		DynamicSpace: newBareDynamicSpace(a, in.EmptyStructDef()),
		exprSpace:    in,
		seen:         make(map[string]bool),
	}
}

// AddItems records index references, validating each against the input
// space.
func (r *IndexFieldSpace) AddItems(items []ast.QueryItem) {
	for _, item := range items {
		switch item := item.(type) {
		case *ast.FieldRef:
			res := r.exprSpace.Lookup(item, item.Path)
			if res.Error != "" {
				r.a.errorf(item, "%s", res.Error)
				continue
			}
			r.addRef(strings.Join(item.Path, "."))
		case *ast.Wildcard:
			r.addRef(wildcardKey(item))
		case *ast.FieldDecl:
			r.a.errorf(item, "cannot define fields in an index segment")
		}
	}
}

func (r *IndexFieldSpace) addRef(ref string) {
	if r.seen[ref] {
		return
	}
	r.seen[ref] = true
	r.refs = append(r.refs, ref)
}

// Refs returns the deduplicated references in insertion order.
func (r *IndexFieldSpace) Refs() []string {
	return r.refs
}
