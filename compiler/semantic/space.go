package semantic

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/dialect"
	"github.com/malloydata/malloy/compiler/plan"
	"github.com/segmentio/ksuid"
)

// A LookupResult is the outcome of resolving a path in a space: the
// entry found, or the message to log at the reference site.
type LookupResult struct {
	Entry SpaceEntry
	Error string
}

func found(e SpaceEntry) LookupResult {
	return LookupResult{Entry: e}
}

func notFound(msg string) LookupResult {
	return LookupResult{Error: msg}
}

// A FieldSpace resolves names during expression evaluation and
// renders itself as a schema.
type FieldSpace interface {
	// Lookup resolves a dotted path.  n anchors reference records and
	// diagnostics at the referencing node.
	Lookup(n ast.Node, path []string) LookupResult
	// StructDef renders the space as a schema.  For dynamic spaces the
	// first call finalizes the space.
	StructDef() *plan.StructDef
	// EmptyStructDef is the space's schema with no fields: dialect,
	// source, and parameters preserved.
	EmptyStructDef() *plan.StructDef
	// Dialect returns the space's dialect, or nil when unknown.
	Dialect() dialect.Dialect
	// WhenComplete runs fn when the space finalizes; on an already
	// complete space it runs immediately.
	WhenComplete(fn func())
}

// entrySource is the portion of a space the shared path-walking logic
// needs.
type entrySource interface {
	entry(name string) SpaceEntry
	entryNames() []string
	analyzer() *Analyzer
}

// lookup walks path one segment at a time: each intermediate segment
// must be a struct (join), and the final segment may be any entry.
func lookup(s entrySource, n ast.Node, path []string) LookupResult {
	if len(path) == 0 {
		return notFound("empty field reference")
	}
	a := s.analyzer()
	e := s.entry(path[0])
	if e == nil {
		msg := fmt.Sprintf("%q is not defined", path[0])
		if hint := nearestName(path[0], s.entryNames()); hint != "" {
			msg += fmt.Sprintf("; did you mean %q?", hint)
		}
		return notFound(msg)
	}
	if len(path) == 1 {
		a.addReference(n, path, e)
		return found(e)
	}
	switch e := e.(type) {
	case *StructField:
		return e.Space(a).Lookup(n, path[1:])
	case *JoinField:
		if e.def == nil {
			return notFound(fmt.Sprintf("join %q is not resolved", path[0]))
		}
		return NewStaticSpace(a, e.def).Lookup(n, path[1:])
	default:
		return notFound(fmt.Sprintf("%q cannot contain %q", path[0], path[1]))
	}
}

// nearestName suggests a close existing name for a failed lookup.
func nearestName(name string, candidates []string) string {
	best := ""
	bestDist := 3
	sort.Strings(candidates)
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// A StaticSpace wraps a complete schema, memoizing its name map on
// first lookup.
type StaticSpace struct {
	a      *Analyzer
	source *plan.StructDef
	memo   map[string]SpaceEntry
}

func NewStaticSpace(a *Analyzer, source *plan.StructDef) *StaticSpace {
	return &StaticSpace{a: a, source: source}
}

func (s *StaticSpace) analyzer() *Analyzer { return s.a }

func (s *StaticSpace) entry(name string) SpaceEntry {
	s.build()
	return s.memo[name]
}

func (s *StaticSpace) entryNames() []string {
	s.build()
	names := make([]string, 0, len(s.memo))
	for name := range s.memo {
		names = append(names, name)
	}
	return names
}

func (s *StaticSpace) build() {
	if s.memo != nil {
		return
	}
	s.memo = make(map[string]SpaceEntry)
	for _, f := range s.source.Fields {
		s.memo[f.FieldName()] = entryForFieldDef(f)
	}
	for _, p := range s.source.Parameters {
		s.memo[p.Name] = &DefinedParameter{Param: p}
	}
}

func entryForFieldDef(f plan.FieldDef) SpaceEntry {
	switch f := f.(type) {
	case *plan.ColumnDef:
		return &ColumnField{Def: f}
	case *plan.StructDef:
		return &StructField{Def: f}
	case *plan.TurtleDef:
		return &TurtleField{Def: f}
	case *plan.FieldRef:
		return &ReferenceField{Path: f.Path}
	default:
		panic(fmt.Sprintf("unknown field def %T", f))
	}
}

func (s *StaticSpace) Lookup(n ast.Node, path []string) LookupResult {
	return lookup(s, n, path)
}

func (s *StaticSpace) StructDef() *plan.StructDef {
	return s.source
}

func (s *StaticSpace) EmptyStructDef() *plan.StructDef {
	empty := s.source.Clone()
	empty.Fields = nil
	return empty
}

func (s *StaticSpace) Dialect() dialect.Dialect {
	return dialect.Get(s.source.Dialect)
}

// WhenComplete runs fn immediately; a static space is complete by
// construction.
func (s *StaticSpace) WhenComplete(fn func()) {
	fn()
}

// ErrFrozen is returned by mutations attempted after a space has
// finalized.
var ErrFrozen = errors.New("field space is already complete")

// A DynamicSpace accumulates entries and freezes into a StructDef on
// first structural read.  Fields emit in a deterministic order —
// atomic fields, then joins, then turtles — and a fixup pass resolves
// join-on expressions and compiles pending turtles once the space is
// structurally complete.
type DynamicSpace struct {
	a       *Analyzer
	id      ksuid.KSUID
	seed    *plan.StructDef
	names   map[string]SpaceEntry
	order   []string
	pk      string
	pkNode  ast.Node
	filters []*plan.FilterCondition

	final       *plan.StructDef
	completeCBs []func()
}

// NewDynamicSpace seeds a mutable space from a schema's fields and
// parameters.
func NewDynamicSpace(a *Analyzer, seed *plan.StructDef) *DynamicSpace {
	s := newBareDynamicSpace(a, seed)
	for _, f := range seed.Fields {
		s.put(f.FieldName(), entryForFieldDef(f))
	}
	for _, p := range seed.Parameters {
		s.put(p.Name, &DefinedParameter{Param: p})
	}
	return s
}

func newBareDynamicSpace(a *Analyzer, seed *plan.StructDef) *DynamicSpace {
	return &DynamicSpace{
		a:     a,
		id:    ksuid.New(),
		seed:  seed,
		names: make(map[string]SpaceEntry),
		pk:    seed.PrimaryKey,
	}
}

// FilteredFrom seeds a dynamic space from a schema with an optional
// accept/except edit applied: accept keeps exactly the listed fields,
// except drops them.  Parameters are never filtered.
func FilteredFrom(a *Analyzer, seed *plan.StructDef, edit *ast.FieldListEdit) *DynamicSpace {
	if edit == nil {
		return NewDynamicSpace(a, seed)
	}
	listed := make(map[string]bool, len(edit.Refs))
	for _, name := range edit.Refs {
		listed[name] = true
	}
	s := newBareDynamicSpace(a, seed)
	for _, f := range seed.Fields {
		name := f.FieldName()
		if listed[name] == (edit.Edit == "accept") {
			s.put(name, entryForFieldDef(f))
		}
	}
	for _, p := range seed.Parameters {
		s.put(p.Name, &DefinedParameter{Param: p})
	}
	return s
}

func (s *DynamicSpace) analyzer() *Analyzer { return s.a }

// ID returns the unique identifier assigned to this space when it was
// created.
func (s *DynamicSpace) ID() ksuid.KSUID { return s.id }

func (s *DynamicSpace) entry(name string) SpaceEntry {
	return s.names[name]
}

func (s *DynamicSpace) entryNames() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Entries returns the space's entries in insertion order.
func (s *DynamicSpace) Entries() []SpaceEntry {
	out := make([]SpaceEntry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.names[name])
	}
	return out
}

func (s *DynamicSpace) put(name string, e SpaceEntry) {
	if _, ok := s.names[name]; !ok {
		s.order = append(s.order, name)
	}
	s.names[name] = e
}

// NewEntry adds a named entry, logging a diagnostic on a duplicate
// output name and failing once the space is frozen.
func (s *DynamicSpace) NewEntry(n ast.Node, name string, e SpaceEntry) error {
	if s.final != nil {
		return ErrFrozen
	}
	if _, ok := s.names[name]; ok {
		s.a.errorf(n, "cannot redefine %q", name)
		return nil
	}
	s.put(name, e)
	return nil
}

// AddFieldDef adds an already compiled plan field.
func (s *DynamicSpace) AddFieldDef(n ast.Node, f plan.FieldDef) error {
	return s.NewEntry(n, f.FieldName(), entryForFieldDef(f))
}

// AddParameters declares parameters on the space.
func (s *DynamicSpace) AddParameters(n ast.Node, params []*plan.Parameter) error {
	for _, p := range params {
		if err := s.NewEntry(n, p.Name, &DefinedParameter{Param: p}); err != nil {
			return err
		}
	}
	return nil
}

// SetPrimaryKey records the refined primary key; the name is checked
// at finalization, when the space knows its full field list.
func (s *DynamicSpace) SetPrimaryKey(n ast.Node, name string) error {
	if s.final != nil {
		return ErrFrozen
	}
	s.pk = name
	s.pkNode = n
	return nil
}

// RenameEntry moves the entry named from to the name as, keeping its
// position in field order.
func (s *DynamicSpace) RenameEntry(n ast.Node, as, from string) error {
	if s.final != nil {
		return ErrFrozen
	}
	e, ok := s.names[from]
	if !ok {
		return nil
	}
	if _, taken := s.names[as]; taken {
		s.a.errorf(n, "cannot redefine %q", as)
		return nil
	}
	delete(s.names, from)
	s.names[as] = &RenameField{Name: as, Entry: e}
	for i, name := range s.order {
		if name == from {
			s.order[i] = as
			break
		}
	}
	return nil
}

// AddFilter appends a compiled filter to the finalized schema.
func (s *DynamicSpace) AddFilter(f *plan.FilterCondition) error {
	if s.final != nil {
		return ErrFrozen
	}
	s.filters = append(s.filters, f)
	return nil
}

func (s *DynamicSpace) Lookup(n ast.Node, path []string) LookupResult {
	return lookup(s, n, path)
}

func (s *DynamicSpace) Dialect() dialect.Dialect {
	return dialect.Get(s.seed.Dialect)
}

func (s *DynamicSpace) EmptyStructDef() *plan.StructDef {
	empty := s.seed.Clone()
	empty.Fields = nil
	empty.Filters = nil
	return empty
}

// WhenComplete runs fn at finalization, or immediately if the space is
// already frozen.  Callbacks run in registration order.
func (s *DynamicSpace) WhenComplete(fn func()) {
	if s.final != nil {
		fn()
		return
	}
	s.completeCBs = append(s.completeCBs, fn)
}

// StructDef freezes the space on first call and returns the same
// schema thereafter.
func (s *DynamicSpace) StructDef() *plan.StructDef {
	if s.final != nil {
		return s.final
	}
	out := s.EmptyStructDef()
	out.Filters = append(out.Filters, s.filters...)
	haveParam := make(map[string]bool, len(out.Parameters))
	for _, p := range out.Parameters {
		haveParam[p.Name] = true
	}
	addParam := func(p *plan.Parameter) {
		if !haveParam[p.Name] {
			haveParam[p.Name] = true
			out.Parameters = append(out.Parameters, p)
		}
	}

	// Atomic fields first, in insertion order, then joins, then
	// turtles.  Parameters collect in declaration order alongside.
	var joins []*JoinField
	var structs []*plan.StructDef
	var pending []*PendingTurtle
	var turtleDefs []*plan.TurtleDef
	for _, name := range s.order {
		switch e := s.names[name].(type) {
		case *JoinField:
			joins = append(joins, e)
		case *StructField:
			structs = append(structs, e.Def)
		case *TurtleField:
			turtleDefs = append(turtleDefs, e.Def)
		case *PendingTurtle:
			pending = append(pending, e)
		case *DefinedParameter:
			addParam(e.Param)
		case *AbstractParameter:
			addParam(&plan.Parameter{
				Name:        e.Decl.Name,
				Type:        e.Decl.Type,
				Constant:    e.Decl.Constant,
				IsCondition: e.Decl.IsCondition,
			})
		default:
			switch f := fieldDef(s.a, name, e).(type) {
			case nil:
			case *plan.StructDef:
				structs = append(structs, f)
			case *plan.TurtleDef:
				turtleDefs = append(turtleDefs, f)
			default:
				out.Fields = append(out.Fields, f)
			}
		}
	}
	for _, def := range structs {
		out.Fields = append(out.Fields, def)
	}
	for _, j := range joins {
		out.Fields = append(out.Fields, j.def)
	}
	if s.pk != "" {
		out.PrimaryKey = s.pk
		if s.pkNode != nil && s.names[s.pk] == nil {
			s.a.errorf(s.pkNode, "primary key %q is not defined", s.pk)
		}
	}
	s.final = out

	// Fixup pass: join-on expressions resolve against the structurally
	// complete space, then pending turtles compile with the finalized
	// fields as their input.
	for _, j := range joins {
		if j.decl != nil && j.decl.On != nil && !j.onDone {
			v := s.a.evalExpr(s, j.decl.On)
			if v.typ != malloy.TypeBoolean && v.typ != malloy.TypeError {
				s.a.errorf(j.decl, "join %q on expression must be boolean, not %s", j.decl.Name, v.typ)
			}
			j.def.Relationship = plan.Relationship{Type: "join", On: v.value}
		}
	}
	for _, def := range turtleDefs {
		out.Fields = append(out.Fields, def)
	}
	for _, e := range pending {
		if def := s.a.compileTurtle(e.decl, s); def != nil {
			out.Fields = append(out.Fields, def)
			// Later turtles may use this one as a pipeline head.
			s.names[e.decl.Name] = &TurtleField{Def: def}
		}
	}

	cbs := s.completeCBs
	s.completeCBs = nil
	for _, fn := range cbs {
		fn()
	}
	return s.final
}

// A DefSpace wraps the space a field definition compiles against.  A
// lookup of the very name being defined is a circular reference; the
// DefSpace reports it once and records that it happened so the definer
// suppresses follow-on type diagnostics.
type DefSpace struct {
	FieldSpace
	Defining string
	Circular bool
}

func (d *DefSpace) Lookup(n ast.Node, path []string) LookupResult {
	if len(path) > 0 && path[0] == d.Defining {
		d.Circular = true
		return notFound(fmt.Sprintf("circular reference to %q in definition", d.Defining))
	}
	return d.FieldSpace.Lookup(n, path)
}
