package semantic

import (
	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
	"github.com/malloydata/malloy/compiler/zone"
	"go.uber.org/zap"
)

// resolveSourceValue resolves a source to its full schema.  It returns
// nil — with a data request recorded — when a dependent schema is not
// in its zone yet, and the error sentinel when the source is broken
// but analysis should continue.
func (a *Analyzer) resolveSourceValue(src ast.Source) *plan.StructDef {
	switch src := src.(type) {
	case *ast.TableSource:
		return a.resolveTable(src)
	case *ast.SQLSource:
		return a.resolveSQL(src)
	case *ast.NamedSource:
		return a.resolveNamed(src)
	case *ast.QuerySource:
		return a.resolveQuerySource(src)
	case *ast.RefinedSource:
		return a.resolveRefined(src)
	default:
		a.errorf(src, "unexpected source")
		return ErrorStructDef()
	}
}

// structRefFor decides how a query's plan references its already
// resolved source: an exported, unparameterized named source stays a
// bare name; everything else inlines the schema.
func (a *Analyzer) structRefFor(src ast.Source, resolved *plan.StructDef) plan.StructRef {
	if named, ok := src.(*ast.NamedSource); ok && len(named.Params) == 0 {
		if entry := a.modelEntry(named.Name); entry != nil && entry.exported && entry.structDef != nil {
			if len(entry.structDef.Parameters) == 0 {
				return &plan.NamedRef{Name: named.Name}
			}
		}
	}
	return resolved
}

func (a *Analyzer) resolveTable(src *ast.TableSource) *plan.StructDef {
	entry := a.schemas.GetEntry(src.Name)
	switch entry.Status {
	case zone.Present:
		def := entry.Value.Clone()
		def.Location = src.Loc
		return def
	case zone.Error:
		msg := entry.Message
		if msg == "" {
			msg = "schema read failure"
		}
		a.errorf(src, "table %q: %s", src.Name, msg)
		return ErrorStructDef()
	default:
		a.logger.Debug("table schema not yet fetched", zap.String("table", src.Name))
		a.schemas.Reference(src.Name, src.Loc)
		a.needTables = true
		return nil
	}
}

func (a *Analyzer) resolveSQL(src *ast.SQLSource) *plan.StructDef {
	entry := a.modelEntry(src.Name)
	if entry == nil {
		a.errorf(src, "sql block %q is not defined", src.Name)
		return ErrorStructDef()
	}
	if entry.sqlBlock == nil {
		a.errorf(src, "%q is not a sql block; use from_sql() only with sql blocks", src.Name)
		return ErrorStructDef()
	}
	zentry := a.sqlSchemas.GetEntry(src.Name)
	switch zentry.Status {
	case zone.Present:
		def := zentry.Value.Clone()
		def.Location = src.Loc
		return def
	case zone.Error:
		a.errorf(src, "sql block %q: %s", src.Name, zentry.Message)
		return ErrorStructDef()
	default:
		a.logger.Debug("sql block schema not yet compiled", zap.String("block", src.Name))
		a.sqlSchemas.Reference(src.Name, src.Loc)
		if a.needSQL == nil {
			a.needSQL = entry.sqlBlock
		}
		return nil
	}
}

func (a *Analyzer) resolveNamed(src *ast.NamedSource) *plan.StructDef {
	entry := a.modelEntry(src.Name)
	if entry == nil {
		a.errorf(src, "source %q is not defined", src.Name)
		return ErrorStructDef()
	}
	if entry.query != nil {
		a.errorf(src, "cannot use query %q as a source; use from()", src.Name)
		return ErrorStructDef()
	}
	if entry.sqlBlock != nil {
		a.errorf(src, "cannot use sql block %q as a source; use from_sql()", src.Name)
		return ErrorStructDef()
	}
	def := entry.structDef.Clone()
	def.Location = src.Loc
	return a.bindParameters(src, def)
}

// bindParameters satisfies a source's declared parameters from the
// reference's is-block: every given value must match a declared,
// non-constant parameter, and every required parameter must end up
// with a value.
func (a *Analyzer) bindParameters(src *ast.NamedSource, def *plan.StructDef) *plan.StructDef {
	declared := make(map[string]*plan.Parameter, len(def.Parameters))
	params := make([]*plan.Parameter, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		c := *p
		declared[p.Name] = &c
		params = append(params, &c)
	}
	def.Parameters = params
	for _, pb := range src.Params {
		p := declared[pb.Name]
		if p == nil {
			a.errorf(&pb, "%q is not a parameter of %q", pb.Name, src.Name)
			continue
		}
		if p.Constant {
			a.errorf(&pb, "constant parameter %q cannot be set", pb.Name)
			continue
		}
		if p.IsCondition {
			p.Condition = a.constantCondition(p, &pb)
			continue
		}
		v := a.evalExpr(a.constantSpace(def.Dialect), pb.Value)
		if v.typ == malloy.TypeError {
			continue
		}
		if v.typ != p.Type {
			// The caller's value casts to the declared type rather
			// than failing, e.g. a date literal bound to a number.
			v.value = plan.Expr{&plan.CastFrag{Kind: "cast", Expr: v.value, To: string(p.Type), Safe: true}}
		}
		p.Value = v.value
	}
	for _, p := range def.Parameters {
		if p.Required() {
			a.errorf(src, "required parameter %q has no value", p.Name)
		}
	}
	return def
}

// constantCondition compiles a condition-parameter binding: a partial
// comparison or alternation applied to the parameter at its declared
// type.
func (a *Analyzer) constantCondition(p *plan.Parameter, pb *ast.ParamBinding) plan.Expr {
	left := exprValue{
		typ:   p.Type,
		kind:  malloy.Scalar,
		space: malloy.ConstantSpace,
		value: plan.Expr{&plan.ParamFrag{Kind: "parameter", Name: p.Name}},
	}
	v := a.applyOp(a.constantSpace(""), pb, left, "=", pb.Value)
	if v.typ == malloy.TypeError {
		return nil
	}
	return v.value
}

// constantSpace is the empty space constant expressions compile in;
// any field lookup fails.
func (a *Analyzer) constantSpace(dialectName string) FieldSpace {
	return NewStaticSpace(a, &plan.StructDef{
		Name:         "~constants~",
		Dialect:      dialectName,
		Source:       plan.StructSource{Type: "nested"},
		Relationship: plan.Relationship{Type: "basetable"},
	})
}

func (a *Analyzer) resolveQuerySource(src *ast.QuerySource) *plan.StructDef {
	q := a.compileQuery(src.Query, nil)
	if q == nil {
		return nil
	}
	def := a.outputStructOf(src, q)
	if IsErrorStructDef(def) {
		return def
	}
	def = def.Clone()
	def.Source = plan.StructSource{Type: "query", Query: q}
	def.Location = src.Loc
	return def
}

// resolveRefined overlays explore properties on a base source: at most
// one primary key and one accept/except edit, plus declared fields,
// joins, turtles, renames, filters, and parameters.
func (a *Analyzer) resolveRefined(src *ast.RefinedSource) *plan.StructDef {
	base := a.resolveSourceValue(src.Base)
	if base == nil {
		return nil
	}
	if IsErrorStructDef(base) {
		return base
	}
	var edit *ast.FieldListEdit
	for _, prop := range src.Refinement {
		if e, ok := prop.(*ast.FieldListEdit); ok {
			if edit != nil {
				a.errorf(e, "accept/except may only appear once per source")
				continue
			}
			edit = e
		}
	}
	space := FilteredFrom(a, base, edit)
	for _, prop := range src.Refinement {
		a.applyExploreProp(space, prop)
	}
	return space.StructDef()
}

func (a *Analyzer) applyExploreProp(space *DynamicSpace, prop ast.ExploreProp) {
	switch prop := prop.(type) {
	case *ast.FieldListEdit:
		// Consumed before the property walk.
	case *ast.PrimaryKey:
		if space.pkNode != nil {
			a.errorf(space.pkNode, "duplicate primary key")
			a.errorf(prop, "duplicate primary key")
			return
		}
		space.SetPrimaryKey(prop, prop.Name)
	case *ast.DeclareFields:
		for i := range prop.Fields {
			decl := &prop.Fields[i]
			space.NewEntry(decl, decl.Name, &ExprField{a: a, decl: decl, owner: space})
		}
	case *ast.Joins:
		for i := range prop.Joins {
			a.declareJoin(space, &prop.Joins[i])
		}
	case *ast.TurtleDecl:
		space.NewEntry(prop, prop.Name, &PendingTurtle{a: a, decl: prop, owner: space})
	case *ast.RenameField:
		a.applyRename(space, prop)
	case *ast.FilterProp:
		if prop.Having {
			a.errorf(prop, "having is not legal in a source")
			return
		}
		for _, e := range prop.Exprs {
			fc := a.evalFilter(space, e)
			if fc == nil {
				continue
			}
			if fc.Kind.IsCalculation() {
				a.errorf(e, "aggregate expressions are not allowed in source filters")
				continue
			}
			space.AddFilter(fc)
		}
	case *ast.ParamDecls:
		a.declareParameters(space, prop)
	default:
		a.errorf(prop, "unexpected source property")
	}
}

// declareJoin resolves the joined source now; its on expression waits
// for the fixup pass so it can reference any field of the completed
// space, including the join's own columns.
func (a *Analyzer) declareJoin(space *DynamicSpace, decl *ast.JoinDecl) {
	def := a.resolveSourceValue(decl.Source)
	if def == nil {
		return
	}
	def = def.Clone()
	def.Name = decl.Name
	def.Relationship = plan.Relationship{Type: "join"}
	space.NewEntry(decl, decl.Name, &JoinField{a: a, decl: decl, def: def})
}

func (a *Analyzer) applyRename(space *DynamicSpace, prop *ast.RenameField) {
	if prop.As == prop.From {
		a.errorf(prop, "cannot rename %q to itself", prop.From)
		return
	}
	e := space.entry(prop.From)
	if e == nil {
		a.errorf(prop, "%q is not defined", prop.From)
		return
	}
	switch e.(type) {
	case *AbstractParameter, *DefinedParameter, *WildField:
		a.errorf(prop, "%q cannot be renamed", prop.From)
		return
	}
	space.RenameEntry(prop, prop.As, prop.From)
}

func (a *Analyzer) declareParameters(space *DynamicSpace, prop *ast.ParamDecls) {
	var params []*plan.Parameter
	for i := range prop.Params {
		decl := &prop.Params[i]
		p := &plan.Parameter{
			Name:        decl.Name,
			Type:        decl.Type,
			Constant:    decl.Constant,
			IsCondition: decl.IsCondition,
		}
		if decl.Default != nil {
			if p.IsCondition {
				p.Condition = a.constantCondition(p, &ast.ParamBinding{
					Name:  decl.Name,
					Value: decl.Default,
					Loc:   decl.Loc,
				})
			} else {
				v := a.evalExpr(a.constantSpace(""), decl.Default)
				if v.typ != malloy.TypeError {
					if v.typ != p.Type {
						v.value = plan.Expr{&plan.CastFrag{Kind: "cast", Expr: v.value, To: string(p.Type), Safe: true}}
					}
					p.Value = v.value
				}
			}
		}
		params = append(params, p)
	}
	space.AddParameters(prop, params)
}
