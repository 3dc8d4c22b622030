package semantic

import (
	"testing"

	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paramSource(t *testing.T, a *Analyzer, decls []ast.ParamDecl) {
	t.Helper()
	executeDoc(t, a, &ast.DefineSource{
		Name: "s",
		Source: &ast.RefinedSource{
			Base:       &ast.TableSource{Name: "flights"},
			Refinement: []ast.ExploreProp{&ast.ParamDecls{Params: decls}},
		},
	})
}

func resolveNamed(t *testing.T, a *Analyzer, src *ast.NamedSource) *plan.StructDef {
	t.Helper()
	def := a.resolveSourceValue(src)
	require.NotNil(t, def)
	return def
}

func TestParameterBindingCast(t *testing.T) {
	a := testAnalyzer(t)
	paramSource(t, a, []ast.ParamDecl{{Name: "p", Type: malloy.TypeNumber}})
	def := resolveNamed(t, a, &ast.NamedSource{
		Name:   "s",
		Params: []ast.ParamBinding{{Name: "p", Value: timeLit("2020-01-01")}},
	})
	assert.Empty(t, diagnostics(a), "binding a castable value is not an error")
	require.Len(t, def.Parameters, 1)
	p := def.Parameters[0]
	require.NotNil(t, p.Value)
	cast, ok := p.Value[0].(*plan.CastFrag)
	require.True(t, ok, "mismatched value binds through a safe cast")
	assert.Equal(t, "number", cast.To)
	assert.True(t, cast.Safe)
}

func TestRequiredParameterMissing(t *testing.T) {
	a := testAnalyzer(t)
	paramSource(t, a, []ast.ParamDecl{{Name: "p", Type: malloy.TypeNumber}})
	resolveNamed(t, a, &ast.NamedSource{Name: "s"})
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, `required parameter "p" has no value`, diagnostics(a)[0])
}

func TestUndeclaredParameter(t *testing.T) {
	a := testAnalyzer(t)
	paramSource(t, a, []ast.ParamDecl{{Name: "p", Type: malloy.TypeNumber, Default: numLit("1")}})
	resolveNamed(t, a, &ast.NamedSource{
		Name:   "s",
		Params: []ast.ParamBinding{{Name: "q", Value: numLit("2")}},
	})
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, `"q" is not a parameter of "s"`, diagnostics(a)[0])
}

func TestConstantParameterCannotBeSet(t *testing.T) {
	a := testAnalyzer(t)
	paramSource(t, a, []ast.ParamDecl{{Name: "p", Type: malloy.TypeNumber, Default: numLit("1"), Constant: true}})
	resolveNamed(t, a, &ast.NamedSource{
		Name:   "s",
		Params: []ast.ParamBinding{{Name: "p", Value: numLit("2")}},
	})
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, `constant parameter "p" cannot be set`, diagnostics(a)[0])
}

func TestParameterDefaultRoundTrip(t *testing.T) {
	a := testAnalyzer(t)
	paramSource(t, a, []ast.ParamDecl{{Name: "p", Type: malloy.TypeNumber, Default: numLit("10")}})
	withDefault := resolveNamed(t, a, &ast.NamedSource{Name: "s"})
	withValue := resolveNamed(t, a, &ast.NamedSource{
		Name:   "s",
		Params: []ast.ParamBinding{{Name: "p", Value: numLit("10")}},
	})
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, withDefault.Parameters, withValue.Parameters,
		"binding a value equal to the default yields the same plan")
}

func TestConditionParameter(t *testing.T) {
	a := testAnalyzer(t)
	paramSource(t, a, []ast.ParamDecl{{Name: "since", Type: malloy.TypeTimestamp, IsCondition: true}})
	def := resolveNamed(t, a, &ast.NamedSource{
		Name: "s",
		Params: []ast.ParamBinding{{
			Name:  "since",
			Value: &ast.Partial{Op: ">", RHS: timeLit("2020-01-01 00:00:00")},
		}},
	})
	assert.Empty(t, diagnostics(a))
	p := def.Parameters[0]
	assert.Equal(t, "($since > TIMESTAMP '2020-01-01 00:00:00')", render(p.Condition))
}

func TestNamedSourceWrongKind(t *testing.T) {
	a := testAnalyzer(t)
	executeDoc(t, a, &ast.DefineQuery{Name: "q", Query: tableQuery("flights", qop(groupBy(refItem("state"))))})
	def := a.resolveSourceValue(&ast.NamedSource{Name: "q"})
	assert.True(t, IsErrorStructDef(def))
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, `cannot use query "q" as a source; use from()`, diagnostics(a)[0])
}

func TestUndefinedNamedSource(t *testing.T) {
	a := testAnalyzer(t)
	def := a.resolveSourceValue(&ast.NamedSource{Name: "nope"})
	assert.True(t, IsErrorStructDef(def))
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, `source "nope" is not defined`, diagnostics(a)[0])
}

func TestCircularField(t *testing.T) {
	a := testAnalyzer(t)
	def := a.resolveSourceValue(&ast.RefinedSource{
		Base: &ast.TableSource{Name: "flights"},
		Refinement: []ast.ExploreProp{
			&ast.DeclareFields{Fields: []ast.FieldDecl{
				{Name: "x", Expr: binop("+", id("x"), numLit("1"))},
			}},
		},
	})
	require.NotNil(t, def)
	require.Len(t, diagnostics(a), 1, "one diagnostic, no type-error follow-on")
	assert.Equal(t, `circular reference to "x" in definition`, diagnostics(a)[0])
	col := def.FieldByName("x").(*plan.ColumnDef)
	assert.Equal(t, malloy.TypeError, col.Type)
}

func TestDuplicatePrimaryKey(t *testing.T) {
	a := testAnalyzer(t)
	a.resolveSourceValue(&ast.RefinedSource{
		Base: &ast.TableSource{Name: "flights"},
		Refinement: []ast.ExploreProp{
			&ast.PrimaryKey{Name: "carrier"},
			&ast.PrimaryKey{Name: "state"},
		},
	})
	require.Len(t, diagnostics(a), 2, "both occurrences log")
	assert.Equal(t, "duplicate primary key", diagnostics(a)[0])
	assert.Equal(t, "duplicate primary key", diagnostics(a)[1])
}

func TestPrimaryKeyMustResolve(t *testing.T) {
	a := testAnalyzer(t)
	a.resolveSourceValue(&ast.RefinedSource{
		Base:       &ast.TableSource{Name: "flights"},
		Refinement: []ast.ExploreProp{&ast.PrimaryKey{Name: "no_such"}},
	})
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, `primary key "no_such" is not defined`, diagnostics(a)[0])
}

func TestDuplicateFieldListEdit(t *testing.T) {
	a := testAnalyzer(t)
	def := a.resolveSourceValue(&ast.RefinedSource{
		Base: &ast.TableSource{Name: "flights"},
		Refinement: []ast.ExploreProp{
			&ast.FieldListEdit{Edit: "accept", Refs: []string{"state", "amount"}},
			&ast.FieldListEdit{Edit: "except", Refs: []string{"state"}},
		},
	})
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, "accept/except may only appear once per source", diagnostics(a)[0])
	assert.Equal(t, []string{"state", "amount"}, fieldNames(def), "the first edit applies")
}

func TestRenameToSelf(t *testing.T) {
	a := testAnalyzer(t)
	a.resolveSourceValue(&ast.RefinedSource{
		Base:       &ast.TableSource{Name: "flights"},
		Refinement: []ast.ExploreProp{&ast.RenameField{As: "state", From: "state"}},
	})
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, `cannot rename "state" to itself`, diagnostics(a)[0])
}

func TestSourceFilterRejectsAggregate(t *testing.T) {
	a := testAnalyzer(t)
	a.resolveSourceValue(&ast.RefinedSource{
		Base: &ast.TableSource{Name: "flights"},
		Refinement: []ast.ExploreProp{
			&ast.FilterProp{Exprs: []ast.Expr{binop(">", aggCount(), numLit("0"))}},
		},
	})
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, "aggregate expressions are not allowed in source filters", diagnostics(a)[0])
}

func TestRefinedJoinOn(t *testing.T) {
	a := testAnalyzer(t)
	a.schemas.Define("airports", &plan.StructDef{
		Name:    "airports",
		Dialect: "standardsql",
		Fields: []plan.FieldDef{
			&plan.ColumnDef{Name: "code", Type: malloy.TypeString},
			&plan.ColumnDef{Name: "elevation", Type: malloy.TypeNumber},
		},
		Source:       plan.StructSource{Type: "table", Name: "airports"},
		Relationship: plan.Relationship{Type: "basetable"},
	})
	def := a.resolveSourceValue(&ast.RefinedSource{
		Base: &ast.TableSource{Name: "flights"},
		Refinement: []ast.ExploreProp{
			&ast.Joins{Joins: []ast.JoinDecl{{
				Name:   "origin_airport",
				Source: &ast.TableSource{Name: "airports"},
				On:     binop("=", id("origin_airport", "code"), id("state")),
			}}},
		},
	})
	assert.Empty(t, diagnostics(a))
	join, ok := def.FieldByName("origin_airport").(*plan.StructDef)
	require.True(t, ok)
	assert.Equal(t, "join", join.Relationship.Type)
	assert.Equal(t, "(origin_airport.code = state)", render(join.Relationship.On))
	// Joins order after atomic fields.
	assert.Equal(t, "origin_airport", def.Fields[len(def.Fields)-1].FieldName())
}

func TestExportedSourceKeepsNameReference(t *testing.T) {
	a := testAnalyzer(t)
	executeDoc(t, a,
		&ast.DefineSource{Name: "f", Source: &ast.TableSource{Name: "flights"}, Exported: true},
		&ast.AnonQuery{Query: &ast.FullQuery{
			Source:   &ast.NamedSource{Name: "f"},
			Pipeline: ast.PipelineDesc{Segments: []ast.QOPDesc{qop(groupBy(refItem("state")))}},
		}},
	)
	assert.Empty(t, diagnostics(a))
	q := a.Queries()[0]
	ref, ok := q.StructRef.(*plan.NamedRef)
	require.True(t, ok)
	assert.Equal(t, "f", ref.Name)
}
