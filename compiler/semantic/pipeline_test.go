package semantic

import (
	"testing"

	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeDoc(t *testing.T, a *Analyzer, stmts ...ast.Statement) {
	t.Helper()
	req := a.Execute(&ast.Document{Statements: stmts})
	require.Nil(t, req, "no model data should be pending")
}

func TestRefineNamedQuery(t *testing.T) {
	a := testAnalyzer(t)
	executeDoc(t, a,
		&ast.DefineQuery{Name: "q", Query: tableQuery("flights", qop(
			groupBy(refItem("state")),
			&ast.FilterProp{Exprs: []ast.Expr{binop("=", id("carrier"), strLit("AA"))}},
			&ast.Ordering{Items: []ast.OrderItem{{Field: "state", Dir: "asc"}}},
		))},
		&ast.DefineQuery{Name: "r", Query: &ast.FullQuery{
			Pipeline: ast.PipelineDesc{
				HeadName:       "q",
				HeadRefinement: &ast.QOPDesc{Props: []ast.QueryProp{&ast.Limit{N: 10}}},
			},
		}},
	)
	assert.Empty(t, diagnostics(a))

	q := a.NamedQuery("q")
	r := a.NamedQuery("r")
	require.NotNil(t, q)
	require.NotNil(t, r)

	qseg := q.Segments[0].(*plan.ReduceSegment)
	rseg := r.Segments[0].(*plan.ReduceSegment)
	assert.Zero(t, qseg.Limit, "the original query is untouched")
	assert.Equal(t, 10, rseg.Limit)
	assert.Equal(t, qseg.Fields, rseg.Fields)
	assert.Equal(t, qseg.Filters, rseg.Filters, "original filters survive refinement")
	assert.Equal(t, qseg.OrderBy, rseg.OrderBy, "original ordering survives refinement")
}

func TestEmptyRefinementIsIdentity(t *testing.T) {
	a := testAnalyzer(t)
	executeDoc(t, a,
		&ast.DefineQuery{Name: "q", Query: tableQuery("flights", qop(
			groupBy(refItem("state")),
			&ast.Limit{N: 7},
		))},
		&ast.DefineQuery{Name: "r", Query: &ast.FullQuery{
			Pipeline: ast.PipelineDesc{
				HeadName:       "q",
				HeadRefinement: &ast.QOPDesc{},
			},
		}},
	)
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, a.NamedQuery("q").Segments[0], a.NamedQuery("r").Segments[0])
}

func TestTurtleHeadReference(t *testing.T) {
	a := testAnalyzer(t)
	src := &ast.RefinedSource{
		Base: &ast.TableSource{Name: "flights"},
		Refinement: []ast.ExploreProp{
			&ast.TurtleDecl{Name: "by_state", Pipeline: ast.PipelineDesc{
				Segments: []ast.QOPDesc{qop(groupBy(refItem("state")))},
			}},
		},
	}
	executeDoc(t, a, &ast.AnonQuery{Query: &ast.FullQuery{
		Source:   src,
		Pipeline: ast.PipelineDesc{HeadName: "by_state"},
	}})
	assert.Empty(t, diagnostics(a))

	qs := a.Queries()
	require.Len(t, qs, 1)
	require.NotNil(t, qs[0].Head, "a bare turtle reference stays a pipe head")
	assert.Equal(t, "by_state", qs[0].Head.Name)
	assert.Empty(t, qs[0].Segments)
}

func TestTurtleHeadRefinementMaterializes(t *testing.T) {
	a := testAnalyzer(t)
	src := &ast.RefinedSource{
		Base: &ast.TableSource{Name: "flights"},
		Refinement: []ast.ExploreProp{
			&ast.TurtleDecl{Name: "by_state", Pipeline: ast.PipelineDesc{
				Segments: []ast.QOPDesc{qop(groupBy(refItem("state")))},
			}},
		},
	}
	executeDoc(t, a, &ast.AnonQuery{Query: &ast.FullQuery{
		Source: src,
		Pipeline: ast.PipelineDesc{
			HeadName:       "by_state",
			HeadRefinement: &ast.QOPDesc{Props: []ast.QueryProp{&ast.Limit{N: 2}}},
		},
	}})
	assert.Empty(t, diagnostics(a))

	qs := a.Queries()
	require.Len(t, qs, 1)
	assert.Nil(t, qs[0].Head, "refinement materializes the turtle")
	require.Len(t, qs[0].Segments, 1)
	seg := qs[0].Segments[0].(*plan.ReduceSegment)
	assert.Equal(t, 2, seg.Limit)
	require.Len(t, seg.Fields, 1)
	assert.Equal(t, "state", seg.Fields[0].FieldName())
}

func TestMultiSegmentPipeline(t *testing.T) {
	a := testAnalyzer(t)
	executeDoc(t, a, &ast.AnonQuery{Query: tableQuery("flights",
		qop(
			groupBy(refItem("state")),
			aggregateProp(declItem("flight_count", aggCount())),
		),
		qop(projectProp(refItem("state"), refItem("flight_count"))),
	)})
	assert.Empty(t, diagnostics(a))
	q := a.Queries()[0]
	require.Len(t, q.Segments, 2)
	assert.Equal(t, "project", q.Segments[1].SegmentKind())
}

func TestNestedQuery(t *testing.T) {
	a := testAnalyzer(t)
	executeDoc(t, a, &ast.AnonQuery{Query: tableQuery("flights", qop(
		groupBy(refItem("state")),
		&ast.Nests{Nests: []ast.NestDecl{{
			Name: "by_city",
			Pipeline: ast.PipelineDesc{Segments: []ast.QOPDesc{qop(
				groupBy(refItem("city")),
				aggregateProp(declItem("flight_count", aggCount())),
			)}},
		}}},
	))})
	assert.Empty(t, diagnostics(a))
	seg := a.Queries()[0].Segments[0].(*plan.ReduceSegment)
	require.Len(t, seg.Fields, 2)
	turtle, ok := seg.Fields[1].(*plan.TurtleDef)
	require.True(t, ok)
	assert.Equal(t, "by_city", turtle.Name)
	require.Len(t, turtle.Pipeline.Segments, 1)
}

func nestWithExclude(dim string) *ast.FullQuery {
	return tableQuery("flights", qop(
		groupBy(refItem("state")),
		&ast.Nests{Nests: []ast.NestDecl{{
			Name: "by_city",
			Pipeline: ast.PipelineDesc{Segments: []ast.QOPDesc{qop(
				groupBy(refItem("city")),
				aggregateProp(declItem("all_flights", &ast.Ungrouped{
					Fn:     "exclude",
					Expr:   aggCount(),
					Fields: []string{dim},
				})),
			)}},
		}}},
	))
}

func TestNestedExcludeEnclosingDimension(t *testing.T) {
	a := testAnalyzer(t)
	executeDoc(t, a, &ast.AnonQuery{Query: nestWithExclude("state")})
	assert.Empty(t, diagnostics(a), "state is in the enclosing query output")
}

func TestNestedExcludeMissingDimension(t *testing.T) {
	a := testAnalyzer(t)
	executeDoc(t, a, &ast.AnonQuery{Query: nestWithExclude("region")})
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, `exclude() "region" is missing from query output`, diagnostics(a)[0])
}

func TestRefineIndexWithReduceFails(t *testing.T) {
	a := testAnalyzer(t)
	executeDoc(t, a,
		&ast.DefineQuery{Name: "idx", Query: tableQuery("flights",
			qop(&ast.Index{Items: []ast.QueryItem{refItem("state")}}),
		)},
		&ast.DefineQuery{Name: "bad", Query: &ast.FullQuery{
			Pipeline: ast.PipelineDesc{
				HeadName: "idx",
				HeadRefinement: &ast.QOPDesc{Props: []ast.QueryProp{
					groupBy(refItem("state")),
				}},
			},
		}},
	)
	require.NotEmpty(t, diagnostics(a))
	assert.Contains(t, diagnostics(a), "cannot refine index with reduce")
}

func TestBrokenSegmentContinues(t *testing.T) {
	// A reference to a field missing from the running output schema
	// logs at the reference, and later segments still analyze.
	a := testAnalyzer(t)
	executeDoc(t, a, &ast.AnonQuery{Query: tableQuery("flights",
		qop(groupBy(refItem("state"))),
		qop(groupBy(refItem("city"))), // city is not in segment 1 output
		qop(groupBy(refItem("anything"))),
	)})
	require.NotEmpty(t, diagnostics(a))
}
