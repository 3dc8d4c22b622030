package compiler_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
	"github.com/malloydata/malloy/compiler/semantic"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aircraftStruct() *plan.StructDef {
	return &plan.StructDef{
		Name:    "aircraft",
		Dialect: "standardsql",
		Fields: []plan.FieldDef{
			&plan.ColumnDef{Name: "state", Type: malloy.TypeString},
			&plan.ColumnDef{Name: "county", Type: malloy.TypeString},
		},
		Source:       plan.StructSource{Type: "table", Name: "aircraft"},
		Relationship: plan.Relationship{Type: "basetable"},
	}
}

func aircraftQueryDoc() *ast.Document {
	return &ast.Document{Statements: []ast.Statement{
		&ast.AnonQuery{Query: &ast.FullQuery{
			Source: &ast.TableSource{Name: "aircraft"},
			Pipeline: ast.PipelineDesc{Segments: []ast.QOPDesc{{
				Props: []ast.QueryProp{&ast.GroupBy{Items: []ast.QueryItem{
					&ast.FieldRef{Path: []string{"state"}},
				}}},
			}}},
		}},
	}}
}

func TestCompileFetchLoop(t *testing.T) {
	c := compiler.New()
	var fetches int
	fetch := func(req *semantic.ModelDataRequest) error {
		fetches++
		require.Len(t, req.Tables, 1)
		assert.Equal(t, "aircraft", req.Tables[0].Name)
		c.Schemas().Define("aircraft", aircraftStruct())
		return nil
	}
	model, err := c.Compile("test.malloy", "query: aircraft->{ group_by: state }", aircraftQueryDoc(), fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, fetches)
	assert.Empty(t, model.Diagnostics)
	require.Len(t, model.Queries, 1)
}

func TestCompileWithoutFetcher(t *testing.T) {
	c := compiler.New()
	_, err := c.Compile("test.malloy", "", aircraftQueryDoc(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fetcher")
}

func TestCompileFetchError(t *testing.T) {
	c := compiler.New()
	boom := errors.New("connection refused")
	_, err := c.Compile("test.malloy", "", aircraftQueryDoc(), func(*semantic.ModelDataRequest) error {
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestCompilePrepopulatedZone(t *testing.T) {
	c := compiler.New()
	c.Schemas().Define("aircraft", aircraftStruct())
	model, err := c.Compile("test.malloy", "", aircraftQueryDoc(), nil)
	require.NoError(t, err)
	assert.Empty(t, model.Diagnostics)
	require.Len(t, model.Queries, 1)
}

func TestCompileDiagnosticsSurvive(t *testing.T) {
	c := compiler.New()
	c.Schemas().Define("aircraft", aircraftStruct())
	doc := &ast.Document{Statements: []ast.Statement{
		&ast.AnonQuery{Query: &ast.FullQuery{
			Source: &ast.TableSource{Name: "aircraft"},
			Pipeline: ast.PipelineDesc{Segments: []ast.QOPDesc{{
				Props: []ast.QueryProp{&ast.GroupBy{Items: []ast.QueryItem{
					&ast.FieldRef{Path: []string{"no_such"}},
				}}},
			}}},
		}},
	}}
	model, err := c.Compile("test.malloy", "", doc, nil)
	require.NoError(t, err, "diagnostics ride on the model, not the error")
	require.Len(t, model.Diagnostics, 1)
}

func TestCompileSQLBlock(t *testing.T) {
	c := compiler.New()
	doc := &ast.Document{Statements: []ast.Statement{
		&ast.DefineSQLBlock{Name: "recent", Select: []string{"SELECT state FROM aircraft"}},
		&ast.AnonQuery{Query: &ast.FullQuery{
			Source: &ast.SQLSource{Name: "recent"},
			Pipeline: ast.PipelineDesc{Segments: []ast.QOPDesc{{
				Props: []ast.QueryProp{&ast.GroupBy{Items: []ast.QueryItem{
					&ast.FieldRef{Path: []string{"state"}},
				}}},
			}}},
		}},
	}}
	fetch := func(req *semantic.ModelDataRequest) error {
		require.NotNil(t, req.CompileSQL)
		assert.Equal(t, "recent", req.CompileSQL.Name)
		c.SQLSchemas().Define("recent", &plan.StructDef{
			Name:    "recent",
			Dialect: "standardsql",
			Fields: []plan.FieldDef{
				&plan.ColumnDef{Name: "state", Type: malloy.TypeString},
			},
			Source:       plan.StructSource{Type: "sql", Name: "recent"},
			Relationship: plan.Relationship{Type: "basetable"},
		})
		return nil
	}
	model, err := c.Compile("test.malloy", "", doc, fetch)
	require.NoError(t, err)
	assert.Empty(t, model.Diagnostics)
	require.Len(t, model.Queries, 1)
	def, ok := model.Queries[0].StructRef.(*plan.StructDef)
	require.True(t, ok)
	assert.Equal(t, "sql", def.Source.Type)
}

func TestGoldenSimpleGroupBy(t *testing.T) {
	c := compiler.New()
	c.Schemas().Define("aircraft", aircraftStruct())
	model, err := c.Compile("test.malloy", "", aircraftQueryDoc(), nil)
	require.NoError(t, err)
	require.Empty(t, model.Diagnostics)
	require.Len(t, model.Queries, 1)

	out, err := json.MarshalIndent(model.Queries[0], "", "  ")
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "simple_group_by", append(out, '\n'))
}
