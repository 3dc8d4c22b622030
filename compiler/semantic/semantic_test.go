package semantic

// Shared fixtures for the semantic tests: a flights-like schema and
// shorthand constructors for AST nodes.

import (
	"strings"
	"testing"

	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
	"github.com/malloydata/malloy/compiler/srcfiles"
	"github.com/malloydata/malloy/compiler/zone"
)

func flightsStruct() *plan.StructDef {
	return &plan.StructDef{
		Name:    "flights",
		Dialect: "standardsql",
		Fields: []plan.FieldDef{
			&plan.ColumnDef{Name: "carrier", Type: malloy.TypeString},
			&plan.ColumnDef{Name: "state", Type: malloy.TypeString},
			&plan.ColumnDef{Name: "city", Type: malloy.TypeString},
			&plan.ColumnDef{Name: "amount", Type: malloy.TypeNumber},
			&plan.ColumnDef{Name: "distance", Type: malloy.TypeNumber},
			&plan.ColumnDef{Name: "dep_time", Type: malloy.TypeTimestamp},
			&plan.ColumnDef{Name: "tail_meta", Type: malloy.TypeUnsupported},
			&plan.StructDef{
				Name:    "carriers",
				Dialect: "standardsql",
				Fields: []plan.FieldDef{
					&plan.ColumnDef{Name: "code", Type: malloy.TypeString},
					&plan.ColumnDef{Name: "nickname", Type: malloy.TypeString},
				},
				Source:       plan.StructSource{Type: "table", Name: "carriers"},
				Relationship: plan.Relationship{Type: "join"},
			},
		},
		Source:       plan.StructSource{Type: "table", Name: "flights"},
		Relationship: plan.Relationship{Type: "basetable"},
	}
}

func testAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	src := srcfiles.New("test.malloy", strings.Repeat("-", 80)+"\n")
	schemas := zone.New[*plan.StructDef]()
	schemas.Define("flights", flightsStruct())
	sqls := zone.New[*plan.StructDef]()
	return New(src, schemas, sqls)
}

func diagnostics(a *Analyzer) []string {
	return a.src.Errors().Messages()
}

// AST shorthand.

func id(path ...string) *ast.ID          { return &ast.ID{Path: path} }
func strLit(s string) *ast.StringLit     { return &ast.StringLit{Text: s} }
func numLit(text string) *ast.NumberLit  { return &ast.NumberLit{Text: text} }
func nullLit() *ast.NullLit              { return &ast.NullLit{} }
func regexpLit(p string) *ast.RegexpLit  { return &ast.RegexpLit{Pattern: p} }
func timeLit(text string) *ast.TimeLit   { return &ast.TimeLit{Text: text} }
func binop(op string, l, r ast.Expr) ast.Expr {
	return &ast.BinaryExpr{Op: op, LHS: l, RHS: r}
}

func aggCount() *ast.AggregateExpr {
	return &ast.AggregateExpr{Fn: "count"}
}

func aggSum(e ast.Expr) *ast.AggregateExpr {
	return &ast.AggregateExpr{Fn: "sum", Expr: e}
}

func refItem(path ...string) *ast.FieldRef { return &ast.FieldRef{Path: path} }

func declItem(name string, e ast.Expr) *ast.FieldDecl {
	return &ast.FieldDecl{Name: name, Expr: e}
}

func groupBy(items ...ast.QueryItem) *ast.GroupBy {
	return &ast.GroupBy{Items: items}
}

func aggregateProp(items ...ast.QueryItem) *ast.AggregateProp {
	return &ast.AggregateProp{Items: items}
}

func projectProp(items ...ast.QueryItem) *ast.ProjectProp {
	return &ast.ProjectProp{Items: items}
}

func qop(props ...ast.QueryProp) ast.QOPDesc {
	return ast.QOPDesc{Props: props}
}

func tableQuery(table string, segs ...ast.QOPDesc) *ast.FullQuery {
	return &ast.FullQuery{
		Source:   &ast.TableSource{Name: table},
		Pipeline: ast.PipelineDesc{Segments: segs},
	}
}

// render flattens a compiled expression to a readable string for
// assertions.
func render(e plan.Expr) string {
	var b strings.Builder
	for _, f := range e {
		switch f := f.(type) {
		case *plan.TextFrag:
			b.WriteString(f.Text)
		case *plan.FieldFrag:
			b.WriteString(strings.Join(f.Path, "."))
		case *plan.ParamFrag:
			b.WriteString("$" + f.Name)
		case *plan.AggFrag:
			b.WriteString(f.Fn + "(" + render(f.Expr) + ")")
		case *plan.UngroupedFrag:
			b.WriteString(f.Fn + "[" + render(f.Expr) + "]")
		case *plan.DivFrag:
			b.WriteString("div(" + render(f.LHS) + "," + render(f.RHS) + ")")
		case *plan.RegexpMatchFrag:
			b.WriteString("regexp(" + render(f.Expr) + "," + render(f.Pattern) + ")")
		case *plan.LikeFrag:
			not := ""
			if f.Negate {
				not = "!"
			}
			b.WriteString(not + "like(" + render(f.Expr) + "," + render(f.Pattern) + ")")
		case *plan.TruncFrag:
			b.WriteString("trunc(" + render(f.Expr) + "," + f.Unit + ")")
		case *plan.DeltaFrag:
			b.WriteString("delta(" + render(f.Base) + f.Op + render(f.N) + " " + f.Unit + ")")
		case *plan.TimeDiffFrag:
			b.WriteString(f.Unit + "s(" + render(f.Begin) + " to " + render(f.End) + ")")
		case *plan.CastFrag:
			b.WriteString("cast(" + render(f.Expr) + " as " + f.To + ")")
		case *plan.NowFrag:
			b.WriteString("now()")
		case *plan.ErrorFrag:
			b.WriteString("<error>")
		}
	}
	return b.String()
}
