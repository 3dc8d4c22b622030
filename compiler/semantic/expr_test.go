package semantic

import (
	"testing"

	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalIn(t *testing.T, e ast.Expr) (*Analyzer, exprValue) {
	t.Helper()
	a := testAnalyzer(t)
	fs := NewStaticSpace(a, flightsStruct())
	return a, a.evalExpr(fs, e)
}

func TestFieldLookup(t *testing.T) {
	a, v := evalIn(t, id("carriers", "nickname"))
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, malloy.TypeString, v.typ)
	assert.Equal(t, malloy.Scalar, v.kind)
	assert.Equal(t, malloy.InputSpace, v.space)
	assert.Equal(t, "carriers.nickname", render(v.value))
}

func TestLookupSuggestion(t *testing.T) {
	a, v := evalIn(t, id("carier"))
	assert.Equal(t, malloy.TypeError, v.typ)
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, `"carier" is not defined; did you mean "carrier"?`, diagnostics(a)[0])
}

func TestLookupCannotContain(t *testing.T) {
	a, _ := evalIn(t, id("carrier", "nickname"))
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, `"carrier" cannot contain "nickname"`, diagnostics(a)[0])
}

func TestNullEquality(t *testing.T) {
	a, v := evalIn(t, binop("=", id("state"), nullLit()))
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, malloy.TypeBoolean, v.typ)
	assert.Equal(t, "state IS NULL", render(v.value))

	_, v = evalIn(t, binop("!=", id("state"), nullLit()))
	assert.Equal(t, "state IS NOT NULL", render(v.value))
}

func TestRegexpMatch(t *testing.T) {
	a, v := evalIn(t, binop("~", id("state"), regexpLit("CA|NY")))
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, malloy.TypeBoolean, v.typ)
	assert.Equal(t, "regexp(state,'CA|NY')", render(v.value))

	_, v = evalIn(t, binop("!~", id("state"), regexpLit("CA")))
	assert.Equal(t, "COALESCE(NOT(regexp(state,'CA')),TRUE)", render(v.value))
}

func TestStringMatchIsLike(t *testing.T) {
	a, v := evalIn(t, binop("~", id("state"), strLit("C%")))
	assert.Empty(t, diagnostics(a))
	require.Len(t, v.value, 1)
	like, ok := v.value[0].(*plan.LikeFrag)
	require.True(t, ok)
	assert.Equal(t, "'C%'", render(like.Pattern))
	assert.False(t, like.Negate)
	// A constant pattern carries its regexp translation for dialects
	// without LIKE.
	assert.NotEmpty(t, like.Regexp)

	_, v = evalIn(t, binop("!~", id("state"), strLit("C%")))
	require.Len(t, v.value, 1)
	like = v.value[0].(*plan.LikeFrag)
	assert.True(t, like.Negate)
}

func TestNullsafeNotEquals(t *testing.T) {
	a, v := evalIn(t, binop("!=", id("state"), strLit("CA")))
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, "COALESCE(NOT((state = 'CA')),TRUE)", render(v.value))
}

func TestTimeMorphing(t *testing.T) {
	// Comparing a timestamp column to a date literal renders the
	// literal through its timestamp morphing.
	a, v := evalIn(t, binop("=", id("dep_time"), timeLit("2020-01-01")))
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, "(dep_time = TIMESTAMP '2020-01-01 00:00:00')", render(v.value))
}

func TestTimeComparedToNumber(t *testing.T) {
	a, v := evalIn(t, binop("<", id("dep_time"), numLit("3")))
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, "cannot compare timestamp to number", diagnostics(a)[0])
	assert.Equal(t, "false", render(v.value))
}

func TestTemporalOffsetGranularity(t *testing.T) {
	trunc := &ast.TimeTrunc{Expr: &ast.Now{}, Unit: malloy.Month}
	sameUnit := binop("+", trunc, &ast.Duration{N: numLit("1"), Unit: malloy.Month})
	a, v := evalIn(t, sameUnit)
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, malloy.TypeTimestamp, v.typ)
	assert.Equal(t, malloy.Month, v.timeframe, "same-unit offset keeps granularity")

	otherUnit := binop("+", trunc, &ast.Duration{N: numLit("1"), Unit: malloy.Day})
	_, v = evalIn(t, otherUnit)
	assert.Equal(t, malloy.Timeframe(""), v.timeframe, "different-unit offset drops granularity")
}

func TestDatePlusNumberPromotesToDays(t *testing.T) {
	a, v := evalIn(t, binop("+", timeLit("2020-01-01"), numLit("2")))
	assert.Empty(t, diagnostics(a))
	require.Len(t, v.value, 1)
	delta, ok := v.value[0].(*plan.DeltaFrag)
	require.True(t, ok)
	assert.Equal(t, "day", delta.Unit)
}

func TestDivisionUsesDialectFragment(t *testing.T) {
	a, v := evalIn(t, binop("/", id("amount"), numLit("0")))
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, "div(amount,0)", render(v.value))
}

func TestErrorCascade(t *testing.T) {
	// The unknown name logs once; every operator applied to the
	// poisoned value stays silent.
	bad := binop("+", binop("*", id("no_such"), numLit("2")), numLit("3"))
	a, v := evalIn(t, bad)
	assert.Equal(t, malloy.TypeError, v.typ)
	require.Len(t, diagnostics(a), 1)
}

func TestUnsupportedOperand(t *testing.T) {
	a, v := evalIn(t, binop("=", id("tail_meta"), nullLit()))
	assert.Empty(t, diagnostics(a), "null compare is allowed for unsupported types")
	assert.Equal(t, malloy.TypeBoolean, v.typ)

	a, v = evalIn(t, binop("=", id("tail_meta"), id("tail_meta")))
	assert.Empty(t, diagnostics(a), "same-type equality is allowed for unsupported types")

	a, v = evalIn(t, binop(">", id("tail_meta"), numLit("1")))
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, malloy.TypeError, v.typ)
	assert.True(t, v.value.IsError())
}

func TestAlternationApply(t *testing.T) {
	alt := &ast.Apply{
		LHS: id("state"),
		RHS: &ast.Alternation{Op: "|", LHS: strLit("CA"), RHS: strLit("NY")},
	}
	a, v := evalIn(t, alt)
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, "((state = 'CA') or (state = 'NY'))", render(v.value))
}

func TestPartialApply(t *testing.T) {
	partial := &ast.Apply{LHS: id("amount"), RHS: &ast.Partial{Op: ">", RHS: numLit("10")}}
	a, v := evalIn(t, partial)
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, "(amount > 10)", render(v.value))
}

func TestAggregateKindAndSpace(t *testing.T) {
	a, v := evalIn(t, aggSum(id("amount")))
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, malloy.Aggregate, v.kind)
	assert.Equal(t, malloy.OutputSpace, v.space)
	assert.Equal(t, malloy.TypeNumber, v.typ)
}

func TestAggregateOfAggregate(t *testing.T) {
	a, v := evalIn(t, aggSum(aggSum(id("amount"))))
	require.Len(t, diagnostics(a), 1)
	assert.Equal(t, malloy.TypeError, v.typ)
	assert.Equal(t, malloy.Aggregate, v.kind)
}

func TestEvalSpaceMerging(t *testing.T) {
	// literal + input = input
	a, v := evalIn(t, binop("+", id("amount"), numLit("1")))
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, malloy.InputSpace, v.space)
}

func TestTimeDiffSeconds(t *testing.T) {
	now := &ast.Now{}
	diff := &ast.TimeDiff{Unit: malloy.Second, Begin: now, Finish: binop("+", now, &ast.Duration{N: numLit("1"), Unit: malloy.Second})}
	a, v := evalIn(t, diff)
	assert.Empty(t, diagnostics(a))
	assert.Equal(t, malloy.TypeNumber, v.typ)
	assert.Equal(t, "seconds(now() to delta(now()+1 second))", render(v.value))
}
