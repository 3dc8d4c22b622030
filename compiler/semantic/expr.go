package semantic

import (
	"strings"

	"github.com/araddon/dateparse"
	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
	"github.com/shellyln/go-sql-like-expr/likeexpr"
)

// An exprValue is the result of evaluating one expression: its type,
// expression kind, evaluation space, and compiled fragment, plus the
// optional temporal sidecars — a granularity unit when the value is
// time-truncated, and alternate renderings per target type for values
// that can morph (a date carries its timestamp rendering).
type exprValue struct {
	typ       malloy.AtomicType
	kind      malloy.ExprKind
	space     malloy.EvalSpace
	value     plan.Expr
	timeframe malloy.Timeframe
	morphic   map[malloy.AtomicType]plan.Expr
}

// errorValue poisons a computation whose diagnostic has already been
// logged.  The expression kind is the max of the inputs so kind
// checking downstream stays accurate.
func errorValue(kinds ...malloy.ExprKind) exprValue {
	return exprValue{
		typ:   malloy.TypeError,
		kind:  malloy.MaxOfExprKinds(kinds...),
		space: malloy.ConstantSpace,
		value: plan.ErrorExpr(),
	}
}

func literalValue(typ malloy.AtomicType, sql string) exprValue {
	return exprValue{typ: typ, kind: malloy.Scalar, space: malloy.LiteralSpace, value: plan.TextExpr(sql)}
}

func boolValue(kind malloy.ExprKind, space malloy.EvalSpace, value plan.Expr) exprValue {
	return exprValue{typ: malloy.TypeBoolean, kind: kind, space: space, value: value}
}

func sqlQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// evalExpr compiles an expression against a field space.
func (a *Analyzer) evalExpr(fs FieldSpace, e ast.Expr) exprValue {
	switch e := e.(type) {
	case nil:
		return errorValue()
	case *ast.ID:
		return a.evalID(fs, e)
	case *ast.NumberLit:
		return literalValue(malloy.TypeNumber, e.Text)
	case *ast.StringLit:
		return literalValue(malloy.TypeString, sqlQuote(e.Text))
	case *ast.BooleanLit:
		if e.Value {
			return literalValue(malloy.TypeBoolean, "true")
		}
		return literalValue(malloy.TypeBoolean, "false")
	case *ast.RegexpLit:
		return literalValue(malloy.TypeRegexp, sqlQuote(e.Pattern))
	case *ast.NullLit:
		return literalValue(malloy.TypeNull, "NULL")
	case *ast.TimeLit:
		return a.evalTimeLit(e)
	case *ast.Now:
		return exprValue{
			typ:   malloy.TypeTimestamp,
			kind:  malloy.Scalar,
			space: malloy.LiteralSpace,
			value: plan.Expr{&plan.NowFrag{Kind: "now"}},
		}
	case *ast.Duration:
		n := a.evalExpr(fs, e.N)
		if n.typ != malloy.TypeNumber && n.typ != malloy.TypeError {
			a.errorf(e, "duration count must be a number, not %s", n.typ)
			return errorValue(n.kind)
		}
		return exprValue{typ: malloy.TypeDuration, kind: n.kind, space: n.space, value: n.value, timeframe: e.Unit}
	case *ast.Parens:
		v := a.evalExpr(fs, e.Expr)
		if v.typ == malloy.TypeError {
			return v
		}
		v.value = plan.Concat(plan.TextExpr("("), v.value, plan.TextExpr(")"))
		return v
	case *ast.UnaryExpr:
		return a.evalUnary(fs, e)
	case *ast.BinaryExpr:
		left := a.evalExpr(fs, e.LHS)
		return a.applyOp(fs, e, left, e.Op, e.RHS)
	case *ast.Apply:
		left := a.evalExpr(fs, e.LHS)
		return a.applyOp(fs, e, left, "=", e.RHS)
	case *ast.Partial:
		a.errorf(e, "partial comparison needs a value to apply to")
		return errorValue()
	case *ast.Alternation:
		a.errorf(e, "alternation needs a value to apply to")
		return errorValue()
	case *ast.AggregateExpr:
		return a.evalAggregate(fs, e)
	case *ast.Ungrouped:
		return a.evalUngrouped(fs, e)
	case *ast.TimeTrunc:
		return a.evalTimeTrunc(fs, e)
	case *ast.TimeDiff:
		return a.evalTimeDiff(fs, e)
	case *ast.Cast:
		return a.evalCast(fs, e)
	default:
		a.errorf(e, "unexpected expression")
		return errorValue()
	}
}

func (a *Analyzer) evalID(fs FieldSpace, id *ast.ID) exprValue {
	res := fs.Lookup(id, id.Path)
	if res.Error != "" {
		a.errorf(id, "%s", res.Error)
		return errorValue()
	}
	switch e := res.Entry.(type) {
	case *StructField, *JoinField:
		a.errorf(id, "%q is a join and cannot be used in an expression", strings.Join(id.Path, "."))
		return errorValue()
	case *TurtleField, *PendingTurtle:
		a.errorf(id, "query %q cannot be used in an expression", strings.Join(id.Path, "."))
		return errorValue()
	case *AbstractParameter:
		return exprValue{
			typ:   e.Decl.Type,
			kind:  malloy.Scalar,
			space: malloy.ConstantSpace,
			value: plan.Expr{&plan.ParamFrag{Kind: "parameter", Name: e.Decl.Name}},
		}
	case *DefinedParameter:
		return exprValue{
			typ:   e.Param.Type,
			kind:  malloy.Scalar,
			space: malloy.ConstantSpace,
			value: plan.Expr{&plan.ParamFrag{Kind: "parameter", Name: e.Param.Name}},
		}
	default:
		td := e.TypeDesc()
		return exprValue{
			typ:   td.Type,
			kind:  td.Kind,
			space: td.Space,
			value: plan.Expr{plan.Field(id.Path...)},
		}
	}
}

// evalTimeLit compiles a literal like @2020-01-01.  A literal with no
// time-of-day is a date carrying a morphic timestamp rendering; the
// literal's shape fixes its granularity.
func (a *Analyzer) evalTimeLit(e *ast.TimeLit) exprValue {
	t, err := dateparse.ParseAny(e.Text)
	if err != nil {
		a.errorf(e, "cannot parse time literal %q", e.Text)
		return errorValue()
	}
	tf := e.Timeframe
	hasTime := strings.ContainsRune(e.Text, ':')
	if tf == "" {
		tf = malloy.Day
		if hasTime {
			tf = malloy.Second
		}
	}
	if hasTime || !tf.CalendarTimeframe() && tf != malloy.Day {
		v := literalValue(malloy.TypeTimestamp, "TIMESTAMP "+sqlQuote(t.Format("2006-01-02 15:04:05")))
		v.timeframe = tf
		return v
	}
	v := literalValue(malloy.TypeDate, "DATE "+sqlQuote(t.Format("2006-01-02")))
	v.timeframe = tf
	v.morphic = map[malloy.AtomicType]plan.Expr{
		malloy.TypeTimestamp: plan.TextExpr("TIMESTAMP " + sqlQuote(t.Format("2006-01-02 15:04:05"))),
	}
	return v
}

func (a *Analyzer) evalUnary(fs FieldSpace, e *ast.UnaryExpr) exprValue {
	v := a.evalExpr(fs, e.Operand)
	if v.typ == malloy.TypeError {
		return v
	}
	switch e.Op {
	case "not":
		if v.typ != malloy.TypeBoolean {
			a.errorf(e, "not requires a boolean, not %s", v.typ)
			return errorValue(v.kind)
		}
		v.value = plan.Concat(plan.TextExpr("NOT ("), v.value, plan.TextExpr(")"))
		return v
	case "-":
		if v.typ != malloy.TypeNumber {
			a.errorf(e, "negation requires a number, not %s", v.typ)
			return errorValue(v.kind)
		}
		v.value = plan.Concat(plan.TextExpr("-("), v.value, plan.TextExpr(")"))
		return v
	default:
		a.errorf(e, "unexpected unary operator %q", e.Op)
		return errorValue(v.kind)
	}
}

// applyOp applies op between an evaluated left value and an
// un-evaluated right node.  Partial comparisons, alternation trees,
// and durations rewrite the application before the binary dispatcher
// sees a plain operand.
func (a *Analyzer) applyOp(fs FieldSpace, n ast.Node, left exprValue, op string, rhs ast.Expr) exprValue {
	switch r := rhs.(type) {
	case *ast.Partial:
		return a.applyOp(fs, n, left, r.Op, r.RHS)
	case *ast.Alternation:
		join := " or "
		if r.Op == "&" {
			join = " and "
		}
		lv := a.applyOp(fs, n, left, op, r.LHS)
		rv := a.applyOp(fs, n, left, op, r.RHS)
		if lv.typ == malloy.TypeError || rv.typ == malloy.TypeError {
			return errorValue(lv.kind, rv.kind)
		}
		return boolValue(
			malloy.MaxExprKind(lv.kind, rv.kind),
			malloy.MergeEvalSpaces(lv.space, rv.space),
			plan.Concat(plan.TextExpr("("), lv.value, plan.TextExpr(join), rv.value, plan.TextExpr(")")),
		)
	case *ast.Duration:
		if op == "+" || op == "-" {
			right := a.evalExpr(fs, rhs)
			return a.dispatch(fs, n, left, op, right)
		}
	}
	right := a.evalExpr(fs, rhs)
	return a.dispatch(fs, n, left, op, right)
}

// dispatch is the binary-operator dispatcher.  An error-typed operand
// short-circuits without another diagnostic so one broken
// subexpression does not cascade.
func (a *Analyzer) dispatch(fs FieldSpace, n ast.Node, left exprValue, op string, right exprValue) exprValue {
	if left.typ == malloy.TypeError || right.typ == malloy.TypeError {
		return errorValue(left.kind, right.kind)
	}
	if bad := a.checkUnsupported(n, left, op, right); bad != nil {
		return *bad
	}
	kind := malloy.MaxExprKind(left.kind, right.kind)
	space := malloy.MergeEvalSpaces(left.space, right.space)
	switch op {
	case "=", "!=", "~", "!~":
		return a.equality(n, left, op, right, kind, space)
	case "<", "<=", ">", ">=":
		return a.comparison(n, left, op, right, kind, space)
	case "+", "-":
		return a.additive(n, left, op, right, kind, space)
	case "*", "/", "%":
		return a.multiplicative(n, left, op, right, kind, space)
	case "and", "or":
		if left.typ != malloy.TypeBoolean || right.typ != malloy.TypeBoolean {
			a.errorf(n, "%s requires boolean operands", op)
			return errorValue(kind)
		}
		return boolValue(kind, space, plan.Concat(
			plan.TextExpr("("), left.value, plan.TextExpr(" "+op+" "), right.value, plan.TextExpr(")")))
	default:
		a.errorf(n, "unexpected operator %q", op)
		return errorValue(kind)
	}
}

// checkUnsupported enforces that an unsupported-typed operand only
// participates in null comparison or same-raw-type equality.  It
// returns nil when the operation may proceed.
func (a *Analyzer) checkUnsupported(n ast.Node, left exprValue, op string, right exprValue) *exprValue {
	if left.typ != malloy.TypeUnsupported && right.typ != malloy.TypeUnsupported {
		return nil
	}
	equalityOp := op == "=" || op == "!="
	if equalityOp && (left.typ == malloy.TypeNull || right.typ == malloy.TypeNull) {
		return nil
	}
	if equalityOp && left.typ == right.typ {
		return nil
	}
	a.errorf(n, "unsupported type cannot be used with %q", op)
	bad := errorValue(left.kind, right.kind)
	return &bad
}

// nullsafeNot renders the negative equality forms so that null inputs
// compare as not-equal rather than null.
func nullsafeNot(e plan.Expr, op string) plan.Expr {
	if op == "!=" || op == "!~" {
		return plan.Concat(plan.TextExpr("COALESCE(NOT("), e, plan.TextExpr("),TRUE)"))
	}
	return e
}

func (a *Analyzer) equality(n ast.Node, left exprValue, op string, right exprValue, kind malloy.ExprKind, space malloy.EvalSpace) exprValue {
	// Null on either side turns equality into a null test.
	if left.typ == malloy.TypeNull || right.typ == malloy.TypeNull {
		other := left
		if left.typ == malloy.TypeNull {
			other = right
		}
		test := " IS NULL"
		if op == "!=" || op == "!~" {
			test = " IS NOT NULL"
		}
		return boolValue(kind, space, plan.Concat(other.value, plan.TextExpr(test)))
	}
	// A regular expression against a string is a dialect regexp match.
	if left.typ == malloy.TypeRegexp || right.typ == malloy.TypeRegexp {
		str, re := left, right
		if left.typ == malloy.TypeRegexp {
			str, re = right, left
		}
		if str.typ != malloy.TypeString {
			a.errorf(n, "cannot match a regular expression against %s", str.typ)
			return errorValue(kind)
		}
		match := plan.Expr{&plan.RegexpMatchFrag{Kind: "regexp_match", Expr: str.value, Pattern: re.value}}
		return boolValue(kind, space, nullsafeNot(match, op))
	}
	// String-to-string match is LIKE; a constant pattern also carries
	// its regexp translation for dialects without LIKE.
	if (op == "~" || op == "!~") && left.typ == malloy.TypeString && right.typ == malloy.TypeString {
		like := &plan.LikeFrag{Kind: "like", Expr: left.value, Pattern: right.value}
		if pat, ok := constantText(right); ok {
			like.Regexp = likeexpr.ToRegexp(pat, '\\', false)
		}
		like.Negate = op == "!~"
		return boolValue(kind, space, plan.Expr{like})
	}
	left, right, ok := a.morphTimes(n, left, right)
	if !ok {
		return errorValue(kind)
	}
	if !malloy.TypeEq(left.typ, right.typ, false) {
		a.errorf(n, "cannot compare %s to %s", left.typ, right.typ)
		return boolValue(kind, space, plan.TextExpr("false"))
	}
	cmp := "="
	if op == "~" || op == "!~" {
		cmp = "LIKE"
	}
	eq := plan.Concat(plan.TextExpr("("), left.value, plan.TextExpr(" "+cmp+" "), right.value, plan.TextExpr(")"))
	return boolValue(kind, space, nullsafeNot(eq, op))
}

func (a *Analyzer) comparison(n ast.Node, left exprValue, op string, right exprValue, kind malloy.ExprKind, space malloy.EvalSpace) exprValue {
	if left.typ.IsTime() || right.typ.IsTime() {
		if !left.typ.IsTime() || !right.typ.IsTime() {
			a.errorf(n, "cannot compare %s to %s", left.typ, right.typ)
			return boolValue(kind, space, plan.TextExpr("false"))
		}
		var ok bool
		left, right, ok = a.morphTimes(n, left, right)
		if !ok {
			return errorValue(kind)
		}
	} else if left.typ != right.typ || !left.typ.In(malloy.TypeNumber, malloy.TypeString) {
		a.errorf(n, "cannot compare %s to %s", left.typ, right.typ)
		return boolValue(kind, space, plan.TextExpr("false"))
	}
	return boolValue(kind, space, plan.Concat(
		plan.TextExpr("("), left.value, plan.TextExpr(" "+op+" "), right.value, plan.TextExpr(")")))
}

// morphTimes reconciles temporal operands of different types by
// rendering the date side as a timestamp, preferring a morphic
// rendering when the value carries one.
func (a *Analyzer) morphTimes(n ast.Node, left, right exprValue) (exprValue, exprValue, bool) {
	if !left.typ.IsTime() || !right.typ.IsTime() || left.typ == right.typ {
		return left, right, true
	}
	if left.typ == malloy.TypeDate {
		left = morphTo(left, malloy.TypeTimestamp)
	} else {
		right = morphTo(right, malloy.TypeTimestamp)
	}
	return left, right, true
}

func morphTo(v exprValue, typ malloy.AtomicType) exprValue {
	if alt, ok := v.morphic[typ]; ok {
		v.value = alt
	} else {
		v.value = plan.Expr{&plan.CastFrag{Kind: "cast", Expr: v.value, To: string(typ)}}
	}
	v.typ = typ
	return v
}

func (a *Analyzer) additive(n ast.Node, left exprValue, op string, right exprValue, kind malloy.ExprKind, space malloy.EvalSpace) exprValue {
	if left.typ.IsTime() {
		dur := right
		if right.typ == malloy.TypeNumber {
			// A bare count promotes to a duration at the left side's
			// granularity, or days for an ungranular date.
			unit := left.timeframe
			if unit == "" {
				unit = malloy.Second
				if left.typ == malloy.TypeDate {
					unit = malloy.Day
				}
			}
			dur = exprValue{typ: malloy.TypeDuration, kind: right.kind, space: right.space, value: right.value, timeframe: unit}
		}
		if dur.typ != malloy.TypeDuration {
			a.errorf(n, "cannot %s %s %s %s", addVerb(op), left.typ, opPreposition(op), dur.typ)
			return errorValue(kind)
		}
		out := exprValue{
			typ:   left.typ,
			kind:  kind,
			space: space,
			value: plan.Expr{&plan.DeltaFrag{
				Kind: "delta",
				Base: left.value,
				Op:   op,
				N:    dur.value,
				Unit: string(dur.timeframe),
			}},
		}
		if left.timeframe == dur.timeframe {
			out.timeframe = left.timeframe
		}
		return out
	}
	if left.typ != malloy.TypeNumber || right.typ != malloy.TypeNumber {
		a.errorf(n, "%q requires numeric operands, not %s and %s", op, left.typ, right.typ)
		return errorValue(kind)
	}
	return exprValue{
		typ:   malloy.TypeNumber,
		kind:  kind,
		space: space,
		value: plan.Concat(plan.TextExpr("("), left.value, plan.TextExpr(op), right.value, plan.TextExpr(")")),
	}
}

func addVerb(op string) string {
	if op == "-" {
		return "subtract"
	}
	return "add"
}

func opPreposition(op string) string {
	if op == "-" {
		return "from"
	}
	return "to"
}

func (a *Analyzer) multiplicative(n ast.Node, left exprValue, op string, right exprValue, kind malloy.ExprKind, space malloy.EvalSpace) exprValue {
	if left.typ != malloy.TypeNumber || right.typ != malloy.TypeNumber {
		a.errorf(n, "%q requires numeric operands, not %s and %s", op, left.typ, right.typ)
		return errorValue(kind)
	}
	out := exprValue{typ: malloy.TypeNumber, kind: kind, space: space}
	if op == "/" {
		// Division defers to the dialect so engines can guard the
		// zero-divisor case.
		out.value = plan.Expr{&plan.DivFrag{Kind: "div", LHS: left.value, RHS: right.value}}
		return out
	}
	out.value = plan.Concat(plan.TextExpr("("), left.value, plan.TextExpr(op), right.value, plan.TextExpr(")"))
	return out
}

func (a *Analyzer) evalAggregate(fs FieldSpace, agg *ast.AggregateExpr) exprValue {
	var inner exprValue
	if agg.Expr != nil {
		inner = a.evalExpr(fs, agg.Expr)
		if inner.typ == malloy.TypeError {
			return errorValue(malloy.Aggregate)
		}
		if inner.kind.IsCalculation() {
			a.errorf(agg, "aggregate %s() cannot contain another aggregate", agg.Fn)
			return errorValue(malloy.Aggregate)
		}
	}
	if len(agg.SourcePath) > 0 {
		res := fs.Lookup(agg, agg.SourcePath)
		if res.Error != "" {
			a.errorf(agg, "%s", res.Error)
			return errorValue(malloy.Aggregate)
		}
		switch res.Entry.(type) {
		case *StructField, *JoinField:
		default:
			a.errorf(agg, "%s() source must be a join", agg.Fn)
			return errorValue(malloy.Aggregate)
		}
	}
	typ := malloy.TypeNumber
	switch agg.Fn {
	case "count":
	case "sum", "avg":
		if agg.Expr == nil {
			a.errorf(agg, "%s() requires an expression", agg.Fn)
			return errorValue(malloy.Aggregate)
		}
		if inner.typ != malloy.TypeNumber {
			a.errorf(agg, "%s() requires a number, not %s", agg.Fn, inner.typ)
			return errorValue(malloy.Aggregate)
		}
	case "min", "max":
		if agg.Expr == nil {
			a.errorf(agg, "%s() requires an expression", agg.Fn)
			return errorValue(malloy.Aggregate)
		}
		typ = inner.typ
	case "count_distinct":
		if agg.Expr == nil {
			a.errorf(agg, "count_distinct() requires an expression")
			return errorValue(malloy.Aggregate)
		}
	default:
		a.errorf(agg, "unknown aggregate function %q", agg.Fn)
		return errorValue(malloy.Aggregate)
	}
	return exprValue{
		typ:   typ,
		kind:  malloy.Aggregate,
		space: malloy.OutputSpace,
		value: plan.Expr{&plan.AggFrag{
			Kind:       "aggregate",
			Fn:         agg.Fn,
			SourcePath: agg.SourcePath,
			Expr:       inner.value,
		}},
	}
}

// evalUngrouped compiles all()/exclude().  The named dimensions must
// appear in the output of this query or an enclosing one; that check
// defers until the outermost result space finalizes, which happens
// after every nested child has contributed its output columns.
func (a *Analyzer) evalUngrouped(fs FieldSpace, u *ast.Ungrouped) exprValue {
	inner := a.evalExpr(fs, u.Expr)
	if inner.typ == malloy.TypeError {
		return errorValue(malloy.UngroupedAggregate)
	}
	if !inner.kind.IsCalculation() {
		a.errorf(u, "%s() requires an aggregate expression", u.Fn)
		return errorValue(malloy.UngroupedAggregate)
	}
	if len(u.Fields) > 0 {
		if rs := enclosingResultSpace(fs); rs != nil {
			outer := rs
			for outer.NestParentResult() != nil {
				outer = outer.NestParentResult()
			}
			fields := u.Fields
			outer.WhenComplete(func() {
				for _, name := range fields {
					ok := false
					for s := rs; s != nil; s = s.NestParentResult() {
						if s.HasOutput(name) {
							ok = true
							break
						}
					}
					if !ok {
						a.errorf(u, "%s() %q is missing from query output", u.Fn, name)
					}
				}
			})
		} else {
			a.errorf(u, "%s() must be in a query", u.Fn)
		}
	}
	return exprValue{
		typ:   inner.typ,
		kind:  malloy.UngroupedAggregate,
		space: malloy.OutputSpace,
		value: plan.Expr{&plan.UngroupedFrag{
			Kind:   "ungrouped",
			Fn:     u.Fn,
			Expr:   inner.value,
			Fields: u.Fields,
		}},
	}
}

// enclosingResultSpace finds the result space an expression evaluates
// within, unwrapping definition wrappers.
func enclosingResultSpace(fs FieldSpace) *ResultSpace {
	switch s := fs.(type) {
	case *DefSpace:
		return enclosingResultSpace(s.FieldSpace)
	case *ResultSpace:
		return s
	case *QuerySpace:
		return s.result
	}
	return nil
}

func (a *Analyzer) evalTimeTrunc(fs FieldSpace, e *ast.TimeTrunc) exprValue {
	v := a.evalExpr(fs, e.Expr)
	if v.typ == malloy.TypeError {
		return v
	}
	if !v.typ.IsTime() {
		a.errorf(e, "cannot truncate %s to %s", v.typ, e.Unit)
		return errorValue(v.kind)
	}
	if !e.Unit.Valid() {
		a.errorf(e, "unknown truncation unit %q", e.Unit)
		return errorValue(v.kind)
	}
	v.value = plan.Expr{&plan.TruncFrag{Kind: "trunc", Expr: v.value, Unit: string(e.Unit)}}
	v.timeframe = e.Unit
	v.morphic = nil
	return v
}

// evalTimeDiff compiles a range measurement like seconds(a to b).  The
// count is of whole units with any sub-unit remainder floored toward
// zero; calendar units count truncation boundaries crossed.
func (a *Analyzer) evalTimeDiff(fs FieldSpace, e *ast.TimeDiff) exprValue {
	begin := a.evalExpr(fs, e.Begin)
	end := a.evalExpr(fs, e.Finish)
	if begin.typ == malloy.TypeError || end.typ == malloy.TypeError {
		return errorValue(begin.kind, end.kind)
	}
	if !begin.typ.IsTime() || !end.typ.IsTime() {
		a.errorf(e, "%s() requires a time range", e.Unit)
		return errorValue(begin.kind, end.kind)
	}
	begin, end, _ = a.morphTimes(e, begin, end)
	return exprValue{
		typ:   malloy.TypeNumber,
		kind:  malloy.MaxExprKind(begin.kind, end.kind),
		space: malloy.MergeEvalSpaces(begin.space, end.space),
		value: plan.Expr{&plan.TimeDiffFrag{
			Kind:  "time_diff",
			Unit:  string(e.Unit),
			Begin: begin.value,
			End:   end.value,
		}},
	}
}

func (a *Analyzer) evalCast(fs FieldSpace, e *ast.Cast) exprValue {
	v := a.evalExpr(fs, e.Expr)
	if v.typ == malloy.TypeError {
		return v
	}
	if e.Safe {
		if d := fs.Dialect(); d != nil && !d.SupportsSafeCast() {
			a.errorf(e, "dialect %q cannot safe-cast", d.Name())
		}
	}
	return exprValue{
		typ:   e.To,
		kind:  v.kind,
		space: v.space,
		value: plan.Expr{&plan.CastFrag{Kind: "cast", Expr: v.value, To: string(e.To), Safe: e.Safe}},
	}
}

// constantText extracts the unquoted text of a constant string value.
func constantText(v exprValue) (string, bool) {
	if v.space != malloy.ConstantSpace && v.space != malloy.LiteralSpace {
		return "", false
	}
	if len(v.value) != 1 {
		return "", false
	}
	t, ok := v.value[0].(*plan.TextFrag)
	if !ok {
		return "", false
	}
	s := t.Text
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return "", false
	}
	return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), true
}

// evalFilter compiles one filter expression, requiring a boolean.
func (a *Analyzer) evalFilter(fs FieldSpace, e ast.Expr) *plan.FilterCondition {
	v := a.evalExpr(fs, e)
	if v.typ == malloy.TypeError {
		return nil
	}
	if v.typ != malloy.TypeBoolean {
		a.errorf(e, "filter expression must be boolean, not %s", v.typ)
		return nil
	}
	return &plan.FilterCondition{Expr: v.value, Kind: v.kind}
}
