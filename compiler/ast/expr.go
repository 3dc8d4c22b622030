package ast

import "github.com/malloydata/malloy"

// Expression nodes.

type (
	// An ID references a field by dotted path, e.g. carriers.nickname.
	ID struct {
		Path []string `json:"path"`
		Loc  `json:"loc"`
	}
	NumberLit struct {
		Text string `json:"text"`
		Loc  `json:"loc"`
	}
	StringLit struct {
		Text string `json:"text"`
		Loc  `json:"loc"`
	}
	BooleanLit struct {
		Value bool `json:"value"`
		Loc   `json:"loc"`
	}
	RegexpLit struct {
		Pattern string `json:"pattern"`
		Loc     `json:"loc"`
	}
	NullLit struct {
		Loc `json:"loc"`
	}
	// A TimeLit is a literal such as @2020-01-01 or @2021-06-01 10:00.
	// The literal's shape fixes its granularity: @2020-01 is a
	// month-granular date, @2020-01-01 10:00:00 a second-granular
	// timestamp.
	TimeLit struct {
		Text      string           `json:"text"`
		Timeframe malloy.Timeframe `json:"timeframe,omitempty"`
		Loc       `json:"loc"`
	}
	Now struct {
		Loc `json:"loc"`
	}
	// A Duration is a count of units, e.g. "3 days".
	Duration struct {
		N    Expr             `json:"n"`
		Unit malloy.Timeframe `json:"unit"`
		Loc  `json:"loc"`
	}
	BinaryExpr struct {
		Op  string `json:"op"`
		LHS Expr   `json:"lhs"`
		RHS Expr   `json:"rhs"`
		Loc `json:"loc"`
	}
	UnaryExpr struct {
		Op      string `json:"op"`
		Operand Expr   `json:"operand"`
		Loc     `json:"loc"`
	}
	// A Partial is a comparison missing its left side, e.g. "> 3",
	// awaiting application to a value.
	Partial struct {
		Op  string `json:"op"`
		RHS Expr   `json:"rhs"`
		Loc `json:"loc"`
	}
	// An Alternation combines partials, e.g. "'CA' | 'NY'".  Op is
	// "|" for any-of and "&" for all-of.
	Alternation struct {
		Op  string `json:"op"`
		LHS Expr   `json:"lhs"`
		RHS Expr   `json:"rhs"`
		Loc `json:"loc"`
	}
	// An Apply applies a partial or value to a left-hand value, as in
	// "state: 'CA' | 'NY'" or "size: > 10".
	Apply struct {
		LHS Expr `json:"lhs"`
		RHS Expr `json:"rhs"`
		Loc `json:"loc"`
	}
	// An AggregateExpr is an aggregate function application such as
	// sum(amount), flights.count(), or avg(distance).  SourcePath, when
	// present, locates the join the aggregate is computed over.
	AggregateExpr struct {
		Fn         string   `json:"fn"`
		Expr       Expr     `json:"expr,omitempty"`
		SourcePath []string `json:"source_path,omitempty"`
		Loc        `json:"loc"`
	}
	// An Ungrouped escapes grouping inside a nested query: all(...) or
	// exclude(..., dims).  Fields name the enclosing output dimensions
	// excluded from (or, for all, retained by) the regrouping.
	Ungrouped struct {
		Fn     string   `json:"fn"`
		Expr   Expr     `json:"expr"`
		Fields []string `json:"fields,omitempty"`
		Loc    `json:"loc"`
	}
	// A TimeTrunc truncates a temporal value to a unit, e.g. now.month,
	// producing a granular result.
	TimeTrunc struct {
		Expr Expr             `json:"expr"`
		Unit malloy.Timeframe `json:"unit"`
		Loc  `json:"loc"`
	}
	// A TimeDiff measures a range in whole units, e.g.
	// seconds(t1 to t2).
	TimeDiff struct {
		Unit   malloy.Timeframe `json:"unit"`
		Begin  Expr             `json:"begin"`
		Finish Expr             `json:"end"`
		Loc    `json:"loc"`
	}
	Cast struct {
		Expr Expr              `json:"expr"`
		To   malloy.AtomicType `json:"to"`
		Safe bool              `json:"safe,omitempty"`
		Loc  `json:"loc"`
	}
	Parens struct {
		Expr Expr `json:"expr"`
		Loc  `json:"loc"`
	}
)

func (*ID) ExprAST()            {}
func (*NumberLit) ExprAST()     {}
func (*StringLit) ExprAST()     {}
func (*BooleanLit) ExprAST()    {}
func (*RegexpLit) ExprAST()     {}
func (*NullLit) ExprAST()       {}
func (*TimeLit) ExprAST()       {}
func (*Now) ExprAST()           {}
func (*Duration) ExprAST()      {}
func (*BinaryExpr) ExprAST()    {}
func (*UnaryExpr) ExprAST()     {}
func (*Partial) ExprAST()       {}
func (*Alternation) ExprAST()   {}
func (*Apply) ExprAST()         {}
func (*AggregateExpr) ExprAST() {}
func (*Ungrouped) ExprAST()     {}
func (*TimeTrunc) ExprAST()     {}
func (*TimeDiff) ExprAST()      {}
func (*Cast) ExprAST()          {}
func (*Parens) ExprAST()        {}
