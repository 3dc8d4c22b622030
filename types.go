// Package malloy defines the type and value vocabulary shared by the
// Malloy compiler's semantic analyzer and its query-plan output: atomic
// field types, expression kinds, evaluation spaces, and time
// granularity units, together with the lattice operations that combine
// them during analysis.
package malloy

import (
	"fmt"
	"slices"
)

// AtomicType is the type of a scalar field or expression.  Beyond the
// user-visible types, duration appears only during temporal arithmetic,
// unknown marks a value not yet resolved, and error marks a value whose
// computation already produced a diagnostic.
type AtomicType string

const (
	TypeString      AtomicType = "string"
	TypeNumber      AtomicType = "number"
	TypeBoolean     AtomicType = "boolean"
	TypeDate        AtomicType = "date"
	TypeTimestamp   AtomicType = "timestamp"
	TypeRegexp      AtomicType = "regular expression"
	TypeNull        AtomicType = "null"
	TypeUnsupported AtomicType = "unsupported"
	TypeDuration    AtomicType = "duration"
	TypeUnknown     AtomicType = "unknown"
	TypeError       AtomicType = "error"
)

// In reports whether t is one of allowed.
func (t AtomicType) In(allowed ...AtomicType) bool {
	return slices.Contains(allowed, t)
}

// IsTime reports whether t is a temporal type.
func (t AtomicType) IsTime() bool {
	return t == TypeDate || t == TypeTimestamp
}

// TypeEq compares two atomic types.  An error type is never equal to
// anything, including another error, so a poisoned value cannot
// accidentally satisfy a type requirement.  When nullOK is set, null on
// either side matches.
func TypeEq(a, b AtomicType, nullOK bool) bool {
	if a == TypeError || b == TypeError {
		return false
	}
	if nullOK && (a == TypeNull || b == TypeNull) {
		return true
	}
	return a == b
}

// ExprKind classifies an expression by how it interacts with grouping.
type ExprKind string

const (
	Scalar             ExprKind = "scalar"
	Aggregate          ExprKind = "aggregate"
	Analytic           ExprKind = "analytic"
	UngroupedAggregate ExprKind = "ungrouped_aggregate"
)

var exprKindRank = map[ExprKind]int{
	Scalar:             0,
	Aggregate:          1,
	Analytic:           2,
	UngroupedAggregate: 3,
}

// IsCalculation reports whether k is anything other than a plain
// scalar, i.e., whether it may not appear where a scalar is required.
func (k ExprKind) IsCalculation() bool {
	return k != Scalar
}

// MaxExprKind combines two expression kinds, yielding the most derived
// one: scalar with aggregate is aggregate, aggregate with analytic is
// analytic, and anything with ungrouped_aggregate is
// ungrouped_aggregate.
func MaxExprKind(a, b ExprKind) ExprKind {
	if exprKindRank[b] > exprKindRank[a] {
		return b
	}
	return a
}

// MaxOfExprKinds folds MaxExprKind over kinds, returning Scalar for an
// empty list.
func MaxOfExprKinds(kinds ...ExprKind) ExprKind {
	most := Scalar
	for _, k := range kinds {
		most = MaxExprKind(most, k)
	}
	return most
}

// EvalSpace locates where a value can be computed.  A constant needs no
// row at all, a literal is fixed text from the query, an input value
// reads the segment's input columns, and an output value reads the
// segment's own result columns.
type EvalSpace string

const (
	ConstantSpace EvalSpace = "constant"
	LiteralSpace  EvalSpace = "literal"
	InputSpace    EvalSpace = "input"
	OutputSpace   EvalSpace = "output"
)

var evalSpaceRank = map[EvalSpace]int{
	ConstantSpace: 0,
	LiteralSpace:  1,
	InputSpace:    2,
	OutputSpace:   3,
}

// MergeEvalSpaces returns the most derived of the given spaces, or
// constant when none are given.
func MergeEvalSpaces(spaces ...EvalSpace) EvalSpace {
	merged := ConstantSpace
	for _, s := range spaces {
		if evalSpaceRank[s] > evalSpaceRank[merged] {
			merged = s
		}
	}
	return merged
}

// Timeframe is a truncation or duration unit for temporal values.
type Timeframe string

const (
	Year    Timeframe = "year"
	Quarter Timeframe = "quarter"
	Month   Timeframe = "month"
	Week    Timeframe = "week"
	Day     Timeframe = "day"
	Hour    Timeframe = "hour"
	Minute  Timeframe = "minute"
	Second  Timeframe = "second"
)

// CalendarTimeframe reports whether t counts whole calendar units
// rather than a fixed number of seconds.
func (t Timeframe) CalendarTimeframe() bool {
	switch t {
	case Year, Quarter, Month, Week:
		return true
	}
	return false
}

// Valid reports whether t is one of the defined units.
func (t Timeframe) Valid() bool {
	switch t {
	case Year, Quarter, Month, Week, Day, Hour, Minute, Second:
		return true
	}
	return false
}

// Inspect renders a short description of a type and kind pair for
// diagnostics, e.g. "aggregate number".
func Inspect(t AtomicType, k ExprKind) string {
	if k == Scalar {
		return string(t)
	}
	return fmt.Sprintf("%s %s", k, t)
}
