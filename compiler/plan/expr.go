package plan

// This module is derived from the GO AST design pattern in
// https://golang.org/pkg/go/ast/
//
// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// An Expr is a compiled expression: a sequence of fragments that a
// per-dialect SQL writer renders in order.  Literal SQL text appears as
// TextFrag; everything the writer must resolve per dialect or per
// query layout appears as a structured fragment.
type Expr []Fragment

type Fragment interface {
	fragmentNode()
}

type (
	// A TextFrag is literal SQL text emitted verbatim.
	TextFrag struct {
		Kind string `json:"kind"`
		Text string `json:"text"`
	}
	// A FieldFrag references an input column by dotted path.
	FieldFrag struct {
		Kind string   `json:"kind"`
		Path []string `json:"path"`
	}
	// An OutputFrag references a column of the segment's own output.
	OutputFrag struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}
	// A ParamFrag references a source parameter by name.
	ParamFrag struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
	}
	// An AggFrag computes an aggregate over the rows of the source at
	// SourcePath (empty for the query's own source).
	AggFrag struct {
		Kind       string   `json:"kind"`
		Fn         string   `json:"fn"`
		SourcePath []string `json:"source_path,omitempty"`
		Expr       Expr     `json:"expr,omitempty"`
	}
	// An UngroupedFrag escapes the enclosing grouping: all() recomputes
	// the aggregate ungrouped, exclude() regroups without the named
	// dimensions.
	UngroupedFrag struct {
		Kind   string   `json:"kind"`
		Fn     string   `json:"fn"`
		Expr   Expr     `json:"expr"`
		Fields []string `json:"fields,omitempty"`
	}
	// A DivFrag divides two numbers.  Dialects render their own safe
	// division rather than a bare "/".
	DivFrag struct {
		Kind string `json:"kind"`
		LHS  Expr   `json:"lhs"`
		RHS  Expr   `json:"rhs"`
	}
	// A RegexpMatchFrag matches Expr against Pattern with the
	// dialect's regexp operator.  Pattern is an expression so both
	// literal and column-valued patterns render uniformly.
	RegexpMatchFrag struct {
		Kind    string `json:"kind"`
		Expr    Expr   `json:"expr"`
		Pattern Expr   `json:"pattern"`
	}
	// A LikeFrag matches Expr against a LIKE pattern.  For constant
	// patterns Regexp carries the equivalent regular expression for
	// dialects without LIKE.
	LikeFrag struct {
		Kind    string `json:"kind"`
		Expr    Expr   `json:"expr"`
		Pattern Expr   `json:"pattern"`
		Regexp  string `json:"regexp,omitempty"`
		Negate  bool   `json:"negate,omitempty"`
	}
	// A TruncFrag truncates a temporal value to Unit.
	TruncFrag struct {
		Kind string `json:"kind"`
		Expr Expr   `json:"expr"`
		Unit string `json:"unit"`
	}
	// A DeltaFrag offsets a temporal value by N units.  Op is "+" or
	// "-".
	DeltaFrag struct {
		Kind string `json:"kind"`
		Base Expr   `json:"base"`
		Op   string `json:"op"`
		N    Expr   `json:"n"`
		Unit string `json:"unit"`
	}
	// A TimeDiffFrag measures Begin to End in whole Units, flooring
	// any sub-unit remainder toward zero.
	TimeDiffFrag struct {
		Kind  string `json:"kind"`
		Unit  string `json:"unit"`
		Begin Expr   `json:"begin"`
		End   Expr   `json:"end"`
	}
	// A CastFrag converts Expr to To; Safe casts yield null on
	// conversion failure where the dialect supports it.
	CastFrag struct {
		Kind string `json:"kind"`
		Expr Expr   `json:"expr"`
		To   string `json:"to"`
		Safe bool   `json:"safe,omitempty"`
	}
	// A NowFrag is the current timestamp.
	NowFrag struct {
		Kind string `json:"kind"`
	}
	// An ErrorFrag poisons an expression that already produced a
	// diagnostic so downstream stages emit nothing further for it.
	ErrorFrag struct {
		Kind string `json:"kind"`
	}
)

func (*TextFrag) fragmentNode()        {}
func (*FieldFrag) fragmentNode()       {}
func (*OutputFrag) fragmentNode()      {}
func (*ParamFrag) fragmentNode()       {}
func (*AggFrag) fragmentNode()         {}
func (*UngroupedFrag) fragmentNode()   {}
func (*DivFrag) fragmentNode()         {}
func (*RegexpMatchFrag) fragmentNode() {}
func (*LikeFrag) fragmentNode()        {}
func (*TruncFrag) fragmentNode()       {}
func (*DeltaFrag) fragmentNode()       {}
func (*TimeDiffFrag) fragmentNode()    {}
func (*CastFrag) fragmentNode()        {}
func (*NowFrag) fragmentNode()         {}
func (*ErrorFrag) fragmentNode()       {}

// Text makes a literal SQL text fragment.
func Text(s string) *TextFrag {
	return &TextFrag{Kind: "text", Text: s}
}

// Field makes an input-column reference fragment.
func Field(path ...string) *FieldFrag {
	return &FieldFrag{Kind: "field", Path: path}
}

// TextExpr makes a one-fragment expression of literal SQL text.
func TextExpr(s string) Expr {
	return Expr{Text(s)}
}

// ErrorExpr makes a poisoned expression.
func ErrorExpr() Expr {
	return Expr{&ErrorFrag{Kind: "error"}}
}

// IsError reports whether one of e's top-level fragments is an error
// fragment; expressions nested inside other fragments are not searched.
func (e Expr) IsError() bool {
	for _, f := range e {
		if _, ok := f.(*ErrorFrag); ok {
			return true
		}
	}
	return false
}

// Concat appends the fragments of each expression in order.
func Concat(exprs ...Expr) Expr {
	var out Expr
	for _, e := range exprs {
		out = append(out, e...)
	}
	return out
}
