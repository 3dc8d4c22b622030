package semantic

import (
	"fmt"

	"github.com/kr/pretty"
	"github.com/kr/text"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
	"go.uber.org/zap"
)

// compileQuery compiles a full query: resolve its input, then compose
// the pipeline segment by segment.  Returns nil when a dependent
// schema is still pending.
func (a *Analyzer) compileQuery(fq *ast.FullQuery, nestParent *QuerySpace) *plan.Query {
	if fq.Source == nil {
		return a.compileQueryFromHead(fq)
	}
	input := a.resolveSourceValue(fq.Source)
	if input == nil {
		return nil
	}
	q := &plan.Query{
		StructRef: a.structRefFor(fq.Source, input),
		Location:  fq.Loc,
	}
	if IsErrorStructDef(input) {
		q.Pipeline = plan.Pipeline{Segments: []plan.PipeSegment{ErrorReduceSegment()}}
		return q
	}
	q.Pipeline = a.compilePipeline(input, fq.Pipeline, NewStaticSpace(a, input), nestParent)
	return q
}

// compileQueryFromHead compiles a query whose pipeline begins at a
// model-level named query, refining and extending that query's plan.
func (a *Analyzer) compileQueryFromHead(fq *ast.FullQuery) *plan.Query {
	name := fq.Pipeline.HeadName
	entry := a.modelEntry(name)
	if entry == nil {
		a.errorf(fq, "query %q is not defined", name)
		return ErrorQuery()
	}
	if entry.query == nil {
		a.errorf(fq, "%q is not a query", name)
		return ErrorQuery()
	}
	base := entry.query
	input := a.inputStructOf(base)
	if input == nil {
		return nil
	}
	q := &plan.Query{StructRef: base.StructRef, Location: fq.Loc}
	q.Pipeline = a.extendPipeline(input, base.Pipeline, fq.Pipeline, nil)
	return q
}

// compilePipeline composes a pipeline against an input schema.  The
// head, when present, names a turtle in headSpace; a head refinement
// materializes the turtle's segments in place of the reference.
func (a *Analyzer) compilePipeline(input *plan.StructDef, pd ast.PipelineDesc, headSpace FieldSpace, nestParent *QuerySpace) plan.Pipeline {
	var pipe plan.Pipeline
	cur := input
	if pd.HeadName != "" {
		res := headSpace.Lookup(&pd, []string{pd.HeadName})
		if res.Error != "" {
			a.errorf(&pd, "%s", res.Error)
			return plan.Pipeline{Segments: []plan.PipeSegment{ErrorReduceSegment()}}
		}
		t, ok := res.Entry.(*TurtleField)
		if !ok {
			a.errorf(&pd, "%q is not a query", pd.HeadName)
			return plan.Pipeline{Segments: []plan.PipeSegment{ErrorReduceSegment()}}
		}
		if pd.HeadRefinement == nil && len(pd.Segments) == 0 {
			// A bare turtle reference stays a reference.
			pipe.Head = &plan.PipeHead{Name: pd.HeadName}
			return pipe
		}
		return a.extendPipeline(cur, t.Def.Pipeline, pd, nestParent)
	}
	return a.appendOps(pipe, cur, pd.Segments, nestParent)
}

// extendPipeline starts from an existing pipeline's segments, applies
// a head refinement to the first, and appends the new segments.
func (a *Analyzer) extendPipeline(input *plan.StructDef, base plan.Pipeline, pd ast.PipelineDesc, nestParent *QuerySpace) plan.Pipeline {
	var pipe plan.Pipeline
	pipe.Segments = append(pipe.Segments, base.Segments...)
	cur := input
	if pd.HeadRefinement != nil {
		if len(pipe.Segments) == 0 {
			a.errorf(pd.HeadRefinement, "nothing to refine")
		} else {
			pipe.Segments[0] = a.refineSegment(pd.HeadRefinement, pipe.Segments[0], cur, nestParent)
		}
	}
	for _, seg := range pipe.Segments {
		cur = a.opOutputStruct(&pd, cur, seg)
	}
	out := a.appendOps(pipe, cur, pd.Segments, nil)
	return out
}

// appendOps walks the remaining segment descriptions, compiling each
// against the running output schema of the one before.  Only the first
// appended segment can be nested in an enclosing query.
func (a *Analyzer) appendOps(pipe plan.Pipeline, input *plan.StructDef, segs []ast.QOPDesc, nestParent *QuerySpace) plan.Pipeline {
	cur := input
	for i := range segs {
		qop := &segs[i]
		parent := nestParent
		if len(pipe.Segments) > 0 {
			// Segments after the first read their own pipeline's
			// output, not the enclosing query's input.
			parent = nil
		}
		seg := a.compileSegment(qop, cur, parent)
		pipe.Segments = append(pipe.Segments, seg)
		cur = a.opOutputStruct(qop, cur, seg)
	}
	return pipe
}

func (a *Analyzer) compileSegment(qop *ast.QOPDesc, input *plan.StructDef, nestParent *QuerySpace) plan.PipeSegment {
	kind := computeType(a, qop, nil)
	x := newExecutor(a, kind, NewQuerySpace(a, input, nestParent))
	for _, prop := range qop.Props {
		x.execute(prop)
	}
	seg := x.finalize(nil)
	finalizeSegmentSpaces(x)
	return seg
}

// refineSegment overlays a refinement's properties on an existing
// segment.  The refinement must match the segment's kind: an index
// refines only an index, a reduce only a reduce.
func (a *Analyzer) refineSegment(qop *ast.QOPDesc, from plan.PipeSegment, input *plan.StructDef, nestParent *QuerySpace) plan.PipeSegment {
	kind := computeType(a, qop, from)
	if kind != from.SegmentKind() {
		a.errorf(qop, "cannot refine %s with %s", from.SegmentKind(), kind)
		return from
	}
	x := newExecutor(a, kind, NewQuerySpace(a, input, nestParent))
	for _, prop := range qop.Props {
		x.execute(prop)
	}
	seg := x.finalize(from)
	finalizeSegmentSpaces(x)
	return seg
}

// finalizeSegmentSpaces freezes a segment's result space once its
// fields are fixed, which runs deferred completion callbacks such as
// exclude() output checks.
func finalizeSegmentSpaces(x segmentExecutor) {
	switch x := x.(type) {
	case *reduceExecutor:
		x.result.StructDef()
	case *projectExecutor:
		x.result.StructDef()
	}
}

// opOutputStruct computes the schema flowing out of a segment.  A
// panic inside the plan layer is an implementation bug: it is logged
// with the offending segment pretty-printed and the schema becomes the
// error sentinel so analysis of later segments continues.
func (a *Analyzer) opOutputStruct(n ast.Node, input *plan.StructDef, seg plan.PipeSegment) (out *plan.StructDef) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("segment schema computation panicked", zap.Any("panic", r))
			a.errorf(n, "internal error computing segment schema:\n%s",
				text.Indent(fmt.Sprintf("%# v", pretty.Formatter(seg)), "    "))
			out = ErrorStructDef()
		}
	}()
	if IsErrorStructDef(input) {
		return input
	}
	next, err := plan.NextStructDef(input, seg)
	if err != nil {
		a.errorf(n, "invalid segment %s: %s", plan.Format(seg), err)
		return ErrorStructDef()
	}
	return next
}

// inputStructOf recovers the input schema of a compiled query for
// further refinement.
func (a *Analyzer) inputStructOf(q *plan.Query) *plan.StructDef {
	switch ref := q.StructRef.(type) {
	case *plan.StructDef:
		return ref
	case *plan.NamedRef:
		if entry := a.modelEntry(ref.Name); entry != nil && entry.structDef != nil {
			return entry.structDef
		}
	}
	return ErrorStructDef()
}

// outputStructOf runs a compiled query's pipeline over its input
// schema, yielding the schema of its result rows.
func (a *Analyzer) outputStructOf(n ast.Node, q *plan.Query) *plan.StructDef {
	cur := a.inputStructOf(q)
	if q.Head != nil {
		t, ok := cur.FieldByName(q.Head.Name).(*plan.TurtleDef)
		if !ok {
			a.errorf(n, "pipe head %q is not a query", q.Head.Name)
			return ErrorStructDef()
		}
		for _, seg := range t.Pipeline.Segments {
			cur = a.opOutputStruct(n, cur, seg)
		}
	}
	for _, seg := range q.Segments {
		cur = a.opOutputStruct(n, cur, seg)
	}
	return cur
}

// compileNest compiles a nested query declared inside a reduce
// segment.  Its input space wraps the same schema as the enclosing
// segment's input, with a back-pointer to the parent space so
// ungrouping expressions can reach the enclosing output.
func (a *Analyzer) compileNest(decl *ast.NestDecl, parentInput *QuerySpace) *plan.TurtleDef {
	pipe := a.compilePipeline(parentInput.seed, decl.Pipeline, parentInput, parentInput)
	return &plan.TurtleDef{Name: decl.Name, Pipeline: pipe, Location: decl.Loc}
}

// compileTurtle compiles a turtle declared in a source refinement,
// running once the owning space is structurally complete.  Its
// pipeline head resolves against the owning space so one turtle can
// extend another.
func (a *Analyzer) compileTurtle(decl *ast.TurtleDecl, owner *DynamicSpace) *plan.TurtleDef {
	pipe := a.compilePipeline(owner.StructDef(), decl.Pipeline, owner, nil)
	return &plan.TurtleDef{Name: decl.Name, Pipeline: pipe, Location: decl.Loc}
}
