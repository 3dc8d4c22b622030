package semantic

import (
	"slices"

	"github.com/malloydata/malloy"
	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
)

// A segmentExecutor consumes the properties of one QOPDesc and
// finalizes them into a plan segment, optionally refining an existing
// segment of the same kind.
type segmentExecutor interface {
	execute(prop ast.QueryProp)
	finalize(refineFrom plan.PipeSegment) plan.PipeSegment
}

// computeType classifies an unlabeled segment by scanning its
// properties in order: the first kind-fixing property decides.  An
// aggregate-only segment is still a reduce; a segment with nothing to
// go on defaults to reduce with a diagnostic unless it refines an
// existing segment.
func computeType(a *Analyzer, qop *ast.QOPDesc, refineFrom plan.PipeSegment) string {
	if qop.Label != "" {
		return qop.Label
	}
	for _, prop := range qop.Props {
		switch prop.(type) {
		case *ast.Index:
			return "index"
		case *ast.GroupBy, *ast.Nests, *ast.NestRef, *ast.AggregateProp:
			return "reduce"
		case *ast.ProjectProp:
			return "project"
		}
	}
	if refineFrom != nil {
		return refineFrom.SegmentKind()
	}
	a.errorf(qop, "cannot determine segment type; assuming group_by/aggregate")
	return "reduce"
}

// newExecutor builds the executor for a segment kind.
func newExecutor(a *Analyzer, kind string, input *QuerySpace) segmentExecutor {
	switch kind {
	case "project":
		return newProjectExecutor(a, input)
	case "index":
		return newIndexExecutor(a, input)
	default:
		return newReduceExecutor(a, input)
	}
}

// reduceExecutor builds a reduce (group_by/aggregate) segment.
type reduceExecutor struct {
	a      *Analyzer
	input  *QuerySpace
	result *ResultSpace

	filters []*plan.FilterCondition
	orderBy []ast.OrderItem
	by      *plan.By
	byNode  ast.Node
	limit   int
	sorted  bool
	limited bool
}

func newReduceExecutor(a *Analyzer, input *QuerySpace) *reduceExecutor {
	return &reduceExecutor{a: a, input: input, result: NewReduceFieldSpace(a, input)}
}

func (x *reduceExecutor) execute(prop ast.QueryProp) {
	switch prop := prop.(type) {
	case *ast.GroupBy:
		x.result.AddItems(prop.Items, groupByMode)
	case *ast.AggregateProp:
		x.result.AddItems(prop.Items, aggregateMode)
	case *ast.ProjectProp:
		x.a.errorf(prop, "project is not legal in a group_by/aggregate segment")
	case *ast.Nests:
		for i := range prop.Nests {
			if def := x.a.compileNest(&prop.Nests[i], x.input); def != nil {
				x.result.AddNest(&prop.Nests[i], def)
			}
		}
	case *ast.NestRef:
		x.executeNestRef(prop)
	case *ast.FilterProp:
		x.executeFilter(prop)
	case *ast.Top:
		x.executeTop(prop)
	case *ast.Limit:
		if x.limited {
			x.a.errorf(prop, "limit already specified")
			return
		}
		x.limited = true
		x.limit = prop.N
	case *ast.Ordering:
		if x.sorted {
			x.a.errorf(prop, "ordering already specified")
			return
		}
		x.sorted = true
		x.orderBy = prop.Items
	case *ast.Joins:
		for _, j := range prop.Joins {
			x.input.ExtendWithJoin(j)
		}
	case *ast.DeclareFields:
		for i := range prop.Fields {
			x.input.ExtendWithField(&prop.Fields[i])
		}
	case *ast.Index, *ast.Sample:
		x.a.errorf(prop, "index properties are only legal in an index segment")
	default:
		x.a.errorf(prop, "unexpected query property")
	}
}

func (x *reduceExecutor) executeNestRef(ref *ast.NestRef) {
	res := x.input.Lookup(ref, []string{ref.Name})
	if res.Error != "" {
		x.a.errorf(ref, "%s", res.Error)
		return
	}
	t, ok := res.Entry.(*TurtleField)
	if !ok {
		x.a.errorf(ref, "%q is not a query", ref.Name)
		return
	}
	x.result.AddNest(ref, t.Def)
}

func (x *reduceExecutor) executeFilter(prop *ast.FilterProp) {
	for _, e := range prop.Exprs {
		fs := FieldSpace(x.input)
		if prop.Having {
			// A having filter may reference the segment's own output.
			fs = x.result
		}
		fc := x.a.evalFilter(fs, e)
		if fc == nil {
			continue
		}
		if prop.Having && !fc.Kind.IsCalculation() {
			x.a.errorf(e, "having filter must be an aggregate expression; use where")
			continue
		}
		if !prop.Having && fc.Kind.IsCalculation() {
			x.a.errorf(e, "aggregate expressions are not allowed in where; use having")
			continue
		}
		x.filters = append(x.filters, fc)
	}
}

func (x *reduceExecutor) executeTop(prop *ast.Top) {
	if x.limited {
		x.a.errorf(prop, "limit already specified")
	} else {
		x.limited = true
		x.limit = prop.N
	}
	if x.sorted {
		x.a.errorf(prop, "ordering already specified")
		return
	}
	x.sorted = true
	if prop.By == nil {
		return
	}
	if prop.By.Name != "" {
		x.by = &plan.By{Name: prop.By.Name}
		x.byNode = prop.By
		return
	}
	v := x.a.evalExpr(x.result, prop.By.Expr)
	if v.typ == malloy.TypeError {
		return
	}
	if !v.kind.IsCalculation() {
		x.a.errorf(prop.By, "top by expression must be an aggregate")
		return
	}
	x.by = &plan.By{Expr: v.value}
}

func (x *reduceExecutor) finalize(refineFrom plan.PipeSegment) plan.PipeSegment {
	seg := plan.NewReduceSegment()
	if from, ok := refineFrom.(*plan.ReduceSegment); ok && from != nil {
		seg.Fields = append(seg.Fields, from.Fields...)
		seg.Filters = append(seg.Filters, from.Filters...)
		seg.OrderBy = append([]plan.OrderBy(nil), from.OrderBy...)
		seg.By = from.By
		seg.Limit = from.Limit
		seg.ExtendSource = append(seg.ExtendSource, from.ExtendSource...)
	}
	seg.Fields = append(seg.Fields, x.result.QueryFieldDefs()...)
	seg.Filters = append(seg.Filters, x.filters...)
	if x.sorted {
		seg.OrderBy = x.finalizeOrder(seg.Fields)
		seg.By = x.by
	}
	if x.limited {
		seg.Limit = x.limit
	}
	seg.ExtendSource = append(seg.ExtendSource, x.input.ExtendedFields()...)
	if x.by != nil && x.by.Name != "" && !fieldsContain(seg.Fields, x.by.Name) {
		x.a.errorf(x.byNode, "top by %q is not in query output", x.by.Name)
	}
	return seg
}

// finalizeOrder validates ordering against the completed field list:
// names must be output columns and ordinals must be in range.
func (x *reduceExecutor) finalizeOrder(fields []plan.FieldDef) []plan.OrderBy {
	var out []plan.OrderBy
	for _, item := range x.orderBy {
		if item.Field != "" {
			if !fieldsContain(fields, item.Field) {
				x.a.errorf(&item, "output name %q not found for order_by", item.Field)
				continue
			}
			out = append(out, plan.OrderBy{Field: item.Field, Dir: item.Dir})
			continue
		}
		if item.Ordinal < 1 || item.Ordinal > len(fields) {
			x.a.errorf(&item, "order_by ordinal %d is out of range", item.Ordinal)
			continue
		}
		out = append(out, plan.OrderBy{Ordinal: item.Ordinal, Dir: item.Dir})
	}
	return out
}

func fieldsContain(fields []plan.FieldDef, name string) bool {
	return slices.ContainsFunc(fields, func(f plan.FieldDef) bool {
		return f.FieldName() == name
	})
}

// projectExecutor builds a project segment: row-level selection with
// no grouping, no aggregates, no nests, and no having.
type projectExecutor struct {
	reduceExecutor
}

func newProjectExecutor(a *Analyzer, input *QuerySpace) *projectExecutor {
	x := &projectExecutor{}
	x.a = a
	x.input = input
	x.result = NewProjectFieldSpace(a, input)
	return x
}

func (x *projectExecutor) execute(prop ast.QueryProp) {
	switch prop := prop.(type) {
	case *ast.ProjectProp:
		x.result.AddItems(prop.Items, projectMode)
	case *ast.GroupBy:
		x.a.errorf(prop, "group_by is not legal in a project segment")
	case *ast.AggregateProp:
		x.a.errorf(prop, "aggregate is not legal in a project segment")
	case *ast.Nests:
		x.a.errorf(prop, "cannot nest queries in project")
	case *ast.NestRef:
		x.a.errorf(prop, "cannot nest queries in project")
	case *ast.FilterProp:
		if prop.Having {
			x.a.errorf(prop, "having is not legal in a project segment")
			return
		}
		x.executeFilter(prop)
	default:
		x.reduceExecutor.execute(prop)
	}
}

func (x *projectExecutor) finalize(refineFrom plan.PipeSegment) plan.PipeSegment {
	seg := plan.NewProjectSegment()
	if from, ok := refineFrom.(*plan.ProjectSegment); ok && from != nil {
		seg.Fields = append(seg.Fields, from.Fields...)
		seg.Filters = append(seg.Filters, from.Filters...)
		seg.OrderBy = append([]plan.OrderBy(nil), from.OrderBy...)
		seg.Limit = from.Limit
		seg.ExtendSource = append(seg.ExtendSource, from.ExtendSource...)
	}
	seg.Fields = append(seg.Fields, x.result.QueryFieldDefs()...)
	seg.Filters = append(seg.Filters, x.filters...)
	if x.sorted {
		seg.OrderBy = x.finalizeOrder(seg.Fields)
	}
	if x.limited {
		seg.Limit = x.limit
	}
	seg.ExtendSource = append(seg.ExtendSource, x.input.ExtendedFields()...)
	return seg
}

// indexExecutor builds an index segment.
type indexExecutor struct {
	a      *Analyzer
	input  *QuerySpace
	result *IndexFieldSpace

	filters []*plan.FilterCondition
	weight  string
	sample  *plan.Sampling
	limit   int
	limited bool
}

func newIndexExecutor(a *Analyzer, input *QuerySpace) *indexExecutor {
	return &indexExecutor{a: a, input: input, result: NewIndexFieldSpace(a, input)}
}

func (x *indexExecutor) execute(prop ast.QueryProp) {
	switch prop := prop.(type) {
	case *ast.Index:
		x.result.AddItems(prop.Items)
		if prop.WeightBy != "" {
			x.executeWeightBy(prop)
		}
	case *ast.FilterProp:
		if prop.Having {
			x.a.errorf(prop, "having is not legal in an index segment")
			return
		}
		for _, e := range prop.Exprs {
			fc := x.a.evalFilter(x.input, e)
			if fc == nil {
				continue
			}
			if fc.Kind.IsCalculation() {
				x.a.errorf(e, "aggregate expressions are not allowed in where")
				continue
			}
			x.filters = append(x.filters, fc)
		}
	case *ast.Limit:
		if x.limited {
			x.a.errorf(prop, "limit already specified")
			return
		}
		x.limited = true
		x.limit = prop.N
	case *ast.Sample:
		if x.sample != nil {
			x.a.errorf(prop, "sample already specified")
			return
		}
		x.sample = &plan.Sampling{Rows: prop.Rows, Percent: prop.Percent, Enable: prop.Enable}
	default:
		x.a.errorf(prop, "only index, where, limit, and sample are legal in an index segment")
	}
}

func (x *indexExecutor) executeWeightBy(prop *ast.Index) {
	res := x.input.Lookup(prop, []string{prop.WeightBy})
	if res.Error != "" {
		x.a.errorf(prop, "%s", res.Error)
		return
	}
	if !res.Entry.TypeDesc().Kind.IsCalculation() {
		x.a.errorf(prop, "weight_by %q must be a measure", prop.WeightBy)
		return
	}
	x.weight = prop.WeightBy
}

func (x *indexExecutor) finalize(refineFrom plan.PipeSegment) plan.PipeSegment {
	seg := plan.NewIndexSegment()
	if from, ok := refineFrom.(*plan.IndexSegment); ok && from != nil {
		seg.Fields = append(seg.Fields, from.Fields...)
		seg.Filters = append(seg.Filters, from.Filters...)
		seg.WeightMeasure = from.WeightMeasure
		seg.Sample = from.Sample
		seg.Limit = from.Limit
	}
	for _, ref := range x.result.Refs() {
		if !slices.Contains(seg.Fields, ref) {
			seg.Fields = append(seg.Fields, ref)
		}
	}
	seg.Filters = append(seg.Filters, x.filters...)
	if x.weight != "" {
		seg.WeightMeasure = x.weight
	}
	if x.sample != nil {
		seg.Sample = x.sample
	}
	if x.limited {
		seg.Limit = x.limit
	}
	return seg
}
