package plan

import (
	"fmt"
	"strings"
)

// Format renders a segment as a compact one-line summary for
// diagnostics and test failure messages.
func Format(seg PipeSegment) string {
	var b strings.Builder
	b.WriteString(seg.SegmentKind())
	b.WriteString(": ")
	switch seg := seg.(type) {
	case *ReduceSegment:
		b.WriteString(formatFields(seg.Fields))
		if seg.Limit != 0 {
			fmt.Fprintf(&b, " limit %d", seg.Limit)
		}
		if len(seg.OrderBy) > 0 {
			fmt.Fprintf(&b, " order_by %s", formatOrder(seg.OrderBy))
		}
	case *ProjectSegment:
		b.WriteString(formatFields(seg.Fields))
		if seg.Limit != 0 {
			fmt.Fprintf(&b, " limit %d", seg.Limit)
		}
	case *IndexSegment:
		b.WriteString(strings.Join(seg.Fields, ", "))
		if seg.WeightMeasure != "" {
			fmt.Fprintf(&b, " by %s", seg.WeightMeasure)
		}
	}
	return b.String()
}

func formatFields(fields []FieldDef) string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.FieldName())
	}
	return strings.Join(names, ", ")
}

func formatOrder(order []OrderBy) string {
	parts := make([]string, 0, len(order))
	for _, o := range order {
		part := o.Field
		if part == "" {
			part = fmt.Sprintf("%d", o.Ordinal)
		}
		if o.Dir != "" {
			part += " " + o.Dir
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}
