package plan

import (
	"fmt"

	"github.com/malloydata/malloy"
)

// NextStructDef computes the output schema of one pipeline segment
// applied to input.  It is pure: the same input and segment always
// produce the same StructDef, and field order is stable — fields appear
// in the segment's own order for reduce and project, and the index
// output shape is fixed.  A reduce or project segment's field
// references also resolve against its own extend_source fields.
func NextStructDef(input *StructDef, seg PipeSegment) (*StructDef, error) {
	out := &StructDef{
		Name:         input.Name,
		Dialect:      input.Dialect,
		Parameters:   input.Parameters,
		Source:       StructSource{Type: "nested"},
		Relationship: Relationship{Type: "basetable"},
	}
	var extend []FieldDef
	switch seg := seg.(type) {
	case *ReduceSegment:
		extend = seg.ExtendSource
	case *ProjectSegment:
		extend = seg.ExtendSource
	}
	if len(extend) > 0 {
		input = input.Clone()
		input.Fields = append(input.Fields, extend...)
	}
	switch seg := seg.(type) {
	case *ReduceSegment:
		return nextFields(input, out, seg.Fields)
	case *ProjectSegment:
		return nextFields(input, out, seg.Fields)
	case *IndexSegment:
		out.Fields = []FieldDef{
			&ColumnDef{Name: "fieldName", Type: malloy.TypeString},
			&ColumnDef{Name: "fieldValue", Type: malloy.TypeString},
			&ColumnDef{Name: "fieldType", Type: malloy.TypeString},
			&ColumnDef{Name: "weight", Type: malloy.TypeNumber},
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown segment kind %q", seg.SegmentKind())
	}
}

func nextFields(input, out *StructDef, fields []FieldDef) (*StructDef, error) {
	for _, f := range fields {
		switch f := f.(type) {
		case *ColumnDef:
			out.Fields = append(out.Fields, &ColumnDef{
				Name:     f.Name,
				Type:     f.Type,
				Location: f.Location,
			})
		case *FieldRef:
			def, err := walkPath(input, f.Path)
			if err != nil {
				return nil, err
			}
			out.Fields = append(out.Fields, def)
		case *TurtleDef:
			nested, err := turtleStructDef(input, f)
			if err != nil {
				return nil, err
			}
			out.Fields = append(out.Fields, nested)
		case *StructDef:
			out.Fields = append(out.Fields, f)
		default:
			return nil, fmt.Errorf("unknown field kind %T in segment", f)
		}
	}
	return out, nil
}

// walkPath resolves a dotted reference through joins and returns an
// output column named by the path's final element.
func walkPath(in *StructDef, path []string) (FieldDef, error) {
	for i, name := range path {
		f := in.FieldByName(name)
		if f == nil {
			return nil, fmt.Errorf("%q not found in %q", name, in.Name)
		}
		if i == len(path)-1 {
			switch f := f.(type) {
			case *ColumnDef:
				return &ColumnDef{Name: f.Name, Type: f.Type, Location: f.Location}, nil
			case *StructDef, *TurtleDef:
				return f, nil
			default:
				return nil, fmt.Errorf("%q is not a column", name)
			}
		}
		sub, ok := f.(*StructDef)
		if !ok {
			return nil, fmt.Errorf("%q cannot contain %q", name, path[i+1])
		}
		in = sub
	}
	return nil, fmt.Errorf("empty field path in %q", in.Name)
}

// turtleStructDef computes the nested relation a turtle produces per
// group: the output of its pipeline run against the input struct,
// related to the parent as nested.
func turtleStructDef(input *StructDef, t *TurtleDef) (*StructDef, error) {
	cur := input
	if t.Pipeline.Head != nil {
		head, ok := input.FieldByName(t.Pipeline.Head.Name).(*TurtleDef)
		if !ok {
			return nil, fmt.Errorf("pipe head %q is not a query in %q", t.Pipeline.Head.Name, input.Name)
		}
		next, err := turtleStructDef(input, head)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	for _, seg := range t.Pipeline.Segments {
		next, err := NextStructDef(cur, seg)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	nested := cur.Clone()
	nested.Name = t.Name
	nested.Relationship = Relationship{Type: "nested"}
	return nested, nil
}
