package ast

// Query pipeline nodes.

// A QueryItem is one entry of a group_by, aggregate, project, or index
// list: a reference to an existing field, an inline definition, or a
// wildcard.
type QueryItem interface {
	Node
	QueryItemAST()
}

type (
	// A FieldRef names an existing field by path.
	FieldRef struct {
		Path []string `json:"path"`
		Loc  `json:"loc"`
	}
	// A Wildcard expands to the fields of the referenced space: "*"
	// expands atomic fields, "**" recurses through joins.  JoinPath
	// qualifies the space the wildcard expands, e.g. carriers.*.
	Wildcard struct {
		JoinPath   []string `json:"join_path,omitempty"`
		DoubleStar bool     `json:"double_star,omitempty"`
		Loc        `json:"loc"`
	}
)

func (*FieldRef) QueryItemAST()  {}
func (*Wildcard) QueryItemAST()  {}
func (*FieldDecl) QueryItemAST() {}

type (
	GroupBy struct {
		Items []QueryItem `json:"items"`
		Loc   `json:"loc"`
	}
	AggregateProp struct {
		Items []QueryItem `json:"items"`
		Loc   `json:"loc"`
	}
	ProjectProp struct {
		Items []QueryItem `json:"items"`
		Loc   `json:"loc"`
	}
	// Nests defines sub-queries computed per group.
	Nests struct {
		Nests []NestDecl `json:"nests"`
		Loc   `json:"loc"`
	}
	// A NestRef invokes an existing turtle by name as a nested query.
	NestRef struct {
		Name string `json:"name"`
		Loc  `json:"loc"`
	}
	// Top caps the result rows, optionally ordered by an aggregate.
	Top struct {
		N   int    `json:"n"`
		By  *TopBy `json:"by,omitempty"`
		Loc `json:"loc"`
	}
	Limit struct {
		N   int `json:"n"`
		Loc `json:"loc"`
	}
	Ordering struct {
		Items []OrderItem `json:"items"`
		Loc   `json:"loc"`
	}
	// An Index property lists the columns an index segment scans.
	Index struct {
		Items    []QueryItem `json:"items"`
		WeightBy string      `json:"weight_by,omitempty"`
		Loc      `json:"loc"`
	}
	// A Sample property limits an index scan to a sample of rows.
	Sample struct {
		Rows    int     `json:"rows,omitempty"`
		Percent float64 `json:"percent,omitempty"`
		Enable  bool    `json:"enable,omitempty"`
		Loc     `json:"loc"`
	}
)

func (*GroupBy) QueryPropAST()       {}
func (*AggregateProp) QueryPropAST() {}
func (*ProjectProp) QueryPropAST()   {}
func (*Nests) QueryPropAST()         {}
func (*NestRef) QueryPropAST()       {}
func (*FilterProp) QueryPropAST()    {}
func (*Top) QueryPropAST()           {}
func (*Limit) QueryPropAST()         {}
func (*Ordering) QueryPropAST()      {}
func (*Joins) QueryPropAST()         {}
func (*DeclareFields) QueryPropAST() {}
func (*Index) QueryPropAST()         {}
func (*Sample) QueryPropAST()        {}

// A NestDecl defines a nested query inline or refines a turtle.
type NestDecl struct {
	Name     string       `json:"name"`
	Pipeline PipelineDesc `json:"pipeline"`
	Loc      `json:"loc"`
}

// A TopBy orders a top property by a named output field or an
// aggregate expression.
type TopBy struct {
	Name string `json:"name,omitempty"`
	Expr Expr   `json:"expr,omitempty"`
	Loc  `json:"loc"`
}

// An OrderItem orders by an output field name or 1-based ordinal.
type OrderItem struct {
	Field   string `json:"field,omitempty"`
	Ordinal int    `json:"ordinal,omitempty"`
	Dir     string `json:"dir,omitempty"` // "asc", "desc", or ""
	Loc     `json:"loc"`
}

// A QOPDesc describes one segment of a pipeline: an optional explicit
// label (reduce, project, index) and the segment's properties.  An
// unlabeled segment's kind is inferred from its properties.
type QOPDesc struct {
	Label string      `json:"label,omitempty"`
	Props []QueryProp `json:"props"`
	Loc   `json:"loc"`
}

// A PipelineDesc is the operator list of a query: an optional head
// (a turtle or named-query reference, with optional refinement of the
// head's first segment) followed by zero or more segments.
type PipelineDesc struct {
	HeadName       string    `json:"head_name,omitempty"`
	HeadRefinement *QOPDesc  `json:"head_refinement,omitempty"`
	Segments       []QOPDesc `json:"segments"`
	Loc            `json:"loc"`
}

// A FullQuery pairs a source with a pipeline.  Source is nil when the
// pipeline's head names a model-level query.
type FullQuery struct {
	Source   Source       `json:"source,omitempty"`
	Pipeline PipelineDesc `json:"pipeline"`
	Loc      `json:"loc"`
}

// Top-level statements.

type (
	// DefineSource names a source in the model, e.g.
	// "source: flights is table('flights') { ... }".
	DefineSource struct {
		Name     string `json:"name"`
		Source   Source `json:"source"`
		Exported bool   `json:"exported,omitempty"`
		Loc      `json:"loc"`
	}
	// DefineQuery names a query in the model.
	DefineQuery struct {
		Name     string     `json:"name"`
		Query    *FullQuery `json:"query"`
		Exported bool       `json:"exported,omitempty"`
		Loc      `json:"loc"`
	}
	// An AnonQuery is a top-level unnamed query; the analyzer appends
	// its plan to the document's query list.
	AnonQuery struct {
		Query *FullQuery `json:"query"`
		Loc   `json:"loc"`
	}
	// DefineSQLBlock names a SQL block whose schema comes from the
	// SQL zone once the driver has compiled it.
	DefineSQLBlock struct {
		Name       string   `json:"name"`
		Select     []string `json:"select"`
		Connection string   `json:"connection,omitempty"`
		Loc        `json:"loc"`
	}
)

func (*DefineSource) StatementAST()   {}
func (*DefineQuery) StatementAST()    {}
func (*AnonQuery) StatementAST()      {}
func (*DefineSQLBlock) StatementAST() {}
