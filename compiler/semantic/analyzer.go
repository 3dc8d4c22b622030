// Package semantic analyzes a parsed Malloy document, resolving names
// through nested field spaces, type-checking expressions, and
// composing query pipelines into the language-independent plan the SQL
// writer consumes.
//
// Analysis is a single top-down pass over the document.  A statement
// that needs schema data not yet in its zone suspends the pass: Execute
// returns a ModelDataRequest and the driver re-runs the pass after
// populating the zone.  Diagnostics attach to source offsets via the
// document's srcfiles.Source; a failed computation leaves a sentinel in
// the plan so unrelated diagnostics still surface.
package semantic

import (
	"fmt"

	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
	"github.com/malloydata/malloy/compiler/srcfiles"
	"github.com/malloydata/malloy/compiler/zone"
	"go.uber.org/zap"
)

// A ModelDataRequest tells the driver what to fetch before re-running
// the pass: table schemas for the schema zone, or a SQL block the
// driver must compile against the database to learn its schema.
type ModelDataRequest struct {
	CompileSQL *ast.DefineSQLBlock
	Tables     []zone.Ref
}

// A FieldReference records one resolved name for downstream tooling.
type FieldReference struct {
	Kind     string // "field", "join", "turtle", or "parameter"
	Path     []string
	Location ast.Loc
}

type modelEntry struct {
	structDef *plan.StructDef
	query     *plan.Query
	sqlBlock  *ast.DefineSQLBlock
	exported  bool
}

// An Analyzer holds the state of one semantic pass.
type Analyzer struct {
	src        *srcfiles.Source
	logger     *zap.Logger
	schemas    *zone.Zone[*plan.StructDef]
	sqlSchemas *zone.Zone[*plan.StructDef]

	model      map[string]*modelEntry
	queryList  []*plan.Query
	references []FieldReference

	needTables bool
	needSQL    *ast.DefineSQLBlock
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the pass logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) { a.logger = logger }
}

// New builds an analyzer over a document's source text and the zones
// the driver populates.
func New(src *srcfiles.Source, schemas, sqlSchemas *zone.Zone[*plan.StructDef], opts ...Option) *Analyzer {
	a := &Analyzer{
		src:        src,
		logger:     zap.NewNop(),
		schemas:    schemas,
		sqlSchemas: sqlSchemas,
		model:      make(map[string]*modelEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute analyzes the document.  A non-nil return means the pass is
// incomplete: the driver must satisfy the request and run a fresh pass.
func (a *Analyzer) Execute(doc *ast.Document) *ModelDataRequest {
	for _, stmt := range doc.Statements {
		switch stmt := stmt.(type) {
		case *ast.DefineSQLBlock:
			a.defineName(stmt, stmt.Name, &modelEntry{sqlBlock: stmt})
			// The block's schema is part of the model; discovering it
			// missing suspends the pass just as a table source does.
			if a.sqlSchemas.GetEntry(stmt.Name).Status == zone.Reference {
				a.sqlSchemas.Reference(stmt.Name, stmt.Loc)
				if a.needSQL == nil {
					a.needSQL = stmt
				}
			}
		case *ast.DefineSource:
			def := a.resolveSourceValue(stmt.Source)
			if def == nil {
				continue
			}
			def.Name = stmt.Name
			a.defineName(stmt, stmt.Name, &modelEntry{structDef: def, exported: stmt.Exported})
		case *ast.DefineQuery:
			q := a.compileQuery(stmt.Query, nil)
			if q == nil {
				continue
			}
			a.defineName(stmt, stmt.Name, &modelEntry{query: q, exported: stmt.Exported})
		case *ast.AnonQuery:
			q := a.compileQuery(stmt.Query, nil)
			if q == nil {
				continue
			}
			a.queryList = append(a.queryList, q)
		default:
			a.errorf(stmt, "unexpected statement")
		}
	}
	if req := a.dataRequest(); req != nil {
		a.logger.Debug("pass suspended for model data",
			zap.Bool("sql", req.CompileSQL != nil),
			zap.Int("tables", len(req.Tables)))
		return req
	}
	a.logger.Debug("pass complete",
		zap.Int("queries", len(a.queryList)),
		zap.Int("diagnostics", len(a.src.Errors())))
	return nil
}

func (a *Analyzer) dataRequest() *ModelDataRequest {
	var req ModelDataRequest
	if a.needTables {
		req.Tables = a.schemas.References()
	}
	req.CompileSQL = a.needSQL
	if req.CompileSQL == nil && len(req.Tables) == 0 {
		return nil
	}
	return &req
}

func (a *Analyzer) defineName(n ast.Node, name string, entry *modelEntry) {
	if _, ok := a.model[name]; ok {
		a.errorf(n, "cannot redefine %q", name)
		return
	}
	a.model[name] = entry
}

// modelEntry looks up a model-level name.
func (a *Analyzer) modelEntry(name string) *modelEntry {
	return a.model[name]
}

// Queries returns the plans of the document's anonymous top-level
// queries, in document order.
func (a *Analyzer) Queries() []*plan.Query {
	return a.queryList
}

// NamedQuery returns the plan of a named query, or nil.
func (a *Analyzer) NamedQuery(name string) *plan.Query {
	if e := a.model[name]; e != nil {
		return e.query
	}
	return nil
}

// NamedSource returns the schema of a named source, or nil.
func (a *Analyzer) NamedSource(name string) *plan.StructDef {
	if e := a.model[name]; e != nil {
		return e.structDef
	}
	return nil
}

// References returns the name-resolution records collected during the
// pass, in resolution order.
func (a *Analyzer) References() []FieldReference {
	return a.references
}

// errorf logs a diagnostic at a node's source range.  A nil node
// anchors at the start of the document, which only happens for
// internal inconsistencies.
func (a *Analyzer) errorf(n ast.Node, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if n == nil {
		a.src.AddError(msg, 0, 0)
		return
	}
	a.src.AddError(msg, n.Pos(), n.End())
}

func (a *Analyzer) addReference(n ast.Node, path []string, e SpaceEntry) {
	kind := "field"
	switch e.(type) {
	case *StructField, *JoinField:
		kind = "join"
	case *TurtleField, *PendingTurtle:
		kind = "turtle"
	case *AbstractParameter, *DefinedParameter:
		kind = "parameter"
	}
	loc := ast.NewLoc(n.Pos(), n.End())
	a.references = append(a.references, FieldReference{
		Kind:     kind,
		Path:     append([]string(nil), path...),
		Location: loc,
	})
}
