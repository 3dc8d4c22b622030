// Package compiler drives semantic analysis of parsed Malloy
// documents.  The parser and the schema fetch live outside this
// module: the caller hands Compile an AST and a fetch callback, and
// the driver loops the analysis pass whenever a statement suspends on
// missing schema data.
package compiler

import (
	"errors"
	"fmt"

	"github.com/malloydata/malloy/compiler/ast"
	"github.com/malloydata/malloy/compiler/plan"
	"github.com/malloydata/malloy/compiler/semantic"
	"github.com/malloydata/malloy/compiler/srcfiles"
	"github.com/malloydata/malloy/compiler/zone"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// maxPasses bounds the fetch/re-analyze loop; a fetcher that never
// satisfies its requests would otherwise spin.
const maxPasses = 20

// A FetchFunc satisfies one ModelDataRequest by populating the
// compiler's zones: table schemas for Tables, and the schema of the
// CompileSQL block after running it against the database.
type FetchFunc func(*semantic.ModelDataRequest) error

// A Model is the result of compiling one document.
type Model struct {
	// Queries holds the anonymous top-level query plans in document
	// order.
	Queries []*plan.Query
	// Diagnostics holds every message logged during the final pass.
	Diagnostics srcfiles.ErrorList
	// References holds the name-resolution records of the final pass.
	References []semantic.FieldReference

	analyzer *semantic.Analyzer
}

// NamedQuery returns the plan of a named query, or nil.
func (m *Model) NamedQuery(name string) *plan.Query {
	return m.analyzer.NamedQuery(name)
}

// NamedSource returns the schema of a named source, or nil.
func (m *Model) NamedSource(name string) *plan.StructDef {
	return m.analyzer.NamedSource(name)
}

// A Compiler owns the zones shared between passes.
type Compiler struct {
	schemas    *zone.Zone[*plan.StructDef]
	sqlSchemas *zone.Zone[*plan.StructDef]
	logger     *zap.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the compilation logger; the default discards
// everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Compiler) { c.logger = logger }
}

func New(opts ...Option) *Compiler {
	c := &Compiler{
		schemas:    zone.New[*plan.StructDef](),
		sqlSchemas: zone.New[*plan.StructDef](),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schemas is the table-schema zone; callers may pre-populate it to
// avoid a fetch pass.
func (c *Compiler) Schemas() *zone.Zone[*plan.StructDef] {
	return c.schemas
}

// SQLSchemas is the SQL-block schema zone.
func (c *Compiler) SQLSchemas() *zone.Zone[*plan.StructDef] {
	return c.sqlSchemas
}

// Compile analyzes doc, re-running the pass after each satisfied data
// request.  The returned error covers driver failures — fetch errors
// or a missing fetcher — not diagnostics, which ride on the Model.
func (c *Compiler) Compile(name, text string, doc *ast.Document, fetch FetchFunc) (*Model, error) {
	for pass := 1; pass <= maxPasses; pass++ {
		src := srcfiles.New(name, text)
		a := semantic.New(src, c.schemas, c.sqlSchemas, semantic.WithLogger(c.logger))
		req := a.Execute(doc)
		if req == nil {
			c.logger.Debug("compilation complete", zap.Int("passes", pass))
			return &Model{
				Queries:     a.Queries(),
				Diagnostics: src.Errors(),
				References:  a.References(),
				analyzer:    a,
			}, nil
		}
		if fetch == nil {
			return nil, multierr.Append(
				errors.New("model data needed but no fetcher provided"),
				src.Error(),
			)
		}
		if err := fetch(req); err != nil {
			return nil, fmt.Errorf("fetching model data: %w", err)
		}
	}
	return nil, fmt.Errorf("model data requests not satisfied after %d passes", maxPasses)
}
