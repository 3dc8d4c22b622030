// Package zone implements the keyed lookup tables the compiler shares
// with its driver: the schema zone (table name to schema) and the SQL
// zone (SQL block name to schema).  The driver populates a zone between
// compilation passes; within one pass the compiler only reads it,
// recording references to entries it needs but does not have.
package zone

import "github.com/malloydata/malloy/compiler/ast"

type Status string

const (
	// Present entries carry a value.
	Present Status = "present"
	// Error entries record a failed fetch.
	Error Status = "error"
	// Reference entries are known-needed but not yet fetched.
	Reference Status = "reference"
)

// An Entry is the state of one zone key.
type Entry[T any] struct {
	Status  Status
	Value   T
	Message string
}

// A Ref records where the compiler asked for a key it did not have.
type Ref struct {
	Name     string
	Location ast.Loc
}

// A Zone maps names to fetched values.  The zero value is not usable;
// call New.
type Zone[T any] struct {
	entries map[string]Entry[T]
	refs    []Ref
}

func New[T any]() *Zone[T] {
	return &Zone[T]{entries: make(map[string]Entry[T])}
}

// GetEntry returns the entry for name.  A name never seen comes back
// with status Reference and no value.
func (z *Zone[T]) GetEntry(name string) Entry[T] {
	if e, ok := z.entries[name]; ok {
		return e
	}
	return Entry[T]{Status: Reference}
}

// Define records a fetched value for name.
func (z *Zone[T]) Define(name string, value T) {
	z.entries[name] = Entry[T]{Status: Present, Value: value}
}

// DefineError records a failed fetch for name.
func (z *Zone[T]) DefineError(name, message string) {
	z.entries[name] = Entry[T]{Status: Error, Message: message}
}

// Reference notes that the compiler needs name, remembering the source
// location of the first request so the driver can report fetch
// failures usefully.
func (z *Zone[T]) Reference(name string, loc ast.Loc) {
	if _, ok := z.entries[name]; ok {
		return
	}
	z.entries[name] = Entry[T]{Status: Reference}
	z.refs = append(z.refs, Ref{Name: name, Location: loc})
}

// References returns the names referenced but not yet defined, in
// first-reference order.
func (z *Zone[T]) References() []Ref {
	var out []Ref
	for _, r := range z.refs {
		if z.entries[r.Name].Status == Reference {
			out = append(out, r)
		}
	}
	return out
}
