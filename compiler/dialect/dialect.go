// Package dialect describes the SQL dialects the plan can target.  The
// semantic analyzer consults a dialect only for capability checks; the
// structured fragments in a plan defer actual SQL rendering to the
// downstream writer, which uses the same registry.
package dialect

import "sync"

// A Dialect captures the per-engine behaviors that matter during
// semantic analysis and fragment emission.
type Dialect interface {
	Name() string
	// SupportsLike reports native LIKE support; without it the writer
	// falls back to the regexp rendering carried on like fragments.
	SupportsLike() bool
	// SupportsSafeCast reports whether a failed cast can yield null
	// instead of an error.
	SupportsSafeCast() bool
	// DivFunction names the engine's null-safe division idiom.
	DivFunction() string
	// RegexpMatchFunction names the engine's regexp predicate.
	RegexpMatchFunction() string
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Dialect)
)

// Register adds d to the registry, replacing any dialect of the same
// name.
func Register(d Dialect) {
	mu.Lock()
	defer mu.Unlock()
	registry[d.Name()] = d
}

// Get returns the named dialect or nil.
func Get(name string) Dialect {
	mu.RLock()
	defer mu.RUnlock()
	return registry[name]
}
