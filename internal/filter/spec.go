// Package filter translates declared resource filters into the typed
// argument surface exposed to callers, and incoming argument values
// into the persistence-layer filter specification.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/resolvent-dev/resolvent/internal/descriptor"
)

// Op is a predicate operator understood by the persistence layer.
type Op int

const (
	// OpEq matches a single value exactly
	OpEq Op = iota
	// OpIn matches any of an ordered sequence of values (OR semantics)
	OpIn
	// OpContains matches a substring
	OpContains
)

// String returns the string representation of the operator
func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpIn:
		return "in"
	case OpContains:
		return "contains"
	default:
		return "unknown"
	}
}

// Predicate is one filter condition on a property path. Paths use "."
// as separator and may cross relation boundaries.
type Predicate struct {
	Path   string
	Op     Op
	Values []interface{}
}

// Spec is the persistence-layer filter specification: the conjunction
// of its predicates.
type Spec struct {
	Predicates []Predicate
}

// Empty reports whether the spec carries no predicates.
func (s Spec) Empty() bool {
	return len(s.Predicates) == 0
}

// Canonical returns a deterministic string form of the spec, used for
// cursor fingerprinting and cache keys.
func (s Spec) Canonical() string {
	parts := make([]string, 0, len(s.Predicates))
	for _, p := range s.Predicates {
		vals := make([]string, len(p.Values))
		for i, v := range p.Values {
			vals[i] = fmt.Sprint(v)
		}
		parts = append(parts, fmt.Sprintf("%s %s [%s]", p.Path, p.Op, strings.Join(vals, ",")))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

// Ordering is the resolved ordering for a fetch, highest priority
// first.
type Ordering []descriptor.OrderTerm

// Canonical returns a deterministic string form of the ordering.
func (o Ordering) Canonical() string {
	parts := make([]string, len(o))
	for i, t := range o {
		dir := "ASC"
		if t.Descending {
			dir = "DESC"
		}
		parts[i] = t.Path + " " + dir
	}
	return strings.Join(parts, ";")
}
