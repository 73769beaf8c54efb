package descriptor

import (
	"fmt"
	"strings"
)

// Registry holds the full resource descriptor set, indexed for fast
// lookup. It is built once at startup and read-only thereafter, so it
// is safe for concurrent use without locking.
type Registry struct {
	resources []*Resource
	byName    map[string]*Resource
}

// NewRegistry builds a registry from the given descriptors. It
// validates that resource names are unique, that relation fields
// target known resources, and that every declared filter path resolves
// through the relation graph.
func NewRegistry(resources []*Resource) (*Registry, error) {
	r := &Registry{
		resources: resources,
		byName:    make(map[string]*Resource, len(resources)),
	}

	for _, res := range resources {
		if res.Name == "" {
			return nil, fmt.Errorf("resource with empty name")
		}
		if _, exists := r.byName[res.Name]; exists {
			return nil, fmt.Errorf("duplicate resource %q", res.Name)
		}
		r.byName[res.Name] = res
	}

	// Validate relation targets and filter paths now that the full
	// name index exists.
	for _, res := range resources {
		for _, f := range res.Fields {
			if f.Type != TypeRelation {
				continue
			}
			if _, ok := r.byName[f.Relation]; !ok {
				return nil, fmt.Errorf("resource %q: field %q targets unknown resource %q",
					res.Name, f.Name, f.Relation)
			}
		}
		for op := range res.Operations {
			for _, fd := range res.ActiveFilters(op) {
				if _, err := r.ResolvePath(res, fd.Path); err != nil {
					return nil, fmt.Errorf("resource %q: filter %q: %w", res.Name, fd.Name, err)
				}
			}
		}
		for _, term := range res.DefaultOrder {
			if _, err := r.ResolvePath(res, term.Path); err != nil {
				return nil, fmt.Errorf("resource %q: default order: %w", res.Name, err)
			}
		}
	}

	return r, nil
}

// Resource returns the descriptor for the named resource, or nil.
func (r *Registry) Resource(name string) *Resource {
	return r.byName[name]
}

// Resources returns all descriptors in declaration order.
func (r *Registry) Resources() []*Resource {
	return r.resources
}

// ResolvePath walks a "."-separated property path from the given
// resource across relation boundaries and returns the terminal field.
// It fails when a segment does not exist or a non-terminal segment is
// not a relation.
func (r *Registry) ResolvePath(res *Resource, path string) (*Field, error) {
	if path == "" {
		return nil, fmt.Errorf("empty property path")
	}

	segments := strings.Split(path, ".")
	current := res
	for i, seg := range segments {
		field := current.Field(seg)
		if field == nil {
			return nil, fmt.Errorf("path %q: no field %q on resource %q", path, seg, current.Name)
		}
		if i == len(segments)-1 {
			return field, nil
		}
		if field.Type != TypeRelation {
			return nil, fmt.Errorf("path %q: field %q on resource %q is not a relation", path, seg, current.Name)
		}
		current = r.byName[field.Relation]
		if current == nil {
			return nil, fmt.Errorf("path %q: unknown relation target %q", path, field.Relation)
		}
	}
	return nil, fmt.Errorf("path %q did not resolve", path)
}
