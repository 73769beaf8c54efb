// Package descriptor defines the declarative resource model consumed
// by the resolution engine: resource descriptors, their fields,
// relations, filters, and per-operation overrides, plus the immutable
// registry that indexes them. Descriptors are loaded once at startup
// and never mutated afterwards.
package descriptor

import (
	"github.com/resolvent-dev/resolvent/internal/authz"
)

// Operation identifies one of the exposed operation kinds.
type Operation string

const (
	// OperationQuery reads a single item or a collection
	OperationQuery Operation = "query"
	// OperationCreate creates a new item
	OperationCreate Operation = "create"
	// OperationUpdate updates an existing item
	OperationUpdate Operation = "update"
	// OperationDelete deletes an existing item
	OperationDelete Operation = "delete"
)

// IsMutation reports whether the operation writes.
func (o Operation) IsMutation() bool {
	return o == OperationCreate || o == OperationUpdate || o == OperationDelete
}

// FieldType is the declared scalar type of a field.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeFloat    FieldType = "float"
	TypeBoolean  FieldType = "boolean"
	TypeDateTime FieldType = "datetime"
	TypeUUID     FieldType = "uuid"
	// TypeRelation marks a field that references another resource.
	// The Relation attribute names the target.
	TypeRelation FieldType = "relation"
)

// Field describes a single field of a resource.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
	// Relation is the target resource name for relation fields.
	Relation string
	// Groups lists the serialization groups the field belongs to.
	// A field with no groups is visible whenever no group set is
	// active for the operation.
	Groups []string
}

// FilterKind describes how a declared filter matches values.
type FilterKind string

const (
	// FilterExact matches a value exactly; supports multi-value (IN).
	FilterExact FilterKind = "exact"
	// FilterPartial matches a substring; single-value only.
	FilterPartial FilterKind = "partial"
	// FilterOrder declares an orderable path consumed by the
	// structured order argument.
	FilterOrder FilterKind = "order"
)

// FilterDef declares a filter on a (possibly nested) property path.
// Paths cross relation boundaries with "." (e.g. "product.color").
type FilterDef struct {
	Name string
	Path string
	Kind FilterKind
	// MultiValue additionally exposes a _list argument accepting an
	// ordered sequence of scalars, OR-ed together.
	MultiValue bool
}

// OrderTerm is one component of an ordering.
type OrderTerm struct {
	Path       string
	Descending bool
}

// Override is the per-operation subset of a resource's configuration.
// Any nil/empty member falls back to the resource's base declaration.
type Override struct {
	Filters               []FilterDef
	Access                *authz.Rule
	NormalizationGroups   []string
	DenormalizationGroups []string
}

// Resource describes one declaratively-exposed resource. Instances are
// immutable after registry construction.
type Resource struct {
	Name    string
	Fields  []Field
	Filters []FilterDef
	// DefaultOrder is the base ordering applied when the caller does
	// not supply an order argument.
	DefaultOrder []OrderTerm
	Access       *authz.Rule
	// NormalizationGroups is the base output group set.
	NormalizationGroups []string
	// DenormalizationGroups is the base input group set.
	DenormalizationGroups []string
	// Operations maps operation kind to its optional override bundle.
	// An operation absent from this map is not exposed at all.
	Operations map[Operation]*Override
}

// HasOperation reports whether the operation is exposed for the
// resource. Undeclared operations must be rejected before any
// persistence access.
func (r *Resource) HasOperation(op Operation) bool {
	_, ok := r.Operations[op]
	return ok
}

// Field returns the named field, or nil.
func (r *Resource) Field(name string) *Field {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i]
		}
	}
	return nil
}

// ActiveFilters returns the filter set for the operation: the
// override's filters when declared there, else the base filters.
func (r *Resource) ActiveFilters(op Operation) []FilterDef {
	if ov := r.Operations[op]; ov != nil && len(ov.Filters) > 0 {
		return ov.Filters
	}
	return r.Filters
}

// ActiveAccess returns the access rule for the operation with
// override precedence. Nil means default-allow.
func (r *Resource) ActiveAccess(op Operation) *authz.Rule {
	if ov := r.Operations[op]; ov != nil && ov.Access != nil {
		return authz.Resolve(ov.Access, r.Access)
	}
	return authz.Resolve(nil, r.Access)
}
