package filter

import (
	"sort"
	"strings"

	"github.com/resolvent-dev/resolvent/internal/descriptor"
	qerr "github.com/resolvent-dev/resolvent/internal/errors"
)

// OrderArgument is the reserved name of the structured ordering
// argument: a mapping from "_"-joined path to a direction token.
const OrderArgument = "order"

// Direction tokens accepted by the order argument.
const (
	DirectionAsc  = "ASC"
	DirectionDesc = "DESC"
)

// Argument is one translated filter argument exposed to callers.
// Names derive from the filter's property path with "." replaced by
// "_" (the underlying REST-style convention keeps "."; this layer
// always diverges). Multi-value arguments carry the "_list" suffix.
type Argument struct {
	Name string
	Path string
	// List marks an argument accepting an ordered sequence of
	// scalars, OR-ed together.
	List bool
	Type descriptor.FieldType
	Kind descriptor.FilterKind
}

// ArgumentName converts a "."-separated property path into the
// exposed argument name.
func ArgumentName(path string) string {
	return strings.ReplaceAll(path, ".", "_")
}

// Translator converts between the exposed argument surface and the
// persistence-layer filter specification for one resource/operation
// pair. Translators are pure and safe for concurrent use; they are
// derived once at schema-build time and cached.
type Translator struct {
	resource  *descriptor.Resource
	args      map[string]Argument
	orderable map[string]string // exposed name -> property path
}

// NewTranslator derives the argument schema for the resource's active
// filter set under the given operation. It fails when a filter path
// does not resolve through the relation graph.
func NewTranslator(reg *descriptor.Registry, res *descriptor.Resource, op descriptor.Operation) (*Translator, error) {
	t := &Translator{
		resource:  res,
		args:      make(map[string]Argument),
		orderable: make(map[string]string),
	}

	for _, fd := range res.ActiveFilters(op) {
		field, err := reg.ResolvePath(res, fd.Path)
		if err != nil {
			return nil, err
		}

		if fd.Kind == descriptor.FilterOrder {
			t.orderable[ArgumentName(fd.Path)] = fd.Path
			continue
		}

		name := ArgumentName(fd.Path)
		t.args[name] = Argument{
			Name: name,
			Path: fd.Path,
			Type: field.Type,
			Kind: fd.Kind,
		}
		if fd.MultiValue {
			listName := name + "_list"
			t.args[listName] = Argument{
				Name: listName,
				Path: fd.Path,
				List: true,
				Type: field.Type,
				Kind: fd.Kind,
			}
		}
	}

	return t, nil
}

// Arguments returns the exposed argument schema sorted by name.
func (t *Translator) Arguments() []Argument {
	out := make([]Argument, 0, len(t.args))
	for _, a := range t.args {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// OrderablePaths returns the exposed names of orderable paths, sorted.
func (t *Translator) OrderablePaths() []string {
	out := make([]string, 0, len(t.orderable))
	for name := range t.orderable {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Translate converts incoming argument values into a filter Spec and
// the resolved Ordering. It fails fast on unknown argument names,
// shape mismatches, unknown order paths, and invalid direction tokens.
// When the caller supplies no order argument the resource's default
// ordering applies.
func (t *Translator) Translate(values map[string]interface{}) (Spec, Ordering, error) {
	var spec Spec

	// Deterministic iteration keeps the spec canonical across calls
	// with identical arguments.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	ordering := Ordering(t.resource.DefaultOrder)

	for _, name := range names {
		value := values[name]

		if name == OrderArgument {
			ord, err := t.translateOrder(value)
			if err != nil {
				return Spec{}, nil, err
			}
			ordering = ord
			continue
		}

		arg, ok := t.args[name]
		if !ok {
			return Spec{}, nil, qerr.NewValidation(name, "unknown filter argument")
		}

		pred, err := t.translateValue(arg, value)
		if err != nil {
			return Spec{}, nil, err
		}
		spec.Predicates = append(spec.Predicates, pred)
	}

	return spec, ordering, nil
}

func (t *Translator) translateValue(arg Argument, value interface{}) (Predicate, error) {
	op := OpEq
	if arg.Kind == descriptor.FilterPartial {
		op = OpContains
	}

	if arg.List {
		seq, ok := value.([]interface{})
		if !ok {
			return Predicate{}, qerr.NewValidation(arg.Name, "expected a list of scalars")
		}
		if len(seq) == 0 {
			return Predicate{}, qerr.NewValidation(arg.Name, "list must not be empty")
		}
		for _, v := range seq {
			if err := checkScalar(arg, v); err != nil {
				return Predicate{}, err
			}
		}
		return Predicate{Path: arg.Path, Op: OpIn, Values: seq}, nil
	}

	if _, isList := value.([]interface{}); isList {
		return Predicate{}, qerr.NewValidation(arg.Name, "expected a single scalar, got a list")
	}
	if err := checkScalar(arg, value); err != nil {
		return Predicate{}, err
	}
	return Predicate{Path: arg.Path, Op: op, Values: []interface{}{value}}, nil
}

func (t *Translator) translateOrder(value interface{}) (Ordering, error) {
	terms, ok := value.(map[string]interface{})
	if !ok {
		return nil, qerr.NewValidation(OrderArgument, "expected a mapping from path to direction")
	}

	// Deterministic order for equal-priority terms.
	names := make([]string, 0, len(terms))
	for name := range terms {
		names = append(names, name)
	}
	sort.Strings(names)

	var ordering Ordering
	for _, name := range names {
		path, ok := t.orderable[name]
		if !ok {
			return nil, qerr.NewValidation(OrderArgument, "path %q is not orderable", name)
		}
		dir, ok := terms[name].(string)
		if !ok || (dir != DirectionAsc && dir != DirectionDesc) {
			return nil, qerr.NewValidation(OrderArgument, "invalid direction for %q: want %s or %s", name, DirectionAsc, DirectionDesc)
		}
		ordering = append(ordering, descriptor.OrderTerm{
			Path:       path,
			Descending: dir == DirectionDesc,
		})
	}
	return ordering, nil
}

func checkScalar(arg Argument, value interface{}) error {
	switch arg.Type {
	case descriptor.TypeString, descriptor.TypeUUID, descriptor.TypeDateTime:
		if _, ok := value.(string); !ok {
			return qerr.NewValidation(arg.Name, "expected a string value")
		}
	case descriptor.TypeInteger:
		switch value.(type) {
		case int, int32, int64, float64:
		default:
			return qerr.NewValidation(arg.Name, "expected an integer value")
		}
	case descriptor.TypeFloat:
		switch value.(type) {
		case float32, float64, int:
		default:
			return qerr.NewValidation(arg.Name, "expected a numeric value")
		}
	case descriptor.TypeBoolean:
		if _, ok := value.(bool); !ok {
			return qerr.NewValidation(arg.Name, "expected a boolean value")
		}
	}
	return nil
}
