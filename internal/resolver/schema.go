package resolver

import (
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"

	"github.com/resolvent-dev/resolvent/internal/authz"
	"github.com/resolvent-dev/resolvent/internal/descriptor"
	"github.com/resolvent-dev/resolvent/internal/filter"
	"github.com/resolvent-dev/resolvent/internal/pagination"
)

// SchemaBuilder translates the descriptor registry into an executable
// GraphQL schema. Only declared operations produce schema fields, so
// an undeclared operation cannot even be addressed by a query
// document; invoking the resolver directly is rejected the same way.
type SchemaBuilder struct {
	resolver *Resolver

	objects     map[string]*graphql.Object
	connections map[string]*graphql.Object
	orderInputs map[string]*graphql.InputObject
	inputs      map[string]*graphql.InputObject
	pageInfo    *graphql.Object
	direction   *graphql.Enum
}

// NewSchemaBuilder creates a builder over the resolver's registry.
func NewSchemaBuilder(r *Resolver) *SchemaBuilder {
	return &SchemaBuilder{
		resolver:    r,
		objects:     make(map[string]*graphql.Object),
		connections: make(map[string]*graphql.Object),
		orderInputs: make(map[string]*graphql.InputObject),
		inputs:      make(map[string]*graphql.InputObject),
	}
}

// Build assembles the schema: per-resource object and connection
// types, filter arguments from the cached translators, and field
// resolvers routing into the Resolver.
func (b *SchemaBuilder) Build() (graphql.Schema, error) {
	b.direction = graphql.NewEnum(graphql.EnumConfig{
		Name: "OrderDirection",
		Values: graphql.EnumValueConfigMap{
			filter.DirectionAsc:  &graphql.EnumValueConfig{Value: filter.DirectionAsc},
			filter.DirectionDesc: &graphql.EnumValueConfig{Value: filter.DirectionDesc},
		},
	})
	b.pageInfo = graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"startCursor":     &graphql.Field{Type: graphql.String},
			"endCursor":       &graphql.Field{Type: graphql.String},
			"hasNextPage":     &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"hasPreviousPage": &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		},
	})

	queryFields := graphql.Fields{}
	mutationFields := graphql.Fields{}

	for _, res := range b.resolver.Registry().Resources() {
		res := res

		if res.HasOperation(descriptor.OperationQuery) {
			queryFields[fieldName(res.Name)] = &graphql.Field{
				Type: b.objectType(res),
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: b.makeItemResolver(res),
			}
			queryFields[fieldName(res.Name)+"s"] = &graphql.Field{
				Type:    b.connectionType(res),
				Args:    b.collectionArgs(res),
				Resolve: b.makeCollectionResolver(res),
			}
		}

		if res.HasOperation(descriptor.OperationCreate) {
			mutationFields["create"+res.Name] = &graphql.Field{
				Type: b.objectType(res),
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(b.inputType(res, descriptor.OperationCreate)),
					},
				},
				Resolve: b.makeMutationResolver(res, descriptor.OperationCreate),
			}
		}
		if res.HasOperation(descriptor.OperationUpdate) {
			mutationFields["update"+res.Name] = &graphql.Field{
				Type: b.objectType(res),
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"input": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(b.inputType(res, descriptor.OperationUpdate)),
					},
				},
				Resolve: b.makeMutationResolver(res, descriptor.OperationUpdate),
			}
		}
		if res.HasOperation(descriptor.OperationDelete) {
			mutationFields["delete"+res.Name] = &graphql.Field{
				Type: b.objectType(res),
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: b.makeMutationResolver(res, descriptor.OperationDelete),
			}
		}
	}

	// The executor requires at least one query field.
	if len(queryFields) == 0 {
		queryFields["_empty"] = &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "no resources declared", nil
			},
		}
	}

	config := graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queryFields}),
	}
	if len(mutationFields) > 0 {
		config.Mutation = graphql.NewObject(graphql.ObjectConfig{Name: "Mutation", Fields: mutationFields})
	}
	return graphql.NewSchema(config)
}

// objectType builds (and caches) the output type for a resource.
// Field cycles through relations resolve lazily via a fields thunk.
func (b *SchemaBuilder) objectType(res *descriptor.Resource) *graphql.Object {
	if obj, ok := b.objects[res.Name]; ok {
		return obj
	}

	obj := graphql.NewObject(graphql.ObjectConfig{
		Name: res.Name,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := graphql.Fields{}
			for i := range res.Fields {
				field := &res.Fields[i]
				fields[field.Name] = &graphql.Field{Type: b.fieldType(field)}
			}
			return fields
		}),
	})
	b.objects[res.Name] = obj
	return obj
}

func (b *SchemaBuilder) fieldType(field *descriptor.Field) graphql.Output {
	switch field.Type {
	case descriptor.TypeInteger:
		return graphql.Int
	case descriptor.TypeFloat:
		return graphql.Float
	case descriptor.TypeBoolean:
		return graphql.Boolean
	case descriptor.TypeDateTime:
		return graphql.String
	case descriptor.TypeUUID:
		return graphql.ID
	case descriptor.TypeRelation:
		target := b.resolver.Registry().Resource(field.Relation)
		return b.objectType(target)
	default:
		return graphql.String
	}
}

func (b *SchemaBuilder) connectionType(res *descriptor.Resource) *graphql.Object {
	if conn, ok := b.connections[res.Name]; ok {
		return conn
	}

	edge := graphql.NewObject(graphql.ObjectConfig{
		Name: res.Name + "Edge",
		Fields: graphql.Fields{
			"cursor": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"node":   &graphql.Field{Type: b.objectType(res)},
		},
	})
	conn := graphql.NewObject(graphql.ObjectConfig{
		Name: res.Name + "Connection",
		Fields: graphql.Fields{
			"totalCount": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"pageInfo":   &graphql.Field{Type: graphql.NewNonNull(b.pageInfo)},
			"edges":      &graphql.Field{Type: graphql.NewList(edge)},
		},
	})
	b.connections[res.Name] = conn
	return conn
}

// collectionArgs exposes the translated filter arguments, the
// structured order argument, and the pagination window arguments.
func (b *SchemaBuilder) collectionArgs(res *descriptor.Resource) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{
		"first":  &graphql.ArgumentConfig{Type: graphql.Int},
		"after":  &graphql.ArgumentConfig{Type: graphql.String},
		"last":   &graphql.ArgumentConfig{Type: graphql.Int},
		"before": &graphql.ArgumentConfig{Type: graphql.String},
	}

	translator := b.resolver.Translator(res.Name)
	for _, arg := range translator.Arguments() {
		scalar := b.argScalar(arg.Type)
		if arg.List {
			args[arg.Name] = &graphql.ArgumentConfig{Type: graphql.NewList(scalar)}
		} else {
			args[arg.Name] = &graphql.ArgumentConfig{Type: scalar}
		}
	}

	if orderable := translator.OrderablePaths(); len(orderable) > 0 {
		args[filter.OrderArgument] = &graphql.ArgumentConfig{Type: b.orderInput(res, orderable)}
	}
	return args
}

func (b *SchemaBuilder) argScalar(t descriptor.FieldType) graphql.Input {
	switch t {
	case descriptor.TypeInteger:
		return graphql.Int
	case descriptor.TypeFloat:
		return graphql.Float
	case descriptor.TypeBoolean:
		return graphql.Boolean
	case descriptor.TypeUUID:
		return graphql.ID
	default:
		return graphql.String
	}
}

func (b *SchemaBuilder) orderInput(res *descriptor.Resource, orderable []string) *graphql.InputObject {
	if in, ok := b.orderInputs[res.Name]; ok {
		return in
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, name := range orderable {
		fields[name] = &graphql.InputObjectFieldConfig{Type: b.direction}
	}
	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   res.Name + "OrderInput",
		Fields: fields,
	})
	b.orderInputs[res.Name] = in
	return in
}

// inputType builds the mutation input object from the fields visible
// under the operation's resolved denormalization groups. Submitted
// fields outside that set never reach the resolver; the resolver
// additionally ignores them for defense in depth.
func (b *SchemaBuilder) inputType(res *descriptor.Resource, op descriptor.Operation) *graphql.InputObject {
	key := res.Name + ":" + string(op)
	if in, ok := b.inputs[key]; ok {
		return in
	}

	active := res.DenormalizationGroups
	if ov := res.Operations[op]; ov != nil && len(ov.DenormalizationGroups) > 0 {
		active = ov.DenormalizationGroups
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for i := range res.Fields {
		field := &res.Fields[i]
		if field.Name == "id" {
			continue
		}
		if !visibleInput(field, active) {
			continue
		}
		var t graphql.Input
		if field.Type == descriptor.TypeRelation {
			t = graphql.ID
		} else {
			t = b.argScalar(field.Type)
		}
		fields[field.Name] = &graphql.InputObjectFieldConfig{Type: t}
	}

	opName := string(op)
	opName = strings.ToUpper(opName[:1]) + opName[1:]
	in := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   fmt.Sprintf("%s%sInput", res.Name, opName),
		Fields: fields,
	})
	b.inputs[key] = in
	return in
}

func visibleInput(field *descriptor.Field, active []string) bool {
	if len(active) == 0 {
		return true
	}
	for _, g := range field.Groups {
		for _, a := range active {
			if g == a {
				return true
			}
		}
	}
	return false
}

func (b *SchemaBuilder) makeItemResolver(res *descriptor.Resource) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		id, _ := p.Args["id"].(string)
		return b.resolver.QueryItem(p.Context, res.Name, id, authz.FromContext(p.Context))
	}
}

func (b *SchemaBuilder) makeCollectionResolver(res *descriptor.Resource) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		window, filterArgs := splitWindowArgs(p.Args)
		return b.resolver.QueryCollection(p.Context, res.Name, filterArgs, window, authz.FromContext(p.Context))
	}
}

func (b *SchemaBuilder) makeMutationResolver(res *descriptor.Resource, op descriptor.Operation) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		id, _ := p.Args["id"].(string)
		input, _ := p.Args["input"].(map[string]interface{})
		return b.resolver.Mutate(p.Context, res.Name, op, id, input, authz.FromContext(p.Context))
	}
}

// splitWindowArgs separates the reserved pagination arguments from the
// filter arguments.
func splitWindowArgs(args map[string]interface{}) (pagination.WindowRequest, map[string]interface{}) {
	var window pagination.WindowRequest
	filterArgs := make(map[string]interface{}, len(args))
	for name, value := range args {
		switch name {
		case "first":
			if n, ok := value.(int); ok {
				window.First = &n
			}
		case "after":
			if s, ok := value.(string); ok {
				window.After = &s
			}
		case "last":
			if n, ok := value.(int); ok {
				window.Last = &n
			}
		case "before":
			if s, ok := value.(string); ok {
				window.Before = &s
			}
		default:
			filterArgs[name] = value
		}
	}
	return window, filterArgs
}

// fieldName lowercases the leading rune of a resource name for use as
// a schema field.
func fieldName(resource string) string {
	if resource == "" {
		return resource
	}
	return strings.ToLower(resource[:1]) + resource[1:]
}
