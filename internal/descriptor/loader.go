package descriptor

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/resolvent-dev/resolvent/internal/authz"
)

// File-level configuration shapes for the declarative resource file.
type fileConfig struct {
	Resources []resourceConfig `mapstructure:"resources"`
}

type resourceConfig struct {
	Name          string                      `mapstructure:"name"`
	Fields        []fieldConfig               `mapstructure:"fields"`
	Filters       []filterConfig              `mapstructure:"filters"`
	Order         []orderConfig               `mapstructure:"order"`
	Access        string                      `mapstructure:"access"`
	AccessMessage string                      `mapstructure:"access_message"`
	Groups        groupsConfig                `mapstructure:"groups"`
	Operations    map[string]*operationConfig `mapstructure:"operations"`
}

type fieldConfig struct {
	Name     string   `mapstructure:"name"`
	Type     string   `mapstructure:"type"`
	Nullable bool     `mapstructure:"nullable"`
	Target   string   `mapstructure:"target"`
	Groups   []string `mapstructure:"groups"`
}

type filterConfig struct {
	Name  string `mapstructure:"name"`
	Path  string `mapstructure:"path"`
	Kind  string `mapstructure:"kind"`
	Multi bool   `mapstructure:"multi"`
}

type orderConfig struct {
	Path      string `mapstructure:"path"`
	Direction string `mapstructure:"direction"`
}

type groupsConfig struct {
	Normalization   []string `mapstructure:"normalization"`
	Denormalization []string `mapstructure:"denormalization"`
}

type operationConfig struct {
	Filters       []filterConfig `mapstructure:"filters"`
	Access        string         `mapstructure:"access"`
	AccessMessage string         `mapstructure:"access_message"`
	Groups        groupsConfig   `mapstructure:"groups"`
}

// LoadFile reads the declarative resource file (YAML) and builds the
// registry, compiling every access expression ahead of time. The
// registry validates relation targets and filter paths.
func LoadFile(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read resource file: %w", err)
	}

	var cfg fileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resource file: %w", err)
	}

	resources := make([]*Resource, 0, len(cfg.Resources))
	for _, rc := range cfg.Resources {
		res, err := buildResource(rc)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", rc.Name, err)
		}
		resources = append(resources, res)
	}
	return NewRegistry(resources)
}

func buildResource(rc resourceConfig) (*Resource, error) {
	res := &Resource{
		Name:                  rc.Name,
		NormalizationGroups:   rc.Groups.Normalization,
		DenormalizationGroups: rc.Groups.Denormalization,
		Operations:            make(map[Operation]*Override, len(rc.Operations)),
	}

	for _, fc := range rc.Fields {
		field, err := buildField(fc)
		if err != nil {
			return nil, err
		}
		res.Fields = append(res.Fields, field)
	}

	for _, flc := range rc.Filters {
		fd, err := buildFilter(flc)
		if err != nil {
			return nil, err
		}
		res.Filters = append(res.Filters, fd)
	}

	for _, oc := range rc.Order {
		term, err := buildOrderTerm(oc)
		if err != nil {
			return nil, err
		}
		res.DefaultOrder = append(res.DefaultOrder, term)
	}

	if rc.Access != "" {
		rule, err := authz.CompileRule(rc.Access, rc.AccessMessage)
		if err != nil {
			return nil, fmt.Errorf("access expression: %w", err)
		}
		res.Access = rule
	}

	for opName, oc := range rc.Operations {
		op := Operation(opName)
		switch op {
		case OperationQuery, OperationCreate, OperationUpdate, OperationDelete:
		default:
			return nil, fmt.Errorf("unknown operation %q", opName)
		}

		ov := &Override{}
		if oc != nil {
			ov.NormalizationGroups = oc.Groups.Normalization
			ov.DenormalizationGroups = oc.Groups.Denormalization
			for _, flc := range oc.Filters {
				fd, err := buildFilter(flc)
				if err != nil {
					return nil, fmt.Errorf("operation %q: %w", opName, err)
				}
				ov.Filters = append(ov.Filters, fd)
			}
			if oc.Access != "" {
				rule, err := authz.CompileRule(oc.Access, oc.AccessMessage)
				if err != nil {
					return nil, fmt.Errorf("operation %q access expression: %w", opName, err)
				}
				ov.Access = rule
			}
		}
		res.Operations[op] = ov
	}

	return res, nil
}

func buildField(fc fieldConfig) (Field, error) {
	t := FieldType(fc.Type)
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeDateTime, TypeUUID:
		if fc.Target != "" {
			return Field{}, fmt.Errorf("field %q: target is only valid for relation fields", fc.Name)
		}
	case TypeRelation:
		if fc.Target == "" {
			return Field{}, fmt.Errorf("field %q: relation requires a target", fc.Name)
		}
	default:
		return Field{}, fmt.Errorf("field %q: unknown type %q", fc.Name, fc.Type)
	}
	return Field{
		Name:     fc.Name,
		Type:     t,
		Nullable: fc.Nullable,
		Relation: fc.Target,
		Groups:   fc.Groups,
	}, nil
}

func buildFilter(flc filterConfig) (FilterDef, error) {
	kind := FilterKind(flc.Kind)
	switch kind {
	case FilterExact, FilterOrder:
	case FilterPartial:
		if flc.Multi {
			return FilterDef{}, fmt.Errorf("filter %q: partial filters are single-value only", flc.Name)
		}
	default:
		return FilterDef{}, fmt.Errorf("filter %q: unknown kind %q", flc.Name, flc.Kind)
	}
	if flc.Path == "" {
		return FilterDef{}, fmt.Errorf("filter %q: path is required", flc.Name)
	}
	name := flc.Name
	if name == "" {
		name = flc.Path
	}
	return FilterDef{Name: name, Path: flc.Path, Kind: kind, MultiValue: flc.Multi}, nil
}

func buildOrderTerm(oc orderConfig) (OrderTerm, error) {
	switch oc.Direction {
	case "", "ASC":
		return OrderTerm{Path: oc.Path}, nil
	case "DESC":
		return OrderTerm{Path: oc.Path, Descending: true}, nil
	default:
		return OrderTerm{}, fmt.Errorf("order on %q: invalid direction %q", oc.Path, oc.Direction)
	}
}
