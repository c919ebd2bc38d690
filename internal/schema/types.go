// Package schema holds the dynamic schema registry (C3): object-type and
// edge-type definitions, property validation rules, and the validation
// algorithm that the graph store delegates to before committing a mutation.
package schema

import "github.com/uforge/kgraph/internal/recordcodec"

// PropertyKind names the declared type of a property, mirroring
// recordcodec.ValueKind so validation is a direct comparison.
type PropertyKind string

const (
	PropertyString    PropertyKind = "string"
	PropertyText      PropertyKind = "text"
	PropertyNumber    PropertyKind = "number"
	PropertyBool      PropertyKind = "bool"
	PropertyList      PropertyKind = "list"
	PropertyMap       PropertyKind = "map"
	PropertyReference PropertyKind = "reference"
	PropertyEnum      PropertyKind = "enum"
)

func (k PropertyKind) matches(v recordcodec.Value) bool {
	switch k {
	case PropertyString:
		return v.Kind == recordcodec.KindString
	case PropertyText:
		return v.Kind == recordcodec.KindText
	case PropertyNumber:
		return v.Kind == recordcodec.KindNumber
	case PropertyBool:
		return v.Kind == recordcodec.KindBool
	case PropertyList:
		return v.Kind == recordcodec.KindList
	case PropertyMap:
		return v.Kind == recordcodec.KindMap
	case PropertyReference:
		return v.Kind == recordcodec.KindReference
	case PropertyEnum:
		return v.Kind == recordcodec.KindEnum
	default:
		return false
	}
}

// ValidationRule constrains the legal values of a property beyond its kind:
// length bounds for strings/text, numeric range for numbers, a regex
// pattern, and/or an explicit allow-list. Each set field is checked; the
// first failing rule wins.
type ValidationRule struct {
	MinLength      *int     `yaml:"min_length,omitempty"`
	MaxLength      *int     `yaml:"max_length,omitempty"`
	Min            *float64 `yaml:"min,omitempty"`
	Max            *float64 `yaml:"max,omitempty"`
	Pattern        string   `yaml:"pattern,omitempty"`
	AllowedValues  []string `yaml:"allowed_values,omitempty"`
}

// PropertySchema declares the type and constraints of one named property.
type PropertySchema struct {
	Kind           PropertyKind    `yaml:"kind"`
	ReferenceType  string          `yaml:"reference_type,omitempty"` // required when Kind == PropertyReference
	EnumValues     []string        `yaml:"enum_values,omitempty"`    // required when Kind == PropertyEnum
	Rule           *ValidationRule `yaml:"rule,omitempty"`
}

// ObjectTypeSchema declares the shape of one registered object type.
type ObjectTypeSchema struct {
	RequiredProperties []string                  `yaml:"required_properties,omitempty"`
	Properties         map[string]PropertySchema `yaml:"properties,omitempty"`
	Defaults           map[string]recordcodec.Value `yaml:"-"` // not YAML-serializable directly; set programmatically
}

// EdgeTypeSchema constrains the endpoint object types of a registered edge
// type. Empty SourceTypes/TargetTypes means "any type accepted".
type EdgeTypeSchema struct {
	SourceTypes []string `yaml:"source_types,omitempty"`
	TargetTypes []string `yaml:"target_types,omitempty"`
}

// Definition is a named, versioned schema: the set of registered object and
// edge types for one worldbuilding project.
type Definition struct {
	Name       string                      `yaml:"name"`
	Version    int                         `yaml:"version"`
	ObjectTypes map[string]ObjectTypeSchema `yaml:"object_types,omitempty"`
	EdgeTypes   map[string]EdgeTypeSchema   `yaml:"edge_types,omitempty"`
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
