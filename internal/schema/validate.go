package schema

import (
	"fmt"
	"log/slog"
	"regexp"

	kgerrors "github.com/uforge/kgraph/internal/errors"
	"github.com/uforge/kgraph/internal/graphstore"
	"github.com/uforge/kgraph/internal/recordcodec"
)

// SetObjectTypeResolver installs the lookup the registry uses to validate
// Reference-typed properties: given an object id string, report whether it
// exists and its object type. The facade wires this to the graph store so
// schema stays decoupled from storage at compile time.
func (r *Registry) SetObjectTypeResolver(resolve func(objectID string) (objectType string, ok bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveObjectType = resolve
}

// ValidateObject runs the four-step validation algorithm against the active
// definition of schemaName.
func (r *Registry) ValidateObject(schemaName string, obj *graphstore.Object) error {
	ts, known, err := r.activeObjectTypeSchema(schemaName, obj.ObjectType)
	if err != nil {
		return err
	}
	if !known {
		return kgerrors.SchemaError(kgerrors.ErrCodeUnknownType, "object_type", fmt.Sprintf("unregistered object type %q", obj.ObjectType), nil)
	}

	for _, required := range ts.RequiredProperties {
		v, present := obj.Properties[required]
		if !present || isEmptyValue(v) {
			return kgerrors.SchemaError(kgerrors.ErrCodeMissingRequired, required, fmt.Sprintf("missing required property %q", required), nil)
		}
	}

	for key, v := range obj.Properties {
		propSchema, declared := ts.Properties[key]
		if !declared {
			// undeclared properties are warnings, not errors
			slog.Warn("undeclared property", slog.String("object_type", obj.ObjectType), slog.String("property", key))
			continue
		}
		if err := r.validateProperty(key, propSchema, v); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) validateProperty(path string, ps PropertySchema, v recordcodec.Value) error {
	if !ps.Kind.matches(v) {
		return kgerrors.SchemaError(kgerrors.ErrCodeTypeMismatch, path,
			fmt.Sprintf("property %q: expected %s, got incompatible value", path, ps.Kind), nil)
	}

	if ps.Kind == PropertyEnum && len(ps.EnumValues) > 0 && !contains(ps.EnumValues, v.Str) {
		return kgerrors.SchemaError(kgerrors.ErrCodeValidationRuleFailed, path,
			fmt.Sprintf("property %q: %q is not one of the declared enum values", path, v.Str), nil)
	}

	if ps.Kind == PropertyReference {
		r.mu.RLock()
		resolve := r.resolveObjectType
		r.mu.RUnlock()
		if resolve != nil {
			actualType, ok := resolve(v.Str)
			if !ok {
				return kgerrors.SchemaError(kgerrors.ErrCodeInvalidReference, path,
					fmt.Sprintf("property %q references unknown object %q", path, v.Str), nil)
			}
			if ps.ReferenceType != "" && actualType != ps.ReferenceType {
				return kgerrors.SchemaError(kgerrors.ErrCodeInvalidReference, path,
					fmt.Sprintf("property %q references object of type %q, expected %q", path, actualType, ps.ReferenceType), nil)
			}
		}
	}

	if ps.Rule != nil {
		if err := applyValidationRule(path, *ps.Rule, v); err != nil {
			return err
		}
	}
	return nil
}

func applyValidationRule(path string, rule ValidationRule, v recordcodec.Value) error {
	fail := func(msg string) error {
		return kgerrors.SchemaError(kgerrors.ErrCodeValidationRuleFailed, path, fmt.Sprintf("property %q: %s", path, msg), nil)
	}

	text := v.Str
	if rule.MinLength != nil && len(text) < *rule.MinLength {
		return fail(fmt.Sprintf("length %d is below minimum %d", len(text), *rule.MinLength))
	}
	if rule.MaxLength != nil && len(text) > *rule.MaxLength {
		return fail(fmt.Sprintf("length %d exceeds maximum %d", len(text), *rule.MaxLength))
	}
	if rule.Min != nil && v.Kind == recordcodec.KindNumber && v.Num < *rule.Min {
		return fail(fmt.Sprintf("value %v is below minimum %v", v.Num, *rule.Min))
	}
	if rule.Max != nil && v.Kind == recordcodec.KindNumber && v.Num > *rule.Max {
		return fail(fmt.Sprintf("value %v exceeds maximum %v", v.Num, *rule.Max))
	}
	if rule.Pattern != "" {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fail(fmt.Sprintf("invalid validation pattern %q", rule.Pattern))
		}
		if !re.MatchString(text) {
			return fail(fmt.Sprintf("value %q does not match pattern %q", text, rule.Pattern))
		}
	}
	if len(rule.AllowedValues) > 0 && !contains(rule.AllowedValues, text) {
		return fail(fmt.Sprintf("value %q is not an allowed value", text))
	}
	return nil
}

func isEmptyValue(v recordcodec.Value) bool {
	switch v.Kind {
	case recordcodec.KindString, recordcodec.KindText, recordcodec.KindReference, recordcodec.KindEnum:
		return v.Str == ""
	case recordcodec.KindList:
		return len(v.List) == 0
	case recordcodec.KindMap:
		return len(v.Map) == 0
	default:
		return false
	}
}

// ValidateEdge checks an edge's endpoint types against a registered edge
// type's source/target constraints. An unregistered edge type is accepted
// (free-form edge types are first class).
func (r *Registry) ValidateEdge(schemaName, edgeType string, fromType, toType string) error {
	def, err := r.activeDefinition(schemaName)
	if err != nil {
		return err
	}
	es, registered := def.EdgeTypes[edgeType]
	if !registered {
		return nil
	}
	if len(es.SourceTypes) > 0 && !contains(es.SourceTypes, fromType) {
		return kgerrors.SchemaError(kgerrors.ErrCodeEndpointTypeRejected, "from",
			fmt.Sprintf("edge type %q does not accept source type %q", edgeType, fromType), nil)
	}
	if len(es.TargetTypes) > 0 && !contains(es.TargetTypes, toType) {
		return kgerrors.SchemaError(kgerrors.ErrCodeEndpointTypeRejected, "to",
			fmt.Sprintf("edge type %q does not accept target type %q", edgeType, toType), nil)
	}
	return nil
}
