package schema

import (
	"fmt"
	"sync"

	kgerrors "github.com/uforge/kgraph/internal/errors"
	"github.com/uforge/kgraph/internal/graphstore"
)

type schemaKey struct {
	name    string
	version int
}

// Registry holds every known schema definition in memory, backed by a
// persistence hook (the persist function given to NewRegistry). The
// active schema is whichever definition was registered or loaded last for a
// given name; callers pin a version explicitly via LoadSchema.
type Registry struct {
	mu       sync.RWMutex
	schemas  map[schemaKey]*Definition
	active   map[string]int // schema name -> active version

	persist           func(def *Definition) error
	resolveObjectType func(objectID string) (objectType string, ok bool)
}

// NewRegistry creates an empty registry. persist, if non-nil, is invoked on
// every RegisterSchema call to durably store the definition (the facade
// wires this to the schemas column family).
func NewRegistry(persist func(def *Definition) error) *Registry {
	return &Registry{
		schemas: make(map[schemaKey]*Definition),
		active:  make(map[string]int),
		persist: persist,
	}
}

// RegisterSchema adds or replaces a schema definition and makes it the
// active version for its name.
func (r *Registry) RegisterSchema(def *Definition) error {
	if def.Name == "" {
		return kgerrors.SchemaError(kgerrors.ErrCodeInvalidValue, "name", "schema name must not be empty", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := schemaKey{def.Name, def.Version}
	r.schemas[key] = def
	r.active[def.Name] = def.Version

	if r.persist != nil {
		if err := r.persist(def); err != nil {
			return err
		}
	}
	return nil
}

// LoadSchema retrieves a specific (name, version) pair, or the active
// version for name if version is 0.
func (r *Registry) LoadSchema(name string, version int) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if version == 0 {
		v, ok := r.active[name]
		if !ok {
			return nil, kgerrors.SchemaError(kgerrors.ErrCodeUnknownType, "schema", fmt.Sprintf("no active schema named %q", name), nil)
		}
		version = v
	}
	def, ok := r.schemas[schemaKey{name, version}]
	if !ok {
		return nil, kgerrors.SchemaError(kgerrors.ErrCodeUnknownType, "schema", fmt.Sprintf("no schema %q version %d", name, version), nil)
	}
	return def, nil
}

// ListSchemas returns every registered (name, version) pair's definitions.
func (r *Registry) ListSchemas() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Definition, 0, len(r.schemas))
	for _, def := range r.schemas {
		out = append(out, def)
	}
	return out
}

// activeDefinition looks up the currently active definition for a given
// schema name without taking the registry's write lock.
func (r *Registry) activeDefinition(schemaName string) (*Definition, error) {
	return r.LoadSchema(schemaName, 0)
}

// DefaultPropertiesFor returns the declared default property values for an
// object type, if any were set on its schema.
func (r *Registry) DefaultPropertiesFor(schemaName, objectType string) (map[string]interface{}, error) {
	def, err := r.activeDefinition(schemaName)
	if err != nil {
		return nil, err
	}
	ts, ok := def.ObjectTypes[objectType]
	if !ok {
		return nil, kgerrors.SchemaError(kgerrors.ErrCodeUnknownType, "object_type", fmt.Sprintf("unknown object type %q", objectType), nil)
	}
	out := make(map[string]interface{}, len(ts.Defaults))
	for k, v := range ts.Defaults {
		out[k] = v
	}
	return out, nil
}

// activeObjectTypeSchema is a small helper shared by the two Validate*
// entry points below.
func (r *Registry) activeObjectTypeSchema(schemaName, objectType string) (ObjectTypeSchema, bool, error) {
	def, err := r.activeDefinition(schemaName)
	if err != nil {
		return ObjectTypeSchema{}, false, err
	}
	ts, ok := def.ObjectTypes[objectType]
	return ts, ok, nil
}

// BoundTo returns a Validator that enforces a single fixed schema name
// against this registry, satisfying graphstore.Validator.
func (r *Registry) BoundTo(schemaName string) *BoundValidator {
	return &BoundValidator{registry: r, schemaName: schemaName}
}

// BoundValidator adapts a Registry + fixed schema name to the
// graphstore.Validator interface.
type BoundValidator struct {
	registry   *Registry
	schemaName string
}

func (b *BoundValidator) ValidateObject(obj *graphstore.Object) error {
	return b.registry.ValidateObject(b.schemaName, obj)
}

func (b *BoundValidator) ValidateEdge(edgeType string, fromType, toType string) error {
	return b.registry.ValidateEdge(b.schemaName, edgeType, fromType, toType)
}
