// Package model describes how Go types map onto relational tables: which
// table an entity lives in, which properties are keys, which values the
// database generates, which properties exist only outside the struct
// (shadow properties), and how values are converted on the way in and out.
//
// Entity types are registered in a Model, usually from struct tags:
//
//	type Blog struct {
//	    ID    int64  `db:"id,key,identity"`
//	    Title string `db:"title"`
//	}
//
//	m := model.New()
//	_, err := model.Entity[Blog](m).Table("blogs").HasDefault("Title", "untitled").Build()
package model

import (
	"reflect"
	"sort"
	"sync"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

// EntityType is the mapping of one entity type onto a table.
type EntityType struct {
	// Name identifies the entity type; defaults to the Go type name
	Name string
	// Type is the struct type, or the Record type for dynamic entities
	Type   reflect.Type
	Schema string
	Table  string

	// Discriminator is the column telling entity types of one table apart
	Discriminator      *Property
	DiscriminatorValue any

	properties []*Property
	byName     map[string]*Property
}

// NewEntityType creates an empty entity type bound to a table.
func NewEntityType(name string, t reflect.Type, schema, table string) *EntityType {
	return &EntityType{
		Name:   name,
		Type:   t,
		Schema: schema,
		Table:  table,
		byName: make(map[string]*Property),
	}
}

// AddProperty appends p, assigning its ordinal.
func (e *EntityType) AddProperty(p *Property) error {
	if p.Name == "" {
		return bulkerrors.New(bulkerrors.ErrorTypeValidation, "property name is required")
	}
	if _, ok := e.byName[p.Name]; ok {
		return bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "duplicate property %s on %s", p.Name, e.Name)
	}
	if p.Column == "" {
		p.Column = p.Name
	}
	p.ordinal = len(e.properties)
	p.entity = e
	e.properties = append(e.properties, p)
	e.byName[p.Name] = p
	return nil
}

// Properties returns the properties in their stable enumeration order.
func (e *EntityType) Properties() []*Property {
	return e.properties
}

// Property returns the named property or nil.
func (e *EntityType) Property(name string) *Property {
	return e.byName[name]
}

// PropertyByColumn returns the property mapped to column or nil.
func (e *EntityType) PropertyByColumn(column string) *Property {
	for _, p := range e.properties {
		if p.Column == column {
			return p
		}
	}
	return nil
}

// PrimaryKey returns the key properties in enumeration order.
func (e *EntityType) PrimaryKey() []*Property {
	var keys []*Property
	for _, p := range e.properties {
		if p.PrimaryKey {
			keys = append(keys, p)
		}
	}
	return keys
}

// IsDynamic reports whether instances are Records rather than structs.
func (e *EntityType) IsDynamic() bool {
	return e.Type == recordType
}

// Model is a registry of entity types. It is safe for concurrent use.
type Model struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*EntityType
	byName map[string]*EntityType
}

// New creates an empty model.
func New() *Model {
	return &Model{
		byType: make(map[reflect.Type]*EntityType),
		byName: make(map[string]*EntityType),
	}
}

// Add registers an entity type. Struct types are indexed by type and name,
// dynamic types by name only.
func (m *Model) Add(e *EntityType) error {
	if e.Table == "" {
		return bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "entity type %s has no table", e.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[e.Name]; ok {
		return bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "entity type %s already registered", e.Name)
	}
	if !e.IsDynamic() {
		if _, ok := m.byType[e.Type]; ok {
			return bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "go type %s already registered", e.Type)
		}
		m.byType[e.Type] = e
	}
	m.byName[e.Name] = e
	return nil
}

// FindEntityType returns the entity type mapped to t, dereferencing
// pointer types, or nil.
func (m *Model) FindEntityType(t reflect.Type) *EntityType {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byType[t]
}

// FindByName returns the named entity type or nil.
func (m *Model) FindByName(name string) *EntityType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byName[name]
}

// EntityTypeOf resolves the entity type of an instance. Records resolve by
// their EntityName.
func (m *Model) EntityTypeOf(entity any) *EntityType {
	if r, ok := entity.(*Record); ok {
		return m.FindByName(r.EntityName)
	}
	return m.FindEntityType(reflect.TypeOf(entity))
}

// EntityTypes returns all registered types ordered by name.
func (m *Model) EntityTypes() []*EntityType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]*EntityType, 0, len(m.byName))
	for _, e := range m.byName {
		types = append(types, e)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types
}
