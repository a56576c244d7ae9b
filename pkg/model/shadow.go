package model

import (
	"reflect"
	"sync"
)

// ShadowStore holds values of properties that have no struct field.
type ShadowStore interface {
	Value(entity any, property string) any
	StoreValue(entity any, property string, value any)
}

// MapStore keeps shadow values per entity pointer. The zero value is not
// usable; call NewMapStore.
type MapStore struct {
	mu     sync.RWMutex
	values map[any]map[string]any
}

// NewMapStore creates an empty store.
func NewMapStore() *MapStore {
	return &MapStore{values: make(map[any]map[string]any)}
}

// Value returns the stored value or nil.
func (s *MapStore) Value(entity any, property string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[entity][property]
}

// StoreValue records value for the entity.
func (s *MapStore) StoreValue(entity any, property string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.values[entity]
	if !ok {
		m = make(map[string]any)
		s.values[entity] = m
	}
	m[property] = value
}

// Record is an untyped row for entity types defined at runtime.
type Record struct {
	EntityName string
	Values     map[string]any
}

// NewRecord creates an empty record of the named entity type.
func NewRecord(entityName string) *Record {
	return &Record{EntityName: entityName, Values: make(map[string]any)}
}

var recordType = reflect.TypeFor[Record]()

// RecordStore serves shadow values straight out of *Record instances.
type RecordStore struct{}

// Value returns the record's value for property.
func (RecordStore) Value(entity any, property string) any {
	if r, ok := entity.(*Record); ok {
		return r.Values[property]
	}
	return nil
}

// StoreValue writes value into the record.
func (RecordStore) StoreValue(entity any, property string, value any) {
	if r, ok := entity.(*Record); ok {
		if r.Values == nil {
			r.Values = make(map[string]any)
		}
		r.Values[property] = value
	}
}

// DynamicEntity creates an entity type whose instances are *Record values
// and whose properties are all shadow properties.
func DynamicEntity(name, schema, table string, props ...*Property) (*EntityType, error) {
	e := NewEntityType(name, recordType, schema, table)
	for _, p := range props {
		p.index = nil
		if err := e.AddProperty(p); err != nil {
			return nil, err
		}
	}
	return e, nil
}
