package model

import (
	"reflect"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

// ValueGenerated flags when the database generates a property's value.
type ValueGenerated int

const (
	ValueGeneratedNever    ValueGenerated = 0
	ValueGeneratedOnAdd    ValueGenerated = 1 << 0
	ValueGeneratedOnUpdate ValueGenerated = 1 << 1
	// ValueGeneratedOnAddOrUpdate is typical for computed columns
	ValueGeneratedOnAddOrUpdate = ValueGeneratedOnAdd | ValueGeneratedOnUpdate
)

// Has reports whether all bits of f are set.
func (v ValueGenerated) Has(f ValueGenerated) bool {
	return f != 0 && v&f == f
}

func (v ValueGenerated) String() string {
	switch v {
	case ValueGeneratedNever:
		return "never"
	case ValueGeneratedOnAdd:
		return "on_add"
	case ValueGeneratedOnUpdate:
		return "on_update"
	case ValueGeneratedOnAddOrUpdate:
		return "on_add_or_update"
	}
	return "unknown"
}

// SaveBehavior controls whether a property value is sent to the database.
type SaveBehavior int

const (
	// SaveBehaviorSave sends the value
	SaveBehaviorSave SaveBehavior = iota
	// SaveBehaviorIgnore leaves the column to the database
	SaveBehaviorIgnore
	// SaveBehaviorThrow rejects writes to the column
	SaveBehaviorThrow
)

// Property maps one value of an entity onto a column.
type Property struct {
	Name   string
	Column string
	// Type is the Go type of the value as the entity sees it
	Type reflect.Type

	PrimaryKey     bool
	ValueGenerated ValueGenerated
	// BeforeSave applies when the entity is added, AfterSave when it is modified
	BeforeSave SaveBehavior
	AfterSave  SaveBehavior

	// DefaultValue is the database-side static default; HasDefault marks it set
	DefaultValue any
	HasDefault   bool
	// GeneratorFactory produces client-side values per row
	GeneratorFactory func() any

	// Converter maps between the entity value and the provider value
	Converter Converter

	index   []int
	ordinal int
	entity  *EntityType
}

// NewShadowProperty creates a property with no backing struct field.
func NewShadowProperty(name string, t reflect.Type) *Property {
	return &Property{Name: name, Column: name, Type: t}
}

// IsShadow reports whether the property has no backing struct field.
func (p *Property) IsShadow() bool {
	return p.index == nil
}

// IsSpatial reports whether the property's converter produces geometry.
func (p *Property) IsSpatial() bool {
	_, ok := p.Converter.(SpatialConverter)
	return ok
}

// Ordinal is the property's position in the entity's enumeration order.
func (p *Property) Ordinal() int {
	return p.ordinal
}

// EntityType returns the owning entity type.
func (p *Property) EntityType() *EntityType {
	return p.entity
}

// ProviderType is the Go type the database driver sees.
func (p *Property) ProviderType() reflect.Type {
	if p.Converter != nil {
		return p.Converter.ProviderType()
	}
	return p.Type
}

// Field returns the struct field backing p inside entity.
func (p *Property) Field(entity any) (reflect.Value, error) {
	if p.IsShadow() {
		return reflect.Value{}, bulkerrors.Newf(bulkerrors.ErrorTypeInternal, "%s is a shadow property", p.Name)
	}
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "nil entity reading %s", p.Name)
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "entity of type %s is not a struct", v.Type())
	}
	f, err := v.FieldByIndexErr(p.index)
	if err != nil {
		return reflect.Value{}, bulkerrors.Wrap(err, bulkerrors.ErrorTypeValidation, "unreachable field "+p.Name)
	}
	return f, nil
}

// Get returns the raw field value.
func (p *Property) Get(entity any) (any, error) {
	f, err := p.Field(entity)
	if err != nil {
		return nil, err
	}
	return f.Interface(), nil
}

// Set assigns v to the field, converting between compatible kinds.
func (p *Property) Set(entity any, v any) error {
	f, err := p.Field(entity)
	if err != nil {
		return err
	}
	if !f.CanSet() {
		return bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "cannot set %s: entity must be passed by pointer", p.Name)
	}
	if err := Assign(f, v); err != nil {
		return bulkerrors.Wrap(err, bulkerrors.ErrorTypeData, "cannot set "+p.Name)
	}
	return nil
}

// Assign stores v into dst. Nil stores the zero value, pointers are
// allocated or dereferenced as needed, and values convert between numeric
// kinds, between string kinds and between named types sharing a kind.
func Assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(v)

	if src.Kind() == reflect.Pointer && dst.Kind() != reflect.Pointer {
		if src.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		src = src.Elem()
	}
	if dst.Kind() == reflect.Pointer && !src.Type().AssignableTo(dst.Type()) {
		p := reflect.New(dst.Type().Elem())
		if err := Assign(p.Elem(), src.Interface()); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}

	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case convertible(src.Type(), dst.Type()):
		dst.Set(src.Convert(dst.Type()))
	default:
		return bulkerrors.Newf(bulkerrors.ErrorTypeData, "cannot assign %s to %s", src.Type(), dst.Type())
	}
	return nil
}

// Convert re-types v to t with the same rules as Assign.
func Convert(v any, t reflect.Type) (any, error) {
	dst := reflect.New(t).Elem()
	if err := Assign(dst, v); err != nil {
		return nil, err
	}
	return dst.Interface(), nil
}

func convertible(src, dst reflect.Type) bool {
	if !src.ConvertibleTo(dst) {
		return false
	}
	switch {
	case isNumeric(src.Kind()) && isNumeric(dst.Kind()):
		return true
	case src.Kind() == dst.Kind():
		return true
	case src.Kind() == reflect.String && dst.Kind() == reflect.Slice && dst.Elem().Kind() == reflect.Uint8:
		return true
	case dst.Kind() == reflect.String && src.Kind() == reflect.Slice && src.Elem().Kind() == reflect.Uint8:
		return true
	}
	return false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// ToProvider prepares an entity value for the driver: nil pointers become
// nil, other pointers are dereferenced, the converter is applied and
// geometry wrappers are unwrapped to bytes.
func (p *Property) ToProvider(v any) (any, error) {
	v = Deref(v)
	if v == nil {
		return nil, nil
	}
	if p.Converter == nil {
		return v, nil
	}
	out, err := p.Converter.ToProvider(v)
	if err != nil {
		return nil, err
	}
	if p.IsSpatial() {
		return UnwrapSpatial(out)
	}
	return out, nil
}

// FromProvider converts a driver value back to the entity's representation.
func (p *Property) FromProvider(v any) (any, error) {
	if v == nil || p.Converter == nil {
		return v, nil
	}
	return p.Converter.FromProvider(v)
}

// Deref returns nil for nil pointers and the pointed-to value otherwise.
func Deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

// IsZero reports whether v is nil or its type's zero value.
func IsZero(v any) bool {
	if v == nil {
		return true
	}
	return reflect.ValueOf(v).IsZero()
}
