package model

import (
	"reflect"
	"strings"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

// TagName is the struct tag read by Entity.
const TagName = "db"

// EntityBuilder configures the mapping of T. Errors are collected and
// reported by Build.
type EntityBuilder[T any] struct {
	m   *Model
	e   *EntityType
	err error
}

// Entity starts a mapping for T from its struct tags. Each exported field
// becomes a property; the tag names the column followed by options:
//
//	key       part of the primary key
//	identity  generated by the database on insert
//	generated alias of identity for non-key columns
//	computed  generated on insert and update, never written
//	readonly  never written
//
// A tag of "-" skips the field.
func Entity[T any](m *Model) *EntityBuilder[T] {
	t := reflect.TypeFor[T]()
	b := &EntityBuilder[T]{m: m}
	if t.Kind() != reflect.Struct {
		b.err = bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "%s is not a struct type", t)
		b.e = NewEntityType(t.String(), t, "", "")
		return b
	}
	b.e = NewEntityType(t.Name(), t, "", t.Name())

	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		tag := f.Tag.Get(TagName)
		if tag == "-" {
			continue
		}
		p := &Property{Name: f.Name, Column: f.Name, Type: f.Type, index: f.Index}
		parseTag(p, tag)
		b.record(b.e.AddProperty(p))
	}
	return b
}

func parseTag(p *Property, tag string) {
	if tag == "" {
		return
	}
	parts := strings.Split(tag, ",")
	if name := strings.TrimSpace(parts[0]); name != "" {
		p.Column = name
	}
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "key":
			p.PrimaryKey = true
		case "identity", "generated":
			p.ValueGenerated |= ValueGeneratedOnAdd
		case "computed":
			p.ValueGenerated = ValueGeneratedOnAddOrUpdate
			p.BeforeSave = SaveBehaviorIgnore
			p.AfterSave = SaveBehaviorIgnore
		case "readonly":
			p.BeforeSave = SaveBehaviorIgnore
			p.AfterSave = SaveBehaviorIgnore
		}
	}
}

func (b *EntityBuilder[T]) record(err error) {
	if err != nil && b.err == nil {
		b.err = err
	}
}

func (b *EntityBuilder[T]) property(name string) *Property {
	p := b.e.Property(name)
	if p == nil {
		b.record(bulkerrors.Newf(bulkerrors.ErrorTypeNotFound, "%s has no property %s", b.e.Name, name))
	}
	return p
}

// Name overrides the entity type name.
func (b *EntityBuilder[T]) Name(name string) *EntityBuilder[T] {
	b.e.Name = name
	return b
}

// Table sets the target table.
func (b *EntityBuilder[T]) Table(table string) *EntityBuilder[T] {
	b.e.Table = table
	return b
}

// Schema sets the target schema.
func (b *EntityBuilder[T]) Schema(schema string) *EntityBuilder[T] {
	b.e.Schema = schema
	return b
}

// Key replaces the primary key with the named properties.
func (b *EntityBuilder[T]) Key(names ...string) *EntityBuilder[T] {
	for _, p := range b.e.Properties() {
		p.PrimaryKey = false
	}
	for _, name := range names {
		if p := b.property(name); p != nil {
			p.PrimaryKey = true
		}
	}
	return b
}

// Column renames the column of a property.
func (b *EntityBuilder[T]) Column(name, column string) *EntityBuilder[T] {
	if p := b.property(name); p != nil {
		p.Column = column
	}
	return b
}

// Generated sets when the database generates the property's value.
func (b *EntityBuilder[T]) Generated(name string, g ValueGenerated) *EntityBuilder[T] {
	if p := b.property(name); p != nil {
		p.ValueGenerated = g
	}
	return b
}

// SaveBehavior sets the before-save and after-save behaviors.
func (b *EntityBuilder[T]) SaveBehavior(name string, before, after SaveBehavior) *EntityBuilder[T] {
	if p := b.property(name); p != nil {
		p.BeforeSave = before
		p.AfterSave = after
	}
	return b
}

// HasDefault declares the column's static database default.
func (b *EntityBuilder[T]) HasDefault(name string, value any) *EntityBuilder[T] {
	if p := b.property(name); p != nil {
		p.DefaultValue = value
		p.HasDefault = true
	}
	return b
}

// HasGenerator declares a client-side value generator.
func (b *EntityBuilder[T]) HasGenerator(name string, factory func() any) *EntityBuilder[T] {
	if p := b.property(name); p != nil {
		p.GeneratorFactory = factory
	}
	return b
}

// Convert attaches a value converter.
func (b *EntityBuilder[T]) Convert(name string, c Converter) *EntityBuilder[T] {
	if p := b.property(name); p != nil {
		p.Converter = c
	}
	return b
}

// Shadow adds a property with no struct field.
func (b *EntityBuilder[T]) Shadow(name, column string, t reflect.Type) *EntityBuilder[T] {
	p := NewShadowProperty(name, t)
	if column != "" {
		p.Column = column
	}
	b.record(b.e.AddProperty(p))
	return b
}

// Discriminator marks the column telling entity types of a shared table
// apart and the value identifying this type. A name matching no property
// adds a shadow property of the value's type.
func (b *EntityBuilder[T]) Discriminator(name string, value any) *EntityBuilder[T] {
	p := b.e.Property(name)
	if p == nil {
		p = NewShadowProperty(name, reflect.TypeOf(value))
		b.record(b.e.AddProperty(p))
	}
	b.e.Discriminator = p
	b.e.DiscriminatorValue = value
	return b
}

// Build registers the entity type in the model.
func (b *EntityBuilder[T]) Build() (*EntityType, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.m.Add(b.e); err != nil {
		return nil, err
	}
	return b.e, nil
}

// MustBuild is Build that panics on error, for package-level model setup.
func (b *EntityBuilder[T]) MustBuild() *EntityType {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}
