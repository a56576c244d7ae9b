package plan

import (
	"reflect"
	"sync"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/model"
)

// Options tune how an entity plan is built.
type Options struct {
	// IgnoreDefaultValues sends zero values as they are instead of the
	// column's static default
	IgnoreDefaultValues bool
	// PropagateValues reads generated values back into the items
	PropagateValues bool
	// IdentityInsert sends caller-supplied key values for generated keys
	IdentityInsert bool
	// Shadow serves shadow property values; without it shadow properties
	// other than the discriminator are left out
	Shadow model.ShadowStore
}

type cacheKey struct {
	entity *model.EntityType
	op     Operation
	flags  [3]bool
	shadow model.ShadowStore
}

var columnCache sync.Map // cacheKey -> []*Column

// EntityProvider builds columns from entity metadata.
type EntityProvider struct {
	entity  *model.EntityType
	op      Operation
	columns []*Column
}

// ForEntity builds the plan of op for entity. Update is not supported.
func ForEntity(entity *model.EntityType, op Operation, opts Options) (*EntityProvider, error) {
	if entity == nil {
		return nil, bulkerrors.New(bulkerrors.ErrorTypeUnsupported, "entity type is not mapped in the model")
	}
	switch op {
	case Insert, Delete:
	case Update:
		return nil, bulkerrors.New(bulkerrors.ErrorTypeUnsupported, "bulk update is not supported")
	default:
		return nil, bulkerrors.Newf(bulkerrors.ErrorTypeUnsupported, "unknown operation %d", int(op))
	}

	key, cacheable := newCacheKey(entity, op, opts)
	if cacheable {
		if cols, ok := columnCache.Load(key); ok {
			return &EntityProvider{entity: entity, op: op, columns: cols.([]*Column)}, nil
		}
	}

	cols, err := buildColumns(entity, op, opts)
	if err != nil {
		return nil, err
	}
	if cacheable {
		actual, _ := columnCache.LoadOrStore(key, cols)
		cols = actual.([]*Column)
	}
	return &EntityProvider{entity: entity, op: op, columns: cols}, nil
}

// newCacheKey reports whether a plan can be cached. Only stateless shadow
// stores such as RecordStore qualify; a store instance per call would
// otherwise add a cache entry per call that is never evicted.
func newCacheKey(entity *model.EntityType, op Operation, opts Options) (cacheKey, bool) {
	if opts.Shadow != nil {
		t := reflect.TypeOf(opts.Shadow)
		if !t.Comparable() || t.Size() != 0 {
			return cacheKey{}, false
		}
	}
	return cacheKey{
		entity: entity,
		op:     op,
		flags:  [3]bool{opts.IgnoreDefaultValues, opts.PropagateValues, opts.IdentityInsert},
		shadow: opts.Shadow,
	}, true
}

// Schema returns the entity's schema.
func (p *EntityProvider) Schema() string { return p.entity.Schema }

// Table returns the entity's table.
func (p *EntityProvider) Table() string { return p.entity.Table }

// Columns returns the plan columns in ordinal order.
func (p *EntityProvider) Columns() []*Column { return p.columns }

// EntityType returns the entity type the plan was built for.
func (p *EntityProvider) EntityType() *model.EntityType { return p.entity }

// Operation returns the operation the plan was built for.
func (p *EntityProvider) Operation() Operation { return p.op }

func buildColumns(entity *model.EntityType, op Operation, opts Options) ([]*Column, error) {
	var cols []*Column
	for _, p := range entity.Properties() {
		discriminator := p == entity.Discriminator
		if p.IsShadow() && opts.Shadow == nil && !discriminator {
			continue
		}

		var dir Direction
		switch {
		case op == Delete:
			if !p.PrimaryKey {
				continue
			}
			dir = Write
		case discriminator:
			dir = Write
		default:
			dir = direction(p, p.BeforeSave, model.ValueGeneratedOnAdd)
			if opts.IdentityInsert && p.PrimaryKey {
				dir = Write
			}
			if !opts.PropagateValues {
				dir &^= Read
			}
		}
		if dir == None {
			continue
		}

		get, err := getter(entity, p, opts, discriminator)
		if err != nil {
			return nil, err
		}
		var set Setter
		if dir.Has(Read) {
			set = setter(p, opts.Shadow)
		}

		col := NewColumn(p.Ordinal(), p.Column, p.ProviderType(), dir, get, set)
		col.PrimaryKey = p.PrimaryKey
		col.Identity = p.PrimaryKey && p.ValueGenerated.Has(model.ValueGeneratedOnAdd)
		cols = append(cols, col)
	}
	return cols, nil
}

func direction(p *model.Property, behavior model.SaveBehavior, flag model.ValueGenerated) Direction {
	generated := p.ValueGenerated.Has(flag)
	if behavior != model.SaveBehaviorSave || (p.PrimaryKey && generated) {
		return Read
	}
	if generated {
		return Both
	}
	return Write
}

func getter(entity *model.EntityType, p *model.Property, opts Options, discriminator bool) (Getter, error) {
	if discriminator {
		v, err := p.ToProvider(entity.DiscriminatorValue)
		if err != nil {
			return nil, err
		}
		return func(any) (any, error) { return v, nil }, nil
	}

	var raw Getter
	if p.IsShadow() {
		store, name := opts.Shadow, p.Name
		raw = func(item any) (any, error) { return store.Value(item, name), nil }
	} else {
		raw = p.Get
	}

	if !opts.IgnoreDefaultValues {
		switch {
		case p.HasDefault:
			def, err := retype(p, p.DefaultValue)
			if err != nil {
				return nil, err
			}
			inner := raw
			raw = func(item any) (any, error) {
				v, err := inner(item)
				if err != nil {
					return nil, err
				}
				if model.IsZero(v) {
					return def, nil
				}
				return v, nil
			}
		case p.GeneratorFactory != nil:
			return nil, bulkerrors.Newf(bulkerrors.ErrorTypeUnsupported,
				"value generator on %s.%s is not supported by bulk operations", entity.Name, p.Name)
		}
	}

	return func(item any) (any, error) {
		v, err := raw(item)
		if err != nil {
			return nil, err
		}
		return p.ToProvider(v)
	}, nil
}

// retype converts a static default to the property's declared type, so an
// untyped numeric default on an enum property arrives as the enum type.
func retype(p *model.Property, v any) (any, error) {
	if v == nil || p.Type == nil || reflect.TypeOf(v) == p.Type {
		return v, nil
	}
	out, err := model.Convert(v, p.Type)
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeConfig, "default value of "+p.Name+" does not fit its type")
	}
	return out, nil
}

func setter(p *model.Property, store model.ShadowStore) Setter {
	return func(item any, value any) error {
		v, err := p.FromProvider(value)
		if err != nil {
			return err
		}
		if p.IsShadow() {
			store.StoreValue(item, p.Name, v)
			return nil
		}
		return p.Set(item, v)
	}
}
