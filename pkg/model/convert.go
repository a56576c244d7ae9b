package model

import (
	"database/sql/driver"
	"reflect"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/json"
)

// Converter maps a property value to the value stored in the database and back.
type Converter interface {
	// ProviderType is the Go type handed to the driver
	ProviderType() reflect.Type
	ToProvider(v any) (any, error)
	FromProvider(v any) (any, error)
}

// SpatialConverter marks converters producing geometry. Their provider
// value is a driver.Valuer wrapper that is unwrapped to raw bytes before it
// reaches the bulk copy.
type SpatialConverter interface {
	Converter
	Spatial()
}

type funcConverter[M, P any] struct {
	to   func(M) (P, error)
	from func(P) (M, error)
}

// NewConverter builds a converter from a pair of typed functions. Nil
// values pass through both directions unchanged.
func NewConverter[M, P any](to func(M) (P, error), from func(P) (M, error)) Converter {
	return funcConverter[M, P]{to: to, from: from}
}

func (c funcConverter[M, P]) ProviderType() reflect.Type {
	return reflect.TypeFor[P]()
}

func (c funcConverter[M, P]) ToProvider(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(M)
	if !ok {
		converted, err := Convert(v, reflect.TypeFor[M]())
		if err != nil {
			return nil, err
		}
		m = converted.(M)
	}
	p, err := c.to(m)
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeData, "value conversion failed")
	}
	return p, nil
}

func (c funcConverter[M, P]) FromProvider(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	p, ok := v.(P)
	if !ok {
		converted, err := Convert(v, reflect.TypeFor[P]())
		if err != nil {
			return nil, err
		}
		p = converted.(P)
	}
	m, err := c.from(p)
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeData, "value conversion failed")
	}
	return m, nil
}

// JSON stores T as a JSON document in a text column.
func JSON[T any]() Converter {
	return NewConverter(
		func(v T) (string, error) {
			data, err := json.Marshal(v)
			return string(data), err
		},
		func(s string) (T, error) {
			var v T
			err := json.Unmarshal([]byte(s), &v)
			return v, err
		},
	)
}

// Msgpack stores T as a MessagePack blob.
func Msgpack[T any]() Converter {
	return NewConverter(
		func(v T) ([]byte, error) {
			return msgpack.Marshal(v)
		},
		func(b []byte) (T, error) {
			var v T
			err := msgpack.Unmarshal(b, &v)
			return v, err
		},
	)
}

// UUIDString stores a uuid.UUID in its canonical text form.
func UUIDString() Converter {
	return NewConverter(
		func(id uuid.UUID) (string, error) {
			return id.String(), nil
		},
		uuid.Parse,
	)
}

// EnumNames stores an enum by name.
func EnumNames[E comparable](names map[E]string) Converter {
	values := make(map[string]E, len(names))
	for k, v := range names {
		values[v] = k
	}
	return NewConverter(
		func(e E) (string, error) {
			name, ok := names[e]
			if !ok {
				return "", bulkerrors.Newf(bulkerrors.ErrorTypeData, "no name for enum value %v", e)
			}
			return name, nil
		},
		func(s string) (E, error) {
			e, ok := values[s]
			if !ok {
				return e, bulkerrors.Newf(bulkerrors.ErrorTypeData, "unknown enum name %q", s)
			}
			return e, nil
		},
	)
}

type wkbConverter struct{}

// WKB stores orb geometries as well-known binary.
func WKB() Converter {
	return wkbConverter{}
}

func (wkbConverter) Spatial() {}

func (wkbConverter) ProviderType() reflect.Type {
	return reflect.TypeFor[[]byte]()
}

func (wkbConverter) ToProvider(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	g, ok := v.(orb.Geometry)
	if !ok {
		return nil, bulkerrors.Newf(bulkerrors.ErrorTypeData, "%T is not an orb.Geometry", v)
	}
	return wkb.Value(g), nil
}

func (wkbConverter) FromProvider(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, bulkerrors.Newf(bulkerrors.ErrorTypeData, "%T is not WKB bytes", v)
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeData, "invalid WKB")
	}
	return g, nil
}

// UnwrapSpatial resolves a driver.Valuer geometry wrapper to its bytes.
func UnwrapSpatial(v any) (any, error) {
	valuer, ok := v.(driver.Valuer)
	if !ok {
		return v, nil
	}
	raw, err := valuer.Value()
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeData, "geometry encoding failed")
	}
	return raw, nil
}
