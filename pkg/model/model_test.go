package model

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

type audit struct {
	CreatedAt time.Time `db:"created_at"`
}

type blog struct {
	audit
	ID       int64   `db:"id,key,identity"`
	Title    string  `db:"title"`
	Rating   *int32  `db:"rating"`
	Revision int64   `db:"revision,computed"`
	Note     string  `db:"-"`
	hidden   string  //nolint:unused
	Score    float64 `db:",readonly"`
}

func TestEntityFromTags(t *testing.T) {
	m := New()
	e, err := Entity[blog](m).Table("blogs").Schema("app").Build()
	require.NoError(t, err)

	names := make([]string, 0, len(e.Properties()))
	for _, p := range e.Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"CreatedAt", "ID", "Title", "Rating", "Revision", "Score"}, names)

	id := e.Property("ID")
	assert.True(t, id.PrimaryKey)
	assert.True(t, id.ValueGenerated.Has(ValueGeneratedOnAdd))
	assert.Equal(t, "id", id.Column)
	assert.Equal(t, 1, id.Ordinal())

	rev := e.Property("Revision")
	assert.Equal(t, ValueGeneratedOnAddOrUpdate, rev.ValueGenerated)
	assert.Equal(t, SaveBehaviorIgnore, rev.BeforeSave)

	score := e.Property("Score")
	assert.Equal(t, "Score", score.Column)
	assert.Equal(t, SaveBehaviorIgnore, score.BeforeSave)

	assert.Nil(t, e.Property("Note"))
	assert.Equal(t, []*Property{id}, e.PrimaryKey())
	assert.Same(t, e, m.FindEntityType(reflect.TypeOf(&blog{})))
	assert.Same(t, e, m.FindByName("blog"))
	assert.Same(t, rev, e.PropertyByColumn("revision"))
}

func TestEntityBuilderErrors(t *testing.T) {
	t.Run("unknown property", func(t *testing.T) {
		_, err := Entity[blog](New()).HasDefault("Missing", 1).Build()
		assert.True(t, bulkerrors.IsType(err, bulkerrors.ErrorTypeNotFound))
	})

	t.Run("not a struct", func(t *testing.T) {
		_, err := Entity[int](New()).Build()
		assert.True(t, bulkerrors.IsType(err, bulkerrors.ErrorTypeValidation))
	})

	t.Run("duplicate registration", func(t *testing.T) {
		m := New()
		Entity[blog](m).MustBuild()
		_, err := Entity[blog](m).Name("other").Build()
		assert.Error(t, err)
	})
}

func TestDiscriminatorAddsShadowProperty(t *testing.T) {
	e := Entity[blog](New()).Discriminator("Kind", "blog").MustBuild()

	require.NotNil(t, e.Discriminator)
	assert.True(t, e.Discriminator.IsShadow())
	assert.Equal(t, "blog", e.DiscriminatorValue)
	assert.Equal(t, reflect.TypeFor[string](), e.Discriminator.Type)
}

func TestPropertyGetSet(t *testing.T) {
	e := Entity[blog](New()).MustBuild()
	b := &blog{Title: "first"}

	v, err := e.Property("Title").Get(b)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	require.NoError(t, e.Property("ID").Set(b, int32(7)))
	assert.Equal(t, int64(7), b.ID)

	require.NoError(t, e.Property("Rating").Set(b, int64(5)))
	require.NotNil(t, b.Rating)
	assert.Equal(t, int32(5), *b.Rating)

	require.NoError(t, e.Property("Rating").Set(b, nil))
	assert.Nil(t, b.Rating)

	now := time.Now()
	require.NoError(t, e.Property("CreatedAt").Set(b, now))
	assert.Equal(t, now, b.CreatedAt)

	err = e.Property("Title").Set(*b, "by value")
	assert.True(t, bulkerrors.IsType(err, bulkerrors.ErrorTypeValidation))

	err = e.Property("Title").Set(b, 12)
	assert.True(t, bulkerrors.IsType(err, bulkerrors.ErrorTypeData))
}

type state int

func TestConvert(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		target  reflect.Type
		want    any
		wantErr bool
	}{
		{"int to enum", 2, reflect.TypeFor[state](), state(2), false},
		{"int64 to float", int64(3), reflect.TypeFor[float64](), float64(3), false},
		{"string to bytes", "ab", reflect.TypeFor[[]byte](), []byte("ab"), false},
		{"nil to pointer", nil, reflect.TypeFor[*int](), (*int)(nil), false},
		{"int to string", 65, reflect.TypeFor[string](), nil, true},
		{"array to uuid", [16]byte{1}, reflect.TypeFor[uuid.UUID](), uuid.UUID{1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.value, tt.target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConverters(t *testing.T) {
	type settings struct {
		Theme string `json:"theme" msgpack:"theme"`
	}

	t.Run("json", func(t *testing.T) {
		c := JSON[settings]()
		p, err := c.ToProvider(settings{Theme: "dark"})
		require.NoError(t, err)
		assert.Equal(t, `{"theme":"dark"}`, p)
		m, err := c.FromProvider(p)
		require.NoError(t, err)
		assert.Equal(t, settings{Theme: "dark"}, m)
		assert.Equal(t, reflect.TypeFor[string](), c.ProviderType())
	})

	t.Run("msgpack", func(t *testing.T) {
		c := Msgpack[settings]()
		p, err := c.ToProvider(settings{Theme: "light"})
		require.NoError(t, err)
		m, err := c.FromProvider(p)
		require.NoError(t, err)
		assert.Equal(t, settings{Theme: "light"}, m)
	})

	t.Run("uuid", func(t *testing.T) {
		id := uuid.New()
		c := UUIDString()
		p, err := c.ToProvider(id)
		require.NoError(t, err)
		assert.Equal(t, id.String(), p)
		m, err := c.FromProvider(p)
		require.NoError(t, err)
		assert.Equal(t, id, m)
	})

	t.Run("enum names", func(t *testing.T) {
		c := EnumNames(map[state]string{1: "draft", 2: "published"})
		p, err := c.ToProvider(state(2))
		require.NoError(t, err)
		assert.Equal(t, "published", p)
		_, err = c.FromProvider("archived")
		assert.Error(t, err)
	})

	t.Run("nil passes through", func(t *testing.T) {
		p, err := JSON[settings]().ToProvider(nil)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("wkb", func(t *testing.T) {
		c := WKB()
		_, spatial := c.(SpatialConverter)
		assert.True(t, spatial)

		wrapped, err := c.ToProvider(orb.Point{1, 2})
		require.NoError(t, err)
		raw, err := UnwrapSpatial(wrapped)
		require.NoError(t, err)
		require.IsType(t, []byte{}, raw)

		g, err := c.FromProvider(raw)
		require.NoError(t, err)
		assert.Equal(t, orb.Point{1, 2}, g)
	})
}

func TestShadowStores(t *testing.T) {
	b := &blog{}
	s := NewMapStore()
	s.StoreValue(b, "Kind", "blog")
	assert.Equal(t, "blog", s.Value(b, "Kind"))
	assert.Nil(t, s.Value(&blog{}, "Kind"))

	r := NewRecord("rows")
	RecordStore{}.StoreValue(r, "id", 3)
	assert.Equal(t, 3, RecordStore{}.Value(r, "id"))
	assert.Nil(t, RecordStore{}.Value(b, "id"))
}

func TestDynamicEntity(t *testing.T) {
	m := New()
	e, err := DynamicEntity("rows", "", "rows",
		&Property{Name: "id", Type: reflect.TypeFor[int64](), PrimaryKey: true, ValueGenerated: ValueGeneratedOnAdd},
		NewShadowProperty("name", reflect.TypeFor[string]()),
	)
	require.NoError(t, err)
	require.NoError(t, m.Add(e))

	assert.True(t, e.IsDynamic())
	assert.True(t, e.Property("id").IsShadow())
	assert.Same(t, e, m.EntityTypeOf(NewRecord("rows")))
	assert.Nil(t, m.FindEntityType(reflect.TypeFor[Record]()))
}
