// Package cursor exposes an arbitrary item sequence as a forward-only
// table whose columns come from a plan. A Cursor satisfies
// pgx.CopyFromSource, so it can feed a native bulk copy directly.
package cursor

import (
	"iter"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/plan"
)

var _ pgx.CopyFromSource = (*Cursor[any])(nil)

// Cursor iterates items once, projecting each through the plan columns.
// It is not safe for concurrent use.
type Cursor[T any] struct {
	items    iter.Seq[T]
	columns  []*plan.Column
	ordinals map[int]int
	names    map[string]int

	once sync.Once
	next func() (T, bool)
	stop func()

	current    T
	hasCurrent bool
	values     []any
	track      bool
	tracked    []T
	position   int
	err        error
	closed     bool
}

// New creates a cursor over items. Columns are emitted in the given order.
// With track set, every item the cursor advances past is retained in
// Tracked for later propagation of database values.
func New[T any](items iter.Seq[T], columns []*plan.Column, track bool) *Cursor[T] {
	c := &Cursor[T]{
		items:    items,
		columns:  columns,
		ordinals: make(map[int]int, len(columns)),
		names:    make(map[string]int, len(columns)),
		values:   make([]any, len(columns)),
		track:    track,
	}
	for i, col := range columns {
		c.ordinals[col.Ordinal] = i
		c.names[col.Name] = col.Ordinal
	}
	return c
}

// Next advances to the next item. The underlying sequence is started on
// the first call only.
func (c *Cursor[T]) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	c.once.Do(func() {
		c.next, c.stop = iter.Pull(c.items)
	})

	item, ok := c.next()
	if !ok {
		var zero T
		c.current, c.hasCurrent = zero, false
		return false
	}
	c.current, c.hasCurrent = item, true
	c.position++
	if c.track {
		c.tracked = append(c.tracked, item)
	}
	return true
}

// Values returns the current row in column order. The returned slice is
// reused by the next call.
func (c *Cursor[T]) Values() ([]any, error) {
	if !c.hasCurrent {
		return nil, bulkerrors.New(bulkerrors.ErrorTypeInternal, "cursor is not positioned on a row")
	}
	for i, col := range c.columns {
		v, err := col.Value(c.current)
		if err != nil {
			c.err = bulkerrors.Wrap(err, bulkerrors.ErrorTypeData, "reading column "+col.Name).
				WithDetail("position", c.position)
			return nil, c.err
		}
		c.values[i] = v
	}
	return c.values, nil
}

// Err returns the first error met while reading values.
func (c *Cursor[T]) Err() error {
	return c.err
}

// Close releases the underlying sequence.
func (c *Cursor[T]) Close() error {
	if c.stop != nil {
		c.stop()
	}
	c.closed = true
	c.hasCurrent = false
	return nil
}

// FieldCount returns the number of columns.
func (c *Cursor[T]) FieldCount() int {
	return len(c.columns)
}

// Columns returns the columns in emission order.
func (c *Cursor[T]) Columns() []*plan.Column {
	return c.columns
}

func (c *Cursor[T]) column(ordinal int) (*plan.Column, error) {
	i, ok := c.ordinals[ordinal]
	if !ok {
		return nil, bulkerrors.Newf(bulkerrors.ErrorTypeNotFound, "no column with ordinal %d", ordinal)
	}
	return c.columns[i], nil
}

// Name returns the name of the column with the given ordinal.
func (c *Cursor[T]) Name(ordinal int) (string, error) {
	col, err := c.column(ordinal)
	if err != nil {
		return "", err
	}
	return col.Name, nil
}

// FieldType returns the provider type of the column.
func (c *Cursor[T]) FieldType(ordinal int) (reflect.Type, error) {
	col, err := c.column(ordinal)
	if err != nil {
		return nil, err
	}
	return col.Type, nil
}

// Ordinal looks a column up by name, falling back to a case-insensitive
// match.
func (c *Cursor[T]) Ordinal(name string) (int, error) {
	if o, ok := c.names[name]; ok {
		return o, nil
	}
	for n, o := range c.names {
		if strings.EqualFold(n, name) {
			return o, nil
		}
	}
	return -1, bulkerrors.Newf(bulkerrors.ErrorTypeNotFound, "no column named %s", name)
}

// Value returns the current item's value for the column.
func (c *Cursor[T]) Value(ordinal int) (any, error) {
	col, err := c.column(ordinal)
	if err != nil {
		return nil, err
	}
	if !c.hasCurrent {
		return nil, bulkerrors.New(bulkerrors.ErrorTypeInternal, "cursor is not positioned on a row")
	}
	return col.Value(c.current)
}

// IsNull reports whether the current value is nil.
func (c *Cursor[T]) IsNull(ordinal int) (bool, error) {
	v, err := c.Value(ordinal)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

// Bytes copies exactly length bytes of a []byte or string value, starting
// at offset, into buf at bufOffset.
func (c *Cursor[T]) Bytes(ordinal int, offset int64, buf []byte, bufOffset, length int) (int, error) {
	v, err := c.Value(ordinal)
	if err != nil {
		return 0, err
	}
	var src []byte
	switch b := v.(type) {
	case []byte:
		src = b
	case string:
		src = []byte(b)
	default:
		return 0, bulkerrors.Newf(bulkerrors.ErrorTypeData, "column %d holds %T, not bytes", ordinal, v)
	}
	return copyExact(buf, src, offset, bufOffset, length)
}

// Chars copies exactly length runes of a string value, starting at rune
// offset, into buf at bufOffset.
func (c *Cursor[T]) Chars(ordinal int, offset int64, buf []rune, bufOffset, length int) (int, error) {
	v, err := c.Value(ordinal)
	if err != nil {
		return 0, err
	}
	var src []rune
	switch s := v.(type) {
	case string:
		src = []rune(s)
	case []rune:
		src = s
	default:
		return 0, bulkerrors.Newf(bulkerrors.ErrorTypeData, "column %d holds %T, not text", ordinal, v)
	}
	return copyExact(buf, src, offset, bufOffset, length)
}

func copyExact[E any](dst, src []E, offset int64, dstOffset, length int) (int, error) {
	if offset < 0 || dstOffset < 0 || length < 0 ||
		offset+int64(length) > int64(len(src)) || dstOffset+length > len(dst) {
		return 0, bulkerrors.Newf(bulkerrors.ErrorTypeValidation,
			"cannot copy %d elements from offset %d of %d into offset %d of %d",
			length, offset, len(src), dstOffset, len(dst))
	}
	return copy(dst[dstOffset:dstOffset+length], src[offset:offset+int64(length)]), nil
}

// NextResult is not supported; a cursor has exactly one result set.
func (c *Cursor[T]) NextResult() (bool, error) {
	return false, bulkerrors.New(bulkerrors.ErrorTypeUnsupported, "cursor has a single result set")
}

// Tracked returns the items advanced past so far in track mode.
func (c *Cursor[T]) Tracked() []T {
	return c.tracked
}

// Position returns the number of items advanced past.
func (c *Cursor[T]) Position() int {
	return c.position
}
