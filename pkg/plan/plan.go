// Package plan derives, per entity type and operation, which columns take
// part in a bulk operation, in which direction values flow, and how each
// value is read from or written back to an item.
package plan

import (
	"reflect"
	"strings"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

// Direction says which way a column's value flows.
type Direction uint8

const (
	None Direction = 0
	// Write sends the value to the database
	Write Direction = 1 << 0
	// Read propagates the database value back to the item
	Read Direction = 1 << 1
	Both           = Write | Read
)

// Has reports whether all bits of d are set.
func (v Direction) Has(d Direction) bool {
	return d != None && v&d == d
}

func (v Direction) String() string {
	switch v {
	case None:
		return "none"
	case Write:
		return "write"
	case Read:
		return "read"
	case Both:
		return "both"
	}
	return "invalid"
}

// Operation is the kind of bulk operation a plan serves.
type Operation int

const (
	Insert Operation = iota
	Update
	Delete
)

func (o Operation) String() string {
	switch o {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return "unknown"
}

// Getter reads a column value from an item.
type Getter func(item any) (any, error)

// Setter writes a database value into an item.
type Setter func(item any, value any) error

// Column describes one column of a plan. Columns are immutable once built.
type Column struct {
	// Ordinal is unique within a plan and fixes the column's position in
	// the row cursor and in the bulk copy column mapping
	Ordinal   int
	Name      string
	Type      reflect.Type
	Direction Direction
	// PrimaryKey marks key columns, the join columns of a delete
	PrimaryKey bool
	// Identity marks key values the database normally generates
	Identity bool

	get Getter
	set Setter
}

// NewColumn creates a column. set may be nil for columns never read back.
func NewColumn(ordinal int, name string, t reflect.Type, dir Direction, get Getter, set Setter) *Column {
	return &Column{Ordinal: ordinal, Name: name, Type: t, Direction: dir, get: get, set: set}
}

// Value reads the column value of item.
func (c *Column) Value(item any) (any, error) {
	if c.get == nil {
		return nil, bulkerrors.Newf(bulkerrors.ErrorTypeInternal, "column %s has no getter", c.Name)
	}
	return c.get(item)
}

// SetValue writes value into item.
func (c *Column) SetValue(item any, value any) error {
	if c.set == nil {
		return bulkerrors.Newf(bulkerrors.ErrorTypeInternal, "column %s cannot be written back", c.Name)
	}
	return c.set(item, value)
}

// Provider supplies the columns of a bulk operation and the table they
// belong to.
type Provider interface {
	Schema() string
	Table() string
	Columns() []*Column
}

// Completer is implemented by providers that need a hook after all read
// columns of an item have been set.
type Completer interface {
	Complete(item any) error
}

// Inbound returns the columns carrying the Write bit.
func Inbound(columns []*Column) []*Column {
	return filter(columns, Write)
}

// Outbound returns the columns carrying the Read bit.
func Outbound(columns []*Column) []*Column {
	return filter(columns, Read)
}

// Keys returns the primary-key columns.
func Keys(columns []*Column) []*Column {
	var out []*Column
	for _, c := range columns {
		if c.PrimaryKey {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the column names in order.
func Names(columns []*Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}

// Find returns the column named name, case-insensitively, or nil.
func Find(columns []*Column, name string) *Column {
	for _, c := range columns {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

func filter(columns []*Column, d Direction) []*Column {
	var out []*Column
	for _, c := range columns {
		if c.Direction.Has(d) {
			out = append(out, c)
		}
	}
	return out
}
