package plan

import (
	"reflect"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/update"
)

// CommandProvider builds columns from pending modification commands. Items
// passed to its columns are *update.Command values.
type CommandProvider struct {
	schema  string
	table   string
	columns []*Column
}

// ForCommands groups the column modifications of cmds by column name, in
// order of first appearance.
func ForCommands(cmds []*update.Command) (*CommandProvider, error) {
	if len(cmds) == 0 {
		return nil, bulkerrors.New(bulkerrors.ErrorTypeValidation, "no commands")
	}

	type group struct {
		name string
		mods []*update.ColumnModification
	}
	var groups []*group
	byName := make(map[string]*group)
	for _, cmd := range cmds {
		for _, m := range cmd.Modifications {
			g, ok := byName[m.Column]
			if !ok {
				g = &group{name: m.Column}
				byName[m.Column] = g
				groups = append(groups, g)
			}
			g.mods = append(g.mods, m)
		}
	}

	p := &CommandProvider{schema: cmds[0].Schema, table: cmds[0].Table}
	for i, g := range groups {
		dir := commandDirection(g.mods)
		if dir == None {
			continue
		}
		first := g.mods[0]
		name := g.name
		col := NewColumn(i, name, first.Property.ProviderType(), dir,
			func(item any) (any, error) { return commandValue(item, name) },
			func(item any, value any) error { return setCommandValue(item, name, value) },
		)
		col.PrimaryKey = first.IsKey
		p.columns = append(p.columns, col)
	}
	return p, nil
}

func commandDirection(mods []*update.ColumnModification) Direction {
	first := mods[0]
	if first.Entry != nil && first.Entry.State == update.Deleted && first.IsKey {
		return Write
	}
	dir := None
	for _, m := range mods {
		if m.IsWrite {
			dir |= Write
		}
		if m.IsRead {
			dir |= Read
		}
	}
	return dir
}

func commandValue(item any, column string) (any, error) {
	cmd, ok := item.(*update.Command)
	if !ok {
		return nil, bulkerrors.Newf(bulkerrors.ErrorTypeInternal, "expected *update.Command, got %T", item)
	}
	m := cmd.Modification(column)
	if m == nil {
		return nil, nil
	}
	return m.ParameterValue()
}

func setCommandValue(item any, column string, value any) error {
	cmd, ok := item.(*update.Command)
	if !ok {
		return bulkerrors.Newf(bulkerrors.ErrorTypeInternal, "expected *update.Command, got %T", item)
	}
	m := cmd.Modification(column)
	if m == nil || !m.IsRead {
		return nil
	}
	v, err := m.Property.FromProvider(value)
	if err != nil {
		return err
	}
	m.Value = v
	return nil
}

// Schema returns the schema of the first command.
func (p *CommandProvider) Schema() string { return p.schema }

// Table returns the table of the first command.
func (p *CommandProvider) Table() string { return p.table }

// Columns returns the grouped columns.
func (p *CommandProvider) Columns() []*Column { return p.columns }

// Complete pushes the read values of a command into its entries.
func (p *CommandProvider) Complete(item any) error {
	cmd, ok := item.(*update.Command)
	if !ok {
		return bulkerrors.Newf(bulkerrors.ErrorTypeInternal, "expected *update.Command, got %T", item)
	}
	return cmd.PropagateResults()
}

// ReflectionProvider builds a write-only plan from the exported fields of
// a struct type, ordered by field name, for types the model does not know.
type ReflectionProvider struct {
	schema  string
	table   string
	columns []*Column
}

// ForType builds the plan for struct type t, dereferencing pointer types.
// Columns are named after the db tag when present.
func ForType(t reflect.Type, schema, table string) (*ReflectionProvider, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "%s is not a struct type", t)
	}

	var fields []reflect.StructField
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() || f.Tag.Get("db") == "-" {
			continue
		}
		fields = append(fields, f)
	}
	sortFields(fields)

	p := &ReflectionProvider{schema: schema, table: table}
	for i, f := range fields {
		index := f.Index
		name := f.Name
		if tag := f.Tag.Get("db"); tag != "" {
			if n := tagName(tag); n != "" {
				name = n
			}
		}
		p.columns = append(p.columns, NewColumn(i, name, f.Type, Write,
			func(item any) (any, error) {
				v := reflect.Indirect(reflect.ValueOf(item))
				if v.Kind() != reflect.Struct {
					return nil, bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "%T is not a struct", item)
				}
				fv, err := v.FieldByIndexErr(index)
				if err != nil {
					return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeValidation, "unreachable field")
				}
				return derefValue(fv), nil
			}, nil))
	}
	return p, nil
}

// Schema returns the configured schema.
func (p *ReflectionProvider) Schema() string { return p.schema }

// Table returns the configured table.
func (p *ReflectionProvider) Table() string { return p.table }

// Columns returns one write column per exported field.
func (p *ReflectionProvider) Columns() []*Column { return p.columns }
