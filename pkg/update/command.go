// Package update holds the unit-of-work types handed from change tracking
// to command batches: entries, the per-row modification commands built from
// them and the concurrency error raised when the database disagrees.
package update

import (
	"fmt"
	"reflect"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/model"
)

// EntityState is the pending change of a tracked entity.
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
	Deleted
)

func (s EntityState) String() string {
	switch s {
	case Detached:
		return "detached"
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Entry is one tracked entity and its pending change.
type Entry struct {
	Entity     any
	EntityType *model.EntityType
	State      EntityState
	// Shadow holds shadow property values; may be nil
	Shadow model.ShadowStore
	// Original holds pre-change values by property name for Modified and
	// Deleted entries. Missing names fall back to current values.
	Original map[string]any
}

// NewEntry resolves the entity type of entity in m.
func NewEntry(m *model.Model, entity any, state EntityState) (*Entry, error) {
	e := m.EntityTypeOf(entity)
	if e == nil {
		return nil, bulkerrors.Newf(bulkerrors.ErrorTypeUnsupported, "%T is not mapped in the model", entity)
	}
	return &Entry{Entity: entity, EntityType: e, State: state}, nil
}

// CurrentValue reads a property's value from the entity or shadow store.
func (e *Entry) CurrentValue(p *model.Property) (any, error) {
	if e.EntityType.Discriminator == p {
		return e.EntityType.DiscriminatorValue, nil
	}
	if p.IsShadow() {
		if e.Shadow == nil {
			return nil, nil
		}
		return e.Shadow.Value(e.Entity, p.Name), nil
	}
	return p.Get(e.Entity)
}

// OriginalValue returns the recorded original value or the current one.
func (e *Entry) OriginalValue(p *model.Property) (any, error) {
	if v, ok := e.Original[p.Name]; ok {
		return v, nil
	}
	return e.CurrentValue(p)
}

// SetValue writes v to the entity or shadow store.
func (e *Entry) SetValue(p *model.Property, v any) error {
	if p.IsShadow() {
		if e.Shadow == nil {
			return bulkerrors.Newf(bulkerrors.ErrorTypeConfig, "no shadow store for %s", p.Name)
		}
		e.Shadow.StoreValue(e.Entity, p.Name, v)
		return nil
	}
	return p.Set(e.Entity, v)
}

// ColumnModification is one column of a modification command.
type ColumnModification struct {
	Entry    *Entry
	Property *model.Property
	Column   string

	IsKey       bool
	IsCondition bool
	IsRead      bool
	IsWrite     bool

	UseCurrentValue  bool
	UseOriginalValue bool

	// Value is the current value, or the database result after a read
	Value         any
	OriginalValue any
}

// Command is the pending statement for one row.
type Command struct {
	Schema        string
	Table         string
	State         EntityState
	Entries       []*Entry
	Modifications []*ColumnModification
}

// NewCommand derives the column modifications for entry.
func NewCommand(entry *Entry) (*Command, error) {
	e := entry.EntityType
	cmd := &Command{
		Schema:  e.Schema,
		Table:   e.Table,
		State:   entry.State,
		Entries: []*Entry{entry},
	}

	for _, p := range e.Properties() {
		if p.IsShadow() && entry.Shadow == nil && p != e.Discriminator {
			continue
		}
		mod := &ColumnModification{
			Entry:    entry,
			Property: p,
			Column:   p.Column,
			IsKey:    p.PrimaryKey,
		}

		current, err := entry.CurrentValue(p)
		if err != nil {
			return nil, err
		}
		mod.Value = current

		switch entry.State {
		case Added:
			generated := p.ValueGenerated.Has(model.ValueGeneratedOnAdd)
			switch {
			case p == e.Discriminator:
				mod.IsWrite, mod.UseCurrentValue = true, true
			case p.BeforeSave != model.SaveBehaviorSave:
				mod.IsRead = generated
			case generated && model.IsZero(current):
				mod.IsRead = true
			default:
				mod.IsWrite, mod.UseCurrentValue = true, true
			}
		case Modified:
			if p.PrimaryKey {
				original, err := entry.OriginalValue(p)
				if err != nil {
					return nil, err
				}
				mod.IsCondition, mod.UseOriginalValue, mod.OriginalValue = true, true, original
				break
			}
			switch {
			case p.ValueGenerated.Has(model.ValueGeneratedOnUpdate):
				mod.IsRead = true
			case p.AfterSave != model.SaveBehaviorSave:
			default:
				mod.IsWrite, mod.UseCurrentValue = true, true
			}
		case Deleted:
			if !p.PrimaryKey {
				continue
			}
			original, err := entry.OriginalValue(p)
			if err != nil {
				return nil, err
			}
			mod.IsCondition, mod.UseOriginalValue, mod.OriginalValue = true, true, original
		default:
			return nil, bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "no command for %s entries", entry.State)
		}

		if mod.IsRead || mod.IsWrite || mod.IsCondition {
			cmd.Modifications = append(cmd.Modifications, mod)
		}
	}
	return cmd, nil
}

// Modification returns the modification for column or nil.
func (c *Command) Modification(column string) *ColumnModification {
	for _, m := range c.Modifications {
		if m.Column == column {
			return m
		}
	}
	return nil
}

// ParameterValue is the provider value the statement sends for m.
func (m *ColumnModification) ParameterValue() (any, error) {
	switch {
	case m.UseOriginalValue:
		return m.Property.ToProvider(m.OriginalValue)
	case m.UseCurrentValue:
		return m.Property.ToProvider(m.Value)
	}
	return m.Property.ToProvider(zeroOf(m.Property))
}

// PropagateResults copies database-read values into the tracked entities.
func (c *Command) PropagateResults() error {
	for _, m := range c.Modifications {
		if !m.IsRead {
			continue
		}
		if err := m.Entry.SetValue(m.Property, m.Value); err != nil {
			return err
		}
	}
	return nil
}

// EntriesOf collects the entries of all commands in order.
func EntriesOf(cmds []*Command) []*Entry {
	var entries []*Entry
	for _, c := range cmds {
		entries = append(entries, c.Entries...)
	}
	return entries
}

func zeroOf(p *model.Property) any {
	if p.Type == nil {
		return nil
	}
	return reflect.Zero(p.Type).Interface()
}
