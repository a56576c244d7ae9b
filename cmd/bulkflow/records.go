package main

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"sort"

	"github.com/ajitpratap0/bulkflow/pkg/json"
	"github.com/ajitpratap0/bulkflow/pkg/model"
)

// recordMapping describes how to map JSON objects onto a dynamic entity.
type recordMapping struct {
	entity    string
	schema    string
	table     string
	columns   []string
	keys      []string
	generated []string
}

// recordSet is the decoded input together with the entity type built for it.
type recordSet struct {
	entity  *model.EntityType
	columns []string
	records []*model.Record
}

var (
	int64Type   = reflect.TypeFor[int64]()
	float64Type = reflect.TypeFor[float64]()
	stringType  = reflect.TypeFor[string]()
	boolType    = reflect.TypeFor[bool]()
)

// readRecords decodes one JSON object per line. Numbers keep integer
// precision; nested objects and arrays are stored as their JSON text.
func readRecords(r io.Reader, mapping recordMapping) (*recordSet, error) {
	dec := json.NewLineDecoder(r)

	var rows []map[string]any
	for {
		row, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", dec.Line(), err)
		}
		rows = append(rows, row)
	}

	columns := mapping.columns
	if len(columns) == 0 && len(rows) > 0 {
		for name := range rows[0] {
			columns = append(columns, name)
		}
		sort.Strings(columns)
	}
	// generated columns missing from the input are read back but never written
	var readOnly []string
	for _, name := range mapping.generated {
		if !slices.Contains(columns, name) {
			columns = append(columns, name)
			readOnly = append(readOnly, name)
		}
	}
	for _, key := range mapping.keys {
		if !slices.Contains(columns, key) {
			return nil, fmt.Errorf("key column %q is not among the input columns", key)
		}
	}

	set := &recordSet{columns: columns, records: make([]*model.Record, 0, len(rows))}
	types := make(map[string]reflect.Type, len(columns))
	for i, row := range rows {
		rec := model.NewRecord(mapping.entity)
		for _, name := range columns {
			v, err := normalize(row[name])
			if err != nil {
				return nil, fmt.Errorf("record %d column %s: %w", i+1, name, err)
			}
			rec.Values[name] = v
			types[name] = widen(types[name], v)
		}
		set.records = append(set.records, rec)
	}

	props := make([]*model.Property, 0, len(columns))
	for _, name := range columns {
		p := model.NewShadowProperty(name, types[name])
		p.PrimaryKey = slices.Contains(mapping.keys, name)
		if slices.Contains(mapping.generated, name) {
			p.ValueGenerated = model.ValueGeneratedOnAdd
		}
		if slices.Contains(readOnly, name) {
			p.BeforeSave = model.SaveBehaviorIgnore
		}
		props = append(props, p)
	}
	entity, err := model.DynamicEntity(mapping.entity, mapping.schema, mapping.table, props...)
	if err != nil {
		return nil, err
	}
	set.entity = entity
	return set, nil
}

func normalize(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		return x.Float64()
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

// widen folds the type of v into the column type seen so far. Integers
// mixed with floats become float64; any other conflict falls back to string.
func widen(seen reflect.Type, v any) reflect.Type {
	var t reflect.Type
	switch v.(type) {
	case nil:
		return seen
	case int64:
		t = int64Type
	case float64:
		t = float64Type
	case bool:
		t = boolType
	default:
		t = stringType
	}
	switch {
	case seen == nil || seen == t:
		return t
	case (seen == int64Type && t == float64Type) || (seen == float64Type && t == int64Type):
		return float64Type
	default:
		return stringType
	}
}

func writeRecords(w io.Writer, records []*model.Record) error {
	enc := json.NewStreamingEncoder(w, false)
	for _, rec := range records {
		if err := enc.Encode(rec.Values); err != nil {
			return err
		}
	}
	return enc.Close()
}
