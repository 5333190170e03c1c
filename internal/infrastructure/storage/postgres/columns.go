package postgres

import (
	"reflect"
	"sync"
)

// rowSchema maps the db-tagged fields of a row struct, embedded structs
// (entity.BaseDocument) included, to their column names in declaration order.
type rowSchema struct {
	columns []string
	paths   [][]int // reflect field index path per column
}

var schemas sync.Map // reflect.Type -> *rowSchema

func schemaOf(t reflect.Type) *rowSchema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if s, ok := schemas.Load(t); ok {
		return s.(*rowSchema)
	}
	s := &rowSchema{}
	if t.Kind() == reflect.Struct {
		s.collect(t, nil)
	}
	actual, _ := schemas.LoadOrStore(t, s)
	return actual.(*rowSchema)
}

func (s *rowSchema) collect(t reflect.Type, prefix []int) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		path := append(append([]int(nil), prefix...), i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			s.collect(f.Type, path)
			continue
		}
		col := f.Tag.Get("db")
		if col == "" || col == "-" {
			continue
		}
		s.columns = append(s.columns, col)
		s.paths = append(s.paths, path)
	}
}

// Columns lists the columns of row type T.
//
//	cols := Columns[orderRow]() // id, number, version, created_at, ..., store_id, status
func Columns[T any]() []string {
	return schemaOf(reflect.TypeFor[T]()).columns
}

// ColumnMap returns column -> value for a row struct (or pointer to one).
// It returns nil for anything else.
func ColumnMap(row any) map[string]any {
	rv, s, ok := rowValue(row)
	if !ok {
		return nil
	}
	m := make(map[string]any, len(s.columns))
	for i, col := range s.columns {
		m[col] = rv.FieldByIndex(s.paths[i]).Interface()
	}
	return m
}

// ColumnValues returns the values of a row in Columns order, ready for a
// multi-row INSERT or CopyFrom.
func ColumnValues(row any) []any {
	rv, s, ok := rowValue(row)
	if !ok {
		return nil
	}
	vals := make([]any, len(s.paths))
	for i, p := range s.paths {
		vals[i] = rv.FieldByIndex(p).Interface()
	}
	return vals
}

func rowValue(row any) (reflect.Value, *rowSchema, bool) {
	rv := reflect.ValueOf(row)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, nil, false
	}
	return rv, schemaOf(rv.Type()), true
}
