package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// FieldType documents the expected shape of a state value.
// The engine does not enforce it; reducers enforce the shape that matters.
type FieldType string

const (
	TypeAny      FieldType = "any"
	TypeString   FieldType = "string"
	TypeInt      FieldType = "int"
	TypeBool     FieldType = "bool"
	TypeObject   FieldType = "object"
	TypeSequence FieldType = "sequence"
)

// Built-in reducer policy names.
const (
	ReducerReplace = "replace"
	ReducerAppend  = "append"
)

// Field declares one key of a state schema and the reducer used to merge it.
type Field struct {
	Name    string    `json:"name" yaml:"name"`
	Type    FieldType `json:"type" yaml:"type"`
	Reducer string    `json:"reducer" yaml:"reducer"`
}

// Replace declares a last-write-wins field.
func Replace(name string, typ FieldType) Field {
	return Field{Name: name, Type: typ, Reducer: ReducerReplace}
}

// Append declares an ordered sequence field that only grows.
func Append(name string) Field {
	return Field{Name: name, Type: TypeSequence, Reducer: ReducerAppend}
}

// Schema is the ordered declaration of state fields.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema. Field names must be unique and non-empty.
// A field without a reducer defaults to replace.
func NewSchema(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("schema field name cannot be empty")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate schema field %q", f.Name)
		}
		if f.Reducer == "" {
			f.Reducer = ReducerReplace
		}
		if f.Type == "" {
			f.Type = TypeAny
		}
		if f.Reducer == ReducerAppend {
			f.Type = TypeSequence
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error. Intended for package-level declarations.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns a copy of the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a declared field.
func (s *Schema) Field(name string) (Field, bool) {
	if s == nil {
		return Field{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Has reports whether the field is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// ReducerFor returns the reducer policy of a field. Undeclared keys use replace.
func (s *Schema) ReducerFor(name string) string {
	if f, ok := s.Field(name); ok {
		return f.Reducer
	}
	return ReducerReplace
}

// Init creates the initial state of a run. Every append field starts as an
// empty sequence; values given for append fields are normalized to sequences.
func (s *Schema) Init(values map[string]any) State {
	out := make(map[string]any, len(values)+len(s.Fields()))
	for _, f := range s.Fields() {
		if f.Reducer == ReducerAppend {
			out[f.Name] = []any{}
		}
	}
	for k, v := range values {
		if s.ReducerFor(k) == ReducerAppend {
			out[k] = AsSequence(v)
			continue
		}
		out[k] = v
	}
	return State{values: out}
}

// Update is a partial state produced by a node.
type Update map[string]any

// State is an immutable snapshot of run values.
// It is never mutated in place; merges produce a new State.
type State struct {
	values map[string]any
}

// NewState copies the given values into a new State.
func NewState(values map[string]any) State {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return State{values: out}
}

// Get returns the raw value stored under key.
func (s State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is set.
func (s State) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Len returns the number of set keys.
func (s State) Len() int {
	return len(s.values)
}

// Keys returns the set keys in lexical order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns a shallow copy of the underlying values.
func (s State) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// With returns a copy of s where key holds value.
func (s State) With(key string, value any) State {
	out := s.Values()
	out[key] = value
	return State{values: out}
}

// Without returns a copy of s with the given keys removed.
func (s State) Without(keys ...string) State {
	out := s.Values()
	for _, k := range keys {
		delete(out, k)
	}
	return State{values: out}
}

// Project returns a copy of s restricted to keys declared in schema.
func (s State) Project(schema *Schema) State {
	out := make(map[string]any)
	for k, v := range s.values {
		if schema.Has(k) {
			out[k] = v
		}
	}
	return State{values: out}
}

// Sequence returns the value under key as a sequence. Missing keys yield nil.
func (s State) Sequence(key string) []any {
	v, ok := s.values[key]
	if !ok {
		return nil
	}
	return AsSequence(v)
}

// MarshalJSON encodes the state as a plain JSON object.
func (s State) MarshalJSON() ([]byte, error) {
	if s.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.values)
}

// UnmarshalJSON decodes a plain JSON object.
func (s *State) UnmarshalJSON(data []byte) error {
	values := make(map[string]any)
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	s.values = values
	return nil
}

// AsSequence normalizes v to a fresh []any. Slices and arrays are spread,
// nil becomes an empty sequence and any other value becomes a single element.
func AsSequence(v any) []any {
	if v == nil {
		return []any{}
	}
	if seq, ok := v.([]any); ok {
		out := make([]any, len(seq))
		copy(out, seq)
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return []any{v}
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out
	default:
		return []any{v}
	}
}
