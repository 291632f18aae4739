package registry

import (
	"fmt"
	"sync"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
)

// Reducer combines the current value of a field with an update.
// present is false when the field has no value yet.
type Reducer func(current any, present bool, update any) (any, error)

// Registry manages the available merge policies.
type Registry struct {
	mu       sync.RWMutex
	reducers map[string]Reducer
}

// NewRegistry creates a registry with the built-in replace and append policies.
func NewRegistry() *Registry {
	r := &Registry{
		reducers: make(map[string]Reducer),
	}
	r.Register(domain.ReducerReplace, Replace)
	r.Register(domain.ReducerAppend, Append)
	return r
}

// Register adds a reducer to the registry.
// If a reducer with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Reducer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reducers[name] = fn
}

// Lookup returns the reducer registered under name.
func (r *Registry) Lookup(name string) (Reducer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.reducers[name]
	return fn, ok
}

// Validate checks that every field of schema names a registered reducer.
func (r *Registry) Validate(schema *domain.Schema) error {
	for _, f := range schema.Fields() {
		if _, ok := r.Lookup(f.Reducer); !ok {
			return domain.Errorf(domain.KindGraphConfig, "schema", "field %q uses unknown reducer %q", f.Name, f.Reducer)
		}
	}
	return nil
}

// Merge applies update to current field by field and returns a new State.
// current is never modified. Keys outside the schema use replace.
func (r *Registry) Merge(schema *domain.Schema, current domain.State, update domain.Update) (domain.State, error) {
	if len(update) == 0 {
		return current, nil
	}
	values := current.Values()
	for key, val := range update {
		name := schema.ReducerFor(key)
		fn, ok := r.Lookup(name)
		if !ok {
			return current, domain.Errorf(domain.KindGraphConfig, "merge", "field %q uses unknown reducer %q", key, name)
		}
		prev, present := values[key]
		merged, err := fn(prev, present, val)
		if err != nil {
			return current, fmt.Errorf("failed to merge field %q: %w", key, err)
		}
		values[key] = merged
	}
	return domain.NewState(values), nil
}

// Replace is last-write-wins.
func Replace(_ any, _ bool, update any) (any, error) {
	return update, nil
}

// Append concatenates. A sequence update contributes its elements in order,
// a scalar contributes one element and nil contributes nothing.
func Append(current any, present bool, update any) (any, error) {
	var out []any
	if present {
		out = domain.AsSequence(current)
	}
	if update == nil {
		if out == nil {
			out = []any{}
		}
		return out, nil
	}
	return append(out, domain.AsSequence(update)...), nil
}
