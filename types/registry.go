package types

import (
	"slices"
	"sync"

	"github.com/c360/semflow/errors"
)

// Registry holds the types known to a sheet. It is safe for concurrent use;
// the loader registers types modules while the sheet reads.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
	order []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// NewBuiltinRegistry creates a registry holding the built-in types
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	if err := RegisterBuiltins(r, false); err != nil {
		panic(err)
	}
	return r
}

// Register adds a type. An existing name is an error unless override is
// set. Every parent must already be registered and the parent chain must
// stay acyclic.
func (r *Registry) Register(name string, def Definition, override bool) (*Type, error) {
	if name == "" {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownType, "empty type name"),
			"Registry", "Register", "name check")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.types[name]
	if exists && !override {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrDuplicateType, "type %q", name),
			"Registry", "Register", "duplicate check")
	}

	for _, parent := range def.Parents {
		if parent == name {
			return nil, errors.WrapInvalid(errors.Detail(errors.ErrTypeCycle, "type %q inherits itself", name),
				"Registry", "Register", "parent check")
		}
		if _, ok := r.types[parent]; !ok {
			return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownType, "parent %q of %q", parent, name),
				"Registry", "Register", "parent check")
		}
		if exists && r.inheritsLocked(parent, name) {
			return nil, errors.WrapInvalid(
				errors.Detail(errors.ErrTypeCycle, "%q already inherits %q", parent, name),
				"Registry", "Register", "parent check")
		}
	}

	t := newType(name, def)
	if !exists {
		r.order = append(r.order, name)
	}
	r.types[name] = t
	return t, nil
}

// Lookup returns the type registered under name
func (r *Registry) Lookup(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Resolve is Lookup returning ErrUnknownType for a missing name
func (r *Registry) Resolve(name string) (*Type, error) {
	if t, ok := r.Lookup(name); ok {
		return t, nil
	}
	return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownType, "type %q", name),
		"Registry", "Resolve", "lookup")
}

// Names returns the registered names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Inherits reports whether src transitively inherits target
func (r *Registry) Inherits(src, target string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inheritsLocked(src, target)
}

func (r *Registry) inheritsLocked(src, target string) bool {
	visited := make(map[string]bool)
	var walk func(name string) bool
	walk = func(name string) bool {
		if visited[name] {
			return false
		}
		visited[name] = true
		t, ok := r.types[name]
		if !ok {
			return false
		}
		for _, parent := range t.parents {
			if parent == target || walk(parent) {
				return true
			}
		}
		return false
	}
	return walk(src)
}

// IsAssignable reports whether values of src may flow into target. The
// checks run in order: same name, inheritance (depth-first over parents in
// declaration order), then an explicit cast registered on src itself. Casts
// never chain.
func (r *Registry) IsAssignable(src *Type, target string) bool {
	if src == nil {
		return false
	}
	if src.name == target {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	current := r.currentLocked(src)
	for _, parent := range current.parents {
		if parent == target || r.inheritsLocked(parent, target) {
			return true
		}
	}
	return current.HasCast(target)
}

// Cast converts value from src to target using src's explicit cast when one
// is registered; otherwise the value is returned unchanged.
func (r *Registry) Cast(value any, src *Type, target string) (any, error) {
	if src == nil || src.name == target {
		return value, nil
	}
	r.mu.RLock()
	fn, ok := r.currentLocked(src).casts[target]
	r.mu.RUnlock()
	if !ok {
		return value, nil
	}
	out, err := fn(value)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Registry", "Cast", src.name+" to "+target)
	}
	return out, nil
}

// currentLocked returns the registered version of t, which differs from t
// after t's name was overridden.
func (r *Registry) currentLocked(t *Type) *Type {
	if registered, ok := r.types[t.name]; ok {
		return registered
	}
	return t
}
