// Package attr provides a key/value attribute bag with change observation.
// Processes, connections and types embed it to carry free-form metadata such
// as editor positions or labels.
package attr

import (
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/c360/semflow/errors"
)

// Observer is told about attribute changes and about detachment
type Observer interface {
	AttributeChanged(key string, oldValue, newValue any)
	Detached()
}

// ObserverFuncs adapts plain functions to Observer; nil fields are skipped
type ObserverFuncs struct {
	OnChange func(key string, oldValue, newValue any)
	OnDetach func()
}

// AttributeChanged implements Observer
func (f ObserverFuncs) AttributeChanged(key string, oldValue, newValue any) {
	if f.OnChange != nil {
		f.OnChange(key, oldValue, newValue)
	}
}

// Detached implements Observer
func (f ObserverFuncs) Detached() {
	if f.OnDetach != nil {
		f.OnDetach()
	}
}

// Object is an attribute bag. Reserved keys belong to the owning type and
// cannot be written through Set.
type Object struct {
	mu       sync.RWMutex
	values   map[string]any
	reserved map[string]struct{}
	observer Observer
	detached bool
}

// New creates an Object rejecting the given reserved keys
func New(reserved ...string) *Object {
	o := &Object{
		values:   make(map[string]any),
		reserved: make(map[string]struct{}, len(reserved)),
	}
	for _, key := range reserved {
		o.reserved[key] = struct{}{}
	}
	return o
}

// SetObserver installs the observer, replacing any previous one
func (o *Object) SetObserver(obs Observer) {
	o.mu.Lock()
	o.observer = obs
	o.mu.Unlock()
}

// IsReserved reports whether key is owned by the embedding type
func (o *Object) IsReserved(key string) bool {
	_, ok := o.reserved[key]
	return ok
}

// Get returns the value for key
func (o *Object) Get(key string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[key]
	return v, ok
}

// Set stores value under key and notifies the observer. Writing a value
// deep-equal to the current one does nothing.
func (o *Object) Set(key string, value any) error {
	if o.IsReserved(key) {
		return errors.WrapInvalid(errors.Detail(errors.ErrReservedAttribute, "key %q", key),
			"Attributes", "Set", "reserved key check")
	}

	o.mu.Lock()
	old, had := o.values[key]
	if had && reflect.DeepEqual(old, value) {
		o.mu.Unlock()
		return nil
	}
	o.values[key] = value
	obs := o.observer
	o.mu.Unlock()

	if obs != nil {
		obs.AttributeChanged(key, old, value)
	}
	return nil
}

// Delete removes key, notifying the observer with a nil new value
func (o *Object) Delete(key string) {
	o.mu.Lock()
	old, had := o.values[key]
	if !had {
		o.mu.Unlock()
		return
	}
	delete(o.values, key)
	obs := o.observer
	o.mu.Unlock()

	if obs != nil {
		obs.AttributeChanged(key, old, nil)
	}
}

// Merge sets every entry of values; the first reserved key aborts the merge
// before anything is written.
func (o *Object) Merge(values map[string]any) error {
	for key := range values {
		if o.IsReserved(key) {
			return errors.WrapInvalid(errors.Detail(errors.ErrReservedAttribute, "key %q", key),
				"Attributes", "Merge", "reserved key check")
		}
	}
	for _, key := range slices.Sorted(maps.Keys(values)) {
		if err := o.Set(key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns the attribute keys in sorted order
func (o *Object) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Sorted(maps.Keys(o.values))
}

// All returns a copy of the attributes
func (o *Object) All() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return maps.Clone(o.values)
}

// Len returns the number of attributes
func (o *Object) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.values)
}

// Detach tells the observer, once, that the owning object is gone
func (o *Object) Detach() {
	o.mu.Lock()
	if o.detached {
		o.mu.Unlock()
		return
	}
	o.detached = true
	obs := o.observer
	o.mu.Unlock()

	if obs != nil {
		obs.Detached()
	}
}

// IsDetached reports whether Detach has run
func (o *Object) IsDetached() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.detached
}
