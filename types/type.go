// Package types implements the semflow type system: named types with
// multiple inheritance and explicit, non-transitive casts. Port connections
// are legal only when the output type is assignable to the input type.
package types

import (
	"fmt"
	"maps"
	"slices"

	"github.com/c360/semflow/pkg/attr"
)

// CastFunc converts a value of the source type into the target type
type CastFunc func(value any) (any, error)

// Definition describes a type to register
type Definition struct {
	// Parents are inherited types, searched in order
	Parents []string
	// Casts are explicit conversions keyed by target type name
	Casts map[string]CastFunc
	// Parse converts the textual form into a value; nil accepts the raw string
	Parse func(text string) (any, error)
	// Format renders a value; nil uses fmt
	Format func(value any) string
	// Default is the value of an unconnected valued port of this type
	Default any
}

// Type is a registered type. Types are immutable once registered; Register
// with override replaces the registry entry with a new Type.
type Type struct {
	name         string
	parents      []string
	casts        map[string]CastFunc
	parse        func(string) (any, error)
	format       func(any) string
	defaultValue any

	attrs *attr.Object
}

func newType(name string, def Definition) *Type {
	return &Type{
		name:         name,
		parents:      slices.Clone(def.Parents),
		casts:        maps.Clone(def.Casts),
		parse:        def.Parse,
		format:       def.Format,
		defaultValue: def.Default,
		attrs:        attr.New("name", "parents"),
	}
}

// Name returns the type name
func (t *Type) Name() string { return t.name }

// Parents returns the declared parents in order
func (t *Type) Parents() []string { return slices.Clone(t.parents) }

// CastTargets returns the names this type has explicit casts to
func (t *Type) CastTargets() []string { return slices.Sorted(maps.Keys(t.casts)) }

// HasCast reports whether an explicit cast to target is registered
func (t *Type) HasCast(target string) bool {
	_, ok := t.casts[target]
	return ok
}

// Attributes returns the type's free attributes
func (t *Type) Attributes() *attr.Object { return t.attrs }

// Default returns the type's default value. Map defaults are copied so
// callers never share mutable state.
func (t *Type) Default() any {
	if m, ok := t.defaultValue.(map[string]any); ok {
		return maps.Clone(m)
	}
	return t.defaultValue
}

// Parse converts text into a value of this type
func (t *Type) Parse(text string) (any, error) {
	if t.parse == nil {
		return text, nil
	}
	v, err := t.parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse %q as %s: %w", text, t.name, err)
	}
	return v, nil
}

// Format renders value in this type's textual form
func (t *Type) Format(value any) string {
	if t.format == nil {
		return fmt.Sprint(value)
	}
	return t.format(value)
}

func (t *Type) String() string { return t.name }
