// Package componentregistry registers the built-in handler library with a
// loader catalog.
package componentregistry

import (
	"errors"

	pkgerrors "github.com/c360/semflow/errors"
	"github.com/c360/semflow/loader"
	"github.com/c360/semflow/processor/debuglog"
	"github.com/c360/semflow/processor/event"
	jsonfilter "github.com/c360/semflow/processor/json_filter"
	jsonmap "github.com/c360/semflow/processor/json_map"
	"github.com/c360/semflow/processor/op2"
	"github.com/c360/semflow/processor/parser"
	"github.com/c360/semflow/processor/value"
)

// Register adds every built-in handler to catalog:
//
// Data sources:
//   - data.value (typed constant on a valued output)
//   - data.parse (JSON or CSV text to objects)
//
// Operators:
//   - math.op2 (binary operator with a pass-through output)
//
// Streamed packets:
//   - event.fanout, event.counter, event.collect, event.emit
//   - event.filter (rule based routing of objects)
//   - event.map (field rewriting of objects)
//
// Diagnostics:
//   - debug.log
func Register(catalog *loader.Catalog) error {
	if catalog == nil {
		return pkgerrors.WrapFatal(
			errors.New("catalog cannot be nil"),
			"ComponentRegistry", "Register", "catalog validation")
	}

	registrations := []struct {
		name     string
		register func(*loader.Catalog) error
	}{
		{"data.value", value.Register},
		{"data.parse", parser.Register},
		{"math.op2", op2.Register},
		{"event", event.Register},
		{"event.filter", jsonfilter.Register},
		{"event.map", jsonmap.Register},
		{"debug.log", debuglog.Register},
	}
	for _, r := range registrations {
		if err := r.register(catalog); err != nil {
			return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", r.name+" registration")
		}
	}
	return nil
}

// NewCatalog returns a catalog holding the built-in handlers
func NewCatalog() (*loader.Catalog, error) {
	catalog := loader.NewCatalog()
	if err := Register(catalog); err != nil {
		return nil, err
	}
	return catalog, nil
}
