// Package value provides the data.value handler: a process holding one
// typed value on a valued output.
package value

import (
	"fmt"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/loader"
	"github.com/c360/semflow/types"
)

// HandlerName is the module name of the handler
const HandlerName = "data.value"

// Handler returns the data.value handler. Parameters: type (default
// float) and value, given either as a value of that type or in its textual
// form.
func Handler() *flow.Handler {
	return &flow.Handler{
		Name:        HandlerName,
		Description: "Typed constant exposed on a valued output",
		Parameters: []flow.ParameterSpec{
			{Name: "type", Type: "string", Default: types.Float, Description: "Type of the value"},
			{Name: "value", Type: "any", Description: "Initial value"},
		},
		CheckParameters: checkParameters,
		OnCreate:        onCreate,
		OnChange:        onChange,
		ExportState:     exportState,
		ImportState:     importState,
	}
}

// Register adds the handler to catalog
func Register(catalog *loader.Catalog) error {
	return catalog.RegisterHandler(Handler())
}

func checkParameters(params flow.Parameters, env flow.Environment) error {
	typ, err := env.Types().Resolve(params.GetString("type", types.Float))
	if err != nil {
		return err
	}
	_, err = coerce(typ, params["value"])
	return err
}

func onCreate(p *flow.Process, params flow.Parameters) error {
	typ, err := p.Sheet().Types().Resolve(params.GetString("type", types.Float))
	if err != nil {
		return err
	}
	v, err := coerce(typ, params["value"])
	if err != nil {
		return err
	}
	_, err = p.CreatePort(flow.PortSpec{
		Name:       "out",
		Direction:  flow.Out,
		Discipline: flow.Valued,
		Type:       typ.Name(),
		Default:    v,
	})
	return err
}

func onChange(p *flow.Process, change flow.Change) {
	if change.Reason != flow.ChangeParameters {
		return
	}
	params := p.Parameters()
	out, ok := p.OutputPort("out")
	if !ok {
		return
	}
	if typName := params.GetString("type", types.Float); typName != out.Type().Name() {
		p.Logger().Warn("Type change ignored on existing value port", "port", "out", "type", typName)
	}
	v, err := coerce(out.Type(), params["value"])
	if err != nil {
		p.Logger().Warn("Invalid value parameter", "error", err)
		return
	}
	if err := out.SetValue(v); err != nil {
		p.Logger().Warn("Failed to set value", "port", "out", "error", err)
	}
}

func exportState(p *flow.Process) map[string]any {
	out, ok := p.OutputPort("out")
	if !ok {
		return nil
	}
	return map[string]any{"value": out.Default()}
}

func importState(p *flow.Process, state map[string]any) error {
	out, ok := p.OutputPort("out")
	if !ok {
		return nil
	}
	raw, ok := state["value"]
	if !ok {
		return nil
	}
	v, err := coerce(out.Type(), raw)
	if err != nil {
		return err
	}
	return out.SetValue(v)
}

// coerce converts raw to the Go representation of typ. nil yields the type
// default and strings are parsed by non-string types.
func coerce(typ *types.Type, raw any) (any, error) {
	if raw == nil {
		return typ.Default(), nil
	}
	if s, ok := raw.(string); ok && typ.Name() != types.String {
		return typ.Parse(s)
	}
	switch typ.Name() {
	case types.Float:
		if f, ok := types.ToFloat(raw); ok {
			return f, nil
		}
	case types.Int:
		if n, ok := types.ToInt(raw); ok {
			return n, nil
		}
	case types.Uint:
		if n, ok := types.ToInt(raw); ok && n >= 0 && n < 1<<32 {
			return uint64(n), nil
		}
	case types.String:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprint(raw), nil
	default:
		return raw, nil
	}
	return nil, errors.Detail(errors.ErrInvalidParameters, "value %v is not a %s", raw, typ.Name())
}
