package event

import (
	"context"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/types"
)

// EmitName is the module name of the emitter handler
const EmitName = "event.emit"

// EmitHandler returns the event.emit handler, a streamed source the host
// feeds through Emit
func EmitHandler() *flow.Handler {
	return &flow.Handler{
		Name:        EmitName,
		Description: "Streamed source fed by the host",
		Parameters: []flow.ParameterSpec{
			{Name: "type", Type: "string", Default: types.Any},
		},
		OnCreate: func(p *flow.Process, params flow.Parameters) error {
			_, err := p.CreatePort(flow.PortSpec{
				Name: "out", Direction: flow.Out, Discipline: flow.Streamed,
				Type: params.GetString("type", types.Any),
			})
			return err
		},
	}
}

// Emit sends packet on the out port of an emitter process. It runs on the
// sheet's executor and may be called from any goroutine.
func Emit(ctx context.Context, p *flow.Process, packet any) error {
	if p.Handler().Name != EmitName {
		return errors.WrapInvalid(errors.Detail(errors.ErrModuleKind, "%s is a %s process", p, p.Handler().Name),
			"event", "Emit", "handler check")
	}
	return p.Sheet().Do(ctx, func() error {
		return p.Send("out", packet)
	})
}
