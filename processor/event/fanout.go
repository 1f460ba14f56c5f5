package event

import (
	"fmt"

	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/types"
)

// FanoutName is the module name of the fan-out handler
const FanoutName = "event.fanout"

// FanoutHandler returns the event.fanout handler. Parameters: nb_out
// (default 2) and type (default any).
func FanoutHandler() *flow.Handler {
	return &flow.Handler{
		Name:        FanoutName,
		Description: "Copies every input packet to each output, in output order",
		Parameters: []flow.ParameterSpec{
			{Name: "nb_out", Type: "int", Default: 2, Description: "Number of outputs"},
			{Name: "type", Type: "string", Default: types.Any, Description: "Packet type"},
		},
		ParameterSchema: `{
  "type": "object",
  "properties": {
    "nb_out": {"type": "integer", "minimum": 1, "maximum": 64},
    "type": {"type": "string", "minLength": 1}
  }
}`,
		OnCreate: func(p *flow.Process, params flow.Parameters) error {
			typ := params.GetString("type", types.Any)
			if _, err := p.CreatePort(flow.PortSpec{Name: "in", Direction: flow.In, Discipline: flow.Streamed, Type: typ}); err != nil {
				return err
			}
			return resizeOutputs(p, params.GetInt("nb_out", 2), typ)
		},
		OnChange: func(p *flow.Process, change flow.Change) {
			if change.Reason != flow.ChangeParameters {
				return
			}
			params := p.Parameters()
			if err := resizeOutputs(p, params.GetInt("nb_out", 2), params.GetString("type", types.Any)); err != nil {
				p.Logger().Error("Failed to resize outputs", "error", err)
			}
		},
		OnPacket: func(p *flow.Process, _ string, packet any) error {
			for _, out := range p.Outputs() {
				if err := out.Send(packet); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// OutputName returns the name of the i-th fan-out output
func OutputName(i int) string { return fmt.Sprintf("out%d", i) }

// resizeOutputs creates or deletes outputs until there are exactly n
func resizeOutputs(p *flow.Process, n int, typ string) error {
	current := len(p.Outputs())
	for i := current; i < n; i++ {
		spec := flow.PortSpec{Name: OutputName(i), Direction: flow.Out, Discipline: flow.Streamed, Type: typ}
		if _, err := p.CreatePort(spec); err != nil {
			return err
		}
	}
	for i := current - 1; i >= n; i-- {
		if err := p.DeletePort(OutputName(i), flow.Out); err != nil {
			return err
		}
	}
	return nil
}
