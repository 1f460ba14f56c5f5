package event

import (
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/types"
)

// CounterName is the module name of the counter handler
const CounterName = "event.counter"

type counter struct {
	n int64
}

// CounterHandler returns the event.counter handler
func CounterHandler() *flow.Handler {
	return &flow.Handler{
		Name:        CounterName,
		Description: "Counts input packets",
		OnCreate: func(p *flow.Process, _ flow.Parameters) error {
			p.SetState(&counter{})
			specs := []flow.PortSpec{
				{Name: "in", Direction: flow.In, Discipline: flow.Streamed, Type: types.Any},
				{Name: "out", Direction: flow.Out, Discipline: flow.Streamed, Type: types.Int},
				{Name: "count", Direction: flow.Out, Discipline: flow.Valued, Type: types.Int, Default: int64(0)},
			}
			for _, spec := range specs {
				if _, err := p.CreatePort(spec); err != nil {
					return err
				}
			}
			return nil
		},
		OnPacket: func(p *flow.Process, _ string, _ any) error {
			c := p.State().(*counter)
			c.n++
			if err := setCount(p, c.n); err != nil {
				return err
			}
			return p.Send("out", c.n)
		},
		ExportState: func(p *flow.Process) map[string]any {
			return map[string]any{"count": p.State().(*counter).n}
		},
		ImportState: func(p *flow.Process, state map[string]any) error {
			n, ok := types.ToInt(state["count"])
			if !ok {
				return nil
			}
			p.State().(*counter).n = n
			return setCount(p, n)
		},
	}
}

func setCount(p *flow.Process, n int64) error {
	port, ok := p.OutputPort("count")
	if !ok {
		return nil
	}
	return port.SetValue(n)
}

// Count returns the number of packets a counter process has seen
func Count(p *flow.Process) int64 {
	if c, ok := p.State().(*counter); ok {
		return c.n
	}
	return 0
}
