package event

import (
	"slices"

	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/types"
)

// CollectName is the module name of the collector handler
const CollectName = "event.collect"

type collector struct {
	limit   int
	packets []any
}

func (c *collector) add(packet any) {
	c.packets = append(c.packets, packet)
	if c.limit > 0 && len(c.packets) > c.limit {
		c.packets = slices.Delete(c.packets, 0, len(c.packets)-c.limit)
	}
}

// CollectHandler returns the event.collect handler. With limit > 0 only
// the most recent limit packets are kept.
func CollectHandler() *flow.Handler {
	return &flow.Handler{
		Name:        CollectName,
		Description: "Stores received packets",
		Parameters: []flow.ParameterSpec{
			{Name: "limit", Type: "int", Default: 0, Description: "Packets kept, 0 keeps all"},
			{Name: "type", Type: "string", Default: types.Any},
		},
		OnCreate: func(p *flow.Process, params flow.Parameters) error {
			p.SetState(&collector{limit: params.GetInt("limit", 0)})
			_, err := p.CreatePort(flow.PortSpec{
				Name: "in", Direction: flow.In, Discipline: flow.Streamed,
				Type: params.GetString("type", types.Any),
			})
			return err
		},
		OnChange: func(p *flow.Process, change flow.Change) {
			if change.Reason == flow.ChangeParameters {
				p.State().(*collector).limit = p.Parameters().GetInt("limit", 0)
			}
		},
		OnPacket: func(p *flow.Process, _ string, packet any) error {
			p.State().(*collector).add(packet)
			return nil
		},
		ExportState: func(p *flow.Process) map[string]any {
			return map[string]any{"packets": slices.Clone(p.State().(*collector).packets)}
		},
		ImportState: func(p *flow.Process, state map[string]any) error {
			packets, _ := state["packets"].([]any)
			c := p.State().(*collector)
			for _, packet := range packets {
				c.add(packet)
			}
			return nil
		},
	}
}

// Collected returns a copy of the packets a collector process holds. It
// must run on the sheet's executor while the sheet is running.
func Collected(p *flow.Process) []any {
	if c, ok := p.State().(*collector); ok {
		return slices.Clone(c.packets)
	}
	return nil
}
