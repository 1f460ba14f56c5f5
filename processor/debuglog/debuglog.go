// Package debuglog provides the debug.log handler, a streamed sink that
// writes packets to the process logger, optionally rate limited.
package debuglog

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/loader"
	"github.com/c360/semflow/types"
)

// HandlerName is the module name of the handler
const HandlerName = "debug.log"

type limitState struct {
	limiter    *rate.Limiter
	suppressed int
}

// Handler returns the debug.log handler. Parameters: level (debug, info,
// warn, error; default info), message, and rate/burst limiting log lines per
// second (rate 0 logs everything). Dropped packets are counted and reported
// on the next line written.
func Handler() *flow.Handler {
	return &flow.Handler{
		Name:        HandlerName,
		Description: "Logs every packet",
		Parameters: []flow.ParameterSpec{
			{Name: "level", Type: "string", Default: "info"},
			{Name: "message", Type: "string", Default: "Packet received"},
			{Name: "rate", Type: "float", Default: 0.0, Description: "lines per second, 0 for unlimited"},
			{Name: "burst", Type: "int", Default: 1},
		},
		ParameterSchema: `{"type": "object", "properties": {
			"level": {"enum": ["debug", "info", "warn", "error"]},
			"rate": {"type": "number", "minimum": 0},
			"burst": {"type": "integer", "minimum": 1}
		}}`,
		OnCreate: func(p *flow.Process, params flow.Parameters) error {
			p.SetState(newLimitState(params))
			_, err := p.CreatePort(flow.PortSpec{Name: "in", Direction: flow.In, Discipline: flow.Streamed, Type: types.Any})
			return err
		},
		OnChange: func(p *flow.Process, change flow.Change) {
			if change.Reason == flow.ChangeParameters {
				p.SetState(newLimitState(p.Parameters()))
			}
		},
		OnPacket: func(p *flow.Process, port string, packet any) error {
			st, _ := p.State().(*limitState)
			if st != nil && st.limiter != nil && !st.limiter.Allow() {
				st.suppressed++
				return nil
			}

			params := p.Parameters()
			attrs := []any{"port", port, "packet", packet}
			if st != nil && st.suppressed > 0 {
				attrs = append(attrs, "suppressed", st.suppressed)
				st.suppressed = 0
			}
			p.Logger().Log(context.Background(), level(params.GetString("level", "info")),
				params.GetString("message", "Packet received"), attrs...)
			return nil
		},
	}
}

// Register adds the handler to catalog
func Register(catalog *loader.Catalog) error {
	return catalog.RegisterHandler(Handler())
}

func newLimitState(params flow.Parameters) *limitState {
	perSecond := params.GetFloat("rate", 0)
	if perSecond <= 0 {
		return &limitState{}
	}
	return &limitState{limiter: rate.NewLimiter(rate.Limit(perSecond), max(params.GetInt("burst", 1), 1))}
}

func level(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
