package flow

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/types"
)

// sinkState collects packets; read it through snapshot
type sinkState struct {
	mu      sync.Mutex
	packets []any
}

func (s *sinkState) add(packet any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, packet)
}

func (s *sinkState) snapshot() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.packets)
}

func streamedPort(name string, dir Direction, typ string) PortSpec {
	return PortSpec{Name: name, Direction: dir, Discipline: Streamed, Type: typ}
}

func valuedPort(name string, dir Direction, typ string) PortSpec {
	return PortSpec{Name: name, Direction: dir, Discipline: Valued, Type: typ}
}

func createPorts(p *Process, specs ...PortSpec) error {
	for _, spec := range specs {
		if _, err := p.CreatePort(spec); err != nil {
			return err
		}
	}
	return nil
}

// testHandlers returns the handlers used across the flow tests
func testHandlers() HandlerSet {
	return NewHandlerSet(
		&Handler{
			Name: "test.source",
			OnCreate: func(p *Process, params Parameters) error {
				return createPorts(p, streamedPort("out", Out, params.GetString("type", types.Any)))
			},
		},
		&Handler{
			Name: "test.sink",
			OnCreate: func(p *Process, params Parameters) error {
				p.SetState(&sinkState{})
				return createPorts(p, streamedPort("in", In, params.GetString("type", types.Any)))
			},
			OnPacket: func(p *Process, _ string, packet any) error {
				p.State().(*sinkState).add(packet)
				return nil
			},
		},
		&Handler{
			Name: "test.relay",
			OnCreate: func(p *Process, _ Parameters) error {
				return createPorts(p, streamedPort("in", In, types.Any), streamedPort("out", Out, types.Any))
			},
			OnPacket: func(p *Process, _ string, packet any) error {
				if n, ok := packet.(int); ok && n > 0 {
					return p.Send("out", n-1)
				}
				return nil
			},
		},
		&Handler{
			Name:       "test.value",
			Parameters: []ParameterSpec{{Name: "type", Type: "string", Default: types.Float}},
			OnCreate: func(p *Process, params Parameters) error {
				port, err := p.CreatePort(valuedPort("out", Out, params.GetString("type", types.Float)))
				if err != nil {
					return err
				}
				if v, ok := params["value"]; ok {
					port.value = v
				}
				return nil
			},
		},
		&Handler{
			Name: "test.add",
			OnCreate: func(p *Process, _ Parameters) error {
				sum := valuedPort("sum", Out, types.Float)
				sum.PassThrough = true
				return createPorts(p, valuedPort("a", In, types.Float), valuedPort("b", In, types.Float), sum)
			},
			PassThroughValue: func(p *Process, _ string) (any, bool) {
				a, _ := p.InputPort("a")
				b, _ := p.InputPort("b")
				x, _ := types.ToFloat(a.Value())
				y, _ := types.ToFloat(b.Value())
				return x + y, true
			},
		},
		&Handler{
			Name: "test.passthrough",
			OnCreate: func(p *Process, _ Parameters) error {
				out := valuedPort("out", Out, types.Any)
				out.PassThrough = true
				return createPorts(p, valuedPort("in", In, types.Any), out)
			},
			PassThroughValue: func(p *Process, _ string) (any, bool) {
				in, _ := p.InputPort("in")
				return in.Value(), true
			},
		},
		&Handler{
			Name: "test.faulty",
			OnCreate: func(p *Process, _ Parameters) error {
				p.SetState(&sinkState{})
				return createPorts(p, streamedPort("in", In, types.Any))
			},
			OnPacket: func(p *Process, _ string, packet any) error {
				switch packet {
				case "panic":
					panic("boom")
				case "error":
					return fmt.Errorf("refused %v", packet)
				}
				p.State().(*sinkState).add(packet)
				return nil
			},
		},
		&Handler{
			Name: "test.broken",
			OnCreate: func(p *Process, _ Parameters) error {
				if err := createPorts(p, streamedPort("in", In, types.Any)); err != nil {
					return err
				}
				return fmt.Errorf("construction refused")
			},
		},
		&Handler{Name: "test.empty"},
	)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSheet(t *testing.T, opts ...Option) *Sheet {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithSeed(42)}, opts...)
	return NewSheet(types.NewBuiltinRegistry(), testHandlers(), opts...)
}

func mustCreate(t *testing.T, s *Sheet, handler, name string, params map[string]any) *Process {
	t.Helper()
	p, err := s.CreateProcess(ProcessSpec{Name: name, Handler: handler, Parameters: params})
	require.NoError(t, err)
	return p
}

func mustPort(t *testing.T, p *Process, name string) *Port {
	t.Helper()
	port, ok := p.Port(name)
	require.True(t, ok, "port %s on %s", name, p)
	return port
}

func mustConnect(t *testing.T, s *Sheet, from, to *Port) *Connection {
	t.Helper()
	c, err := s.Connect(from, to)
	require.NoError(t, err)
	return c
}

// recorder is an Observer logging events as short strings
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func (r *recorder) OnProcessCreated(p *Process)       { r.record("+process %s", p.Name()) }
func (r *recorder) OnProcessDeleted(p *Process)       { r.record("-process %s", p.Name()) }
func (r *recorder) OnPortCreated(port *Port)          { r.record("+port %s", portLabel(port)) }
func (r *recorder) OnPortChanged(port *Port)          { r.record("~port %s", portLabel(port)) }
func (r *recorder) OnPortDeleted(port *Port)          { r.record("-port %s", portLabel(port)) }
func (r *recorder) OnConnectionCreated(c *Connection) { r.record("+conn %s", connLabel(c)) }
func (r *recorder) OnConnectionDeleted(c *Connection) { r.record("-conn %s", connLabel(c)) }

func portLabel(port *Port) string {
	return port.Process().Name() + "." + port.Name()
}

func connLabel(c *Connection) string {
	return portLabel(c.Start()) + ">" + portLabel(c.End())
}

func withPrefix(events []string, prefix string) []string {
	var out []string
	for _, e := range events {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}
