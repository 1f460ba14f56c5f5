package op2

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/processor/value"
	"github.com/c360/semflow/types"
)

func newSheet() *flow.Sheet {
	return flow.NewSheet(types.NewBuiltinRegistry(), flow.NewHandlerSet(Handler(), value.Handler()),
		flow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func port(t *testing.T, p *flow.Process, name string) *flow.Port {
	t.Helper()
	port, ok := p.Port(name)
	require.True(t, ok, name)
	return port
}

func TestOp2_PlusFromValuedSources(t *testing.T) {
	s := newSheet()
	a, err := s.CreateProcess(flow.ProcessSpec{Name: "a", Handler: value.HandlerName, Parameters: map[string]any{"value": 2.0}})
	require.NoError(t, err)
	b, err := s.CreateProcess(flow.ProcessSpec{Name: "b", Handler: value.HandlerName, Parameters: map[string]any{"value": 3.0}})
	require.NoError(t, err)
	sum, err := s.CreateProcess(flow.ProcessSpec{Name: "sum", Handler: HandlerName, Parameters: map[string]any{
		"op": "plus", "in1_type": "float", "in2_type": "float",
	}})
	require.NoError(t, err)

	_, err = s.Connect(port(t, a, "out"), port(t, sum, "in1"))
	require.NoError(t, err)
	_, err = s.Connect(port(t, b, "out"), port(t, sum, "in2"))
	require.NoError(t, err)

	assert.Equal(t, 5.0, port(t, sum, "out").Value())

	require.NoError(t, port(t, b, "out").SetValue(10.0))
	assert.Equal(t, 12.0, port(t, sum, "out").Value())
}

func TestOp2_Operators(t *testing.T) {
	tests := []struct {
		op      string
		a, b    any
		outType string
		want    any
	}{
		{"minus", 5.0, 3.0, types.Float, 2.0},
		{"times", 4.0, 2.5, types.Float, 10.0},
		{"divide", 7.0, 2.0, types.Float, 3.5},
		{"divide", 7.0, 2.0, types.Int, int64(3)},
		{"min", 7.0, 2.0, types.Float, 2.0},
		{"max", 7.0, 2.0, types.Float, 7.0},
		{"pow", 2.0, 10.0, types.Float, 1024.0},
		{"mod", 7.0, 3.0, types.Float, 1.0},
		{"eq", 3.0, 3.0, types.Float, 1.0},
		{"ne", 3.0, 3.0, types.Float, 0.0},
		{"lt", 1.0, 3.0, types.Float, 1.0},
		{"le", 3.0, 3.0, types.Float, 1.0},
		{"gt", 1.0, 3.0, types.Float, 0.0},
		{"ge", 4.0, 3.0, types.Float, 1.0},
		{"plus", 1.5, 1.5, types.String, "3"},
		{"plus", 2.0, 3.0, types.Uint, uint64(5)},
		{"plus", 4294967295.0, 2.0, types.Uint, uint64(1)},
		{"times", 65536.0, 65536.0, types.Uint, uint64(0)},
	}
	for _, tt := range tests {
		t.Run(tt.op+"/"+tt.outType, func(t *testing.T) {
			s := newSheet()
			p, err := s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{
				"op": tt.op, "out_type": tt.outType,
			}})
			require.NoError(t, err)
			require.NoError(t, port(t, p, "in1").SetValue(tt.a))
			require.NoError(t, port(t, p, "in2").SetValue(tt.b))
			assert.Equal(t, tt.want, port(t, p, "out").Value())
		})
	}
}

func TestOp2_StringInputs(t *testing.T) {
	s := newSheet()
	p, err := s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{
		"op": "plus", "in1_type": "string", "in2_type": "string", "out_type": "string",
	}})
	require.NoError(t, err)
	require.NoError(t, port(t, p, "in1").SetValue("flow"))
	require.NoError(t, port(t, p, "in2").SetValue("graph"))
	assert.Equal(t, "flowgraph", port(t, p, "out").Value())
}

func TestOp2_InvalidParameters(t *testing.T) {
	s := newSheet()
	_, err := s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{"op": "xor"}})
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)

	_, err = s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{"in1_type": "nope"}})
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)
	assert.Empty(t, s.Processes())
}

func TestOp2_DivideByZeroIntKeepsDefault(t *testing.T) {
	s := newSheet()
	p, err := s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{
		"op": "divide", "out_type": "int",
	}})
	require.NoError(t, err)
	require.NoError(t, port(t, p, "in1").SetValue(1.0))
	assert.Equal(t, port(t, p, "out").Default(), port(t, p, "out").Value())
}

func TestOperators(t *testing.T) {
	assert.Len(t, Operators(), 14)
	assert.Contains(t, Operators(), "plus")
}
