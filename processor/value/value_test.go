package value

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/types"
)

func newSheet() *flow.Sheet {
	return flow.NewSheet(types.NewBuiltinRegistry(), flow.NewHandlerSet(Handler()),
		flow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestValue_Create(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		typ    string
		want   any
	}{
		{"default float", nil, types.Float, 0.0},
		{"float", map[string]any{"value": 2.5}, types.Float, 2.5},
		{"int from text", map[string]any{"type": "int", "value": "42"}, types.Int, int64(42)},
		{"int from number", map[string]any{"type": "int", "value": 7}, types.Int, int64(7)},
		{"uint", map[string]any{"type": "uint", "value": 3}, types.Uint, uint64(3)},
		{"string from number", map[string]any{"type": "string", "value": 12}, types.String, "12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := newSheet().CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: tt.params})
			require.NoError(t, err)
			out, ok := p.OutputPort("out")
			require.True(t, ok)
			assert.Equal(t, tt.typ, out.Type().Name())
			assert.Equal(t, tt.want, out.Value())
		})
	}
}

func TestValue_InvalidParameters(t *testing.T) {
	s := newSheet()
	_, err := s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{"type": "nope"}})
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)

	_, err = s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{"type": "int", "value": "abc"}})
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)

	_, err = s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{"type": "uint", "value": -1}})
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)

	_, err = s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{"type": "uint", "value": 1 << 32}})
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)
}

func TestValue_UpdateAndState(t *testing.T) {
	s := newSheet()
	p, err := s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{"value": 1.0}})
	require.NoError(t, err)

	require.NoError(t, p.UpdateParameters(map[string]any{"value": 9.5}))
	out, _ := p.OutputPort("out")
	assert.Equal(t, 9.5, out.Value())
	assert.Equal(t, map[string]any{"value": 9.5}, p.ExportState())

	restored, err := s.CreateProcess(flow.ProcessSpec{
		Handler:    HandlerName,
		Parameters: map[string]any{"value": 1.0},
		State:      map[string]any{"value": "4.25"},
	})
	require.NoError(t, err)
	out, _ = restored.OutputPort("out")
	assert.Equal(t, 4.25, out.Value())
}
