package jsonmap

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

func TestTransform(t *testing.T) {
	cfg := Config{
		Mappings: []FieldMapping{
			{SourceField: "n", TargetField: "name", Transform: "uppercase"},
			{SourceField: "code", TargetField: "code", Transform: "trim"},
			{SourceField: "missing", TargetField: "x"},
			{SourceField: "count", TargetField: "total", Transform: "lowercase"},
		},
		AddFields:    map[string]any{"source": "map"},
		RemoveFields: []string{"secret"},
	}
	in := map[string]any{"n": "alpha", "code": "  a1 ", "count": 3, "secret": "s", "keep": true}

	out := Transform(cfg, in)
	assert.Equal(t, map[string]any{
		"name":   "ALPHA",
		"code":   "a1",
		"total":  3,
		"source": "map",
		"keep":   true,
	}, out)
	assert.Equal(t, "alpha", in["n"], "input is not modified")
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]any{
		"mappings":      []any{map[string]any{"source_field": "a", "target_field": "b"}},
		"remove_fields": []any{"c"},
	})
	require.NoError(t, err)
	assert.Equal(t, []FieldMapping{{SourceField: "a", TargetField: "b"}}, cfg.Mappings)
	assert.Equal(t, []string{"c"}, cfg.RemoveFields)

	_, err = ParseConfig(map[string]any{"mappings": []any{map[string]any{"source_field": "a"}}})
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)

	_, err = ParseConfig(map[string]any{"mappings": []any{
		map[string]any{"source_field": "a", "target_field": "b", "transform": "reverse"},
	}})
	assert.ErrorIs(t, err, errors.ErrInvalidParameters)
}

func TestMapHandler(t *testing.T) {
	s := flow.NewSheet(types.NewBuiltinRegistry(), flow.NewHandlerSet(Handler()),
		flow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	p, err := s.CreateProcess(flow.ProcessSpec{Handler: HandlerName, Parameters: map[string]any{
		"add_fields": map[string]any{"seen": true},
	}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"seen": true}, p.State().(Config).AddFields)

	require.NoError(t, p.UpdateParameters(map[string]any{"remove_fields": []any{"x"}}))
	assert.Equal(t, []string{"x"}, p.State().(Config).RemoveFields)
	assert.Nil(t, p.State().(Config).AddFields)

	assert.Error(t, p.HandlePacket("in", 42))
}
