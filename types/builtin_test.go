package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semflow/errors"
)

func TestBuiltins_Ladder(t *testing.T) {
	r := NewBuiltinRegistry()
	assert.Equal(t, BuiltinNames, r.Names())

	tests := []struct {
		src, target string
		expected    bool
	}{
		{Int, Float, true},
		{Uint, Int, true},
		{Uint, Float, true},
		{Uint, Any, true},
		{String, Any, true},
		{Object, Void, true},
		{Float, Int, true},
		{Int, Uint, true},
		{Float, Uint, false},
		{String, Float, false},
		{Any, String, false},
		{Void, Any, false},
		{Float, Float, true},
	}

	for _, test := range tests {
		t.Run(test.src+"->"+test.target, func(t *testing.T) {
			assert.Equal(t, test.expected, r.IsAssignable(mustLookup(t, r, test.src), test.target))
		})
	}
}

func TestBuiltins_ParseFormat(t *testing.T) {
	r := NewBuiltinRegistry()

	v, err := mustLookup(t, r, Float).Parse("2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
	assert.Equal(t, "2.5", mustLookup(t, r, Float).Format(2.5))

	v, err = mustLookup(t, r, Int).Parse("-7")
	require.NoError(t, err)
	assert.Equal(t, int64(-7), v)
	assert.Equal(t, "42", mustLookup(t, r, Int).Format(42))

	_, err = mustLookup(t, r, Uint).Parse("4294967296")
	assert.Error(t, err)
	v, err = mustLookup(t, r, Uint).Parse("4294967295")
	require.NoError(t, err)
	assert.Equal(t, uint64(4294967295), v)

	v, err = mustLookup(t, r, Object).Parse(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, v)
	assert.Equal(t, `{"a":1}`, mustLookup(t, r, Object).Format(map[string]any{"a": 1}))

	v, err = mustLookup(t, r, String).Parse("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	_, err = mustLookup(t, r, Float).Parse("abc")
	assert.Error(t, err)
}

func TestBuiltins_Defaults(t *testing.T) {
	r := NewBuiltinRegistry()

	assert.Equal(t, 0.0, mustLookup(t, r, Float).Default())
	assert.Equal(t, int64(0), mustLookup(t, r, Int).Default())
	assert.Equal(t, uint64(0), mustLookup(t, r, Uint).Default())
	assert.Equal(t, "", mustLookup(t, r, String).Default())
	assert.Nil(t, mustLookup(t, r, Any).Default())

	obj := mustLookup(t, r, Object)
	first := obj.Default().(map[string]any)
	first["mutated"] = true
	assert.Empty(t, obj.Default(), "object default must not be shared")
}

func TestBuiltins_DuplicateWithoutOverride(t *testing.T) {
	r := NewBuiltinRegistry()
	assert.ErrorIs(t, RegisterBuiltins(r, false), errors.ErrDuplicateType)
	assert.NoError(t, RegisterBuiltins(r, true))
}

func TestToFloatToInt(t *testing.T) {
	f, ok := ToFloat(int32(3))
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	f, ok = ToFloat(json.Number("1.25"))
	assert.True(t, ok)
	assert.Equal(t, 1.25, f)

	_, ok = ToFloat("3")
	assert.False(t, ok)

	n, ok := ToInt(3.99)
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	n, ok = ToInt(json.Number("12"))
	assert.True(t, ok)
	assert.Equal(t, int64(12), n)

	_, ok = ToInt(struct{}{})
	assert.False(t, ok)
}

func TestModule_Install(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, BuiltinModule().Install(r, false))
	assert.Equal(t, BuiltinNames, r.Names())

	liar := &Module{
		Name:     "geo",
		Types:    []string{"point"},
		Register: func(*Registry, bool) error { return nil },
	}
	assert.ErrorIs(t, liar.Install(r, false), errors.ErrUnknownType)

	empty := &Module{Name: "empty"}
	assert.ErrorIs(t, empty.Install(r, false), errors.ErrModuleKind)

	geo := &Module{
		Name:  "geo",
		Types: []string{"point"},
		Register: func(reg *Registry, override bool) error {
			_, err := reg.Register("point", Definition{Parents: []string{Object}}, override)
			return err
		},
	}
	require.NoError(t, geo.Install(r, false))
	point, _ := r.Lookup("point")
	assert.True(t, r.IsAssignable(point, Any))
}
