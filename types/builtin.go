package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Built-in type names
const (
	Void   = "void"
	Any    = "any"
	Object = "object"
	String = "string"
	Float  = "float"
	Int    = "int"
	Uint   = "uint"
)

const uintModulus = 1 << 32

// BuiltinNames lists the built-in types in registration order
var BuiltinNames = []string{Void, Any, Object, String, Float, Int, Uint}

// RegisterBuiltins registers the built-in ladder:
//
//	void <- any <- {object, string, float}
//	float <- int <- uint
//
// with explicit lossy casts float->int (truncation) and int->uint (modulo
// 2^32). Values are float64, int64, uint64, string and map[string]any.
func RegisterBuiltins(r *Registry, override bool) error {
	defs := []struct {
		name string
		def  Definition
	}{
		{Void, Definition{
			Parse:  func(string) (any, error) { return nil, nil },
			Format: func(any) string { return "" },
		}},
		{Any, Definition{Parents: []string{Void}}},
		{Object, Definition{
			Parents: []string{Any},
			Parse:   parseObject,
			Format:  formatJSON,
			Default: map[string]any{},
		}},
		{String, Definition{
			Parents: []string{Any},
			Default: "",
		}},
		{Float, Definition{
			Parents: []string{Any},
			Casts:   map[string]CastFunc{Int: castFloatToInt},
			Parse:   func(s string) (any, error) { return strconv.ParseFloat(s, 64) },
			Format:  func(v any) string { f, _ := ToFloat(v); return strconv.FormatFloat(f, 'g', -1, 64) },
			Default: 0.0,
		}},
		{Int, Definition{
			Parents: []string{Float},
			Casts:   map[string]CastFunc{Uint: castIntToUint},
			Parse:   func(s string) (any, error) { return strconv.ParseInt(s, 10, 64) },
			Format:  func(v any) string { n, _ := ToInt(v); return strconv.FormatInt(n, 10) },
			Default: int64(0),
		}},
		{Uint, Definition{
			Parents: []string{Int},
			Parse:   parseUint,
			Format:  func(v any) string { n, _ := ToInt(v); return strconv.FormatInt(n, 10) },
			Default: uint64(0),
		}},
	}

	for _, d := range defs {
		if _, err := r.Register(d.name, d.def, override); err != nil {
			return err
		}
	}
	return nil
}

// BuiltinModule exposes the built-ins as a types module named "core"
func BuiltinModule() *Module {
	return &Module{
		Name:     "core",
		Types:    BuiltinNames,
		Register: RegisterBuiltins,
	}
}

func castFloatToInt(v any) (any, error) {
	f, ok := ToFloat(v)
	if !ok {
		return nil, fmt.Errorf("not a number: %T", v)
	}
	return int64(math.Trunc(f)), nil
}

func castIntToUint(v any) (any, error) {
	n, ok := ToInt(v)
	if !ok {
		return nil, fmt.Errorf("not an integer: %T", v)
	}
	return uint64(n) % uintModulus, nil
}

func parseUint(s string) (any, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return nil, err
	}
	if n >= uintModulus {
		return nil, fmt.Errorf("%d out of range [0, 2^32)", n)
	}
	return n, nil
}

func parseObject(s string) (any, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func formatJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// ToFloat converts any Go numeric value (and json.Number) to float64
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ToInt converts any Go numeric value to int64, truncating floats
func ToInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		return int64(f), err == nil
	default:
		f, ok := ToFloat(v)
		return int64(math.Trunc(f)), ok
	}
}
