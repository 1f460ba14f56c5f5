// Package op2 provides the math.op2 handler, a binary operator whose output
// is computed on demand from its two valued inputs.
package op2

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/loader"
	"github.com/c360/semflow/types"
)

// HandlerName is the module name of the handler
const HandlerName = "math.op2"

type operator func(a, b float64) float64

func boolean(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var operators = map[string]operator{
	"plus":   func(a, b float64) float64 { return a + b },
	"minus":  func(a, b float64) float64 { return a - b },
	"times":  func(a, b float64) float64 { return a * b },
	"divide": func(a, b float64) float64 { return a / b },
	"min":    math.Min,
	"max":    math.Max,
	"pow":    math.Pow,
	"mod":    math.Mod,
	"eq":     func(a, b float64) float64 { return boolean(a == b) },
	"ne":     func(a, b float64) float64 { return boolean(a != b) },
	"lt":     func(a, b float64) float64 { return boolean(a < b) },
	"le":     func(a, b float64) float64 { return boolean(a <= b) },
	"gt":     func(a, b float64) float64 { return boolean(a > b) },
	"ge":     func(a, b float64) float64 { return boolean(a >= b) },
}

// stringOps are the operators that also apply to string inputs
var stringOps = map[string]func(a, b string) any{
	"plus": func(a, b string) any { return a + b },
	"eq":   func(a, b string) any { return boolean(a == b) },
	"ne":   func(a, b string) any { return boolean(a != b) },
	"lt":   func(a, b string) any { return boolean(a < b) },
	"gt":   func(a, b string) any { return boolean(a > b) },
}

// Operators lists the supported operator names
func Operators() []string {
	names := make([]string, 0, len(operators))
	for name := range operators {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Handler returns the math.op2 handler
func Handler() *flow.Handler {
	return &flow.Handler{
		Name:        HandlerName,
		Description: "Binary operator: out = in1 <op> in2",
		Parameters: []flow.ParameterSpec{
			{Name: "op", Type: "string", Default: "plus", Description: "Operator name"},
			{Name: "in1_type", Type: "string", Default: types.Float},
			{Name: "in2_type", Type: "string", Default: types.Float},
			{Name: "out_type", Type: "string", Default: types.Float},
		},
		ParameterSchema: `{
  "type": "object",
  "properties": {
    "op": {"type": "string", "minLength": 1},
    "in1_type": {"type": "string", "minLength": 1},
    "in2_type": {"type": "string", "minLength": 1},
    "out_type": {"type": "string", "minLength": 1}
  }
}`,
		CheckParameters:  checkParameters,
		OnCreate:         onCreate,
		PassThroughValue: compute,
	}
}

// Register adds the handler to catalog
func Register(catalog *loader.Catalog) error {
	return catalog.RegisterHandler(Handler())
}

func checkParameters(params flow.Parameters, env flow.Environment) error {
	op := params.GetString("op", "plus")
	if _, ok := operators[op]; !ok {
		return fmt.Errorf("unknown operator %q (want one of %s)", op, strings.Join(Operators(), ", "))
	}
	for _, key := range []string{"in1_type", "in2_type", "out_type"} {
		if _, err := env.Types().Resolve(params.GetString(key, types.Float)); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func onCreate(p *flow.Process, params flow.Parameters) error {
	specs := []flow.PortSpec{
		{Name: "in1", Direction: flow.In, Discipline: flow.Valued, Type: params.GetString("in1_type", types.Float)},
		{Name: "in2", Direction: flow.In, Discipline: flow.Valued, Type: params.GetString("in2_type", types.Float)},
		{Name: "out", Direction: flow.Out, Discipline: flow.Valued, Type: params.GetString("out_type", types.Float), PassThrough: true},
	}
	for _, spec := range specs {
		if _, err := p.CreatePort(spec); err != nil {
			return err
		}
	}
	return nil
}

func compute(p *flow.Process, _ string) (any, bool) {
	in1, ok1 := p.InputPort("in1")
	in2, ok2 := p.InputPort("in2")
	out, ok3 := p.OutputPort("out")
	if !ok1 || !ok2 || !ok3 {
		return nil, false
	}
	op := p.Parameters().GetString("op", "plus")
	a, b := in1.Value(), in2.Value()

	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			if fn, ok := stringOps[op]; ok {
				return convert(fn(sa, sb), out.Type().Name())
			}
		}
	}

	fa, okA := types.ToFloat(a)
	fb, okB := types.ToFloat(b)
	fn, okOp := operators[op]
	if !okA || !okB || !okOp {
		return nil, false
	}
	return convert(fn(fa, fb), out.Type().Name())
}

// convert renders a result in the output type's Go representation
func convert(result any, outType string) (any, bool) {
	if s, ok := result.(string); ok {
		if outType == types.Float || outType == types.Int || outType == types.Uint {
			return nil, false
		}
		return s, true
	}
	r := result.(float64)
	switch outType {
	case types.Int:
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, false
		}
		return int64(r), true
	case types.Uint:
		if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
			return nil, false
		}
		// wraps into [0, 2^32) like the int to uint cast
		return uint64(math.Mod(r, 1<<32)), true
	case types.String:
		return strconv.FormatFloat(r, 'g', -1, 64), true
	default:
		return r, true
	}
}
