package jsonfilter

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/loader"
	"github.com/c360/semflow/types"
)

// HandlerName is the module name of the handler
const HandlerName = "event.filter"

// Operators lists the supported rule operators
var Operators = []string{"eq", "ne", "gt", "gte", "lt", "lte", "contains"}

// FilterRule defines a single filter condition
type FilterRule struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

const rulesSchema = `{
  "type": "object",
  "properties": {
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["field", "operator", "value"],
        "properties": {
          "field": {"type": "string", "minLength": 1},
          "operator": {"enum": ["eq", "ne", "gt", "gte", "lt", "lte", "contains"]}
        }
      }
    }
  }
}`

// Handler returns the event.filter handler
func Handler() *flow.Handler {
	return &flow.Handler{
		Name:        HandlerName,
		Description: "Routes object packets by field rules",
		Parameters: []flow.ParameterSpec{
			{Name: "rules", Type: "array", Default: []any{}, Description: "Filter rules, all must match"},
		},
		ParameterSchema: rulesSchema,
		CheckParameters: func(params flow.Parameters, _ flow.Environment) error {
			_, err := ParseRules(params["rules"])
			return err
		},
		OnCreate: func(p *flow.Process, params flow.Parameters) error {
			rules, err := ParseRules(params["rules"])
			if err != nil {
				return err
			}
			p.SetState(rules)
			specs := []flow.PortSpec{
				{Name: "in", Direction: flow.In, Discipline: flow.Streamed, Type: types.Object},
				{Name: "out", Direction: flow.Out, Discipline: flow.Streamed, Type: types.Object},
				{Name: "rejected", Direction: flow.Out, Discipline: flow.Streamed, Type: types.Object},
			}
			for _, spec := range specs {
				if _, err := p.CreatePort(spec); err != nil {
					return err
				}
			}
			return nil
		},
		OnChange: func(p *flow.Process, change flow.Change) {
			if change.Reason != flow.ChangeParameters {
				return
			}
			// parameters were validated by UpdateParameters
			rules, _ := ParseRules(p.Parameters()["rules"])
			p.SetState(rules)
		},
		OnPacket: func(p *flow.Process, _ string, packet any) error {
			data, ok := packet.(map[string]any)
			if !ok {
				return errors.WrapInvalid(errors.Detail(errors.ErrIncompatibleType, "packet %T is not an object", packet),
					"Filter", "OnPacket", "packet check")
			}
			if Match(p.State().([]FilterRule), data) {
				return p.Send("out", data)
			}
			return p.Send("rejected", data)
		},
	}
}

// Register adds the handler to catalog
func Register(catalog *loader.Catalog) error {
	return catalog.RegisterHandler(Handler())
}

// ParseRules decodes the rules parameter, which may already be a rule
// slice or its generic JSON form
func ParseRules(raw any) ([]FilterRule, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []FilterRule:
		return v, validate(v)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Detail(errors.ErrInvalidParameters, "rules: %v", err)
	}
	var rules []FilterRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, errors.Detail(errors.ErrInvalidParameters, "rules: %v", err)
	}
	return rules, validate(rules)
}

func validate(rules []FilterRule) error {
	for i, rule := range rules {
		if rule.Field == "" {
			return errors.Detail(errors.ErrInvalidParameters, "rule %d: empty field", i)
		}
		if !slices.Contains(Operators, rule.Operator) {
			return errors.Detail(errors.ErrInvalidParameters, "rule %d: unknown operator %q", i, rule.Operator)
		}
	}
	return nil
}

// Match reports whether data satisfies every rule
func Match(rules []FilterRule, data map[string]any) bool {
	for _, rule := range rules {
		if !matchRule(data, rule) {
			return false
		}
	}
	return true
}

func matchRule(data map[string]any, rule FilterRule) bool {
	value, ok := Field(data, rule.Field)
	if !ok || value == nil {
		return false
	}

	switch rule.Operator {
	case "eq":
		return equal(value, rule.Value)
	case "ne":
		return !equal(value, rule.Value)
	case "gt", "gte", "lt", "lte":
		a, okA := types.ToFloat(value)
		b, okB := types.ToFloat(rule.Value)
		if !okA || !okB {
			return false
		}
		switch rule.Operator {
		case "gt":
			return a > b
		case "gte":
			return a >= b
		case "lt":
			return a < b
		default:
			return a <= b
		}
	case "contains":
		return strings.Contains(fmt.Sprint(value), fmt.Sprint(rule.Value))
	default:
		return false
	}
}

// equal compares numerically when both sides are numbers
func equal(a, b any) bool {
	fa, okA := types.ToFloat(a)
	fb, okB := types.ToFloat(b)
	if okA && okB {
		return fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Field retrieves a value by dotted path. A direct key containing dots
// takes precedence over the nested lookup.
func Field(data map[string]any, path string) (any, bool) {
	if v, ok := data[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	nested, ok := data[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return Field(nested, rest)
}
