package jsonmap

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/loader"
	"github.com/c360/semflow/types"
)

// HandlerName is the module name of the handler
const HandlerName = "event.map"

// Transforms lists the supported field transforms
var Transforms = []string{"copy", "uppercase", "lowercase", "trim"}

// FieldMapping moves a field, optionally transforming string values
type FieldMapping struct {
	SourceField string `json:"source_field"`
	TargetField string `json:"target_field"`
	Transform   string `json:"transform,omitempty"`
}

// Config is the decoded parameter set
type Config struct {
	Mappings     []FieldMapping `json:"mappings"`
	AddFields    map[string]any `json:"add_fields"`
	RemoveFields []string       `json:"remove_fields"`
}

// ParseConfig decodes the handler parameters
func ParseConfig(params map[string]any) (Config, error) {
	var cfg Config
	data, err := json.Marshal(params)
	if err != nil {
		return cfg, errors.Detail(errors.ErrInvalidParameters, "%v", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Detail(errors.ErrInvalidParameters, "%v", err)
	}
	for i, m := range cfg.Mappings {
		if m.SourceField == "" || m.TargetField == "" {
			return cfg, errors.Detail(errors.ErrInvalidParameters, "mapping %d: source and target are required", i)
		}
		if m.Transform != "" && !slices.Contains(Transforms, m.Transform) {
			return cfg, errors.Detail(errors.ErrInvalidParameters, "mapping %d: unknown transform %q", i, m.Transform)
		}
	}
	return cfg, nil
}

// Handler returns the event.map handler
func Handler() *flow.Handler {
	return &flow.Handler{
		Name:        HandlerName,
		Description: "Renames, transforms, adds and removes object fields",
		Parameters: []flow.ParameterSpec{
			{Name: "mappings", Type: "array"},
			{Name: "add_fields", Type: "object"},
			{Name: "remove_fields", Type: "array"},
		},
		CheckParameters: func(params flow.Parameters, _ flow.Environment) error {
			_, err := ParseConfig(params)
			return err
		},
		OnCreate: func(p *flow.Process, params flow.Parameters) error {
			cfg, err := ParseConfig(params)
			if err != nil {
				return err
			}
			p.SetState(cfg)
			for _, spec := range []flow.PortSpec{
				{Name: "in", Direction: flow.In, Discipline: flow.Streamed, Type: types.Object},
				{Name: "out", Direction: flow.Out, Discipline: flow.Streamed, Type: types.Object},
			} {
				if _, err := p.CreatePort(spec); err != nil {
					return err
				}
			}
			return nil
		},
		OnChange: func(p *flow.Process, change flow.Change) {
			if change.Reason == flow.ChangeParameters {
				cfg, _ := ParseConfig(p.Parameters())
				p.SetState(cfg)
			}
		},
		OnPacket: func(p *flow.Process, _ string, packet any) error {
			data, ok := packet.(map[string]any)
			if !ok {
				return errors.WrapInvalid(errors.Detail(errors.ErrIncompatibleType, "packet %T is not an object", packet),
					"Map", "OnPacket", "packet check")
			}
			return p.Send("out", Transform(p.State().(Config), data))
		},
	}
}

// Register adds the handler to catalog
func Register(catalog *loader.Catalog) error {
	return catalog.RegisterHandler(Handler())
}

// Transform applies cfg to data and returns a new object
func Transform(cfg Config, data map[string]any) map[string]any {
	result := maps.Clone(data)
	if result == nil {
		result = make(map[string]any)
	}
	for _, key := range cfg.RemoveFields {
		delete(result, key)
	}
	for _, m := range cfg.Mappings {
		value, ok := data[m.SourceField]
		if !ok {
			continue
		}
		if m.SourceField != m.TargetField {
			delete(result, m.SourceField)
		}
		result[m.TargetField] = applyTransform(value, m.Transform)
	}
	maps.Copy(result, cfg.AddFields)
	return result
}

func applyTransform(value any, transform string) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	switch transform {
	case "uppercase":
		return strings.ToUpper(s)
	case "lowercase":
		return strings.ToLower(s)
	case "trim":
		return strings.TrimSpace(s)
	default:
		return value
	}
}
