package flow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/semflow/config"
	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/types"
)

// Handler supplies the behaviour of a process. Every callback is optional;
// a nil callback is a no-op. Callbacks always run on the sheet's executor,
// one at a time.
type Handler struct {
	// Name is the fully qualified module name, e.g. "math.op2"
	Name        string
	Description string

	// Parameters declares the accepted parameters and their defaults
	Parameters []ParameterSpec
	// ParameterSchema is an optional JSON schema the parameters must satisfy
	ParameterSchema string
	// Requires names types modules that must be loaded with this handler
	Requires []string

	CheckParameters  func(params Parameters, env Environment) error
	OnCreate         func(p *Process, params Parameters) error
	OnDestroy        func(p *Process)
	OnPacket         func(p *Process, port string, packet any) error
	OnChange         func(p *Process, change Change)
	PassThroughValue func(p *Process, port string) (any, bool)
	ExportState      func(p *Process) map[string]any
	ImportState      func(p *Process, state map[string]any) error

	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
}

// ParameterSpec describes one handler parameter
type ParameterSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Default     any    `json:"default,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// Environment is what CheckParameters may consult
type Environment interface {
	Types() *types.Registry
	Logger() *slog.Logger
}

// HandlerSource provides loaded handlers to a sheet. Handler must not block;
// LoadHandler and AwaitIdle may.
type HandlerSource interface {
	Handler(name string) (*Handler, bool)
	LoadHandler(ctx context.Context, name string) (*Handler, error)
	AwaitIdle(ctx context.Context) error
}

// HandlerSet is a fixed HandlerSource keyed by handler name
type HandlerSet map[string]*Handler

// NewHandlerSet indexes handlers by their Name
func NewHandlerSet(handlers ...*Handler) HandlerSet {
	set := make(HandlerSet, len(handlers))
	for _, h := range handlers {
		set[h.Name] = h
	}
	return set
}

// Handler implements HandlerSource
func (s HandlerSet) Handler(name string) (*Handler, bool) {
	h, ok := s[name]
	return h, ok
}

// LoadHandler implements HandlerSource
func (s HandlerSet) LoadHandler(_ context.Context, name string) (*Handler, error) {
	if h, ok := s[name]; ok {
		return h, nil
	}
	return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownModule, "handler %q", name),
		"HandlerSet", "LoadHandler", "lookup")
}

// AwaitIdle implements HandlerSource; a HandlerSet never fetches
func (s HandlerSet) AwaitIdle(context.Context) error { return nil }

// ChangeReason says why OnChange fired
type ChangeReason int

const (
	// ChangeValue means a port's stored value was written
	ChangeValue ChangeReason = iota
	// ChangeInput means the upstream value feeding a valued input changed
	ChangeInput
	// ChangeConnected means a connection was added to a port
	ChangeConnected
	// ChangeDisconnected means a connection was removed from a port
	ChangeDisconnected
	// ChangeParameters means the process parameters were replaced
	ChangeParameters
	// ChangeAttribute means a free attribute of the process changed
	ChangeAttribute
)

func (r ChangeReason) String() string {
	switch r {
	case ChangeValue:
		return "value"
	case ChangeInput:
		return "input"
	case ChangeConnected:
		return "connected"
	case ChangeDisconnected:
		return "disconnected"
	case ChangeParameters:
		return "parameters"
	case ChangeAttribute:
		return "attribute"
	default:
		return "unknown"
	}
}

// Change describes an OnChange notification. Port is set for port-related
// reasons, Key for attribute changes.
type Change struct {
	Reason ChangeReason
	Port   *Port
	Key    string
}

// Parameters are the resolved parameters of a process
type Parameters map[string]any

// GetString returns a string parameter
func (p Parameters) GetString(key, def string) string { return config.GetString(p, key, def) }

// GetInt returns an integer parameter
func (p Parameters) GetInt(key string, def int) int { return config.GetInt(p, key, def) }

// GetFloat returns a float parameter
func (p Parameters) GetFloat(key string, def float64) float64 { return config.GetFloat64(p, key, def) }

// GetBool returns a boolean parameter
func (p Parameters) GetBool(key string, def bool) bool { return config.GetBool(p, key, def) }

// GetStrings returns a string list parameter
func (p Parameters) GetStrings(key string, def []string) []string {
	return config.GetStringSlice(p, key, def)
}

// Clone returns a shallow copy
func (p Parameters) Clone() Parameters { return maps.Clone(p) }

// resolveParameters fills defaults, checks required entries, validates the
// schema and finally runs CheckParameters.
func (h *Handler) resolveParameters(given map[string]any, env Environment) (Parameters, error) {
	params := make(Parameters, len(given)+len(h.Parameters))
	for _, spec := range h.Parameters {
		if spec.Default != nil {
			params[spec.Name] = spec.Default
		}
	}
	maps.Copy(params, given)

	var missing []string
	for _, spec := range h.Parameters {
		if _, ok := params[spec.Name]; spec.Required && !ok {
			missing = append(missing, spec.Name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Detail(errors.ErrInvalidParameters, "%s: missing %s", h.Name, strings.Join(missing, ", "))
	}

	if err := h.validateSchema(params); err != nil {
		return nil, err
	}

	if h.CheckParameters != nil {
		if err := h.CheckParameters(params, env); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", errors.ErrInvalidParameters, h.Name, err)
		}
	}
	return params, nil
}

func (h *Handler) validateSchema(params Parameters) error {
	if h.ParameterSchema == "" {
		return nil
	}
	h.schemaOnce.Do(func() {
		h.schema, h.schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(h.ParameterSchema))
	})
	if h.schemaErr != nil {
		return errors.Detail(errors.ErrInvalidParameters, "%s: bad parameter schema: %v", h.Name, h.schemaErr)
	}

	result, err := h.schema.Validate(gojsonschema.NewGoLoader(map[string]any(params)))
	if err != nil {
		return errors.Detail(errors.ErrInvalidParameters, "%s: %v", h.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return errors.Detail(errors.ErrInvalidParameters, "%s: %s", h.Name, strings.Join(msgs, "; "))
	}
	return nil
}
