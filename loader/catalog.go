package loader

import (
	"context"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/c360/semflow/errors"
	"github.com/c360/semflow/flow"
	"github.com/c360/semflow/types"
)

// Catalog is an in-memory Resolver for compiled modules. Manifests are
// synthesized from dotted module names: "math.op2" lives in library "math"
// as module "op2" with src "math.op2".
type Catalog struct {
	mu       sync.RWMutex
	handlers map[string]*flow.Handler
	types    map[string]*types.Module
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		handlers: make(map[string]*flow.Handler),
		types:    make(map[string]*types.Module),
	}
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "" || strings.ContainsAny(seg, "/ ") {
			return false
		}
	}
	return true
}

// RegisterHandler adds a handler under h.Name
func (c *Catalog) RegisterHandler(h *flow.Handler) error {
	if h == nil || !validName(h.Name) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Catalog", "RegisterHandler", "name validation")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[h.Name]; exists {
		return errors.WrapInvalid(errors.Detail(errors.ErrDuplicateName, "handler %q", h.Name),
			"Catalog", "RegisterHandler", "duplicate check")
	}
	c.handlers[h.Name] = h
	return nil
}

// RegisterTypes adds a types module under m.Name
func (c *Catalog) RegisterTypes(m *types.Module) error {
	if m == nil || !validName(m.Name) {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Catalog", "RegisterTypes", "name validation")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.types[m.Name]; exists {
		return errors.WrapInvalid(errors.Detail(errors.ErrDuplicateName, "types module %q", m.Name),
			"Catalog", "RegisterTypes", "duplicate check")
	}
	c.types[m.Name] = m
	return nil
}

// HandlerNames lists registered handler names in order
func (c *Catalog) HandlerNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.handlers))
}

// TypesNames lists registered types module names in order
func (c *Catalog) TypesNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.types))
}

func (c *Catalog) names(kind Kind) []string {
	if kind == KindTypes {
		return c.TypesNames()
	}
	return c.HandlerNames()
}

// section builds the manifest section for dir from the registered names
func (c *Catalog) section(kind Kind, dir string) Section {
	var prefix []string
	if dir != "" {
		prefix = strings.Split(dir, "/")
	}
	var sec Section
	seen := make(map[string]bool)
	for _, name := range c.names(kind) {
		segs := strings.Split(name, ".")
		if len(segs) <= len(prefix) || !slices.Equal(segs[:len(prefix)], prefix) {
			continue
		}
		rest := segs[len(prefix):]
		if len(rest) == 1 {
			sec.Modules = append(sec.Modules, ModuleRef{Name: rest[0], Src: name})
			continue
		}
		if !seen[rest[0]] {
			seen[rest[0]] = true
			sec.Libraries = append(sec.Libraries, Library{Name: rest[0], Dir: rest[0]})
		}
	}
	return sec
}

// ResolveManifest implements Resolver
func (c *Catalog) ResolveManifest(_ context.Context, dir string) (*Manifest, error) {
	dir = strings.Trim(path.Clean("/"+dir), "/")
	m := &Manifest{
		Processes: c.section(KindProcesses, dir),
		Types:     c.section(KindTypes, dir),
	}
	empty := len(m.Processes.Libraries)+len(m.Processes.Modules)+len(m.Types.Libraries)+len(m.Types.Modules) == 0
	if dir != "" && empty {
		return nil, errors.WrapInvalid(errors.Detail(errors.ErrUnknownLibrary, "no library at %q", dir),
			"Catalog", "ResolveManifest", "lookup")
	}
	return m, nil
}

// LoadModule implements Resolver
func (c *Catalog) LoadModule(_ context.Context, kind Kind, src string) (Module, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch kind {
	case KindProcesses:
		if h, ok := c.handlers[src]; ok {
			return Module{Kind: kind, Handler: h}, nil
		}
	case KindTypes:
		if m, ok := c.types[src]; ok {
			return Module{Kind: kind, Types: m}, nil
		}
	default:
		return Module{}, errors.WrapInvalid(errors.Detail(errors.ErrModuleKind, "kind %q", kind),
			"Catalog", "LoadModule", "kind check")
	}
	return Module{}, errors.WrapInvalid(errors.Detail(errors.ErrUnknownModule, "%s module %q", kind, src),
		"Catalog", "LoadModule", "lookup")
}
